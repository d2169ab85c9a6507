package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/trackww/backend/core/access"
	"github.com/trackww/backend/core/backend"
	"github.com/trackww/backend/core/csql"
	"github.com/trackww/backend/core/events"
	"github.com/trackww/backend/core/logger"
)

var configurationJSON string = `
{
	"resources": [
	  {
		"resource": "user",
		"table": "xtrack_users",
		"primary_key": ["user_id"],
		"columns": ["user_id", "user_name", "user_email", "user_pwd", "user_active", "valid_till", "create_date"],
		"searchable": ["user_id", "user_name", "user_email"]
	  },
	  {
		"resource": "endpoint",
		"table": "xtrack_endpoint",
		"primary_key": ["menu_id"],
		"columns": ["menu_id", "endpoint"]
	  },
	  {
		"resource": "feedback",
		"table": "xtrack_feedback",
		"primary_key": ["feedback_id"],
		"columns": ["feedback_id", "user_id", "feedback", "create_date"],
		"default_sort": "create_date"
	  },
	  {
		"resource": "warehouse",
		"table": "wms_warehouse",
		"primary_key": ["warehouse_code"],
		"columns": ["warehouse_code", "warehouse_name", "company", "entity_code", "create_date"],
		"searchable": ["warehouse_code", "warehouse_name"]
	  },
	  {
		"resource": "customer",
		"table": "wms_customer",
		"primary_key": ["customer_code"],
		"columns": ["customer_code", "customer_name", "company", "entity_code", "create_date"],
		"searchable": ["customer_code", "customer_name"]
	  },
	  {
		"resource": "commodity",
		"table": "wms_commodity",
		"primary_key": ["company", "entity_code", "partner_code", "commodity"],
		"columns": ["company", "entity_code", "partner_code", "commodity", "create_date"],
		"searchable": ["company", "entity_code", "partner_code", "commodity"],
		"default_sort": "create_date"
	  },
	  {
		"resource": "pack",
		"table": "wms_app_pack",
		"primary_key": ["pack_id"],
		"columns": ["pack_id", "company", "entity_code", "warehouse_code", "order_ref", "create_date"],
		"searchable": ["company", "entity_code", "warehouse_code", "order_ref"],
		"default_sort": "create_date"
	  },
	  {
		"resource": "pick",
		"table": "wms_app_pick",
		"primary_key": ["pick_id"],
		"default_sort": "pick_id"
	  },
	  {
		"resource": "putaway",
		"table": "wms_app_putaway",
		"primary_key": ["putaway_id"]
	  },
	  {
		"resource": "receiving",
		"table": "wms_app_receiving",
		"primary_key": ["receiving_id"]
	  },
	  {
		"resource": "sorting",
		"table": "wms_app_sorting",
		"primary_key": ["sorting_id"]
	  },
	  {
		"resource": "transfer",
		"table": "wms_app_transfer",
		"primary_key": ["transfer_id"]
	  },
	  {
		"resource": "stock_take",
		"table": "wms_app_stock_take",
		"primary_key": ["stock_take_id"]
	  },
	  {
		"resource": "charge",
		"table": "wms_charges",
		"primary_key": ["charge_id"]
	  },
	  {
		"resource": "inventory_header",
		"table": "wms_inventory_header",
		"primary_key": ["inventory_id"]
	  },
	  {
		"resource": "inventory_detail",
		"table": "wms_inventory_detail",
		"primary_key": ["inventory_id", "line_no"]
	  }
	],
	"tracking": {
	  "table": "xtrack_log"
	}
}
`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string        `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Schema           string        `env:"SCHEMA,default=dba" description:"the database schema"`
	Port             string        `env:"PORT,default=5000" description:"the port to listen on"`
	JWTSecret        string        `env:"JWT_SECRET,optional" description:"secret for signing login tokens; login requires auth when set"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS,optional" description:"comma-separated Kafka brokers for change events"`
	KafkaTopic       string        `env:"KAFKA_TOPIC,default=trackww-changes" description:"topic for change events"`
	QueryTimeout     time.Duration `env:"QUERY_TIMEOUT,default=5s" description:"per-query timeout"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)
	rlog := logger.Default()

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.Schema)
	defer db.Close()

	var notifier events.Notifier
	if service.KafkaBrokers != "" {
		kafkaNotifier := events.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	router := mux.NewRouter()
	backend.MustNew(&backend.Builder{
		Config:       configurationJSON,
		DB:           db,
		Router:       router,
		Notifier:     notifier,
		QueryTimeout: service.QueryTimeout,
		JWTSecret:    service.JWTSecret,
	})

	if service.JWTSecret != "" {
		jwtMiddleware := access.NewJwtMiddleware([]byte(service.JWTSecret))
		router.Use(func(next http.Handler) http.Handler {
			protected := jwtMiddleware(next)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// the login route is the one way to obtain a token
				if r.URL.Path == "/api/auth/login" {
					next.ServeHTTP(w, r)
					return
				}
				protected.ServeHTTP(w, r)
			})
		})
	}

	rlog.Infoln("listen on port :" + service.Port)
	http.ListenAndServe(":"+service.Port,
		handlers.CORS(
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(router))
}
