// Package test holds the end-to-end suite. It starts a disposable
// Postgres container, builds a backend over a small warehouse
// configuration and drives it through the router like a real client.
package test

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trackww/backend/core/backend"
	"github.com/trackww/backend/core/csql"
)

const testConfiguration = `
{
	"resources": [
	  {
		"resource": "user",
		"table": "xtrack_users",
		"primary_key": ["user_id"],
		"columns": ["user_id", "user_name", "user_email", "user_pwd", "user_active", "valid_till"],
		"searchable": ["user_id", "user_name", "user_email"]
	  },
	  {
		"resource": "pack",
		"table": "wms_app_pack",
		"primary_key": ["pack_id"],
		"columns": ["pack_id", "company", "warehouse_code", "order_ref", "note"],
		"searchable": ["company", "warehouse_code", "order_ref"],
		"default_sort": "pack_id"
	  },
	  {
		"resource": "commodity",
		"table": "wms_commodity",
		"primary_key": ["company", "entity_code", "partner_code", "commodity"],
		"columns": ["company", "entity_code", "partner_code", "commodity", "description"]
	  }
	],
	"tracking": {
	  "table": "xtrack_log"
	}
}
`

const testSchema = `
CREATE TABLE IF NOT EXISTS %[1]s."xtrack_users" (
	user_id varchar(30) PRIMARY KEY,
	user_name varchar(100),
	user_email varchar(100),
	user_pwd varchar(100),
	user_active varchar(1),
	valid_till timestamp
);
CREATE TABLE IF NOT EXISTS %[1]s."wms_app_pack" (
	pack_id varchar(30) PRIMARY KEY,
	company varchar(10),
	warehouse_code varchar(10),
	order_ref varchar(30),
	note varchar(10)
);
CREATE TABLE IF NOT EXISTS %[1]s."wms_commodity" (
	company varchar(10),
	entity_code varchar(10),
	partner_code varchar(10),
	commodity varchar(20),
	description varchar(100),
	PRIMARY KEY (company, entity_code, partner_code, commodity)
);
CREATE TABLE IF NOT EXISTS %[1]s."xtrack_log" (
	log_id serial PRIMARY KEY,
	user_id varchar(30),
	api_date timestamp,
	api_request varchar(100),
	menu_id varchar(30),
	api_status varchar(1),
	api_error varchar(500),
	ip_config varchar(50),
	ip_location varchar(100)
);
`

const jwtTestSecret = "integration-test-secret"

type IntegrationTestSuite struct {
	suite.Suite

	postgresContainer testcontainers.Container
	db                *csql.DB
	router            *mux.Router
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	dataSource := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB)
	s.db = csql.OpenWithSchema(dataSource, postgresPassword, "trackww_test")
	s.db.ClearSchema()

	_, err = s.db.Exec(fmt.Sprintf(testSchema, s.db.Schema))
	s.Require().NoError(err)

	s.router = mux.NewRouter()
	backend.MustNew(&backend.Builder{
		Config:    testConfiguration,
		DB:        s.db,
		Router:    s.router,
		JWTSecret: jwtTestSecret,
	})
}

func (s *IntegrationTestSuite) SetupTest() {
	s.clearTables("xtrack_users", "wms_app_pack", "wms_commodity", "xtrack_log")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.postgresContainer != nil {
		_ = s.postgresContainer.Terminate(context.Background())
	}
}

// request drives one HTTP round trip through the router and decodes the
// JSON response into out when out is non-nil.
func (s *IntegrationTestSuite) request(method, target string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	if out != nil && w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
	}
	return w
}

func (s *IntegrationTestSuite) requireStatus(expected int, w *httptest.ResponseRecorder) {
	s.Require().Equal(expected, w.Code, "body: %s", w.Body.String())
}

// pageResponse mirrors the list envelope.
type pageResponse struct {
	Status  string                   `json:"status"`
	Results int                      `json:"results"`
	Page    int                      `json:"page"`
	Limit   int                      `json:"limit"`
	Data    []map[string]interface{} `json:"data"`
}

// dataResponse mirrors the single-record envelope.
type dataResponse struct {
	Status  string                 `json:"status"`
	Data    map[string]interface{} `json:"data"`
	Message string                 `json:"message"`
}

// clearTables truncates the mutable test tables between test methods.
func (s *IntegrationTestSuite) clearTables(tables ...string) {
	for _, table := range tables {
		_, err := s.db.Exec(fmt.Sprintf(`TRUNCATE %s."%s" CASCADE;`, s.db.Schema, table))
		s.Require().NoError(err)
	}
}
