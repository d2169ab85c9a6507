// Package backend wires the generic data-access core to HTTP routes.
//
// The backend is configuration-driven: a JSON document lists the resources
// (tables plus primary-key shape) and every resource gets the same set of
// collection routes. The tracking log and its dashboard get dedicated
// routes on top.
package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core/crud"
	"github.com/trackww/backend/core/csql"
	"github.com/trackww/backend/core/dashboard"
	"github.com/trackww/backend/core/events"
	"github.com/trackww/backend/core/logger"
	"github.com/trackww/backend/core/resource"
	"github.com/trackww/backend/core/schema"
)

// Backend is the generic rest backend
type Backend struct {
	config    backendConfiguration
	db        *csql.DB
	router    *mux.Router
	engine    *crud.Engine
	dashboard *dashboard.Engine
	validator *schema.Validator
	geo       GeoResolver
	jwtSecret []byte
	// tokenValidity is how long issued login tokens stay valid
	tokenValidity time.Duration
	// Registry resolves the configured resource descriptors
	Registry *resource.Registry
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all resources. This is mandatory.
	Config string
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Notifier receives change events for create/update/delete. Optional.
	Notifier events.Notifier
	// Validator validates create/update payloads for resources that declare
	// a schema_id. Optional.
	Validator *schema.Validator
	// GeoResolver resolves client IPs to a location for the tracking log.
	// Optional; defaults to a resolver that answers "Unknown".
	GeoResolver GeoResolver
	// QueryTimeout bounds every store-facing query. Optional.
	QueryTimeout time.Duration
	// JWTSecret enables the login route and signs issued tokens. Optional.
	JWTSecret string
	// TokenValidity overrides how long issued tokens stay valid. Optional.
	TokenValidity time.Duration
}

// New realizes the actual backend and adds all routes to the router.
func New(bb *Builder) (*Backend, error) {
	var config backendConfiguration
	err := json.Unmarshal([]byte(bb.Config), &config)
	if err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}
	if bb.DB == nil {
		return nil, errors.New("DB is missing")
	}
	if bb.Router == nil {
		return nil, errors.New("Router is missing")
	}

	registry, err := resource.NewRegistry(config.Resources)
	if err != nil {
		return nil, fmt.Errorf("invalid resource configuration: %w", err)
	}

	engineOptions := []crud.Option{}
	if bb.Notifier != nil {
		engineOptions = append(engineOptions, crud.WithNotifier(bb.Notifier))
	}
	dashboardOptions := []dashboard.Option{}
	if bb.QueryTimeout > 0 {
		engineOptions = append(engineOptions, crud.WithTimeout(bb.QueryTimeout))
		dashboardOptions = append(dashboardOptions, dashboard.WithTimeout(bb.QueryTimeout))
	}
	geo := bb.GeoResolver
	if geo == nil {
		geo = nopGeoResolver{}
	}

	b := &Backend{
		config:    config,
		db:        bb.DB,
		router:    bb.Router,
		engine:    crud.NewEngine(bb.DB, engineOptions...),
		dashboard: dashboard.NewEngine(bb.DB, config.Tracking.table(), dashboardOptions...),
		validator: bb.Validator,
		geo:       geo,
		jwtSecret: []byte(bb.JWTSecret),
		Registry:  registry,
	}
	b.tokenValidity = bb.TokenValidity
	if b.tokenValidity <= 0 {
		b.tokenValidity = DefaultTokenValidity
	}

	logger.AddRequestID(b.router)
	b.handleRoutes(b.router)
	return b, nil
}

// MustNew realizes the actual backend and panics on configuration errors.
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// Engine exposes the generic CRUD engine, for callers that bypass HTTP.
func (b *Backend) Engine() *crud.Engine {
	return b.engine
}

// handleRoutes adds all necessary handlers for the specified configuration
func (b *Backend) handleRoutes(router *mux.Router) {
	nillog := logger.Default()
	nillog.Debugln("backend: handleRoutes")

	for _, rc := range b.config.Resources {
		b.createCollectionResource(router, rc)
	}
	b.handleTracking(router)
	b.handleStatistics(router)
	if len(b.jwtSecret) > 0 {
		b.handleAuth(router)
	}
}

// writeJSON writes a response envelope.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	jsonData, _ := json.MarshalWithOption(body, json.DisableHTMLEscape())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

// envelope is the response wrapper used by all endpoints.
type envelope struct {
	Status  string      `json:"status"`
	Results *int        `json:"results,omitempty"`
	Page    *int        `json:"page,omitempty"`
	Limit   *int        `json:"limit,omitempty"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func writePage(w http.ResponseWriter, page *crud.Page) {
	w.Header().Set("Pagination-Total-Count", strconv.Itoa(page.TotalCount))
	w.Header().Set("Pagination-Current-Page", strconv.Itoa(page.Page))
	w.Header().Set("Pagination-Limit", strconv.Itoa(page.PageSize))
	writeJSON(w, http.StatusOK, envelope{
		Status:  "success",
		Results: &page.TotalCount,
		Page:    &page.Page,
		Limit:   &page.PageSize,
		Data:    page.Records,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Message: message})
}

// writeEngineError maps the typed error taxonomy to status codes without
// leaking store internals.
func writeEngineError(w http.ResponseWriter, r *http.Request, resourceName string, err error) {
	rlog := logger.FromContext(r.Context())

	var invalidKey *resource.InvalidKeyError
	var constraint *crud.ConstraintError
	var tooLong *crud.ValueTooLongError
	var queryErr *crud.QueryError
	var aggregation *dashboard.AggregationError

	switch {
	case errors.Is(err, crud.ErrNotFound):
		// the expected miss outcome, not logged as an error
		writeError(w, http.StatusNotFound, "no such "+resourceName)
	case errors.As(err, &invalidKey):
		writeError(w, http.StatusBadRequest, invalidKey.Error())
	case errors.As(err, &tooLong):
		writeError(w, http.StatusBadRequest, tooLong.Error())
	case errors.As(err, &constraint):
		status := http.StatusBadRequest
		if constraint.Code == "23505" {
			status = http.StatusConflict
		}
		writeError(w, status, constraint.Error())
	case errors.As(err, &queryErr):
		if queryErr.Timeout {
			writeError(w, http.StatusGatewayTimeout, "the query timed out, please retry")
			return
		}
		rlog.WithError(err).Errorf("query failed for %s", resourceName)
		writeError(w, http.StatusInternalServerError, "failed to access "+resourceName)
	case errors.As(err, &aggregation):
		rlog.WithError(err).Errorln("dashboard aggregation failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch dashboard data")
	default:
		rlog.WithError(err).Errorf("unexpected error for %s", resourceName)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
