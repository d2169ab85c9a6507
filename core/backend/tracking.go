package backend

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core/crud"
	"github.com/trackww/backend/core/logger"
	"github.com/trackww/backend/core/query"
)

// GeoResolver resolves a client IP to a location label. The actual lookup
// is an external collaborator; the default answers "Unknown".
type GeoResolver interface {
	Country(ip string) string
}

type nopGeoResolver struct{}

func (nopGeoResolver) Country(string) string { return "Unknown" }

// action types excluded from the log listing
var excludedLogActions = []string{"login", "logout"}

func (b *Backend) handleTracking(router *mux.Router) {
	nillog := logger.Default()
	nillog.Debugln("tracking")
	nillog.Debugln("  handle tracking routes: /api/tracking POST")
	nillog.Debugln("  handle tracking routes: /api/tracking/logs GET")
	nillog.Debugln("  handle tracking routes: /api/tracking/dashboard GET")

	router.HandleFunc("/api/tracking", b.logTracking).Methods(http.MethodPost)
	router.Handle("/api/tracking/logs", handlers.CompressHandler(http.HandlerFunc(b.getLogRecords))).
		Methods(http.MethodOptions, http.MethodGet)
	router.Handle("/api/tracking/dashboard", handlers.CompressHandler(http.HandlerFunc(b.getDashboardData))).
		Methods(http.MethodOptions, http.MethodGet)
}

// logTracking appends one row to the activity log. The client network
// origin is taken from X-Forwarded-For when present, and resolved to a
// location through the GeoResolver.
func (b *Backend) logTracking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string `json:"user_id"`
		MenuID     string `json:"menu_id"`
		APIRequest string `json:"api_request"`
		APIStatus  string `json:"api_status"`
		APIError   string `json:"api_error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user ID is required")
		return
	}
	if body.MenuID == "" {
		writeError(w, http.StatusBadRequest, "menu ID is required")
		return
	}
	if body.APIRequest == "" {
		writeError(w, http.StatusBadRequest, "API request information is required")
		return
	}
	if body.APIStatus == "" {
		body.APIStatus = "S"
	}

	ip := clientIP(r)
	location := "Unknown"
	if ip != "" && ip != "127.0.0.1" {
		location = b.geo.Country(ip)
	}

	data := crud.Record{
		"user_id":     body.UserID,
		"api_date":    time.Now().UTC(),
		"api_request": body.APIRequest,
		"menu_id":     body.MenuID,
		"api_status":  body.APIStatus,
		"ip_config":   ip,
		"ip_location": location,
	}
	if body.APIError != "" {
		data["api_error"] = body.APIError
	}

	record, err := b.engine.CreateOne(r.Context(), b.config.Tracking.descriptor(), data)
	if err != nil {
		writeEngineError(w, r, "tracking", err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"log_id": record["log_id"]})
}

// getLogRecords lists the activity log with filters, free-text search, a
// date window, sort and pagination. Login/logout events never appear.
func (b *Backend) getLogRecords(w http.ResponseWriter, r *http.Request) {
	rc := b.config.Tracking.descriptor()
	urlQuery := r.URL.Query()

	spec := query.Spec{
		Filters: map[string]query.Filter{
			"api_request": query.NotIn(excludedLogActions...),
		},
		Sort: []query.SortField{{Field: "api_date", Descending: true}},
	}

	if page := urlQuery.Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "page number must be at least 1")
			return
		}
		spec.Page = n
	}
	if limit := urlQuery.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxPageSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
			return
		}
		spec.PageSize = n
	}
	if userID := urlQuery.Get("user_id"); userID != "" {
		spec.Filters["user_id"] = query.Eq(userID)
	}
	if status := urlQuery.Get("status"); status != "" {
		spec.Filters["api_status"] = query.Eq(status)
	}
	if search := urlQuery.Get("search"); search != "" {
		spec.Search = &query.Search{Fields: rc.Searchable, Term: search}
	}

	from, to := urlQuery.Get("from"), urlQuery.Get("to")
	if from != "" || to != "" {
		window := query.Range{}
		var fromDate, toDate time.Time
		var err error
		if from != "" {
			if fromDate, err = time.Parse(time.RFC3339, from); err != nil {
				writeError(w, http.StatusBadRequest, "invalid 'from' date format")
				return
			}
			window.Min = from
		}
		if to != "" {
			if toDate, err = time.Parse(time.RFC3339, to); err != nil {
				writeError(w, http.StatusBadRequest, "invalid 'to' date format")
				return
			}
			window.Max = to
		}
		if from != "" && to != "" && fromDate.After(toDate) {
			writeError(w, http.StatusBadRequest, "'from' date cannot be later than 'to' date")
			return
		}
		spec.Ranges = map[string]query.Range{"api_date": window}
	}

	if sortField := urlQuery.Get("sort_field"); sortField != "" {
		if !rc.KnowsColumn(sortField) {
			writeError(w, http.StatusBadRequest, "invalid sort field specified")
			return
		}
		descending := true
		switch urlQuery.Get("sort_order") {
		case "", "desc":
		case "asc":
			descending = false
		default:
			writeError(w, http.StatusBadRequest, "sort order must be either 'asc' or 'desc'")
			return
		}
		spec.Sort = []query.SortField{{Field: sortField, Descending: descending}}
	}

	page, err := b.engine.GetAll(r.Context(), rc, spec)
	if err != nil {
		writeEngineError(w, r, "tracking", err)
		return
	}
	writePage(w, page)
}

// getDashboardData serves the aggregated activity report for one user and
// one reporting year.
func (b *Backend) getDashboardData(w http.ResponseWriter, r *http.Request) {
	urlQuery := r.URL.Query()
	userID := urlQuery.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user ID is required")
		return
	}
	yearString := urlQuery.Get("year")
	if yearString == "" {
		writeError(w, http.StatusBadRequest, "year parameter is required")
		return
	}
	year, err := strconv.Atoi(yearString)
	if err != nil || year < 2000 || year > 2100 {
		writeError(w, http.StatusBadRequest, "invalid year format, must be a valid year between 2000-2100")
		return
	}

	report, err := b.dashboard.Report(r.Context(), userID, year)
	if err != nil {
		writeEngineError(w, r, "dashboard", err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// clientIP returns the real client address, ignoring proxies.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
