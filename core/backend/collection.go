package backend

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core"
	"github.com/trackww/backend/core/crud"
	"github.com/trackww/backend/core/logger"
	"github.com/trackww/backend/core/query"
	"github.com/trackww/backend/core/resource"
)

// maxPageSize caps the page size a client can request.
const maxPageSize = 100

// createCollectionResource registers the five generic routes for one
// descriptor-described table.
func (b *Backend) createCollectionResource(router *mux.Router, rc resource.Descriptor) {
	nillog := logger.Default()
	nillog.Debugln("create collection:", rc.Name)

	if rc.SchemaID != "" && !b.validator.HasSchema(rc.SchemaID) {
		nillog.Errorf("invalid configuration for resource %s, schema_id %s is unknown. Validation is deactivated for this resource",
			rc.Name, rc.SchemaID)
	}

	listRoute := "/api/" + core.Plural(rc.Name)
	itemRoute := listRoute + "/{id}"

	nillog.Debugln("  handle collection routes:", listRoute, "GET,POST")
	nillog.Debugln("  handle collection routes:", itemRoute, "GET,PUT,PATCH,DELETE")

	list := func(w http.ResponseWriter, r *http.Request) {
		spec, err := specFromQuery(rc, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		page, err := b.engine.GetAll(r.Context(), rc, *spec)
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		writePage(w, page)
	}

	read := func(w http.ResponseWriter, r *http.Request) {
		key, err := rc.ParseKey(mux.Vars(r)["id"])
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		record, err := b.engine.GetOne(r.Context(), rc, key)
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		writeData(w, http.StatusOK, record)
	}

	create := func(w http.ResponseWriter, r *http.Request) {
		data, err := b.decodePayload(rc, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		record, err := b.engine.CreateOne(r.Context(), rc, data)
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		writeData(w, http.StatusCreated, record)
	}

	update := func(w http.ResponseWriter, r *http.Request) {
		key, err := rc.ParseKey(mux.Vars(r)["id"])
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		data, err := b.decodePayload(rc, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// primary-key columns are immutable, the identifier names the row
		for _, column := range rc.PrimaryKey {
			delete(data, column)
		}
		record, err := b.engine.UpdateOne(r.Context(), rc, key, data)
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		writeData(w, http.StatusOK, record)
	}

	remove := func(w http.ResponseWriter, r *http.Request) {
		key, err := rc.ParseKey(mux.Vars(r)["id"])
		if err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		if err := b.engine.DeleteOne(r.Context(), rc, key); err != nil {
			writeEngineError(w, r, rc.Name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}

	router.Handle(listRoute, handlers.CompressHandler(http.HandlerFunc(list))).
		Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc(listRoute, create).
		Methods(http.MethodPost)
	router.HandleFunc(itemRoute, read).
		Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc(itemRoute, update).
		Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc(itemRoute, remove).
		Methods(http.MethodDelete)
}

// decodePayload reads the request body into a Record, applying JSON schema
// validation when the resource declares a schema.
func (b *Backend) decodePayload(rc resource.Descriptor, r *http.Request) (crud.Record, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read body: %s", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("no data provided")
	}
	if rc.SchemaID != "" && b.validator.HasSchema(rc.SchemaID) {
		if err := b.validator.ValidateString(string(body), rc.SchemaID); err != nil {
			return nil, fmt.Errorf("payload does not follow schema %s: %s", rc.SchemaID, err)
		}
	}
	var data crud.Record
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("cannot parse body: %s", err)
	}
	return data, nil
}

// specFromQuery builds the query spec from the request's URL parameters.
// Caller-supplied column names for filters, search and sort are validated
// against the descriptor's column inventory before they can reach the
// pipeline; unknown fields are rejected, they never travel into SQL.
func specFromQuery(rc resource.Descriptor, r *http.Request) (*query.Spec, error) {
	spec := &query.Spec{Filters: map[string]query.Filter{}}
	var searchTerm string
	var searchFields []string

	for key, values := range r.URL.Query() {
		value := values[0]
		switch key {
		case "page":
			page, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("parameter 'page': %s", err)
			}
			spec.Page = page

		case "limit":
			limit, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("parameter 'limit': %s", err)
			}
			if limit > maxPageSize {
				return nil, fmt.Errorf("parameter 'limit': must be between 1 and %d", maxPageSize)
			}
			spec.PageSize = limit

		case "search":
			searchTerm = value

		case "search_fields":
			fields := strings.Split(value, ",")
			for _, field := range fields {
				if !searchableColumn(rc, field) {
					return nil, fmt.Errorf("unknown search property '%s'", field)
				}
			}
			searchFields = fields

		case "sort":
			sortFields, err := parseSort(rc, value)
			if err != nil {
				return nil, err
			}
			spec.Sort = sortFields

		default:
			if !rc.KnowsColumn(key) {
				return nil, fmt.Errorf("unknown filter property '%s'", key)
			}
			spec.Filters[key] = query.In(values...)
		}
	}

	if searchTerm != "" {
		fields := searchFields
		if len(fields) == 0 {
			fields = rc.Searchable
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("resource %s is not searchable", rc.Name)
		}
		spec.Search = &query.Search{Fields: fields, Term: searchTerm}
	} else if len(searchFields) > 0 {
		return nil, fmt.Errorf("search_fields given without a search term")
	}
	return spec, nil
}

// parseSort parses a comma-separated sort expression of the form
// "field" or "field:desc".
func parseSort(rc resource.Descriptor, value string) ([]query.SortField, error) {
	var sortFields []query.SortField
	for _, part := range strings.Split(value, ",") {
		field := part
		descending := false
		if i := strings.IndexRune(part, ':'); i >= 0 {
			field = part[:i]
			switch part[i+1:] {
			case "asc":
			case "desc":
				descending = true
			default:
				return nil, fmt.Errorf("sort order must be asc or desc")
			}
		}
		if !rc.KnowsColumn(field) {
			return nil, fmt.Errorf("unknown sort property '%s'", field)
		}
		sortFields = append(sortFields, query.SortField{Field: field, Descending: descending})
	}
	return sortFields, nil
}

func searchableColumn(rc resource.Descriptor, field string) bool {
	if len(rc.Searchable) == 0 {
		return rc.KnowsColumn(field)
	}
	for _, c := range rc.Searchable {
		if c == field {
			return true
		}
	}
	return false
}
