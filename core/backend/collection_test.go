package backend

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackww/backend/core/query"
	"github.com/trackww/backend/core/resource"
)

var packDescriptor = resource.Descriptor{
	Name:       "pack",
	Table:      "wms_app_pack",
	PrimaryKey: []string{"pack_id"},
	Columns:    []string{"pack_id", "company", "entity_code", "warehouse_code", "order_ref", "create_date"},
	Searchable: []string{"company", "warehouse_code", "order_ref"},
}

func TestSpecFromQueryDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	assert.Empty(t, spec.Filters)
	assert.Nil(t, spec.Search)
	assert.Zero(t, spec.Page)
	assert.Zero(t, spec.PageSize)
}

func TestSpecFromQueryFilters(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?company=ACME&warehouse_code=WH1&warehouse_code=WH2", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	assert.Equal(t, query.In("ACME"), spec.Filters["company"])
	assert.Equal(t, query.In("WH1", "WH2"), spec.Filters["warehouse_code"])
}

func TestSpecFromQueryUnknownFilter(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?no_such_column=x", nil)
	_, err := specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "unknown filter property")
}

func TestSpecFromQueryPagination(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?page=3&limit=50", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Page)
	assert.Equal(t, 50, spec.PageSize)

	r = httptest.NewRequest("GET", "/api/packs?limit=500", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "limit")

	r = httptest.NewRequest("GET", "/api/packs?page=abc", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "page")
}

func TestSpecFromQuerySearch(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?search=steel", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	require.NotNil(t, spec.Search)
	assert.Equal(t, "steel", spec.Search.Term)
	assert.Equal(t, packDescriptor.Searchable, spec.Search.Fields)
}

func TestSpecFromQuerySearchFields(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?search=steel&search_fields=company,order_ref", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	require.NotNil(t, spec.Search)
	assert.Equal(t, []string{"company", "order_ref"}, spec.Search.Fields)

	r = httptest.NewRequest("GET", "/api/packs?search=steel&search_fields=create_date", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "unknown search property")

	r = httptest.NewRequest("GET", "/api/packs?search_fields=company", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "without a search term")
}

func TestSpecFromQueryNotSearchable(t *testing.T) {
	rc := packDescriptor
	rc.Searchable = nil
	r := httptest.NewRequest("GET", "/api/packs?search=steel", nil)
	_, err := specFromQuery(rc, r)
	assert.ErrorContains(t, err, "not searchable")
}

func TestSpecFromQuerySort(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/packs?sort=create_date:desc,pack_id", nil)
	spec, err := specFromQuery(packDescriptor, r)
	require.NoError(t, err)
	assert.Equal(t, []query.SortField{
		{Field: "create_date", Descending: true},
		{Field: "pack_id"},
	}, spec.Sort)

	r = httptest.NewRequest("GET", "/api/packs?sort=no_such_column", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "unknown sort property")

	r = httptest.NewRequest("GET", "/api/packs?sort=pack_id:sideways", nil)
	_, err = specFromQuery(packDescriptor, r)
	assert.ErrorContains(t, err, "asc or desc")
}
