package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trackww/backend/core/query"
)

func TestSelectSQLDefaults(t *testing.T) {
	spec := query.Spec{}
	sql, args := spec.SelectSQL(`dba."wms_app_pack"`, "pack_id")
	assert.Equal(t, `SELECT * FROM dba."wms_app_pack" ORDER BY "pack_id" ASC LIMIT $1 OFFSET $2;`, sql)
	assert.Equal(t, []interface{}{10, 0}, args)
	assert.Equal(t, 1, spec.Page)
	assert.Equal(t, 10, spec.PageSize)
}

func TestSelectSQLFilters(t *testing.T) {
	spec := query.Spec{
		Filters: map[string]query.Filter{
			"warehouse_code": query.Eq("WH1"),
			"company":        query.In("ACME", "GLOBEX"),
		},
		Page:     3,
		PageSize: 25,
	}
	sql, args := spec.SelectSQL(`dba."wms_app_pack"`, "pack_id")
	// filter keys render in sorted order, so the same spec always yields the same text
	assert.Equal(t, `SELECT * FROM dba."wms_app_pack" WHERE "company" IN ($1,$2) AND "warehouse_code" = $3`+
		` ORDER BY "pack_id" ASC LIMIT $4 OFFSET $5;`, sql)
	assert.Equal(t, []interface{}{"ACME", "GLOBEX", "WH1", 25, 50}, args)
}

func TestSelectSQLExclusion(t *testing.T) {
	spec := query.Spec{
		Filters: map[string]query.Filter{
			"api_request": query.NotIn("login", "logout"),
		},
	}
	sql, args := spec.SelectSQL(`dba."xtrack_log"`, "api_date")
	assert.Equal(t, `SELECT * FROM dba."xtrack_log" WHERE "api_request" NOT IN ($1,$2)`+
		` ORDER BY "api_date" ASC LIMIT $3 OFFSET $4;`, sql)
	assert.Equal(t, []interface{}{"login", "logout", 10, 0}, args)
}

func TestSelectSQLSearch(t *testing.T) {
	spec := query.Spec{
		Search: &query.Search{Fields: []string{"user_id", "menu_id"}, Term: "ocean"},
	}
	sql, args := spec.SelectSQL(`dba."xtrack_log"`, "api_date")
	// one placeholder shared by all ORed predicates
	assert.Equal(t, `SELECT * FROM dba."xtrack_log" WHERE ("user_id" ILIKE $1 OR "menu_id" ILIKE $1)`+
		` ORDER BY "api_date" ASC LIMIT $2 OFFSET $3;`, sql)
	assert.Equal(t, []interface{}{"%ocean%", 10, 0}, args)
}

func TestSelectSQLRanges(t *testing.T) {
	spec := query.Spec{
		Ranges: map[string]query.Range{
			"api_date": {Min: "2026-01-01T00:00:00Z", Max: "2026-02-01T00:00:00Z"},
		},
	}
	sql, args := spec.SelectSQL(`dba."xtrack_log"`, "api_date")
	assert.Equal(t, `SELECT * FROM dba."xtrack_log" WHERE "api_date" >= $1 AND "api_date" <= $2`+
		` ORDER BY "api_date" ASC LIMIT $3 OFFSET $4;`, sql)
	assert.Equal(t, []interface{}{"2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", 10, 0}, args)
}

func TestSelectSQLRangeOneBound(t *testing.T) {
	spec := query.Spec{
		Ranges: map[string]query.Range{"api_date": {Min: "2026-01-01T00:00:00Z"}},
	}
	sql, args := spec.SelectSQL(`dba."xtrack_log"`, "api_date")
	assert.Equal(t, `SELECT * FROM dba."xtrack_log" WHERE "api_date" >= $1`+
		` ORDER BY "api_date" ASC LIMIT $2 OFFSET $3;`, sql)
	assert.Len(t, args, 3)
}

func TestSelectSQLSort(t *testing.T) {
	spec := query.Spec{
		Sort: []query.SortField{
			{Field: "api_date", Descending: true},
			{Field: "user_id"},
		},
	}
	sql, _ := spec.SelectSQL(`dba."xtrack_log"`, "api_date")
	assert.Contains(t, sql, ` ORDER BY "api_date" DESC, "user_id" ASC `)
}

func TestCountSQLMatchesPredicates(t *testing.T) {
	spec := query.Spec{
		Filters: map[string]query.Filter{"user_id": query.Eq("jdoe")},
		Search:  &query.Search{Fields: []string{"api_request"}, Term: "track"},
	}
	sql, args := spec.CountSQL(`dba."xtrack_log"`)
	assert.Equal(t, `SELECT count(*) FROM dba."xtrack_log" WHERE "user_id" = $1 AND ("api_request" ILIKE $2);`, sql)
	assert.Equal(t, []interface{}{"jdoe", "%track%"}, args)
}

func TestEmptyFilterSkipped(t *testing.T) {
	spec := query.Spec{
		Filters: map[string]query.Filter{"user_id": {}},
	}
	sql, args := spec.CountSQL(`dba."xtrack_log"`)
	assert.Equal(t, `SELECT count(*) FROM dba."xtrack_log";`, sql)
	assert.Empty(t, args)
}

func TestNormalizeAndOffset(t *testing.T) {
	spec := query.Spec{Page: -2, PageSize: 0}
	spec.Normalize()
	assert.Equal(t, 1, spec.Page)
	assert.Equal(t, 10, spec.PageSize)
	assert.Equal(t, 0, spec.Offset())

	spec = query.Spec{Page: 4, PageSize: 15}
	spec.Normalize()
	assert.Equal(t, 45, spec.Offset())
}
