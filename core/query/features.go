// Package query translates a request's filter, search, sort and pagination
// parameters into parameterized SQL.
//
// The pipeline never splices a value into the query text; all values travel
// as positional parameters. Column names are spliced and therefore must be
// validated against the resource descriptor before a Spec is built.
package query

import (
	"sort"
	"strconv"
	"strings"
)

// defaults applied when the caller omits pagination parameters
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Filter matches a column against one value (equality) or a set of values
// (membership). Negate inverts the predicate to an exclusion.
type Filter struct {
	Values []string
	Negate bool
}

// Eq is a convenience constructor for an equality filter.
func Eq(value string) Filter {
	return Filter{Values: []string{value}}
}

// In is a convenience constructor for a membership filter.
func In(values ...string) Filter {
	return Filter{Values: values}
}

// NotIn is a convenience constructor for an exclusion filter.
func NotIn(values ...string) Filter {
	return Filter{Values: values, Negate: true}
}

// Search describes a case-insensitive contains-search over a set of columns.
// The per-column predicates are ORed together and ANDed with the filters.
type Search struct {
	Fields []string
	Term   string
}

// SortField is one element of an explicit sort expression.
type SortField struct {
	Field      string
	Descending bool
}

// Range bounds a column from below and/or above, inclusive. Empty bounds
// are skipped. Used for date windows on the tracking log.
type Range struct {
	Min string
	Max string
}

// Spec captures the query features of one request. A Spec is built fresh
// per request and consumed once.
type Spec struct {
	Filters  map[string]Filter
	Ranges   map[string]Range
	Search   *Search
	Sort     []SortField
	Page     int
	PageSize int
}

// Normalize applies the pagination defaults. Non-positive page and page size
// values fall back to 1 and 10.
func (s *Spec) Normalize() {
	if s.Page < 1 {
		s.Page = DefaultPage
	}
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
}

// Offset returns the row offset for the normalized pagination.
func (s *Spec) Offset() int {
	return (s.Page - 1) * s.PageSize
}

// whereClause renders the conjunctive filter predicates and the disjunctive
// search predicate. Filter keys are emitted in sorted order so the same Spec
// always renders the same SQL.
func (s *Spec) whereClause(args *[]interface{}) string {
	var predicates []string

	keys := make([]string, 0, len(s.Filters))
	for key := range s.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		filter := s.Filters[key]
		if len(filter.Values) == 0 {
			continue
		}
		if len(filter.Values) == 1 && !filter.Negate {
			*args = append(*args, filter.Values[0])
			predicates = append(predicates, quoteColumn(key)+" = $"+strconv.Itoa(len(*args)))
			continue
		}
		placeholders := make([]string, len(filter.Values))
		for i, value := range filter.Values {
			*args = append(*args, value)
			placeholders[i] = "$" + strconv.Itoa(len(*args))
		}
		operator := " IN ("
		if filter.Negate {
			operator = " NOT IN ("
		}
		predicates = append(predicates, quoteColumn(key)+operator+strings.Join(placeholders, ",")+")")
	}

	rangeKeys := make([]string, 0, len(s.Ranges))
	for key := range s.Ranges {
		rangeKeys = append(rangeKeys, key)
	}
	sort.Strings(rangeKeys)

	for _, key := range rangeKeys {
		bounds := s.Ranges[key]
		if bounds.Min != "" {
			*args = append(*args, bounds.Min)
			predicates = append(predicates, quoteColumn(key)+" >= $"+strconv.Itoa(len(*args)))
		}
		if bounds.Max != "" {
			*args = append(*args, bounds.Max)
			predicates = append(predicates, quoteColumn(key)+" <= $"+strconv.Itoa(len(*args)))
		}
	}

	if s.Search != nil && s.Search.Term != "" && len(s.Search.Fields) > 0 {
		*args = append(*args, "%"+s.Search.Term+"%")
		placeholder := "$" + strconv.Itoa(len(*args))
		likes := make([]string, len(s.Search.Fields))
		for i, field := range s.Search.Fields {
			likes[i] = quoteColumn(field) + " ILIKE " + placeholder
		}
		predicates = append(predicates, "("+strings.Join(likes, " OR ")+")")
	}

	if len(predicates) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(predicates, " AND ")
}

func (s *Spec) orderClause(defaultSort string) string {
	if len(s.Sort) == 0 {
		return " ORDER BY " + quoteColumn(defaultSort) + " ASC"
	}
	fields := make([]string, len(s.Sort))
	for i, sf := range s.Sort {
		direction := " ASC"
		if sf.Descending {
			direction = " DESC"
		}
		fields[i] = quoteColumn(sf.Field) + direction
	}
	return " ORDER BY " + strings.Join(fields, ", ")
}

// SelectSQL renders the full filtered, sorted and paginated select for the
// given qualified table. It returns the query text and its positional
// parameters.
func (s *Spec) SelectSQL(table, defaultSort string) (string, []interface{}) {
	s.Normalize()
	var args []interface{}
	sql := "SELECT * FROM " + table
	sql += s.whereClause(&args)
	sql += s.orderClause(defaultSort)
	args = append(args, s.PageSize)
	sql += " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, s.Offset())
	sql += " OFFSET $" + strconv.Itoa(len(args)) + ";"
	return sql, args
}

// CountSQL renders the matching count query with the same predicate set as
// SelectSQL, without sort and pagination.
func (s *Spec) CountSQL(table string) (string, []interface{}) {
	var args []interface{}
	sql := "SELECT count(*) FROM " + table
	sql += s.whereClause(&args)
	return sql + ";", args
}

// quoteColumn wraps a column name in double quotes. Values never pass
// through here; column names are validated at the transport boundary.
func quoteColumn(name string) string {
	return `"` + name + `"`
}
