// Package crud implements the table-agnostic create/read/update/delete
// engine. All five operations are parameterized by a resource.Descriptor
// and hold no state between calls; the database is the single source of
// truth and sole point of serialization for conflicting writes.
package crud

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/trackww/backend/core"
	"github.com/trackww/backend/core/csql"
	"github.com/trackww/backend/core/events"
	"github.com/trackww/backend/core/logger"
	"github.com/trackww/backend/core/query"
	"github.com/trackww/backend/core/resource"
)

// Record is one row as an unordered column/value mapping. The engine does
// no schema validation; the database's own constraints decide what a valid
// row is, surfaced as typed errors.
type Record map[string]interface{}

// Page is the result of a list operation.
type Page struct {
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Records    []Record `json:"records"`
}

// DefaultTimeout bounds every store-facing query.
const DefaultTimeout = 5 * time.Second

// Engine provides the generic operations on descriptor-described tables.
type Engine struct {
	db       *csql.DB
	timeout  time.Duration
	notifier events.Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the per-query timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.timeout = timeout }
}

// WithNotifier installs a change notifier for mutating operations.
func WithNotifier(notifier events.Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// NewEngine creates an engine on the given database.
func NewEngine(db *csql.DB, options ...Option) *Engine {
	e := &Engine{db: db, timeout: DefaultTimeout, notifier: events.NopNotifier{}}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) qualifiedTable(d resource.Descriptor) string {
	return e.db.Schema + `."` + d.Table + `"`
}

// GetAll runs the count query and the filtered, sorted, paginated select
// with the same predicate set. The two queries are not wrapped in one
// transaction; a row inserted or deleted between them may skew the total
// count by a small amount, which is acceptable for this read-mostly
// workload.
func (e *Engine) GetAll(ctx context.Context, d resource.Descriptor, spec query.Spec) (*Page, error) {
	spec.Normalize()
	table := e.qualifiedTable(d)

	countCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	countSQL, countArgs := spec.CountSQL(table)
	var totalCount int
	if err := e.db.QueryRowContext(countCtx, countSQL, countArgs...).Scan(&totalCount); err != nil {
		return nil, wrapStoreError(err)
	}

	selectCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	selectSQL, selectArgs := spec.SelectSQL(table, d.SortColumn())
	rows, err := e.db.QueryContext(selectCtx, selectSQL, selectArgs...)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		record, err := ScanRecord(rows)
		if err != nil {
			return nil, wrapStoreError(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(err)
	}

	return &Page{
		TotalCount: totalCount,
		Page:       spec.Page,
		PageSize:   spec.PageSize,
		Records:    records,
	}, nil
}

// GetOne selects the unique row matching all primary-key column equalities.
// A miss returns ErrNotFound.
func (e *Engine) GetOne(ctx context.Context, d resource.Descriptor, key resource.Key) (Record, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	sql := "SELECT * FROM " + e.qualifiedTable(d) + " WHERE " + compareColumns(key.Columns, 0) + ";"
	rows, err := e.db.QueryContext(ctx, sql, keyArgs(key)...)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapStoreError(err)
		}
		return nil, ErrNotFound
	}
	record, err := ScanRecord(rows)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return record, nil
}

// CreateOne inserts data as a new row and returns the inserted row
// including server-generated columns.
func (e *Engine) CreateOne(ctx context.Context, d resource.Descriptor, data Record) (Record, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	columns := sortedColumns(data)
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	quoted := make([]string, len(columns))
	for i, column := range columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = data[column]
		quoted[i] = `"` + column + `"`
	}
	sql := "INSERT INTO " + e.qualifiedTable(d) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ") RETURNING *;"

	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapStoreError(err)
		}
		return nil, &QueryError{Err: errors.New("insert returned no row")}
	}
	record, err := ScanRecord(rows)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	e.notify(ctx, d, core.OperationCreate, "", record)
	return record, nil
}

// UpdateOne updates the row matching the key with the fields present in
// data. Columns absent from data are left untouched. A miss returns
// ErrNotFound.
func (e *Engine) UpdateOne(ctx context.Context, d resource.Descriptor, key resource.Key, data Record) (Record, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	columns := sortedColumns(data)
	if len(columns) == 0 {
		return e.GetOne(ctx, d, key)
	}
	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+len(key.Values))
	for i, column := range columns {
		args = append(args, data[column])
		sets[i] = `"` + column + `" = $` + strconv.Itoa(len(args))
	}
	sql := "UPDATE " + e.qualifiedTable(d) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + compareColumns(key.Columns, len(args)) + " RETURNING *;"
	args = append(args, keyArgs(key)...)

	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapStoreError(err)
		}
		return nil, ErrNotFound
	}
	record, err := ScanRecord(rows)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	e.notify(ctx, d, core.OperationUpdate, keyString(key), record)
	return record, nil
}

// DeleteOne deletes the row matching the key. A miss returns ErrNotFound,
// success carries no payload.
func (e *Engine) DeleteOne(ctx context.Context, d resource.Descriptor, key resource.Key) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	sql := "DELETE FROM " + e.qualifiedTable(d) + " WHERE " + compareColumns(key.Columns, 0) + ";"
	result, err := e.db.ExecContext(ctx, sql, keyArgs(key)...)
	if err != nil {
		return wrapStoreError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapStoreError(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	e.notify(ctx, d, core.OperationDelete, keyString(key), nil)
	return nil
}

// notify publishes a change event. Notification failures are logged and do
// not fail the operation; the mutation has already been committed.
func (e *Engine) notify(ctx context.Context, d resource.Descriptor, op core.Operation, key string, record Record) {
	var payload json.RawMessage
	if record != nil {
		payload, _ = json.Marshal(record)
	}
	err := e.notifier.Notify(ctx, events.Notification{
		Resource:  d.Name,
		Operation: op,
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("cannot notify %s on %s", op, d.Name)
	}
}

type Scannable interface {
	Columns() ([]string, error)
	Scan(...interface{}) error
}

// ScanRecord scans the current row into a Record without knowing the
// column set in advance.
func ScanRecord(rows Scannable) (Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(columns))
	for i := range values {
		values[i] = new(interface{})
	}
	if err := rows.Scan(values...); err != nil {
		return nil, err
	}
	record := make(Record, len(columns))
	for i, column := range columns {
		value := *(values[i].(*interface{}))
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		record[column] = value
	}
	return record, nil
}

func sortedColumns(data Record) []string {
	columns := make([]string, 0, len(data))
	for column := range data {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// compareColumns returns `"c0" = $offset+1 AND ... AND "cn" = $offset+n`
func compareColumns(columns []string, offset int) string {
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = `"` + column + `" = $` + strconv.Itoa(offset+i+1)
	}
	return strings.Join(parts, " AND ")
}

func keyArgs(key resource.Key) []interface{} {
	args := make([]interface{}, len(key.Values))
	for i, value := range key.Values {
		args[i] = value
	}
	return args
}

func keyString(key resource.Key) string {
	return strings.Join(key.Values, resource.KeyDelimiter)
}
