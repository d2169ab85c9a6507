// Package dashboard computes the activity report over the append-only
// tracking log table: time-bucketed counts, a success/failure ratio and
// category breakdowns for one user and one reporting year.
//
// The six constituent aggregates are independent reads against immutable
// historical rows, so they run concurrently without a shared transaction;
// total latency is bounded by the slowest single query rather than the sum.
package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trackww/backend/core/crud"
	"github.com/trackww/backend/core/csql"
)

// action types excluded from activity aggregates
var excludedActions = []string{"login", "logout"}

// trackCategories maps report labels to the menu identifiers counted under
// each label.
var trackCategories = []struct {
	Label string
	Menus []string
}{
	{"Ocean", []string{"Ocean", "Ocean AF", "Ocean FT", "Ocean SR"}},
	{"Vessel", []string{"Marine Traffic", "Vessel Tracker"}},
	{"Spot", []string{"Spot"}},
	{"Air", []string{"Air Cargo"}},
	{"Schedule", []string{"Air"}},
}

// DayCount is one element of the rolling 7-day series.
type DayCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Ratio is the success/failure split for the reporting year.
type Ratio struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// Report is the merged result of the six aggregation sub-queries.
type Report struct {
	CurrentMonthTotal int            `json:"currentMonthTotal"`
	CurrentYearTotal  int            `json:"currentYearTotal"`
	Last7Days         []DayCount     `json:"last7Days"`
	DataGrid          []crud.Record  `json:"dataGrid"`
	SuccessRatio      Ratio          `json:"successRatio"`
	TrackRatio        map[string]int `json:"trackRatio"`
}

// AggregationError reports that one of the report's sub-queries failed.
// Partial reports are never returned.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return "dashboard aggregation failed: " + e.Err.Error()
}

func (e *AggregationError) Unwrap() error { return e.Err }

// DefaultRecentLimit is the number of rows in the recent-activity grid.
const DefaultRecentLimit = 20

// Engine computes reports over one log table.
type Engine struct {
	db          *csql.DB
	table       string
	timeout     time.Duration
	recentLimit int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the per-query timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.timeout = timeout }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a dashboard engine over the given log table.
func NewEngine(db *csql.DB, table string, options ...Option) *Engine {
	e := &Engine{
		db:          db,
		table:       table,
		timeout:     crud.DefaultTimeout,
		recentLimit: DefaultRecentLimit,
		now:         time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) qualifiedTable() string {
	return e.db.Schema + `."` + e.table + `"`
}

// Report assembles the dashboard for one user and one reporting year. The
// six sub-queries run concurrently; the first failure cancels the rest and
// aborts the whole aggregation.
func (e *Engine) Report(ctx context.Context, userID string, year int) (*Report, error) {
	now := e.now()
	currentMonth := int(now.Month())
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -6)

	report := &Report{}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		count, err := e.countForMonth(ctx, userID, year, currentMonth)
		report.CurrentMonthTotal = count
		return err
	})
	group.Go(func() error {
		count, err := e.countForYear(ctx, userID, year)
		report.CurrentYearTotal = count
		return err
	})
	group.Go(func() error {
		counts, err := e.dailyCounts(ctx, userID, windowStart)
		report.Last7Days = denseWeekSeries(counts, windowStart)
		return err
	})
	group.Go(func() error {
		grid, err := e.recentActivity(ctx, userID)
		report.DataGrid = grid
		return err
	})
	group.Go(func() error {
		counts, err := e.statusCounts(ctx, userID, year)
		report.SuccessRatio = ratioFromCounts(counts)
		return err
	})
	group.Go(func() error {
		ratio, err := e.categoryCounts(ctx, userID, year)
		report.TrackRatio = ratio
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, &AggregationError{Err: err}
	}
	return report, nil
}

func (e *Engine) countForMonth(ctx context.Context, userID string, year, month int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sql := `SELECT count(log_id) FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND EXTRACT(YEAR FROM api_date) = $2 AND EXTRACT(MONTH FROM api_date) = $3;`
	var count int
	err := e.db.QueryRowContext(ctx, sql, userID, year, month).Scan(&count)
	return count, err
}

func (e *Engine) countForYear(ctx context.Context, userID string, year int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sql := `SELECT count(log_id) FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND EXTRACT(YEAR FROM api_date) = $2;`
	var count int
	err := e.db.QueryRowContext(ctx, sql, userID, year).Scan(&count)
	return count, err
}

// dailyCounts groups activity per calendar day within the 7-day window,
// keyed by the postgres 'Dy' weekday abbreviation.
func (e *Engine) dailyCounts(ctx context.Context, userID string, windowStart time.Time) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sql := `SELECT TO_CHAR(api_date, 'Dy') AS day, count(log_id) FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND api_request NOT IN (` + actionPlaceholders(2) + `)` +
		` AND api_date >= $` + strconv.Itoa(2+len(excludedActions)) +
		` GROUP BY TO_CHAR(api_date, 'Dy') ORDER BY MIN(api_date);`
	args := []interface{}{userID}
	for _, action := range excludedActions {
		args = append(args, action)
	}
	args = append(args, windowStart)

	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		counts[strings.TrimSpace(day)] = count
	}
	return counts, rows.Err()
}

func (e *Engine) recentActivity(ctx context.Context, userID string) ([]crud.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sql := `SELECT * FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND api_request NOT IN (` + actionPlaceholders(2) + `)` +
		` ORDER BY api_date DESC LIMIT ` + strconv.Itoa(e.recentLimit) + `;`
	args := []interface{}{userID}
	for _, action := range excludedActions {
		args = append(args, action)
	}

	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grid := []crud.Record{}
	for rows.Next() {
		record, err := crud.ScanRecord(rows)
		if err != nil {
			return nil, err
		}
		grid = append(grid, record)
	}
	return grid, rows.Err()
}

func (e *Engine) statusCounts(ctx context.Context, userID string, year int) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	sql := `SELECT api_status, count(log_id) FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND EXTRACT(YEAR FROM api_date) = $2` +
		` AND api_request NOT IN (` + actionPlaceholders(3) + `) GROUP BY api_status;`
	args := []interface{}{userID, year}
	for _, action := range excludedActions {
		args = append(args, action)
	}

	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// categoryCounts runs the fixed CASE/SUM breakdown per category label.
func (e *Engine) categoryCounts(ctx context.Context, userID string, year int) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []interface{}{userID, year}
	projections := make([]string, len(trackCategories))
	for i, category := range trackCategories {
		placeholders := make([]string, len(category.Menus))
		for j, menu := range category.Menus {
			args = append(args, menu)
			placeholders[j] = "$" + strconv.Itoa(len(args))
		}
		projections[i] = fmt.Sprintf(`COALESCE(SUM(CASE WHEN menu_id IN (%s) THEN 1 ELSE 0 END), 0)`,
			strings.Join(placeholders, ","))
	}
	sql := `SELECT ` + strings.Join(projections, ", ") + ` FROM ` + e.qualifiedTable() +
		` WHERE user_id = $1 AND EXTRACT(YEAR FROM api_date) = $2;`

	values := make([]interface{}, len(trackCategories))
	for i := range values {
		values[i] = new(int)
	}
	if err := e.db.QueryRowContext(ctx, sql, args...).Scan(values...); err != nil {
		return nil, err
	}
	ratio := make(map[string]int, len(trackCategories))
	for i, category := range trackCategories {
		ratio[category.Label] = *(values[i].(*int))
	}
	return ratio, nil
}

// actionPlaceholders returns $first,...,$first+n-1 for the excluded actions.
func actionPlaceholders(first int) string {
	parts := make([]string, len(excludedActions))
	for i := range excludedActions {
		parts[i] = "$" + strconv.Itoa(first+i)
	}
	return strings.Join(parts, ",")
}

// denseWeekSeries reshapes the grouped day counts into a dense 7-element
// series in chronological order, missing days filled with zero. Go's "Mon"
// layout yields the same English abbreviations as postgres' 'Dy'.
func denseWeekSeries(counts map[string]int, windowStart time.Time) []DayCount {
	series := make([]DayCount, 7)
	for i := 0; i < 7; i++ {
		name := windowStart.AddDate(0, 0, i).Format("Mon")
		series[i] = DayCount{Name: name, Value: counts[name]}
	}
	return series
}

// ratioFromCounts reshapes the grouped status counts into the success/fail
// pair, defaulting absent statuses to zero.
func ratioFromCounts(counts map[string]int) Ratio {
	return Ratio{Success: counts["S"], Fail: counts["F"]}
}
