package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDenseWeekSeries(t *testing.T) {
	// window starting on a Monday
	windowStart := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	counts := map[string]int{"Mon": 3, "Wed": 1, "Sun": 7}

	series := denseWeekSeries(counts, windowStart)
	assert.Equal(t, []DayCount{
		{Name: "Mon", Value: 3},
		{Name: "Tue", Value: 0},
		{Name: "Wed", Value: 1},
		{Name: "Thu", Value: 0},
		{Name: "Fri", Value: 0},
		{Name: "Sat", Value: 0},
		{Name: "Sun", Value: 7},
	}, series)
}

func TestDenseWeekSeriesRotates(t *testing.T) {
	// a mid-week window start rotates the series, today is always last
	windowStart := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC) // a Thursday
	series := denseWeekSeries(nil, windowStart)
	assert.Equal(t, "Thu", series[0].Name)
	assert.Equal(t, "Wed", series[6].Name)
	for _, day := range series {
		assert.Zero(t, day.Value)
	}
}

func TestRatioFromCounts(t *testing.T) {
	assert.Equal(t, Ratio{Success: 12, Fail: 3}, ratioFromCounts(map[string]int{"S": 12, "F": 3}))
	assert.Equal(t, Ratio{Success: 5}, ratioFromCounts(map[string]int{"S": 5}))
	assert.Equal(t, Ratio{}, ratioFromCounts(map[string]int{}))
}

func TestActionPlaceholders(t *testing.T) {
	assert.Equal(t, "$2,$3", actionPlaceholders(2))
	assert.Equal(t, "$5,$6", actionPlaceholders(5))
}

func TestAggregationErrorUnwraps(t *testing.T) {
	inner := assert.AnError
	err := &AggregationError{Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), inner.Error())
}
