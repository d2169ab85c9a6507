package crud

import (
	"context"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapStoreErrorNil(t *testing.T) {
	assert.NoError(t, wrapStoreError(nil))
}

func TestWrapStoreErrorDeadline(t *testing.T) {
	err := wrapStoreError(fmt.Errorf("query: %w", context.DeadlineExceeded))
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.True(t, queryErr.Timeout)
}

func TestWrapStoreErrorStatementTimeout(t *testing.T) {
	err := wrapStoreError(&pq.Error{Code: "57014"})
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.True(t, queryErr.Timeout)
}

func TestWrapStoreErrorValueTooLong(t *testing.T) {
	err := wrapStoreError(&pq.Error{Code: "22001", Column: "user_name"})
	var tooLong *ValueTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Contains(t, tooLong.Error(), "user_name")
}

func TestWrapStoreErrorConstraints(t *testing.T) {
	for _, code := range []pq.ErrorCode{"23505", "23502", "23503"} {
		err := wrapStoreError(&pq.Error{Code: code, Constraint: "pk_pack", Column: "pack_id", Table: "wms_app_pack"})
		var constraint *ConstraintError
		require.ErrorAs(t, err, &constraint, "code %s", code)
		assert.Equal(t, string(code), constraint.Code)
	}
}

func TestWrapStoreErrorFallthrough(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := wrapStoreError(inner)
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.False(t, queryErr.Timeout)
	assert.ErrorIs(t, err, inner)
}

func TestConstraintErrorMessages(t *testing.T) {
	assert.Contains(t, (&ConstraintError{Code: "23505", Constraint: "uq"}).Error(), "already exists")
	assert.Contains(t, (&ConstraintError{Code: "23502", Column: "user_id"}).Error(), "required field")
	assert.Contains(t, (&ConstraintError{Code: "23503", Constraint: "fk"}).Error(), "does not exist")
	assert.Contains(t, (&ConstraintError{Code: "42000"}).Error(), "constraint violation")
}
