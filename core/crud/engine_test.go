package crud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackww/backend/core/resource"
)

func TestSortedColumns(t *testing.T) {
	data := Record{"warehouse_code": "WH1", "company": "ACME", "order_ref": "O1"}
	assert.Equal(t, []string{"company", "order_ref", "warehouse_code"}, sortedColumns(data))
	assert.Empty(t, sortedColumns(Record{}))
}

func TestCompareColumns(t *testing.T) {
	assert.Equal(t, `"pack_id" = $1`, compareColumns([]string{"pack_id"}, 0))
	assert.Equal(t, `"inventory_id" = $3 AND "line_no" = $4`,
		compareColumns([]string{"inventory_id", "line_no"}, 2))
}

func TestKeyString(t *testing.T) {
	key := resource.Key{Columns: []string{"company", "commodity"}, Values: []string{"ACME", "STEEL"}}
	assert.Equal(t, "ACME_STEEL", keyString(key))
}

type fakeRow struct {
	columns []string
	values  []interface{}
}

func (r *fakeRow) Columns() ([]string, error) { return r.columns, nil }

func (r *fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		*(d.(*interface{})) = r.values[i]
	}
	return nil
}

func TestScanRecord(t *testing.T) {
	row := &fakeRow{
		columns: []string{"pack_id", "qty", "note"},
		values:  []interface{}{[]byte("PK1"), int64(7), nil},
	}
	record, err := ScanRecord(row)
	require.NoError(t, err)
	// byte slices become strings so they serialize as JSON strings
	assert.Equal(t, "PK1", record["pack_id"])
	assert.Equal(t, int64(7), record["qty"])
	assert.Nil(t, record["note"])
}
