package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Handle", "Reads", "Writes")

	assert.Equal(t, []string{"Handle", "Reads", "Writes"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("0000000000000001", "3", "0")
	table.AddRow("0000000000000002", "0", "1")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0000000000000001", "3", "0"}, rows[0])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Value")
	table.AddRow("key1", "value1")
	table.AddRow("key2", "value2")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "VALUE")
	assert.Contains(t, output, "key1")
	assert.Contains(t, output, "value2")
}

func TestKeyValues(t *testing.T) {
	var kv KeyValues
	kv.Add("bin_shift", "18")
	kv.Add("enabled", "true")

	assert.Nil(t, kv.Headers())
	assert.Equal(t, [][]string{{"bin_shift:", "18"}, {"enabled:", "true"}}, kv.Rows())

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, kv))
	assert.Contains(t, buf.String(), "bin_shift:")
	assert.Contains(t, buf.String(), "18")
}
