package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyLabel(t *testing.T) {
	assert.Equal(t, "Y1", Frequency(1).Label())
	assert.Equal(t, "Y1000", Frequency(1000).Label())

	f, ok := ParseFrequencyLabel("Y25")
	assert.True(t, ok)
	assert.Equal(t, Frequency(25), f)

	for _, bad := range []string{"", "Y", "25", "Yx", "Y-2", "avg_cn"} {
		_, ok := ParseFrequencyLabel(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseUnitSystem(t *testing.T) {
	u, err := ParseUnitSystem("Imperial")
	require.NoError(t, err)
	assert.Equal(t, UnitsImperial, u)

	u, err = ParseUnitSystem("")
	require.NoError(t, err)
	assert.Equal(t, UnitsMetric, u)

	_, err = ParseUnitSystem("cubits")
	assert.Error(t, err)
}

func TestRawCatchment_UnmarshalJSON(t *testing.T) {
	data := []byte(`{"id": 12, "area_upstream": "0.75", "avg_slope": 3.25, "avg_cn": null, "max_fl": 410}`)

	var raw RawCatchment
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "12", raw.ID.String())
	assert.Equal(t, "0.75", raw.Area.String())
	assert.Equal(t, "3.25", raw.AvgSlope.String())
	assert.Empty(t, raw.AvgCN.String())
	assert.Equal(t, "410", raw.MaxFlowLength.String())

	assert.Error(t, json.Unmarshal([]byte(`{"id": [1]}`), &raw))
}

func TestResultsTable_Columns(t *testing.T) {
	table := &ResultsTable{Frequencies: []Frequency{1, 10}}
	assert.Equal(t, []string{"id", "Y1", "Y10", "avg_slope", "avg_cn", "area_upstream", "max_fl", "tc_hr"}, table.Columns())

	table.PourPointField = "OBJECTID"
	assert.Equal(t, []string{"id", "OBJECTID", "Y1", "Y10", "avg_slope", "avg_cn", "area_upstream", "max_fl", "tc_hr"}, table.Columns())

	table.PourPointField = "id"
	assert.False(t, table.HasPourPointColumn())
}

func TestResultsTable_Discharge(t *testing.T) {
	table := testTable()
	q, ok := table.Discharge(0, 10)
	assert.True(t, ok)
	assert.Equal(t, 1.2, q)

	_, ok = table.Discharge(0, 500)
	assert.False(t, ok)
}
