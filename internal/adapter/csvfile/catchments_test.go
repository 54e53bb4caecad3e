package csvfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

func TestReadCatchmentsFile(t *testing.T) {
	got, err := ReadCatchmentsFile("testdata/catchments_ft.csv", "OBJECTID")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, domain.RawCatchment{
		ID:            "101",
		Area:          "10763910.41671",
		AvgSlope:      "5",
		AvgCN:         "80",
		MaxFlowLength: "1640.4199",
		PourPointID:   "7",
	}, got[0])
	assert.Equal(t, "103", got[2].ID.String())
	assert.Equal(t, "9", got[2].PourPointID.String())
}

func TestReadCatchments_LegacyAreaColumnAndReordering(t *testing.T) {
	doc := "avg_cn,max_fl,id,area_sqkm,avg_slope\n77,410,A,0.3,4\n"
	got, err := ReadCatchments(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID.String())
	assert.Equal(t, "0.3", got[0].Area.String())
	assert.Equal(t, "77", got[0].AvgCN.String())
	assert.Empty(t, got[0].PourPointID.String())
}

func TestReadCatchments_ShortRowsYieldEmptyFields(t *testing.T) {
	got, err := ReadCatchments(strings.NewReader("id,area_upstream,avg_slope,avg_cn,max_fl\n1,0.5\n"), domain.ColumnID)
	require.NoError(t, err)
	assert.Empty(t, got[0].AvgCN.String())
}

func TestReadCatchments_MissingColumn(t *testing.T) {
	_, err := ReadCatchments(strings.NewReader("id,area_upstream,avg_slope,max_fl\n1,2,3,4\n"), "")
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.ErrorContains(t, err, "avg_cn")

	_, err = ReadCatchments(strings.NewReader(""), "")
	assert.Error(t, err)
}
