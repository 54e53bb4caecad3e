package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrecipSource = "pf_depth_english.csv"

// noaaRecords builds a NOAA PFDS-shaped table: 13 metadata rows, the header,
// then one row per duration.
func noaaRecords(rows ...[]string) [][]string {
	records := make([][]string, 0, 14+len(rows))
	records = append(records, []string{"Point precipitation frequency (PF) estimates with 90% confidence intervals"})
	for i := 1; i < 13; i++ {
		records = append(records, []string{fmt.Sprintf("metadata line %d", i)})
	}
	records = append(records, []string{"by duration for ARI (years):", " 1", " 2", " 5", " 10", " 25", " 50", " 100", " 200", " 500", " 1000"})
	return append(records, rows...)
}

var (
	row5min  = []string{"5-min:", "0.337", "0.401", "0.492", "0.564", "0.661", "0.737", "0.812", "0.888", "0.990", "1.07"}
	row24hr  = []string{"24-hr:", "2.73", "3.28", "4.18", "4.93", "5.98", "6.81", "7.66", "8.55", "9.78", "10.76"}
	row2day  = []string{"2-day:", "3.17", "3.80", "4.84", "5.71", "6.93", "7.89", "8.89", "9.95", "11.4", "12.6"}
	allFreqs = []Frequency{1, 2, 5, 10, 25, 50, 100, 200, 500, 1000}
)

func TestParseNOAATable_Defaults(t *testing.T) {
	table, err := ParseNOAATable(testPrecipSource, noaaRecords(row5min, row24hr, row2day), DefaultPrecipOptions())
	require.NoError(t, err)

	assert.Equal(t, allFreqs, table.Frequencies)
	assert.Equal(t, []float64{6.93, 8.33, 10.62, 12.52, 15.19, 17.3, 19.46, 21.72, 24.84, 27.33}, table.DepthsCM)
	assert.Equal(t, "24-hr:", table.Duration)
	assert.Equal(t, testPrecipSource, table.Source)

	lookup := table.Lookup()
	assert.Equal(t, 19.46, lookup[100])
	assert.Len(t, lookup, 10)
}

func TestParseNOAATable_FrequencyFilterPreservesOrder(t *testing.T) {
	opts := DefaultPrecipOptions()
	opts.FreqMin = 2
	opts.FreqMax = 200

	table, err := ParseNOAATable(testPrecipSource, noaaRecords(row24hr), opts)
	require.NoError(t, err)

	assert.Equal(t, []Frequency{2, 5, 10, 25, 50, 100, 200}, table.Frequencies)
	require.Len(t, table.DepthsCM, len(table.Frequencies))
	for i, f := range table.Frequencies {
		col := 0
		for j, h := range allFreqs {
			if h == f {
				col = j + 1
			}
		}
		v, err := parseDepth(row24hr[col])
		require.NoError(t, err)
		assert.Equal(t, round2(v*2.54), table.DepthsCM[i], "frequency %d", f)
	}
}

func TestParseNOAATable_RainfallAdjustment(t *testing.T) {
	opts := DefaultPrecipOptions()
	opts.RainfallAdjustment = 1.15

	table, err := ParseNOAATable(testPrecipSource, noaaRecords(row24hr), opts)
	require.NoError(t, err)
	assert.Equal(t, round2(2.73*2.54*1.15), table.DepthsCM[0])
}

func TestParseNOAATable_OtherDuration(t *testing.T) {
	opts := DefaultPrecipOptions()
	opts.Duration = "5-min:"

	table, err := ParseNOAATable(testPrecipSource, noaaRecords(row5min, row24hr), opts)
	require.NoError(t, err)
	assert.Equal(t, round2(0.337*2.54), table.DepthsCM[0])
}

func TestParseNOAATable_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		records [][]string
		reason  string
	}{
		{
			name:    "missing 24-hr row",
			records: noaaRecords(row5min, row2day),
			reason:  "duration row",
		},
		{
			name:    "non-numeric cell",
			records: noaaRecords([]string{"24-hr:", "2.73", "n/a", "4.18", "4.93", "5.98", "6.81", "7.66", "8.55", "9.78", "10.76"}),
			reason:  "2-year",
		},
		{
			name:    "missing header",
			records: [][]string{{"24-hr:", "2.73"}},
			reason:  "header row",
		},
		{
			name: "non-integer header",
			records: append(noaaRecords()[:13],
				[]string{"by duration for ARI (years):", "1", "two"},
				[]string{"24-hr:", "2.73", "3.28"}),
			reason: "not an integer",
		},
		{
			name:    "negative depth",
			records: noaaRecords([]string{"24-hr:", "-2.73", "3.28", "4.18", "4.93", "5.98", "6.81", "7.66", "8.55", "9.78", "10.76"}),
			reason:  "1-year",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseNOAATable(testPrecipSource, tc.records, DefaultPrecipOptions())
			require.Error(t, err)

			var mte *MalformedTableError
			require.True(t, errors.As(err, &mte), "want MalformedTableError, got %T", err)
			assert.Contains(t, err.Error(), tc.reason)
			assert.Equal(t, testPrecipSource, mte.Source)
		})
	}
}

func TestParseNOAATable_DurationRowBeyondSearchWindow(t *testing.T) {
	filler := make([][]string, 19)
	for i := range filler {
		filler[i] = []string{fmt.Sprintf("%d-min:", i+1), "0.1"}
	}
	records := noaaRecords(append(filler, row24hr)...)

	_, err := ParseNOAATable(testPrecipSource, records, DefaultPrecipOptions())
	var mte *MalformedTableError
	require.ErrorAs(t, err, &mte)
}

func TestParseNOAATable_AllFrequenciesFilteredOut(t *testing.T) {
	opts := DefaultPrecipOptions()
	opts.FreqMin = 2000
	opts.FreqMax = 5000

	_, err := ParseNOAATable(testPrecipSource, noaaRecords(row24hr), opts)
	var mte *MalformedTableError
	require.ErrorAs(t, err, &mte)
	assert.Contains(t, err.Error(), "no frequencies")
}

func nrccRecords(depths ...string) [][]string {
	records := make([][]string, 0, 10+len(depths))
	for i := 0; i < 10; i++ {
		records = append(records, []string{fmt.Sprintf("header %d", i)})
	}
	for i, d := range depths {
		r := make([]string, 12)
		r[0] = fmt.Sprintf("%d", nrccFrequencies[i%len(nrccFrequencies)])
		r[10] = d
		records = append(records, r)
	}
	return records
}

func nrccOptions(adjustment float64) PrecipOptions {
	opts := DefaultPrecipOptions()
	opts.Format = FormatNRCC
	opts.RainfallAdjustment = adjustment
	return opts
}

func TestParseNRCCTable(t *testing.T) {
	records := nrccRecords("2.05", "2.40", "2.97", "3.49", "4.34", "5.09", "5.99", "7.05", "8.74")

	table, err := ParseNRCCTable("nrcc.csv", records, nrccOptions(1.1))
	require.NoError(t, err)

	assert.Equal(t, []Frequency{1, 2, 5, 10, 25, 50, 100, 200, 500}, table.Frequencies)
	assert.InDelta(t, 2.05*2.54*1.1, table.DepthsCM[0], 1e-12)
	assert.InDelta(t, 8.74*2.54*1.1, table.DepthsCM[8], 1e-12)
}

func TestParseNRCCTable_FrequencyRange(t *testing.T) {
	records := nrccRecords("2.05", "2.40", "2.97", "3.49", "4.34", "5.09", "5.99", "7.05", "8.74")
	opts := nrccOptions(1)
	opts.FreqMin = 10
	opts.FreqMax = 100

	table, err := ParseNRCCTable("nrcc.csv", records, opts)
	require.NoError(t, err)
	assert.Equal(t, []Frequency{10, 25, 50, 100}, table.Frequencies)
	assert.InDelta(t, 3.49*2.54, table.DepthsCM[0], 1e-12)
	assert.InDelta(t, 5.99*2.54, table.DepthsCM[3], 1e-12)

	opts.FreqMin = 1000
	opts.FreqMax = 2000
	_, err = ParseNRCCTable("nrcc.csv", records, opts)
	require.Error(t, err)
}

func TestParseNRCCTable_Malformed(t *testing.T) {
	t.Run("too few rows", func(t *testing.T) {
		_, err := ParseNRCCTable("nrcc.csv", nrccRecords("2.05", "2.40"), nrccOptions(1))
		var mte *MalformedTableError
		require.ErrorAs(t, err, &mte)
	})
	t.Run("bad cell", func(t *testing.T) {
		_, err := ParseNRCCTable("nrcc.csv", nrccRecords("2.05", "2.40", "x", "3.49", "4.34", "5.09", "5.99", "7.05", "8.74"), nrccOptions(1))
		var mte *MalformedTableError
		require.ErrorAs(t, err, &mte)
		assert.Contains(t, err.Error(), "5-year")
	})
}

func TestParsePrecipitation_Dispatch(t *testing.T) {
	opts := DefaultPrecipOptions()
	table, err := ParsePrecipitation(testPrecipSource, noaaRecords(row24hr), opts)
	require.NoError(t, err)
	assert.Equal(t, 10, table.Len())

	opts.Format = FormatNRCC
	table, err = ParsePrecipitation("nrcc.csv", nrccRecords("2.05", "2.40", "2.97", "3.49", "4.34", "5.09", "5.99", "7.05", "8.74"), opts)
	require.NoError(t, err)
	assert.Equal(t, 9, table.Len())

	opts.Format = "excel"
	_, err = ParsePrecipitation("x", nil, opts)
	require.Error(t, err)
}

func TestPrecipitationTable_Validate(t *testing.T) {
	assert.Error(t, PrecipitationTable{Frequencies: []Frequency{1, 2}, DepthsCM: []float64{1}}.Validate())
	assert.Error(t, PrecipitationTable{}.Validate())
	assert.Error(t, PrecipitationTable{Frequencies: []Frequency{1, 1}, DepthsCM: []float64{1, 2}}.Validate())
	assert.Error(t, PrecipitationTable{Frequencies: []Frequency{1}, DepthsCM: []float64{-1}}.Validate())
	assert.NoError(t, PrecipitationTable{Frequencies: []Frequency{1, 2}, DepthsCM: []float64{1, 2}}.Validate())
}
