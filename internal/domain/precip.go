package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Precipitation table formats.
const (
	FormatNOAA = "noaa"
	FormatNRCC = "nrcc"
)

// PrecipOptions select and convert the rainfall depths of a precipitation
// frequency table.
type PrecipOptions struct {
	Format string
	// DescField is the first header cell of a NOAA table.
	DescField string
	// Duration is the first cell of the row to keep, e.g. "24-hr:".
	Duration string
	// SkipRows is the number of metadata rows before the header.
	SkipRows int
	// MaxRows bounds how many rows after the header are searched for Duration.
	MaxRows            int
	RainfallAdjustment float64
	// UnitConversion multiplies source values; 2.54 converts inches to cm.
	UnitConversion float64
	FreqMin        int
	FreqMax        int
}

// DefaultPrecipOptions returns the settings for a NOAA PFDS depth table,
// 24-hour duration, all frequencies from 1 to 1000 years.
func DefaultPrecipOptions() PrecipOptions {
	return PrecipOptions{
		Format:             FormatNOAA,
		DescField:          "by duration for ARI (years):",
		Duration:           "24-hr:",
		SkipRows:           13,
		MaxRows:            19,
		RainfallAdjustment: 1,
		UnitConversion:     2.54,
		FreqMin:            1,
		FreqMax:            1000,
	}
}

// nrccFrequencies are the return periods of the rows in an NRCC table.
var nrccFrequencies = []Frequency{1, 2, 5, 10, 25, 50, 100, 200, 500}

const (
	nrccSkipRows     = 10
	nrccDepthColumn  = 10
	nrccInchesToCent = 2.54
)

// ParsePrecipitation dispatches on opts.Format.
func ParsePrecipitation(source string, records [][]string, opts PrecipOptions) (PrecipitationTable, error) {
	switch strings.ToLower(opts.Format) {
	case "", FormatNOAA:
		return ParseNOAATable(source, records, opts)
	case FormatNRCC:
		return ParseNRCCTable(source, records, opts)
	default:
		return PrecipitationTable{}, fmt.Errorf("unknown precipitation table format %q", opts.Format)
	}
}

// ParseNOAATable extracts the opts.Duration row of a NOAA precipitation
// frequency table. Frequency columns outside [FreqMin, FreqMax] are dropped,
// header order is preserved, and each depth becomes
// round(value·UnitConversion·RainfallAdjustment, 2).
func ParseNOAATable(source string, records [][]string, opts PrecipOptions) (PrecipitationTable, error) {
	malformed := func(reason string, err error) (PrecipitationTable, error) {
		return PrecipitationTable{}, &MalformedTableError{Source: source, Reason: reason, Err: err}
	}

	headerIdx := -1
	for i := max(opts.SkipRows, 0); i < len(records); i++ {
		if len(records[i]) > 0 && cell(records[i], 0) == opts.DescField {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return malformed(fmt.Sprintf("header row %q not found", opts.DescField), nil)
	}
	header := records[headerIdx]

	end := len(records)
	if opts.MaxRows > 0 {
		end = min(end, headerIdx+1+opts.MaxRows)
	}
	var row []string
	for _, r := range records[headerIdx+1 : end] {
		if cell(r, 0) == opts.Duration {
			row = r
			break
		}
	}
	if row == nil {
		return malformed(fmt.Sprintf("duration row %q not found", opts.Duration), nil)
	}

	table := PrecipitationTable{Source: source, Duration: opts.Duration}
	for col := 1; col < len(header); col++ {
		h := cell(header, col)
		if h == "" {
			continue
		}
		n, err := strconv.Atoi(h)
		if err != nil {
			return malformed(fmt.Sprintf("frequency header %q is not an integer", h), err)
		}
		if n < opts.FreqMin || n > opts.FreqMax {
			continue
		}
		v, err := parseDepth(cell(row, col))
		if err != nil {
			return malformed(fmt.Sprintf("rainfall for %d-year frequency", n), err)
		}
		depth := round2(v * opts.UnitConversion * opts.RainfallAdjustment)
		table.Frequencies = append(table.Frequencies, Frequency(n))
		table.DepthsCM = append(table.DepthsCM, depth)
	}
	if err := table.Validate(); err != nil {
		return PrecipitationTable{}, err
	}
	return table, nil
}

// ParseNRCCTable reads a Cornell Northeast Regional Climate Center extreme
// precipitation CSV: ten lines of header, then one row per return period
// (1 through 500 years) with the 24-hour depth in inches in column 10. Like
// ParseNOAATable it keeps only frequencies in [FreqMin, FreqMax]. A zero
// RainfallAdjustment means no adjustment.
func ParseNRCCTable(source string, records [][]string, opts PrecipOptions) (PrecipitationTable, error) {
	adjustment := opts.RainfallAdjustment
	if adjustment == 0 {
		adjustment = 1
	}
	if len(records) < nrccSkipRows+len(nrccFrequencies) {
		return PrecipitationTable{}, &MalformedTableError{
			Source: source,
			Reason: fmt.Sprintf("expected %d rows, got %d", nrccSkipRows+len(nrccFrequencies), len(records)),
		}
	}
	table := PrecipitationTable{Source: source, Duration: "24-hr"}
	for i, f := range nrccFrequencies {
		if int(f) < opts.FreqMin || int(f) > opts.FreqMax {
			continue
		}
		r := records[nrccSkipRows+i]
		v, err := parseDepth(cell(r, nrccDepthColumn))
		if err != nil {
			return PrecipitationTable{}, &MalformedTableError{Source: source, Reason: fmt.Sprintf("rainfall for %d-year frequency", f), Err: err}
		}
		table.Frequencies = append(table.Frequencies, f)
		table.DepthsCM = append(table.DepthsCM, v*nrccInchesToCent*adjustment)
	}
	if err := table.Validate(); err != nil {
		return PrecipitationTable{}, err
	}
	return table, nil
}

var errNegativeDepth = errors.New("negative depth")

func parseDepth(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	if v < 0 {
		return 0, errNegativeDepth
	}
	return v, nil
}

func cell(r []string, i int) string {
	if i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
