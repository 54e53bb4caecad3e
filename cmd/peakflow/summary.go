package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

const summaryFrequency domain.Frequency = 100

// printSummary writes a short human-readable account of a results table.
// submitted is the number of catchment records handed to the engine.
func printSummary(w io.Writer, t *domain.ResultsTable, submitted, rejected int) {
	invalid := 0
	for _, r := range t.Rows {
		if !domain.IsValidForRunoff(r.AvgCurveNumber, r.TimeOfConcentrationHr) {
			invalid++
		}
	}

	label := "run"
	if t.Scenario != "" {
		label = "scenario " + t.Scenario
	}
	fmt.Fprintf(w, "%s %s\n", label, t.RunID)
	if t.SourceRunID != "" {
		fmt.Fprintf(w, "  source run   %s\n", t.SourceRunID)
	}
	fmt.Fprintf(w, "  catchments   %s submitted, %s computed, %s invalid, %s rejected\n",
		humanize.Comma(int64(submitted)),
		humanize.Comma(int64(len(t.Rows))),
		humanize.Comma(int64(invalid)),
		humanize.Comma(int64(rejected)),
	)
	if lo, hi, ok := frequencyRange(t.Frequencies); ok {
		fmt.Fprintf(w, "  frequencies  %d, %s to %s years\n", len(t.Frequencies), humanize.Comma(int64(lo)), humanize.Comma(int64(hi)))
	}
	if f, id, q, ok := peakDischarge(t); ok {
		fmt.Fprintf(w, "  peak %-7s %s %s at %s\n", f.Label(), humanize.CommafWithDigits(q, 2), dischargeUnit(t.Units), id)
	}
}

func frequencyRange(fs []domain.Frequency) (lo, hi domain.Frequency, ok bool) {
	if len(fs) == 0 {
		return 0, 0, false
	}
	lo, hi = fs[0], fs[0]
	for _, f := range fs[1:] {
		lo = min(lo, f)
		hi = max(hi, f)
	}
	return lo, hi, true
}

// peakDischarge finds the largest discharge of the 100-year column, or of the
// rarest frequency when the table has no 100-year column.
func peakDischarge(t *domain.ResultsTable) (domain.Frequency, string, float64, bool) {
	_, hi, ok := frequencyRange(t.Frequencies)
	if !ok || len(t.Rows) == 0 {
		return 0, "", 0, false
	}
	f := hi
	for _, fr := range t.Frequencies {
		if fr == summaryFrequency {
			f = fr
			break
		}
	}

	var id string
	peak := -1.0
	for i, r := range t.Rows {
		q, ok := t.Discharge(i, f)
		if ok && q > peak {
			peak, id = q, r.ID
		}
	}
	return f, id, peak, peak >= 0
}

func dischargeUnit(u domain.UnitSystem) string {
	if u == domain.UnitsImperial {
		return "cfs"
	}
	return "m³/s"
}
