// Command validate re-derives every row of a results CSV from its own input
// columns and a precipitation table, and reports phase-by-phase integrity:
// Tc recomputation, invalid-data zeroing, frequency alignment, monotonicity
// and discharge fidelity.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -results data/results.csv \
//	  -precip data/noaa_24hr.csv \
//	  -units imperial
//
// Precipitation table options (format, duration, rainfall adjustment,
// frequency range) come from the same environment variables as the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/storm-peakflow/internal/adapter/csvfile"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/pfds"
	"github.com/couchcryptid/storm-peakflow/internal/config"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

const defaultTolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	resultsPath := flag.String("results", "", "results CSV to validate")
	precipPath := flag.String("precip", "", "precipitation frequency CSV the results were computed from (path or URL)")
	units := flag.String("units", "metric", "units of the results CSV (metric or imperial)")
	tolerance := flag.Float64("tolerance", defaultTolerance, "relative tolerance for recomputed values")
	flag.Parse()

	if *resultsPath == "" || *precipPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*resultsPath, *precipPath, *units, *tolerance); code != 0 {
		os.Exit(code)
	}
}

func run(resultsPath, precipPath, unitName string, tolerance float64) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	units, err := domain.ParseUnitSystem(unitName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Println("=== Peak Flow Results Validation ===")
	fmt.Println()

	results, err := csvfile.ReadResultsFile(resultsPath, units)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load results: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := csvfile.NewLoader(pfds.NewClient(cfg.PFDSBaseURL, cfg.PFDSTimeout, logger), logger)
	precip, err := loader.Load(context.Background(), precipPath, cfg.Precip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load precipitation: %v\n", err)
		return 1
	}

	phases := validate(results, precip, tolerance)
	return report(os.Stdout, phases, len(results.Rows), len(precip.Frequencies))
}

// validate runs every phase against a results table.
func validate(results *domain.ResultsTable, precip domain.PrecipitationTable, tolerance float64) []*phase {
	metric := domain.ConvertTable(results, domain.UnitsMetric)
	return []*phase{
		validateFrequencies(results, precip),
		validateTc(metric, tolerance),
		validateInvalidZeroing(results),
		validateMonotonicity(results, precip),
		validateDischarge(results, metric, precip, tolerance),
	}
}

// report prints the phase table and any errors, and returns the exit status.
func report(w io.Writer, phases []*phase, rows, frequencies int) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rows: %d, precipitation frequencies: %d\n", rows, frequencies)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateFrequencies(results *domain.ResultsTable, precip domain.PrecipitationTable) *phase {
	p := &phase{name: "Frequency columns match precipitation"}
	if len(results.Frequencies) != len(precip.Frequencies) {
		p.errorf("results have %d frequency columns, precipitation table has %d", len(results.Frequencies), len(precip.Frequencies))
		return p
	}
	for i, f := range results.Frequencies {
		if f != precip.Frequencies[i] {
			p.errorf("column %d: results %s, precipitation %s", i, f.Label(), precip.Frequencies[i].Label())
		}
	}
	return p
}

func validateTc(metric *domain.ResultsTable, tolerance float64) *phase {
	p := &phase{name: "Time of concentration recomputation"}
	for _, r := range metric.Rows {
		// tc_hr=0 marks a record whose inputs were unusable.
		if r.TimeOfConcentrationHr == 0 {
			continue
		}
		want := domain.TimeOfConcentration(r.MaxFlowLength, r.AvgSlopePct)
		if !within(want, r.TimeOfConcentrationHr, tolerance) {
			p.errorf("catchment %s: tc_hr=%g, recomputed %g", r.ID, r.TimeOfConcentrationHr, want)
		}
	}
	return p
}

func validateInvalidZeroing(results *domain.ResultsTable) *phase {
	p := &phase{name: "Invalid catchments report zero discharge"}
	for _, r := range results.Rows {
		if domain.IsValidForRunoff(r.AvgCurveNumber, r.TimeOfConcentrationHr) {
			continue
		}
		for i, q := range r.Discharge {
			if q != 0 {
				p.errorf("catchment %s: avg_cn=%g tc_hr=%g but %s=%g", r.ID, r.AvgCurveNumber, r.TimeOfConcentrationHr, results.Frequencies[i].Label(), q)
			}
		}
	}
	return p
}

// validateMonotonicity checks that discharge does not fall where rainfall
// depth rises between consecutive frequency columns.
func validateMonotonicity(results *domain.ResultsTable, precip domain.PrecipitationTable) *phase {
	p := &phase{name: "Discharge non-decreasing with rainfall"}
	depths := precip.Lookup()
	for _, r := range results.Rows {
		for i := 1; i < len(r.Discharge) && i < len(results.Frequencies); i++ {
			prev, cur := results.Frequencies[i-1], results.Frequencies[i]
			if depths[cur] < depths[prev] {
				continue
			}
			if r.Discharge[i] < r.Discharge[i-1] {
				p.errorf("catchment %s: %s=%g < %s=%g", r.ID, cur.Label(), r.Discharge[i], prev.Label(), r.Discharge[i-1])
			}
		}
	}
	return p
}

func validateDischarge(results, metric *domain.ResultsTable, precip domain.PrecipitationTable, tolerance float64) *phase {
	p := &phase{name: "Discharge fidelity"}
	for i, r := range metric.Rows {
		q := domain.PeakFlow(r.AreaUpstream, r.TimeOfConcentrationHr, r.AvgCurveNumber, precip.DepthsCM, precip.Frequencies)
		want := domain.ConvertDischarge(q.Discharge, domain.UnitsMetric, results.Units)
		for j, f := range results.Frequencies {
			k := indexOf(precip.Frequencies, f)
			if k < 0 || j >= len(results.Rows[i].Discharge) {
				continue
			}
			if !within(want[k], results.Rows[i].Discharge[j], tolerance) {
				p.errorf("catchment %s: %s=%g, recomputed %g", r.ID, f.Label(), results.Rows[i].Discharge[j], want[k])
			}
		}
	}
	return p
}

func indexOf(fs []domain.Frequency, f domain.Frequency) int {
	for i, x := range fs {
		if x == f {
			return i
		}
	}
	return -1
}

// within reports whether a and b agree within a relative tolerance. Values
// near zero are compared absolutely.
func within(a, b, tolerance float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		return diff <= tolerance
	}
	return diff <= tolerance*scale
}
