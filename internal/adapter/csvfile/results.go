package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// WriteResults writes a results table with a header row in the order given
// by ResultsTable.Columns. Floats use the shortest representation that
// parses back to the same value.
func WriteResults(w io.Writer, t *domain.ResultsTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write results header: %w", err)
	}

	rec := make([]string, 0, len(t.Columns()))
	for _, row := range t.Rows {
		rec = rec[:0]
		rec = append(rec, row.ID)
		if t.HasPourPointColumn() {
			rec = append(rec, row.PourPointID)
		}
		for _, q := range row.Discharge {
			rec = append(rec, formatFloat(q))
		}
		rec = append(rec,
			formatFloat(row.AvgSlopePct),
			formatFloat(row.AvgCurveNumber),
			formatFloat(row.AreaUpstream),
			formatFloat(row.MaxFlowLength),
			formatFloat(row.TimeOfConcentrationHr),
		)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write results row %s: %w", row.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultsFile writes a results table to path, replacing any existing file.
func WriteResultsFile(path string, t *domain.ResultsTable) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close results file: %w", cerr)
		}
	}()
	return WriteResults(f, t)
}

// ReadResults reads a results table written by WriteResults. The column
// between id and the first discharge column, if any, is taken as the pour
// point field. CSV carries no unit marker, so the caller states the units.
func ReadResults(r io.Reader, units domain.UnitSystem) (*domain.ResultsTable, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read results: empty document")
	}

	header := records[0]
	idx := headerIndex(header)
	for _, col := range []string{domain.ColumnID, domain.ColumnAvgSlope, domain.ColumnAvgCN, domain.ColumnArea, domain.ColumnMaxFlowLength, domain.ColumnTc} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("read results: %w %q", ErrMissingColumn, col)
		}
	}

	t := &domain.ResultsTable{Units: units, PourPointField: domain.ColumnID}
	var freqCols []int
	for i, h := range header {
		if f, ok := domain.ParseFrequencyLabel(h); ok {
			t.Frequencies = append(t.Frequencies, f)
			freqCols = append(freqCols, i)
		}
	}
	pp := -1
	if len(freqCols) > 0 && freqCols[0] == idx[domain.ColumnID]+2 {
		pp = idx[domain.ColumnID] + 1
		t.PourPointField = header[pp]
	}

	for n, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		line := n + 2
		row := domain.ResultRow{ID: field(rec, idx[domain.ColumnID])}
		if pp >= 0 {
			row.PourPointID = field(rec, pp)
		} else {
			row.PourPointID = row.ID
		}
		row.Discharge = make([]float64, len(freqCols))
		for j, c := range freqCols {
			if row.Discharge[j], err = parseFloat(rec, c); err != nil {
				return nil, fmt.Errorf("read results line %d column %s: %w", line, header[c], err)
			}
		}
		for col, dst := range map[string]*float64{
			domain.ColumnAvgSlope:      &row.AvgSlopePct,
			domain.ColumnAvgCN:         &row.AvgCurveNumber,
			domain.ColumnArea:          &row.AreaUpstream,
			domain.ColumnMaxFlowLength: &row.MaxFlowLength,
			domain.ColumnTc:            &row.TimeOfConcentrationHr,
		} {
			if *dst, err = parseFloat(rec, idx[col]); err != nil {
				return nil, fmt.Errorf("read results line %d column %s: %w", line, col, err)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadResultsFile reads a results table from a CSV file.
func ReadResultsFile(path string, units domain.UnitSystem) (*domain.ResultsTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()
	return ReadResults(f, units)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(rec []string, i int) (float64, error) {
	s := field(rec, i)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
