package csvfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// ErrMissingColumn is returned when a required column is absent from a header.
var ErrMissingColumn = errors.New("missing column")

// ReadCatchments reads catchment records from a CSV document with a header
// row. Required columns are id, area_upstream (or area_sqkm), avg_slope,
// avg_cn and max_fl; column order is free and extra columns are ignored.
// When pourPointField names a column other than id, its values populate
// RawCatchment.PourPointID.
func ReadCatchments(r io.Reader, pourPointField string) ([]domain.RawCatchment, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, fmt.Errorf("read catchments: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read catchments: empty document")
	}

	idx := headerIndex(records[0])
	if _, ok := idx[domain.ColumnArea]; !ok {
		if i, legacy := idx[domain.ColumnAreaLegacy]; legacy {
			idx[domain.ColumnArea] = i
		}
	}
	for _, col := range []string{domain.ColumnID, domain.ColumnArea, domain.ColumnAvgSlope, domain.ColumnAvgCN, domain.ColumnMaxFlowLength} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("read catchments: %w %q", ErrMissingColumn, col)
		}
	}
	pp, hasPourPoint := -1, false
	if pourPointField != "" && pourPointField != domain.ColumnID {
		pp, hasPourPoint = idx[pourPointField]
	}

	out := make([]domain.RawCatchment, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		raw := domain.RawCatchment{
			ID:            domain.Field(field(rec, idx[domain.ColumnID])),
			Area:          domain.Field(field(rec, idx[domain.ColumnArea])),
			AvgSlope:      domain.Field(field(rec, idx[domain.ColumnAvgSlope])),
			AvgCN:         domain.Field(field(rec, idx[domain.ColumnAvgCN])),
			MaxFlowLength: domain.Field(field(rec, idx[domain.ColumnMaxFlowLength])),
		}
		if hasPourPoint {
			raw.PourPointID = domain.Field(field(rec, pp))
		}
		out = append(out, raw)
	}
	return out, nil
}

// ReadCatchmentsFile reads catchment records from a CSV file.
func ReadCatchmentsFile(path, pourPointField string) ([]domain.RawCatchment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catchments: %w", err)
	}
	defer f.Close()
	return ReadCatchments(f, pourPointField)
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
