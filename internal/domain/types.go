package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Result table column names shared by every serialized form (CSV, SQLite, JSON).
const (
	ColumnID            = "id"
	ColumnAvgSlope      = "avg_slope"
	ColumnAvgCN         = "avg_cn"
	ColumnArea          = "area_upstream"
	ColumnMaxFlowLength = "max_fl"
	ColumnTc            = "tc_hr"

	// ColumnAreaLegacy is accepted on input for tables written before the
	// area column was renamed.
	ColumnAreaLegacy = "area_sqkm"
)

// Frequency is a storm return period in years.
type Frequency int

// Label returns the discharge column name for the frequency, e.g. "Y100".
func (f Frequency) Label() string {
	return "Y" + strconv.Itoa(int(f))
}

// ParseFrequencyLabel parses a discharge column name such as "Y25".
func ParseFrequencyLabel(label string) (Frequency, bool) {
	if len(label) < 2 || (label[0] != 'Y' && label[0] != 'y') {
		return 0, false
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return Frequency(n), true
}

// UnitSystem identifies the units a results table is reported in.
type UnitSystem string

const (
	// UnitsMetric reports km², m and m³/s. It is the internal representation.
	UnitsMetric UnitSystem = "metric"
	// UnitsImperial reports acres, ft and ft³/s.
	UnitsImperial UnitSystem = "imperial"
)

// ParseUnitSystem accepts "metric"/"si" and "imperial"/"us" (case-insensitive).
// An empty string is metric.
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "metric", "si":
		return UnitsMetric, nil
	case "imperial", "us":
		return UnitsImperial, nil
	default:
		return "", fmt.Errorf("unknown unit system %q", s)
	}
}

// PrecipitationTable holds rainfall depths for one storm duration, ordered by
// increasing return period. Treat it as immutable once built.
type PrecipitationTable struct {
	Source      string      `json:"source,omitempty"`
	Duration    string      `json:"duration"`
	Frequencies []Frequency `json:"frequencies"`
	DepthsCM    []float64   `json:"depths_cm"`
}

// Len returns the number of retained frequencies.
func (t PrecipitationTable) Len() int { return len(t.Frequencies) }

// Lookup returns the depths keyed by frequency.
func (t PrecipitationTable) Lookup() map[Frequency]float64 {
	m := make(map[Frequency]float64, len(t.Frequencies))
	for i, f := range t.Frequencies {
		m[f] = t.DepthsCM[i]
	}
	return m
}

// Validate checks the table invariants: matching lengths, at least one
// frequency, no negative depths and no duplicate frequencies.
func (t PrecipitationTable) Validate() error {
	if len(t.Frequencies) != len(t.DepthsCM) {
		return &MalformedTableError{Source: t.Source, Reason: fmt.Sprintf("%d frequencies but %d depths", len(t.Frequencies), len(t.DepthsCM))}
	}
	if len(t.Frequencies) == 0 {
		return &MalformedTableError{Source: t.Source, Reason: "no frequencies retained"}
	}
	seen := make(map[Frequency]struct{}, len(t.Frequencies))
	for i, f := range t.Frequencies {
		if _, dup := seen[f]; dup {
			return &MalformedTableError{Source: t.Source, Reason: fmt.Sprintf("duplicate frequency %d", f)}
		}
		seen[f] = struct{}{}
		if t.DepthsCM[i] < 0 {
			return &MalformedTableError{Source: t.Source, Reason: fmt.Sprintf("negative depth for %s", f.Label())}
		}
	}
	return nil
}

// Field is a loosely typed input value. It decodes from a JSON string,
// number or null so GIS exports with numeric ids and string-typed attribute
// tables are both accepted.
type Field string

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field must be a string or number: %w", err)
	}
	*f = Field(n.String())
	return nil
}

// String returns the trimmed text of the field.
func (f Field) String() string { return strings.TrimSpace(string(f)) }

// RawCatchment is a catchment record as handed over by the terrain analysis
// collaborator. Area and flow length are in the reference dataset's units.
type RawCatchment struct {
	ID            Field `json:"id"`
	Area          Field `json:"area_upstream"`
	AvgSlope      Field `json:"avg_slope"`
	AvgCN         Field `json:"avg_cn"`
	MaxFlowLength Field `json:"max_fl"`
	// PourPointID is the value of the pour point field, when the input
	// carries one distinct from the id.
	PourPointID Field `json:"pour_point_id,omitempty"`
}

// CatchmentParameters are the validated, normalized terrain summaries of one
// catchment.
type CatchmentParameters struct {
	ID             string
	AreaSqKm       float64
	AvgSlopePct    float64
	AvgCurveNumber float64
	MaxFlowLengthM float64
}

// PeakFlowResult holds peak discharge (m³/s) per frequency, in the order of
// the precipitation table it was computed from.
type PeakFlowResult struct {
	Frequencies []Frequency
	Discharge   []float64
}

// ByFrequency returns the discharge keyed by frequency.
func (r PeakFlowResult) ByFrequency() map[Frequency]float64 {
	m := make(map[Frequency]float64, len(r.Frequencies))
	for i, f := range r.Frequencies {
		m[f] = r.Discharge[i]
	}
	return m
}

// ResultRow is one catchment's inputs merged with its computed outputs.
// Discharge is aligned with the owning table's Frequencies.
type ResultRow struct {
	ID                    string    `json:"id"`
	PourPointID           string    `json:"pour_point_id,omitempty"`
	Discharge             []float64 `json:"discharge"`
	AvgSlopePct           float64   `json:"avg_slope"`
	AvgCurveNumber        float64   `json:"avg_cn"`
	AreaUpstream          float64   `json:"area_upstream"`
	MaxFlowLength         float64   `json:"max_fl"`
	TimeOfConcentrationHr float64   `json:"tc_hr"`
}

// ResultsTable is the output of one run: one row per catchment in input order.
type ResultsTable struct {
	RunID          string      `json:"run_id"`
	SourceRunID    string      `json:"source_run_id,omitempty"`
	Scenario       string      `json:"scenario,omitempty"`
	PourPointField string      `json:"pour_point_field,omitempty"`
	Units          UnitSystem  `json:"units"`
	Frequencies    []Frequency `json:"frequencies"`
	Rows           []ResultRow `json:"rows"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Columns returns the serialized column order: id, the pour point field when
// it differs from id, one discharge column per frequency, then the analysis
// fields.
func (t *ResultsTable) Columns() []string {
	cols := make([]string, 0, len(t.Frequencies)+7)
	cols = append(cols, ColumnID)
	if t.HasPourPointColumn() {
		cols = append(cols, t.PourPointField)
	}
	for _, f := range t.Frequencies {
		cols = append(cols, f.Label())
	}
	return append(cols, ColumnAvgSlope, ColumnAvgCN, ColumnArea, ColumnMaxFlowLength, ColumnTc)
}

// HasPourPointColumn reports whether the pour point identifier gets its own column.
func (t *ResultsTable) HasPourPointColumn() bool {
	return t.PourPointField != "" && t.PourPointField != ColumnID
}

// Clone returns a deep copy of the table.
func (t *ResultsTable) Clone() *ResultsTable {
	out := *t
	out.Frequencies = append([]Frequency(nil), t.Frequencies...)
	out.Rows = make([]ResultRow, len(t.Rows))
	for i, r := range t.Rows {
		r.Discharge = append([]float64(nil), r.Discharge...)
		out.Rows[i] = r
	}
	return &out
}

// Discharge returns the discharge of a row for the given frequency.
func (t *ResultsTable) Discharge(row int, f Frequency) (float64, bool) {
	for i, tf := range t.Frequencies {
		if tf == f {
			return t.Rows[row].Discharge[i], true
		}
	}
	return 0, false
}
