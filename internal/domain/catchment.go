package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrMissingField marks a required catchment field that is absent.
	ErrMissingField = errors.New("missing value")
	// ErrOutOfRange marks a catchment value outside its physical domain.
	ErrOutOfRange = errors.New("value out of range")
)

// FieldIssue describes a catchment field that was unusable and replaced by
// zero under the invalid-data policy.
type FieldIssue struct {
	Field string
	Err   error
}

// ParseCatchment validates a raw catchment record and normalizes it with the
// given conversion factors (area → km², flow length → m).
//
// In strict mode the first unusable numeric field rejects the record with a
// *CatchmentRecordError. Otherwise unusable fields become zero, which the
// engine reports as no runoff, and are returned as issues for logging. An
// empty id is rejected in both modes.
func ParseCatchment(index int, raw RawCatchment, factors ConversionFactors, strict bool) (CatchmentParameters, []FieldIssue, error) {
	id := raw.ID.String()
	if id == "" {
		return CatchmentParameters{}, nil, &CatchmentRecordError{Index: index, Field: ColumnID, Err: ErrMissingField}
	}

	var issues []FieldIssue
	parse := func(field string, v Field, check func(float64) bool) (float64, error) {
		f, err := parseNumber(v.String())
		if err == nil && !check(f) {
			err = fmt.Errorf("%w: %g", ErrOutOfRange, f)
		}
		if err == nil {
			return f, nil
		}
		if strict {
			return 0, &CatchmentRecordError{Index: index, ID: id, Field: field, Err: err}
		}
		issues = append(issues, FieldIssue{Field: field, Err: err})
		return 0, nil
	}

	nonNegative := func(f float64) bool { return f >= 0 }
	curveNumber := func(f float64) bool { return f >= 0 && f <= 100 }

	area, err := parse(ColumnArea, raw.Area, nonNegative)
	if err != nil {
		return CatchmentParameters{}, nil, err
	}
	slope, err := parse(ColumnAvgSlope, raw.AvgSlope, nonNegative)
	if err != nil {
		return CatchmentParameters{}, nil, err
	}
	cn, err := parse(ColumnAvgCN, raw.AvgCN, curveNumber)
	if err != nil {
		return CatchmentParameters{}, nil, err
	}
	fl, err := parse(ColumnMaxFlowLength, raw.MaxFlowLength, nonNegative)
	if err != nil {
		return CatchmentParameters{}, nil, err
	}

	return CatchmentParameters{
		ID:             id,
		AreaSqKm:       area * factors.Area,
		AvgSlopePct:    slope,
		AvgCurveNumber: cn,
		MaxFlowLengthM: fl * factors.Length,
	}, issues, nil
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, ErrMissingField
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
