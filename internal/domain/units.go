package domain

import (
	"log/slog"
	"strings"
)

// Output conversion constants (metric → imperial).
const (
	FeetPerMeter        = 3.28084
	AcresPerSqKm        = 247.105
	CubicFeetPerCubicM  = 35.3147
	SqKmPerSqFoot       = 0.09290304e-6
	SqKmPerSqMeter      = 1e-6
	MetersPerFoot       = 0.3048
	DefaultAreaFactor   = SqKmPerSqFoot
	DefaultLengthFactor = 1.0
)

// ConversionFactors convert catchment inputs from the reference dataset's
// units: Area to km², Length (flow length) to meters.
type ConversionFactors struct {
	Area   float64
	Length float64
}

// DefaultConversionFactors are used when the reference unit cannot be
// detected: square feet for area, flow length assumed already in meters.
func DefaultConversionFactors() ConversionFactors {
	return ConversionFactors{Area: DefaultAreaFactor, Length: DefaultLengthFactor}
}

// DetectUnits derives conversion factors from the linear unit name of the
// reference dataset ("Foot_US", "Meter", ...). Matching is a case-insensitive
// substring test. ok is false for empty or unrecognized names.
func DetectUnits(unitName string) (ConversionFactors, bool) {
	name := strings.ToLower(strings.TrimSpace(unitName))
	switch {
	case name == "":
		return ConversionFactors{}, false
	case strings.Contains(name, "foot") || strings.Contains(name, "feet"):
		return ConversionFactors{Area: SqKmPerSqFoot, Length: MetersPerFoot}, true
	case strings.Contains(name, "meter") || strings.Contains(name, "metre"):
		return ConversionFactors{Area: SqKmPerSqMeter, Length: 1}, true
	default:
		return ConversionFactors{}, false
	}
}

// ResolveFactors returns the detected factors for unitName, or fallback with
// a warning when the unit is absent or unrecognized.
func ResolveFactors(unitName string, fallback ConversionFactors, logger *slog.Logger) ConversionFactors {
	if f, ok := DetectUnits(unitName); ok {
		logger.Info("detected reference units", "unit", unitName, "area_factor", f.Area, "length_factor", f.Length)
		return f
	}
	if unitName == "" {
		logger.Warn("reference dataset has no linear unit, using fallback conversion factors",
			"area_factor", fallback.Area, "length_factor", fallback.Length)
	} else {
		logger.Warn("could not determine conversion factors for unit, using fallback",
			"unit", unitName, "area_factor", fallback.Area, "length_factor", fallback.Length)
	}
	return fallback
}

// CMSToCFS converts cubic meters per second to cubic feet per second.
func CMSToCFS(v float64) float64 { return v * CubicFeetPerCubicM }

// CFSToCMS converts cubic feet per second to cubic meters per second.
func CFSToCMS(v float64) float64 { return v / CubicFeetPerCubicM }

// MetersToFeet converts meters to feet.
func MetersToFeet(v float64) float64 { return v * FeetPerMeter }

// FeetToMeters converts feet to meters.
func FeetToMeters(v float64) float64 { return v / FeetPerMeter }

// SqKmToAcres converts square kilometers to acres.
func SqKmToAcres(v float64) float64 { return v * AcresPerSqKm }

// AcresToSqKm converts acres to square kilometers.
func AcresToSqKm(v float64) float64 { return v / AcresPerSqKm }

// ConvertRow converts the unit-bearing fields of a row (discharge, area,
// flow length) between unit systems. Slope, CN and Tc are dimensionless or
// in hours and are left untouched.
func ConvertRow(row ResultRow, from, to UnitSystem) ResultRow {
	if from == to {
		return row
	}
	q, a, l := CMSToCFS, SqKmToAcres, MetersToFeet
	if to == UnitsMetric {
		q, a, l = CFSToCMS, AcresToSqKm, FeetToMeters
	}
	out := row
	out.Discharge = make([]float64, len(row.Discharge))
	for i, v := range row.Discharge {
		out.Discharge[i] = q(v)
	}
	out.AreaUpstream = a(row.AreaUpstream)
	out.MaxFlowLength = l(row.MaxFlowLength)
	return out
}

// ConvertTable returns a copy of t reported in the target unit system.
func ConvertTable(t *ResultsTable, to UnitSystem) *ResultsTable {
	out := t.Clone()
	if t.Units == to {
		return out
	}
	for i, r := range out.Rows {
		out.Rows[i] = ConvertRow(r, t.Units, to)
	}
	out.Units = to
	return out
}

// ConvertDischarge converts a discharge vector between unit systems.
func ConvertDischarge(q []float64, from, to UnitSystem) []float64 {
	out := append([]float64(nil), q...)
	if from == to {
		return out
	}
	conv := CMSToCFS
	if to == UnitsMetric {
		conv = CFSToCMS
	}
	for i, v := range out {
		out[i] = conv(v)
	}
	return out
}
