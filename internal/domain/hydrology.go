package domain

import "math"

// TcCoefficients parameterize Tc = A · L^B · (S/100)^C with L in meters and
// S in percent slope.
type TcCoefficients struct {
	A float64
	B float64
	C float64
}

// DefaultTcCoefficients are the Kirpich-form constants used for small
// catchments.
var DefaultTcCoefficients = TcCoefficients{A: 0.000325, B: 0.77, C: -0.385}

// MinSlopePct replaces a zero mean slope so the negative exponent stays finite.
const MinSlopePct = 0.00001

// Rain ratio bounds for the Type II unit peak discharge regression.
const (
	MinRainRatio = 0.1
	MaxRainRatio = 0.5
)

// TimeOfConcentration returns Tc in hours from the maximum flow length (m)
// and mean slope (percent) using the default coefficients.
func TimeOfConcentration(maxFlowLengthM, avgSlopePct float64) float64 {
	return TimeOfConcentrationWith(DefaultTcCoefficients, maxFlowLengthM, avgSlopePct)
}

// TimeOfConcentrationWith is TimeOfConcentration with explicit coefficients.
func TimeOfConcentrationWith(c TcCoefficients, maxFlowLengthM, avgSlopePct float64) float64 {
	if avgSlopePct == 0 || math.IsNaN(avgSlopePct) {
		avgSlopePct = MinSlopePct
	}
	return c.A * math.Pow(maxFlowLengthM, c.B) * math.Pow(avgSlopePct/100, c.C)
}

// RetentionCM returns the potential maximum retention S (cm) for a curve number.
func RetentionCM(cn float64) float64 {
	return 0.1 * (25400/cn - 254)
}

// RainRatio returns Ia/P clamped to [MinRainRatio, MaxRainRatio]. A zero
// depth yields the upper bound.
func RainRatio(ia, p float64) float64 {
	if p <= 0 {
		return MaxRainRatio
	}
	r := ia / p
	switch {
	case r < MinRainRatio:
		return MinRainRatio
	case r > MaxRainRatio:
		return MaxRainRatio
	default:
		return r
	}
}

// UnitPeakDischarge returns qu (m³ s⁻¹ km⁻² cm⁻¹) for a clamped rain ratio and
// Tc in hours, using the Type II regression coefficients.
func UnitPeakDischarge(rainRatio, tcHr float64) float64 {
	r := rainRatio
	c0 := -2.2349*r*r + 0.4759*r + 2.5273
	c1 := 1.5555*r*r - 0.7081*r - 0.5584
	c2 := 0.6041*r*r + 0.0437*r - 0.1761
	lt := math.Log10(tcHr)
	return math.Pow(10, c0+c1*lt+c2*lt*lt-2.366)
}

// RunoffDepthCM returns direct runoff Q (cm) for rainfall P given retention S
// and initial abstraction Ia. Rainfall below Ia produces no runoff.
func RunoffDepthCM(p, s, ia float64) float64 {
	pe := p - ia
	if pe < 0 {
		pe = 0
	}
	den := p + (s - ia)
	if den == 0 {
		return 0
	}
	return pe * pe / den
}

// PeakFlow computes peak discharge (m³/s) for every rainfall depth at once.
// depthsCM and freqs must be the same length. A zero or NaN curve number or
// Tc returns zero discharge for every frequency.
func PeakFlow(areaSqKm, tcHr, avgCN float64, depthsCM []float64, freqs []Frequency) PeakFlowResult {
	out := PeakFlowResult{
		Frequencies: append([]Frequency(nil), freqs...),
		Discharge:   make([]float64, len(freqs)),
	}
	if !IsValidForRunoff(avgCN, tcHr) {
		return out
	}

	s := RetentionCM(avgCN)
	ia := 0.2 * s
	for i, p := range depthsCM {
		if i >= len(out.Discharge) {
			break
		}
		q := RunoffDepthCM(p, s, ia)
		qu := UnitPeakDischarge(RainRatio(ia, p), tcHr)
		out.Discharge[i] = q * qu * areaSqKm
	}
	return out
}

// IsValidForRunoff reports whether a catchment has the curve number and Tc
// needed to compute discharge.
func IsValidForRunoff(avgCN, tcHr float64) bool {
	return avgCN != 0 && tcHr != 0 && !math.IsNaN(avgCN) && !math.IsNaN(tcHr)
}
