package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relTolerance = 1e-6

func TestTimeOfConcentration(t *testing.T) {
	t.Run("500 m at 5 percent", func(t *testing.T) {
		want := 0.000325 * math.Pow(500, 0.77) * math.Pow(0.05, -0.385)
		got := TimeOfConcentration(500, 5.0)
		assert.InDelta(t, want, got, 1e-6)
		assert.InDelta(t, 0.1233, got, 0.001)
	})

	t.Run("zero slope uses minimum slope", func(t *testing.T) {
		got := TimeOfConcentration(500, 0)
		want := TimeOfConcentration(500, MinSlopePct)
		assert.Equal(t, want, got)
		assert.False(t, math.IsInf(got, 0))
	})

	t.Run("NaN slope uses minimum slope", func(t *testing.T) {
		assert.Equal(t, TimeOfConcentration(120, MinSlopePct), TimeOfConcentration(120, math.NaN()))
	})

	t.Run("zero flow length gives zero Tc", func(t *testing.T) {
		assert.Zero(t, TimeOfConcentration(0, 3))
	})

	t.Run("custom coefficients", func(t *testing.T) {
		c := TcCoefficients{A: 1, B: 1, C: 0}
		assert.InDelta(t, 250.0, TimeOfConcentrationWith(c, 250, 12), 1e-12)
	})
}

func TestPeakFlow_SingleFrequency(t *testing.T) {
	got := PeakFlow(1.0, 0.5, 80, []float64{8.0}, []Frequency{10})
	require.Len(t, got.Discharge, 1)

	s := 0.1 * (25400.0/80 - 254)
	ia := 0.2 * s
	q := (8.0 - ia) * (8.0 - ia) / (8.0 + s - ia)
	r := ia / 8.0
	c0 := -2.2349*r*r + 0.4759*r + 2.5273
	c1 := 1.5555*r*r - 0.7081*r - 0.5584
	c2 := 0.6041*r*r + 0.0437*r - 0.1761
	lt := math.Log10(0.5)
	want := q * math.Pow(10, c0+c1*lt+c2*lt*lt-2.366) * 1.0

	assert.Positive(t, got.Discharge[0])
	assert.InEpsilon(t, want, got.Discharge[0], relTolerance)
	assert.Equal(t, []Frequency{10}, got.Frequencies)
	assert.Equal(t, "Y10", got.Frequencies[0].Label())

	again := PeakFlow(1.0, 0.5, 80, []float64{8.0}, []Frequency{10})
	assert.Equal(t, math.Float64bits(got.Discharge[0]), math.Float64bits(again.Discharge[0]))
}

func TestPeakFlow_InvalidDataYieldsZero(t *testing.T) {
	depths := []float64{5.2, 6.1, 7.5, 8.9, 11.0}
	freqs := []Frequency{1, 2, 5, 10, 25}

	cases := []struct {
		name string
		cn   float64
		tc   float64
	}{
		{"zero curve number", 0, 0.4},
		{"zero Tc", 75, 0},
		{"both zero", 0, 0},
		{"NaN curve number", math.NaN(), 0.4},
		{"NaN Tc", 75, math.NaN()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PeakFlow(3.5, tc.tc, tc.cn, depths, freqs)
			require.Len(t, got.Discharge, len(freqs))
			for i, q := range got.Discharge {
				assert.Zero(t, q, "frequency %s", freqs[i].Label())
			}
			assert.Equal(t, freqs, got.Frequencies)
		})
	}
}

func TestPeakFlow_MonotonicInFrequency(t *testing.T) {
	freqs := []Frequency{1, 2, 5, 10, 25, 50, 100, 200, 500, 1000}
	depths := []float64{6.93, 8.33, 10.62, 12.52, 15.19, 17.3, 19.46, 21.72, 24.84, 27.3}

	for _, cn := range []float64{55, 70, 85, 98} {
		tc := TimeOfConcentration(850, 3.2)
		got := PeakFlow(0.8, tc, cn, depths, freqs)
		for i := 1; i < len(got.Discharge); i++ {
			assert.GreaterOrEqual(t, got.Discharge[i], got.Discharge[i-1],
				"cn=%g: %s < %s", cn, freqs[i].Label(), freqs[i-1].Label())
		}
	}
}

func TestPeakFlow_RainfallBelowAbstraction(t *testing.T) {
	// CN 40 gives Ia ≈ 7.62 cm, so 5 cm of rain produces no runoff.
	got := PeakFlow(2, 0.7, 40, []float64{5.0, 20.0}, []Frequency{2, 100})
	assert.Zero(t, got.Discharge[0])
	assert.Positive(t, got.Discharge[1])
}

func TestPeakFlow_PreservesFrequencyOrder(t *testing.T) {
	freqs := []Frequency{100, 2, 25}
	got := PeakFlow(1, 0.3, 72, []float64{19.0, 8.0, 15.0}, freqs)
	assert.Equal(t, freqs, got.Frequencies)
	m := got.ByFrequency()
	assert.Greater(t, m[100], m[25])
	assert.Greater(t, m[25], m[2])
}

func TestRainRatio_Clamp(t *testing.T) {
	t.Run("below lower bound", func(t *testing.T) {
		// Ia/P = 0.01
		assert.Equal(t, MinRainRatio, RainRatio(0.1, 10))
	})
	t.Run("above upper bound", func(t *testing.T) {
		// Ia/P = 2
		assert.Equal(t, MaxRainRatio, RainRatio(4, 2))
	})
	t.Run("inside bounds", func(t *testing.T) {
		assert.InDelta(t, 0.25, RainRatio(1, 4), 1e-15)
	})
	t.Run("zero rainfall", func(t *testing.T) {
		assert.Equal(t, MaxRainRatio, RainRatio(1, 0))
	})
	t.Run("peak flow uses clamped ratio", func(t *testing.T) {
		// CN 98: Ia ≈ 0.1037 cm; with P = 30 cm, Ia/P ≈ 0.0035.
		s := RetentionCM(98)
		ia := 0.2 * s
		p := 30.0
		require.Less(t, ia/p, MinRainRatio)

		got := PeakFlow(1, 0.25, 98, []float64{p}, []Frequency{500})
		want := RunoffDepthCM(p, s, ia) * UnitPeakDischarge(MinRainRatio, 0.25)
		assert.InEpsilon(t, want, got.Discharge[0], relTolerance)

		unclamped := RunoffDepthCM(p, s, ia) * UnitPeakDischarge(ia/p, 0.25)
		assert.NotEqual(t, unclamped, got.Discharge[0])
	})
}

func TestRunoffDepthCM_ZeroDenominator(t *testing.T) {
	assert.Zero(t, RunoffDepthCM(0, 0, 0))
}

func TestComputeRow(t *testing.T) {
	precip := PrecipitationTable{Frequencies: []Frequency{2, 10}, DepthsCM: []float64{8.0, 12.0}}
	p := CatchmentParameters{ID: "17", AreaSqKm: 0.42, AvgSlopePct: 4.1, AvgCurveNumber: 78, MaxFlowLengthM: 620}

	row := ComputeRow(p, precip, "17")

	assert.Equal(t, "17", row.ID)
	assert.Equal(t, "17", row.PourPointID)
	assert.Equal(t, TimeOfConcentration(620, 4.1), row.TimeOfConcentrationHr)
	assert.Equal(t, 0.42, row.AreaUpstream)
	assert.Equal(t, 620.0, row.MaxFlowLength)
	require.Len(t, row.Discharge, 2)
	assert.Less(t, row.Discharge[0], row.Discharge[1])
}
