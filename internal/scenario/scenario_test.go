package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

const sampleFile = `
scenarios:
  - name: baseline
    precip: noaa_24hr.csv
  - name: climate-2050
    precip: /data/noaa_24hr.csv
    rainfallAdjustment: 1.2
    freqMin: 2
    freqMax: 100
  - name: northeast
    precip: nrcc.csv
    format: NRCC
`

type stubLoader struct {
	calls []string
	opts  []domain.PrecipOptions
	err   error
}

func (s *stubLoader) Load(_ context.Context, path string, opts domain.PrecipOptions) (domain.PrecipitationTable, error) {
	s.calls = append(s.calls, path)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return domain.PrecipitationTable{}, s.err
	}
	return domain.PrecipitationTable{
		Source:      path,
		Frequencies: []domain.Frequency{2},
		DepthsCM:    []float64{8 * opts.RainfallAdjustment},
	}, nil
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, f.Scenarios, 3)

	assert.Equal(t, "baseline", f.Scenarios[0].Name)
	assert.Equal(t, 1.2, f.Scenarios[1].RainfallAdjustment)
	assert.Equal(t, Format(domain.FormatNRCC), f.Scenarios[2].Format)

	s, ok := f.Lookup("climate-2050")
	require.True(t, ok)
	assert.Equal(t, 100, s.FreqMax)
	_, ok = f.Lookup("missing")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":          "scenarios: []",
		"missing name":   "scenarios:\n  - precip: a.csv",
		"missing precip": "scenarios:\n  - name: a",
		"duplicate":      "scenarios:\n  - name: a\n    precip: a.csv\n  - name: a\n    precip: b.csv",
		"bad format":     "scenarios:\n  - name: a\n    precip: a.csv\n    format: atlas",
		"negative adj":   "scenarios:\n  - name: a\n    precip: a.csv\n    rainfallAdjustment: -1",
		"path in name":   "scenarios:\n  - name: ../a\n    precip: a.csv",
		"not yaml":       "scenarios: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "noaa_24hr.csv"), f.Scenarios[0].Precip)
	assert.Equal(t, "/data/noaa_24hr.csv", f.Scenarios[1].Precip)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_KeepsURLs(t *testing.T) {
	const remote = "https://hdsc.nws.noaa.gov/cgi-bin/hdsc/new/fe_text_mean.csv?lat=40.0000&lon=-80.0000"
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	doc := "scenarios:\n  - name: remote\n    precip: \"" + remote + "\"\n  - name: plain\n    precip: http://tables.test/wet.csv\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, remote, f.Scenarios[0].Precip)
	assert.Equal(t, "http://tables.test/wet.csv", f.Scenarios[1].Precip)
}

func TestScenarioOptions(t *testing.T) {
	base := domain.DefaultPrecipOptions()
	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	assert.Equal(t, base, f.Scenarios[0].Options(base))

	opts := f.Scenarios[1].Options(base)
	assert.Equal(t, 1.2, opts.RainfallAdjustment)
	assert.Equal(t, 2, opts.FreqMin)
	assert.Equal(t, 100, opts.FreqMax)
	assert.Equal(t, base.Duration, opts.Duration)

	assert.Equal(t, domain.FormatNRCC, f.Scenarios[2].Options(base).Format)
}

func TestResolve(t *testing.T) {
	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	loader := &stubLoader{}
	named, err := f.Resolve(context.Background(), loader, domain.DefaultPrecipOptions())
	require.NoError(t, err)

	require.Len(t, named, 3)
	assert.Equal(t, []string{"noaa_24hr.csv", "/data/noaa_24hr.csv", "nrcc.csv"}, loader.calls)
	assert.Equal(t, "climate-2050", named[1].Name)
	assert.InDelta(t, 9.6, named[1].Table.DepthsCM[0], 1e-12)

	_, err = f.Resolve(context.Background(), &stubLoader{err: errors.New("no such file")}, domain.DefaultPrecipOptions())
	assert.ErrorContains(t, err, `scenario "baseline"`)
}
