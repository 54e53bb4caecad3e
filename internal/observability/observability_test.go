package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-peakflow/internal/config"
)

func TestNewLogger_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("unit fallback", "unit", "Degree")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "unit fallback", entry["msg"])
	assert.Equal(t, "Degree", entry["unit"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "TEXT").Debug("tc computed", "tc_hr", 0.12)
	assert.Contains(t, buf.String(), "tc_hr=0.12")
}

func TestNewLoggerTo_UsesConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, &config.Config{LogLevel: "error", LogFormat: "text"})

	logger.Warn("dropped")
	logger.Error("write failed", "path", "out.csv")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "path=out.csv")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.Runs.WithLabelValues(KindRerun).Inc()
	m.CatchmentsProcessed.Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.InDelta(t, 1.0, values["peakflow_runs_total"], 0)
	assert.InDelta(t, 3.0, values["peakflow_catchments_processed_total"], 0)
}
