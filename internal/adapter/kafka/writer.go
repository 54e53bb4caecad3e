package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-peakflow/internal/config"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes result rows to a Kafka topic, one message per catchment
// keyed by catchment id.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured results topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaResultsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishRun serializes every row of the table and publishes them in a
// single WriteMessages call.
func (w *Writer) PublishRun(ctx context.Context, t *domain.ResultsTable) error {
	if len(t.Rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(t.Rows))
	for i := range t.Rows {
		msg, err := serializeToMessage(t, t.Rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", t.RunID, err)
	}
	w.metrics.RowsPublished.Add(float64(len(msgs)))
	w.logger.Info("results published", "run_id", t.RunID, "rows", len(msgs))
	return nil
}

// Close flushes pending messages and closes the underlying writer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// rowMessage is the published form of a result row. Discharge is keyed by
// frequency label ("Y100").
type rowMessage struct {
	RunID                 string             `json:"run_id"`
	SourceRunID           string             `json:"source_run_id,omitempty"`
	Scenario              string             `json:"scenario,omitempty"`
	Units                 domain.UnitSystem  `json:"units"`
	ID                    string             `json:"id"`
	PourPointID           string             `json:"pour_point_id,omitempty"`
	Discharge             map[string]float64 `json:"discharge"`
	AvgSlopePct           float64            `json:"avg_slope"`
	AvgCurveNumber        float64            `json:"avg_cn"`
	AreaUpstream          float64            `json:"area_upstream"`
	MaxFlowLength         float64            `json:"max_fl"`
	TimeOfConcentrationHr float64            `json:"tc_hr"`
	CreatedAt             time.Time          `json:"created_at"`
}

// serializeToMessage marshals one result row into a Kafka message.
func serializeToMessage(t *domain.ResultsTable, row domain.ResultRow) (kafkago.Message, error) {
	discharge := make(map[string]float64, len(t.Frequencies))
	for i, f := range t.Frequencies {
		if i < len(row.Discharge) {
			discharge[f.Label()] = row.Discharge[i]
		}
	}
	data, err := json.Marshal(rowMessage{
		RunID:                 t.RunID,
		SourceRunID:           t.SourceRunID,
		Scenario:              t.Scenario,
		Units:                 t.Units,
		ID:                    row.ID,
		PourPointID:           row.PourPointID,
		Discharge:             discharge,
		AvgSlopePct:           row.AvgSlopePct,
		AvgCurveNumber:        row.AvgCurveNumber,
		AreaUpstream:          row.AreaUpstream,
		MaxFlowLength:         row.MaxFlowLength,
		TimeOfConcentrationHr: row.TimeOfConcentrationHr,
		CreatedAt:             t.CreatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize result row %s: %w", row.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(row.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(t.RunID)},
			{Key: "scenario", Value: []byte(t.Scenario)},
			{Key: "units", Value: []byte(t.Units)},
			{Key: "created_at", Value: []byte(t.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
