package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/storm-peakflow/internal/config"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
)

// Options configure an Orchestrator.
type Options struct {
	// Factors convert catchment area and flow length from the reference
	// dataset's units to km² and m.
	Factors     domain.ConversionFactors
	OutputUnits domain.UnitSystem
	// Strict rejects catchment records with unusable numeric fields instead
	// of reporting them with zero discharge.
	Strict  bool
	Workers int
	// PourPointField names the pour point identifier column. Empty or "id"
	// means the catchment id is the pour point id.
	PourPointField string
	// RerunUnits converts rerun tables to these units. Empty keeps the
	// existing table's units.
	RerunUnits domain.UnitSystem
}

// NamedPrecipitation is a precipitation table evaluated as a what-if scenario.
type NamedPrecipitation struct {
	Name  string
	Table domain.PrecipitationTable
}

// Orchestrator runs the TR-55 engine over batches of catchments and
// assembles results tables.
type Orchestrator struct {
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Orchestrator. Zero-valued options get defaults: metric
// output, fallback conversion factors and one worker per CPU.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.OutputUnits == "" {
		opts.OutputUnits = domain.UnitsMetric
	}
	if opts.Factors == (domain.ConversionFactors{}) {
		opts.Factors = domain.DefaultConversionFactors()
	}
	if opts.PourPointField == "" {
		opts.PourPointField = domain.ColumnID
	}
	return &Orchestrator{opts: opts, logger: logger, metrics: metrics}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Run computes peak flows for every catchment against the precipitation
// table. Rows are returned in input order, in the configured output units.
//
// Rejected records (strict mode, or an empty id) are left out of the table
// and reported through a *BatchError returned alongside it. Any other error
// is fatal and the table is nil.
func (o *Orchestrator) Run(ctx context.Context, catchments []domain.RawCatchment, precip domain.PrecipitationTable) (*domain.ResultsTable, error) {
	start := time.Now()
	if err := precip.Validate(); err != nil {
		return nil, err
	}

	outcomes := make([]catchmentOutcome, len(catchments))
	if err := o.forEach(ctx, len(catchments), func(i int) {
		outcomes[i] = o.transform(i, catchments[i], precip)
	}); err != nil {
		return nil, err
	}

	table := &domain.ResultsTable{
		RunID:          uuid.NewString(),
		PourPointField: o.opts.PourPointField,
		Units:          domain.UnitsMetric,
		Frequencies:    append([]domain.Frequency(nil), precip.Frequencies...),
		Rows:           make([]domain.ResultRow, 0, len(catchments)),
		CreatedAt:      domain.Now(),
	}

	var rejected []error
	invalid := 0
	for _, out := range outcomes {
		if out.err != nil {
			o.logger.Warn("catchment record rejected", "error", out.err)
			o.metrics.RecordErrors.Inc()
			rejected = append(rejected, out.err)
			continue
		}
		if out.invalid {
			invalid++
			o.logInvalid(out.row, out.issues)
		}
		table.Rows = append(table.Rows, out.row)
	}

	if o.opts.OutputUnits != domain.UnitsMetric {
		table = domain.ConvertTable(table, o.opts.OutputUnits)
	}

	o.metrics.CatchmentsPerRun.Observe(float64(len(catchments)))
	o.metrics.CatchmentsProcessed.Add(float64(len(table.Rows)))
	o.metrics.CatchmentsInvalid.Add(float64(invalid))
	o.metrics.Runs.WithLabelValues(observability.KindRun).Inc()
	o.metrics.RunDuration.WithLabelValues(observability.KindRun).Observe(time.Since(start).Seconds())

	o.logger.Info("run complete",
		"run_id", table.RunID,
		"catchments", len(catchments),
		"rows", len(table.Rows),
		"invalid", invalid,
		"rejected", len(rejected),
		"frequencies", len(table.Frequencies),
		"units", table.Units,
		"duration", time.Since(start),
	)

	if len(rejected) > 0 {
		return table, &BatchError{Total: len(catchments), Errors: rejected}
	}
	return table, nil
}

// Rerun recomputes the discharge columns of an existing results table with a
// new precipitation table. Area, Tc and CN are reused from each row and every
// non-discharge field is copied unchanged. Output is in the existing table's
// units unless Options.RerunUnits asks for a conversion.
func (o *Orchestrator) Rerun(ctx context.Context, existing *domain.ResultsTable, precip domain.PrecipitationTable) (*domain.ResultsTable, error) {
	return o.rerun(ctx, existing, precip, "", observability.KindRerun)
}

// RerunScenarios reruns an existing table once per scenario and returns the
// tables in scenario order. Scenario names must be unique and non-empty.
func (o *Orchestrator) RerunScenarios(ctx context.Context, existing *domain.ResultsTable, scenarios []NamedPrecipitation) ([]*domain.ResultsTable, error) {
	seen := make(map[string]struct{}, len(scenarios))
	for _, s := range scenarios {
		if s.Name == "" {
			return nil, errors.New("scenario name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scenario %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	tables := make([]*domain.ResultsTable, 0, len(scenarios))
	for _, s := range scenarios {
		t, err := o.rerun(ctx, existing, s.Table, s.Name, observability.KindScenario)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (o *Orchestrator) rerun(ctx context.Context, existing *domain.ResultsTable, precip domain.PrecipitationTable, scenario, kind string) (*domain.ResultsTable, error) {
	start := time.Now()
	if existing == nil {
		return nil, errors.New("no results table to rerun")
	}
	if err := precip.Validate(); err != nil {
		return nil, err
	}

	units := existing.Units
	if o.opts.RerunUnits != "" {
		units = o.opts.RerunUnits
	}

	// Engine inputs come from a metric working copy; the rows handed back
	// keep the existing table's values unless they are converted.
	working := domain.ConvertTable(existing, domain.UnitsMetric)
	discharge := make([][]float64, len(working.Rows))
	if err := o.forEach(ctx, len(working.Rows), func(i int) {
		r := working.Rows[i]
		q := domain.PeakFlow(r.AreaUpstream, r.TimeOfConcentrationHr, r.AvgCurveNumber, precip.DepthsCM, precip.Frequencies)
		discharge[i] = domain.ConvertDischarge(q.Discharge, domain.UnitsMetric, units)
	}); err != nil {
		return nil, err
	}

	out := &domain.ResultsTable{
		RunID:          uuid.NewString(),
		SourceRunID:    existing.RunID,
		Scenario:       scenario,
		PourPointField: existing.PourPointField,
		Units:          units,
		Frequencies:    append([]domain.Frequency(nil), precip.Frequencies...),
		Rows:           make([]domain.ResultRow, len(existing.Rows)),
		CreatedAt:      domain.Now(),
	}
	invalid := 0
	for i, r := range existing.Rows {
		if units != existing.Units {
			r = domain.ConvertRow(working.Rows[i], domain.UnitsMetric, units)
		}
		r.Discharge = discharge[i]
		out.Rows[i] = r
		if !domain.IsValidForRunoff(r.AvgCurveNumber, r.TimeOfConcentrationHr) {
			invalid++
			o.logInvalid(r, nil)
		}
	}

	o.metrics.CatchmentsProcessed.Add(float64(len(out.Rows)))
	o.metrics.CatchmentsInvalid.Add(float64(invalid))
	o.metrics.Runs.WithLabelValues(kind).Inc()
	o.metrics.RunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	o.logger.Info("rerun complete",
		"run_id", out.RunID,
		"source_run_id", existing.RunID,
		"scenario", scenario,
		"rows", len(out.Rows),
		"invalid", invalid,
		"frequencies", len(out.Frequencies),
		"units", out.Units,
		"duration", time.Since(start),
	)
	return out, nil
}

// forEach calls fn for every index in [0, n) on the worker pool. Each call
// must only write to its own index. A cancelled context stops feeding work
// and is returned once in-flight calls finish.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(i int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(o.opts.Workers, n)
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	var err error
feed:
	for i := range n {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

func (o *Orchestrator) logInvalid(row domain.ResultRow, issues []domain.FieldIssue) {
	attrs := []any{
		"id", row.ID,
		"avg_cn", row.AvgCurveNumber,
		"tc_hr", row.TimeOfConcentrationHr,
	}
	for _, is := range issues {
		attrs = append(attrs, is.Field, is.Err.Error())
	}
	o.logger.Warn("invalid catchment data, reporting zero discharge", attrs...)
}

// OptionsFromConfig builds engine options from configuration. A recognized
// UNIT_NAME takes precedence over the configured conversion factors.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Factors:        domain.ResolveFactors(cfg.UnitName, cfg.Factors, logger),
		OutputUnits:    cfg.OutputUnits,
		Strict:         cfg.Strict,
		Workers:        cfg.Workers,
		PourPointField: cfg.PourPointField,
	}
}
