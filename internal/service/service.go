// Package service composes the engine with run storage, precipitation
// loading, scenarios and publishing. The HTTP API, the scheduler and the
// CLI share it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/couchcryptid/storm-peakflow/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
	"github.com/couchcryptid/storm-peakflow/internal/pipeline"
	"github.com/couchcryptid/storm-peakflow/internal/scenario"
)

var (
	// ErrUnknownScenario is returned when a request names a scenario that is
	// not in the scenario file.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrNoPrecipitation is returned when a run request names neither a
	// scenario nor a precipitation source.
	ErrNoPrecipitation = errors.New("no precipitation source")
	// ErrNoScenarios is returned by scenario operations when no scenario
	// file is loaded.
	ErrNoScenarios = errors.New("no scenarios configured")
	// ErrInvalidLocation is returned for coordinates outside the valid
	// latitude and longitude ranges.
	ErrInvalidLocation = errors.New("invalid location")
)

// RunStore persists results tables.
type RunStore interface {
	SaveRun(ctx context.Context, t *domain.ResultsTable) error
	LoadRun(ctx context.Context, runID string) (*domain.ResultsTable, error)
	ListRuns(ctx context.Context, limit int) ([]sqlite.RunSummary, error)
	LatestBaseRun(ctx context.Context) (*domain.ResultsTable, error)
	DeleteRun(ctx context.Context, runID string) error
}

// Locator resolves a point to the URL of its precipitation frequency table.
type Locator interface {
	PointURL(lat, lon float64) string
}

// Publisher emits a finished results table downstream.
type Publisher interface {
	PublishRun(ctx context.Context, t *domain.ResultsTable) error
}

// Deps are the collaborators of a Service. Locator, Publisher and Scenarios
// may be nil.
type Deps struct {
	Store     RunStore
	Loader    scenario.PrecipLoader
	Locator   Locator
	Publisher Publisher
	Scenarios *scenario.File
	Precip    domain.PrecipOptions
	// Engine holds the base engine options; UnitName on a request overrides
	// the conversion factors.
	Engine  pipeline.Options
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service runs, reruns and stores peak flow tables.
type Service struct {
	deps Deps
	orch *pipeline.Orchestrator
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{
		deps: deps,
		orch: pipeline.New(deps.Engine, deps.Logger, deps.Metrics),
	}
}

// RunRequest asks for a new run over a batch of catchments.
type RunRequest struct {
	Catchments []domain.RawCatchment `json:"catchments"`
	// Scenario names a configured precipitation table. Location is used when
	// Scenario is empty.
	Scenario string    `json:"scenario,omitempty"`
	Location *Location `json:"location,omitempty"`
	// UnitName is the linear unit of the catchment data, e.g. "Meter".
	UnitName string `json:"unit_name,omitempty"`
}

// Location is a point whose precipitation frequency estimates are fetched
// from the configured data server.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (l Location) validate() error {
	if math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("%w: latitude %g", ErrInvalidLocation, l.Lat)
	}
	if math.IsNaN(l.Lon) || l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("%w: longitude %g", ErrInvalidLocation, l.Lon)
	}
	return nil
}

// RunResult is a stored run and the records it rejected.
type RunResult struct {
	Table    *domain.ResultsTable
	Rejected []*domain.CatchmentRecordError
}

// Run computes, stores and publishes a new results table. Rejected records
// do not fail the run; they are returned in the result.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	precip, err := s.precipitation(ctx, req.Scenario, req.Location)
	if err != nil {
		return nil, err
	}

	orch := s.orch
	if req.UnitName != "" {
		opts := s.orch.Options()
		opts.Factors = domain.ResolveFactors(req.UnitName, opts.Factors, s.deps.Logger)
		orch = pipeline.New(opts, s.deps.Logger, s.deps.Metrics)
	}

	table, err := orch.Run(ctx, req.Catchments, precip)
	var batchErr *pipeline.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return nil, err
	}
	table.Scenario = req.Scenario

	if err := s.store(ctx, table); err != nil {
		return nil, err
	}
	res := &RunResult{Table: table}
	if batchErr != nil {
		res.Rejected = batchErr.Records()
	}
	return res, nil
}

// Rerun recomputes discharge of a stored run against a named scenario and
// stores the result as a new run.
func (s *Service) Rerun(ctx context.Context, runID, scenarioName string) (*domain.ResultsTable, error) {
	if strings.TrimSpace(scenarioName) == "" {
		return nil, fmt.Errorf("%w: scenario name is required", ErrUnknownScenario)
	}
	existing, err := s.deps.Store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	precip, err := s.precipitation(ctx, scenarioName, nil)
	if err != nil {
		return nil, err
	}
	tables, err := s.orch.RerunScenarios(ctx, existing, []pipeline.NamedPrecipitation{{Name: scenarioName, Table: precip}})
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, tables[0]); err != nil {
		return nil, err
	}
	return tables[0], nil
}

// RerunLatest reruns the most recent base run against every configured
// scenario. It returns domain.ErrRunNotFound when nothing has been run yet.
func (s *Service) RerunLatest(ctx context.Context) ([]*domain.ResultsTable, error) {
	if s.deps.Scenarios == nil {
		return nil, ErrNoScenarios
	}
	existing, err := s.deps.Store.LatestBaseRun(ctx)
	if err != nil {
		return nil, err
	}
	named, err := s.deps.Scenarios.Resolve(ctx, s.deps.Loader, s.deps.Precip)
	if err != nil {
		return nil, err
	}
	tables, err := s.orch.RerunScenarios(ctx, existing, named)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if err := s.store(ctx, t); err != nil {
			return nil, err
		}
	}
	s.deps.Logger.Info("scenario reruns complete", "source_run_id", existing.RunID, "scenarios", len(tables))
	return tables, nil
}

// Get returns a stored run.
func (s *Service) Get(ctx context.Context, runID string) (*domain.ResultsTable, error) {
	return s.deps.Store.LoadRun(ctx, runID)
}

// List returns up to limit stored runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]sqlite.RunSummary, error) {
	return s.deps.Store.ListRuns(ctx, limit)
}

// Delete removes a stored run.
func (s *Service) Delete(ctx context.Context, runID string) error {
	return s.deps.Store.DeleteRun(ctx, runID)
}

// Scenarios returns the configured scenario names in file order.
func (s *Service) Scenarios() []string {
	if s.deps.Scenarios == nil {
		return nil
	}
	names := make([]string, len(s.deps.Scenarios.Scenarios))
	for i, sc := range s.deps.Scenarios.Scenarios {
		names[i] = sc.Name
	}
	return names
}

// precipitation loads only operator-configured sources: a scenario table or
// the data server's table for a point.
func (s *Service) precipitation(ctx context.Context, scenarioName string, loc *Location) (domain.PrecipitationTable, error) {
	if scenarioName != "" {
		if s.deps.Scenarios == nil {
			return domain.PrecipitationTable{}, fmt.Errorf("%w: %q", ErrUnknownScenario, scenarioName)
		}
		sc, ok := s.deps.Scenarios.Lookup(scenarioName)
		if !ok {
			return domain.PrecipitationTable{}, fmt.Errorf("%w: %q", ErrUnknownScenario, scenarioName)
		}
		return s.deps.Loader.Load(ctx, sc.Precip, sc.Options(s.deps.Precip))
	}
	if loc == nil {
		return domain.PrecipitationTable{}, ErrNoPrecipitation
	}
	if s.deps.Locator == nil {
		return domain.PrecipitationTable{}, fmt.Errorf("%w: location lookup is not configured", ErrNoPrecipitation)
	}
	if err := loc.validate(); err != nil {
		return domain.PrecipitationTable{}, err
	}
	return s.deps.Loader.Load(ctx, s.deps.Locator.PointURL(loc.Lat, loc.Lon), s.deps.Precip)
}

func (s *Service) store(ctx context.Context, t *domain.ResultsTable) error {
	if err := s.deps.Store.SaveRun(ctx, t); err != nil {
		return fmt.Errorf("save run %s: %w", t.RunID, err)
	}
	if s.deps.Publisher == nil {
		return nil
	}
	return s.deps.Publisher.PublishRun(ctx, t)
}
