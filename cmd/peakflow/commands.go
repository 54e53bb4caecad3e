package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/storm-peakflow/internal/adapter/csvfile"
	kafkaadapter "github.com/couchcryptid/storm-peakflow/internal/adapter/kafka"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/pfds"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-peakflow/internal/config"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
	"github.com/couchcryptid/storm-peakflow/internal/pipeline"
	"github.com/couchcryptid/storm-peakflow/internal/scenario"
)

// session carries what every command needs once flags are applied.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	pfds    *pfds.Client
	loader  *csvfile.Loader
}

func newSession(cfg *config.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg)
	client := pfds.NewClient(cfg.PFDSBaseURL, cfg.PFDSTimeout, logger)
	return &session{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		pfds:    client,
		loader:  csvfile.NewLoader(client, logger),
	}, nil
}

// precipFlags select a precipitation table by path/URL or by coordinates
// looked up on the PFDS.
type precipFlags struct {
	path     string
	lat, lon float64
	fs       *flag.FlagSet
}

func addPrecipFlags(fs *flag.FlagSet) *precipFlags {
	p := &precipFlags{fs: fs}
	fs.StringVar(&p.path, "precip", "", "precipitation frequency CSV, file path or http(s) URL")
	fs.Float64Var(&p.lat, "lat", 0, "latitude of a PFDS point lookup, used when -precip is empty")
	fs.Float64Var(&p.lon, "lon", 0, "longitude of a PFDS point lookup, used when -precip is empty")
	return p
}

func (p *precipFlags) source(client *pfds.Client) (string, error) {
	if p.path != "" {
		return p.path, nil
	}
	if isSet(p.fs, "lat") && isSet(p.fs, "lon") {
		return client.PointURL(p.lat, p.lon), nil
	}
	return "", fmt.Errorf("%w: -precip or -lat/-lon is required", errUsage)
}

// sourceFlags select existing results from a CSV or from the run store.
type sourceFlags struct {
	results string
	units   string
	runID   string
}

func addSourceFlags(fs *flag.FlagSet, cfg *config.Config) *sourceFlags {
	s := &sourceFlags{}
	fs.StringVar(&s.results, "results", "", "existing results CSV")
	fs.StringVar(&s.units, "results-units", string(cfg.OutputUnits), "units of the -results CSV (metric or imperial)")
	fs.StringVar(&s.runID, "run-id", "", "stored run to load instead of -results (requires -store)")
	return s
}

func (s *sourceFlags) load(ctx context.Context, store *sqlite.Store) (*domain.ResultsTable, error) {
	switch {
	case s.results != "" && s.runID != "":
		return nil, fmt.Errorf("%w: -results and -run-id are exclusive", errUsage)
	case s.results != "":
		units, err := domain.ParseUnitSystem(s.units)
		if err != nil {
			return nil, err
		}
		return csvfile.ReadResultsFile(s.results, units)
	case s.runID != "":
		if store == nil {
			return nil, fmt.Errorf("%w: -run-id requires -store", errUsage)
		}
		return store.LoadRun(ctx, s.runID)
	default:
		return nil, fmt.Errorf("%w: -results or -run-id is required", errUsage)
	}
}

// engineFlags override the engine settings taken from the environment.
func addEngineFlags(fs *flag.FlagSet, cfg *config.Config) (imperial *bool) {
	imperial = fs.Bool("imperial", cfg.OutputUnits == domain.UnitsImperial, "report acres, ft and cfs instead of km², m and m³/s")
	fs.StringVar(&cfg.UnitName, "unit", cfg.UnitName, `linear unit of the catchment data, e.g. "Foot_US" or "Meter"`)
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "reject catchment records with unusable numeric fields")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of parallel workers")
	fs.StringVar(&cfg.PourPointField, "pour-point-field", cfg.PourPointField, "pour point identifier column")
	return imperial
}

func addRerunUnitsFlag(fs *flag.FlagSet) *string {
	return fs.String("units", "", "units of the rerun output (metric or imperial); empty keeps the source table's units")
}

// rerunOptions builds engine options for a rerun converted to units, when set.
func rerunOptions(cfg *config.Config, logger *slog.Logger, units string) (pipeline.Options, error) {
	opts := pipeline.OptionsFromConfig(cfg, logger)
	if units == "" {
		return opts, nil
	}
	u, err := domain.ParseUnitSystem(units)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("%w: -units: %w", errUsage, err)
	}
	opts.RerunUnits = u
	return opts, nil
}

func applyUnits(cfg *config.Config, imperial bool) {
	cfg.OutputUnits = domain.UnitsMetric
	if imperial {
		cfg.OutputUnits = domain.UnitsImperial
	}
}

func runCommand(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}

	fs := flag.NewFlagSet("peakflow run", flag.ContinueOnError)
	catchmentsPath := fs.String("catchments", "", "catchment CSV (id, area_upstream, avg_slope, avg_cn, max_fl)")
	out := fs.String("out", "-", `results CSV, "-" for stdout`)
	storePath := fs.String("store", "", "also save the run to this SQLite database")
	publish := fs.Bool("publish", false, "also publish result rows to Kafka (KAFKA_BROKERS, KAFKA_RESULTS_TOPIC)")
	precip := addPrecipFlags(fs)
	imperial := addEngineFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if *catchmentsPath == "" {
		fs.Usage()
		return exitFailure
	}
	applyUnits(cfg, *imperial)
	if *publish {
		cfg.KafkaEnabled = true
	}

	s, err := newSession(cfg)
	if err != nil {
		return fail(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := precip.source(s.pfds)
	if err != nil {
		return fail(err)
	}
	table, err := s.loader.Load(ctx, src, cfg.Precip)
	if err != nil {
		return fail(err)
	}
	catchments, err := csvfile.ReadCatchmentsFile(*catchmentsPath, cfg.PourPointField)
	if err != nil {
		return fail(err)
	}

	orch := pipeline.New(pipeline.OptionsFromConfig(cfg, s.logger), s.logger, s.metrics)
	results, err := orch.Run(ctx, catchments, table)
	var batchErr *pipeline.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return fail(err)
	}

	if err := writeTable(*out, results); err != nil {
		return fail(err)
	}
	if err := s.persist(ctx, *storePath, *publish, results); err != nil {
		return fail(err)
	}

	rejected := 0
	if batchErr != nil {
		rejected = len(batchErr.Errors)
		for _, rec := range batchErr.Records() {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", rec)
		}
	}
	printSummary(summaryWriter(*out), results, len(catchments), rejected)
	if rejected > 0 {
		return exitRejected
	}
	return exitOK
}

func rerunCommand(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}

	fs := flag.NewFlagSet("peakflow rerun", flag.ContinueOnError)
	out := fs.String("out", "-", `results CSV, "-" for stdout`)
	storePath := fs.String("store", "", "SQLite database for -run-id; the rerun is saved there too")
	name := fs.String("scenario", "", "scenario label recorded on the rerun")
	publish := fs.Bool("publish", false, "also publish result rows to Kafka")
	units := addRerunUnitsFlag(fs)
	source := addSourceFlags(fs, cfg)
	precip := addPrecipFlags(fs)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of parallel workers")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if *publish {
		cfg.KafkaEnabled = true
	}

	s, err := newSession(cfg)
	if err != nil {
		return fail(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(*storePath)
	if err != nil {
		return fail(err)
	}
	if store != nil {
		defer store.Close()
	}
	existing, err := source.load(ctx, store)
	if err != nil {
		return fail(err)
	}
	src, err := precip.source(s.pfds)
	if err != nil {
		return fail(err)
	}
	table, err := s.loader.Load(ctx, src, cfg.Precip)
	if err != nil {
		return fail(err)
	}

	opts, err := rerunOptions(cfg, s.logger, *units)
	if err != nil {
		return fail(err)
	}
	orch := pipeline.New(opts, s.logger, s.metrics)
	var results *domain.ResultsTable
	if *name != "" {
		tables, err := orch.RerunScenarios(ctx, existing, []pipeline.NamedPrecipitation{{Name: *name, Table: table}})
		if err != nil {
			return fail(err)
		}
		results = tables[0]
	} else if results, err = orch.Rerun(ctx, existing, table); err != nil {
		return fail(err)
	}

	if err := writeTable(*out, results); err != nil {
		return fail(err)
	}
	if err := s.persistTo(ctx, store, *publish, results); err != nil {
		return fail(err)
	}
	printSummary(summaryWriter(*out), results, len(results.Rows), 0)
	return exitOK
}

func scenariosCommand(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}

	fs := flag.NewFlagSet("peakflow scenarios", flag.ContinueOnError)
	scenariosPath := fs.String("scenarios", cfg.ScenariosFile, "scenario YAML file")
	outDir := fs.String("out-dir", ".", "directory for one <scenario>.csv per scenario")
	storePath := fs.String("store", "", "SQLite database for -run-id; reruns are saved there too")
	publish := fs.Bool("publish", false, "also publish result rows to Kafka")
	units := addRerunUnitsFlag(fs)
	source := addSourceFlags(fs, cfg)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of parallel workers")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if *scenariosPath == "" {
		return fail(fmt.Errorf("%w: -scenarios is required", errUsage))
	}
	if *publish {
		cfg.KafkaEnabled = true
	}

	s, err := newSession(cfg)
	if err != nil {
		return fail(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, err := scenario.Load(*scenariosPath)
	if err != nil {
		return fail(err)
	}
	store, err := openStore(*storePath)
	if err != nil {
		return fail(err)
	}
	if store != nil {
		defer store.Close()
	}
	existing, err := source.load(ctx, store)
	if err != nil {
		return fail(err)
	}
	named, err := file.Resolve(ctx, s.loader, cfg.Precip)
	if err != nil {
		return fail(err)
	}

	opts, err := rerunOptions(cfg, s.logger, *units)
	if err != nil {
		return fail(err)
	}
	orch := pipeline.New(opts, s.logger, s.metrics)
	tables, err := orch.RerunScenarios(ctx, existing, named)
	if err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fail(err)
	}
	for _, t := range tables {
		path := filepath.Join(*outDir, t.Scenario+".csv")
		if err := csvfile.WriteResultsFile(path, t); err != nil {
			return fail(err)
		}
		if err := s.persistTo(ctx, store, *publish, t); err != nil {
			return fail(err)
		}
		printSummary(os.Stdout, t, len(t.Rows), 0)
		fmt.Printf("  written to   %s\n", path)
	}
	return exitOK
}

func openStore(path string) (*sqlite.Store, error) {
	if path == "" {
		return nil, nil
	}
	return sqlite.Open(path)
}

// persist saves t to the store at storePath, when given, and publishes it
// when publish is set.
func (s *session) persist(ctx context.Context, storePath string, publish bool, t *domain.ResultsTable) error {
	store, err := openStore(storePath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	return s.persistTo(ctx, store, publish, t)
}

func (s *session) persistTo(ctx context.Context, store *sqlite.Store, publish bool, t *domain.ResultsTable) error {
	if store != nil {
		if err := store.SaveRun(ctx, t); err != nil {
			return err
		}
		s.logger.Info("run saved", "run_id", t.RunID)
	}
	if !publish {
		return nil
	}
	w := kafkaadapter.NewWriter(s.cfg, s.logger, s.metrics)
	if err := w.PublishRun(ctx, t); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func writeTable(out string, t *domain.ResultsTable) error {
	if out == "" || out == "-" {
		return csvfile.WriteResults(os.Stdout, t)
	}
	return csvfile.WriteResultsFile(out, t)
}

// summaryWriter keeps the summary off stdout when stdout carries the CSV.
func summaryWriter(out string) *os.File {
	if out == "" || out == "-" {
		return os.Stderr
	}
	return os.Stdout
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
