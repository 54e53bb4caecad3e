package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// Config holds all settings, populated from environment variables. The CLI
// overrides individual fields from its flags after Load.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Precipitation table selection and conversion.
	Precip domain.PrecipOptions

	// UnitName is the linear unit of the reference dataset, e.g. "Foot_US".
	// Factors are used when it is empty or unrecognized.
	UnitName       string
	Factors        domain.ConversionFactors
	OutputUnits    domain.UnitSystem
	Strict         bool
	Workers        int
	PourPointField string

	StorePath         string
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaResultsTopic string

	ScenariosFile   string
	RerunSchedule   string
	PrecipCacheSize int

	// Remote precipitation tables (http/https sources).
	PFDSBaseURL string
	PFDSTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	precip, err := loadPrecipOptions()
	if err != nil {
		return nil, err
	}

	areaFactor, err := envFloat("AREA_CONV_FACTOR", domain.DefaultAreaFactor)
	if err != nil {
		return nil, err
	}
	lengthFactor, err := envFloat("LENGTH_CONV_FACTOR", domain.DefaultLengthFactor)
	if err != nil {
		return nil, err
	}

	imperial, err := envBool("OUTPUT_IMPERIAL", false)
	if err != nil {
		return nil, err
	}
	outputUnits := domain.UnitsMetric
	if imperial {
		outputUnits = domain.UnitsImperial
	}

	strict, err := envBool("STRICT_MODE", false)
	if err != nil {
		return nil, err
	}
	workers, err := envInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := envBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}
	cacheSize, err := envInt("PRECIP_CACHE_SIZE", 32)
	if err != nil {
		return nil, err
	}
	pfdsTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("PFDS_TIMEOUT", "30s"))
	if err != nil || pfdsTimeout <= 0 {
		return nil, errors.New("invalid PFDS_TIMEOUT")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Precip: precip,

		UnitName:       os.Getenv("UNIT_NAME"),
		Factors:        domain.ConversionFactors{Area: areaFactor, Length: lengthFactor},
		OutputUnits:    outputUnits,
		Strict:         strict,
		Workers:        workers,
		PourPointField: sharedcfg.EnvOrDefault("POUR_POINT_FIELD", domain.ColumnID),

		StorePath:         sharedcfg.EnvOrDefault("STORE_PATH", "peakflow.db"),
		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "peakflow-results"),

		ScenariosFile:   os.Getenv("SCENARIOS_FILE"),
		RerunSchedule:   os.Getenv("RERUN_SCHEDULE"),
		PrecipCacheSize: cacheSize,

		PFDSBaseURL: os.Getenv("PFDS_BASE_URL"),
		PFDSTimeout: pfdsTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. The CLI calls it again after
// applying flag overrides.
func (c *Config) Validate() error {
	if c.Precip.FreqMin > c.Precip.FreqMax {
		return fmt.Errorf("PRECIP_FREQ_MIN (%d) exceeds PRECIP_FREQ_MAX (%d)", c.Precip.FreqMin, c.Precip.FreqMax)
	}
	if c.Precip.RainfallAdjustment <= 0 {
		return errors.New("RAINFALL_ADJUSTMENT must be positive")
	}
	if c.Precip.UnitConversion <= 0 {
		return errors.New("PRECIP_UNIT_CONVERSION must be positive")
	}
	if c.Factors.Area <= 0 || c.Factors.Length <= 0 {
		return errors.New("AREA_CONV_FACTOR and LENGTH_CONV_FACTOR must be positive")
	}
	if c.Workers < 1 {
		return errors.New("WORKERS must be at least 1")
	}
	if c.PrecipCacheSize < 1 {
		return errors.New("PRECIP_CACHE_SIZE must be at least 1")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if strings.TrimSpace(c.KafkaResultsTopic) == "" {
			return errors.New("KAFKA_RESULTS_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if c.RerunSchedule != "" {
		if _, err := cron.ParseStandard(c.RerunSchedule); err != nil {
			return fmt.Errorf("invalid RERUN_SCHEDULE: %w", err)
		}
		if c.ScenariosFile == "" {
			return errors.New("RERUN_SCHEDULE requires SCENARIOS_FILE")
		}
	}
	return nil
}

func loadPrecipOptions() (domain.PrecipOptions, error) {
	opts := domain.DefaultPrecipOptions()

	format := strings.ToLower(sharedcfg.EnvOrDefault("PRECIP_FORMAT", opts.Format))
	if format != domain.FormatNOAA && format != domain.FormatNRCC {
		return opts, fmt.Errorf("invalid PRECIP_FORMAT %q: want %s or %s", format, domain.FormatNOAA, domain.FormatNRCC)
	}
	opts.Format = format
	opts.Duration = sharedcfg.EnvOrDefault("PRECIP_DURATION", opts.Duration)

	var err error
	if opts.SkipRows, err = envInt("PRECIP_SKIP_ROWS", opts.SkipRows); err != nil {
		return opts, err
	}
	if opts.SkipRows < 0 {
		return opts, errors.New("PRECIP_SKIP_ROWS must not be negative")
	}
	if opts.FreqMin, err = envInt("PRECIP_FREQ_MIN", opts.FreqMin); err != nil {
		return opts, err
	}
	if opts.FreqMax, err = envInt("PRECIP_FREQ_MAX", opts.FreqMax); err != nil {
		return opts, err
	}
	if opts.RainfallAdjustment, err = envFloat("RAINFALL_ADJUSTMENT", opts.RainfallAdjustment); err != nil {
		return opts, err
	}
	if opts.UnitConversion, err = envFloat("PRECIP_UNIT_CONVERSION", opts.UnitConversion); err != nil {
		return opts, err
	}
	return opts, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
