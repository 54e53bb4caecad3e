// Package scenario reads what-if scenario definitions: named precipitation
// tables, each with its own rainfall adjustment, evaluated against a stored
// run.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/pipeline"
)

// Format is a precipitation table format name as written in the file.
type Format string

// UnmarshalYAML accepts a known format name in any case.
func (f *Format) UnmarshalYAML(value *yaml.Node) error {
	v := Format(strings.ToLower(strings.TrimSpace(value.Value)))
	switch v {
	case "", domain.FormatNOAA, domain.FormatNRCC:
		*f = v
		return nil
	default:
		return fmt.Errorf("scenario.Format: unknown format %q at line %d", value.Value, value.Line)
	}
}

// Scenario is one named precipitation table. Zero fields inherit the base
// precipitation options.
type Scenario struct {
	Name               string  `yaml:"name"`
	Precip             string  `yaml:"precip"`
	Format             Format  `yaml:"format"`
	Duration           string  `yaml:"duration"`
	RainfallAdjustment float64 `yaml:"rainfallAdjustment"`
	FreqMin            int     `yaml:"freqMin"`
	FreqMax            int     `yaml:"freqMax"`
}

// File is the top-level scenario document.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// PrecipLoader loads a precipitation table from a path.
type PrecipLoader interface {
	Load(ctx context.Context, path string, opts domain.PrecipOptions) (domain.PrecipitationTable, error)
}

// Load reads and validates a scenario file. Relative precipitation paths are
// resolved against the file's directory; http(s) URLs are left as written.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range f.Scenarios {
		p := f.Scenarios[i].Precip
		if !isURL(p) && !filepath.IsAbs(p) {
			f.Scenarios[i].Precip = filepath.Join(dir, f.Scenarios[i].Precip)
		}
	}
	return f, nil
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that the file names at least one scenario, names are
// unique and every scenario points at a precipitation table.
func (f *File) Validate() error {
	if len(f.Scenarios) == 0 {
		return errors.New("no scenarios defined")
	}
	seen := make(map[string]struct{}, len(f.Scenarios))
	for i, s := range f.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario %d: name is required", i)
		}
		if strings.ContainsAny(s.Name, `/\`) {
			return fmt.Errorf("scenario %q: name must not contain path separators", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate scenario %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Precip == "" {
			return fmt.Errorf("scenario %q: precip is required", s.Name)
		}
		if s.RainfallAdjustment < 0 {
			return fmt.Errorf("scenario %q: rainfallAdjustment must not be negative", s.Name)
		}
	}
	return nil
}

// Lookup returns the scenario with the given name.
func (f *File) Lookup(name string) (Scenario, bool) {
	for _, s := range f.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Options overlays the scenario's settings on base.
func (s Scenario) Options(base domain.PrecipOptions) domain.PrecipOptions {
	opts := base
	if s.Format != "" {
		opts.Format = string(s.Format)
	}
	if s.Duration != "" {
		opts.Duration = s.Duration
	}
	if s.RainfallAdjustment > 0 {
		opts.RainfallAdjustment = s.RainfallAdjustment
	}
	if s.FreqMin > 0 {
		opts.FreqMin = s.FreqMin
	}
	if s.FreqMax > 0 {
		opts.FreqMax = s.FreqMax
	}
	return opts
}

// Resolve loads the precipitation table of every scenario, in file order.
func (f *File) Resolve(ctx context.Context, loader PrecipLoader, base domain.PrecipOptions) ([]pipeline.NamedPrecipitation, error) {
	out := make([]pipeline.NamedPrecipitation, 0, len(f.Scenarios))
	for _, s := range f.Scenarios {
		table, err := loader.Load(ctx, s.Precip, s.Options(base))
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		out = append(out, pipeline.NamedPrecipitation{Name: s.Name, Table: table})
	}
	return out, nil
}
