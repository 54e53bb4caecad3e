// Package csvfile reads and writes the CSV forms of precipitation tables,
// catchment records and results tables.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// Fetcher retrieves a remote precipitation table.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Loader reads precipitation tables from local files, or from http(s) URLs
// when a Fetcher is configured.
type Loader struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewLoader creates a Loader. Pass a nil fetcher to disable remote tables.
func NewLoader(fetcher Fetcher, logger *slog.Logger) *Loader {
	return &Loader{fetcher: fetcher, logger: logger}
}

// Load reads the table at path and selects its depths according to opts.
func (l *Loader) Load(ctx context.Context, path string, opts domain.PrecipOptions) (domain.PrecipitationTable, error) {
	rc, err := l.open(ctx, path)
	if err != nil {
		return domain.PrecipitationTable{}, err
	}
	defer rc.Close()

	records, err := ReadRecords(rc)
	if err != nil {
		return domain.PrecipitationTable{}, fmt.Errorf("read precipitation table %s: %w", path, err)
	}
	table, err := domain.ParsePrecipitation(path, records, opts)
	if err != nil {
		return domain.PrecipitationTable{}, err
	}

	l.logger.Info("precipitation table loaded",
		"source", path,
		"format", opts.Format,
		"duration", table.Duration,
		"frequencies", table.Len(),
		"rainfall_adjustment", opts.RainfallAdjustment,
	)
	return table, nil
}

func (l *Loader) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if isURL(path) {
		if l.fetcher == nil {
			return nil, fmt.Errorf("remote precipitation table %s: no fetcher configured", path)
		}
		return l.fetcher.Fetch(ctx, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open precipitation table: %w", err)
	}
	return f, nil
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// ReadRecords reads every line of a CSV document as a record. Rows may have
// differing numbers of fields, as the metadata block of a NOAA table does,
// and blank lines are kept as empty records because the table formats count
// them when skipping metadata rows.
func ReadRecords(r io.Reader) ([][]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records [][]string
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			records = append(records, []string{})
			continue
		}
		cr := csv.NewReader(strings.NewReader(line))
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		cr.TrimLeadingSpace = true
		rec, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

const maxLineBytes = 1 << 20

// ReadRecordsFile reads every line of a CSV file as a record.
func ReadRecordsFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}
