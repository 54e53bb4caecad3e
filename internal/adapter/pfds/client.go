// Package pfds downloads precipitation frequency tables from the NOAA
// Precipitation Frequency Data Server.
package pfds

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the PFDS CSV endpoint for point estimates.
const DefaultBaseURL = "https://hdsc.nws.noaa.gov/cgi-bin/hdsc/new/fe_text_mean.csv"

// StatusError reports a non-200 response from the data server. The response
// body is logged, never carried in the error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pfds error: status %d", e.Code)
}

// Client fetches precipitation frequency CSVs over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a PFDS client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// PointURL returns the URL of the partial-duration depth table, in inches,
// for a latitude and longitude.
func (c *Client) PointURL(lat, lon float64) string {
	params := url.Values{
		"lat":    {strconv.FormatFloat(lat, 'f', 4, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', 4, 64)},
		"data":   {"depth"},
		"units":  {"english"},
		"series": {"pds"},
	}
	return c.baseURL + "?" + params.Encode()
}

// Fetch downloads the table at rawURL. The caller closes the body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("precipitation table request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("precipitation table request failed", "url", rawURL, "status", resp.StatusCode, "body", string(body))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	c.logger.Debug("precipitation table fetched", "url", rawURL, "duration", time.Since(start))
	return resp.Body, nil
}
