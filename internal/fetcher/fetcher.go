package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gridwatch/faultmap/internal/models"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves raw fault records from the upstream opendatasoft API.
// Every call issues exactly one GET request; responses are never cached.
type Fetcher struct {
	client  HTTPClient   // HTTP client for making requests
	baseURL string       // Records search endpoint
	dataset string       // Dataset identifier passed upstream
	rows    int          // Row limit per fetch
	log     *slog.Logger // Logger for logging operations
}

// searchResponse is the envelope returned by the records search endpoint.
type searchResponse struct {
	Records []models.RawRecord `json:"records"`
}

// ErrUpstreamUnavailable is returned when the fault API answers with a
// non-success status. The caller should treat it as "no data available".
var ErrUpstreamUnavailable = errors.New("fault API unavailable")

// New creates a Fetcher against the given records search endpoint.
func New(baseURL, dataset string, rows int, log *slog.Logger) *Fetcher {
	const timeout = 10
	return &Fetcher{
		client:  &http.Client{Timeout: timeout * time.Second},
		baseURL: baseURL,
		dataset: dataset,
		rows:    rows,
		log:     log,
	}
}

// NewWithClient creates a Fetcher with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewWithClient(client HTTPClient, baseURL, dataset string, rows int, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		baseURL: baseURL,
		dataset: dataset,
		rows:    rows,
		log:     log,
	}
}

// Fetch issues one GET against the fault API and returns the parsed raw
// records. A non-success status maps to ErrUpstreamUnavailable; a response
// with zero records returns an empty slice and no error.
func (f *Fetcher) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	reqURL, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("dataset", f.dataset)
	query.Set("q", "")
	query.Set("rows", strconv.Itoa(f.rows))
	reqURL.RawQuery = query.Encode()

	f.log.DebugContext(ctx, "Fetching live faults", "url", reqURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute fetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		f.log.ErrorContext(ctx, "Fault API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed searchResponse
	if err = json.Unmarshal(body, &parsed); err != nil {
		f.log.ErrorContext(ctx, "Failed to parse fault API response", "error", err)
		return nil, fmt.Errorf("%w: malformed response: %w", ErrUpstreamUnavailable, err)
	}

	if len(parsed.Records) == 0 {
		f.log.InfoContext(ctx, "No records found in API response")
		return []models.RawRecord{}, nil
	}

	f.log.DebugContext(ctx, "Fetched fault records", "count", len(parsed.Records))

	return parsed.Records, nil
}
