package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gridwatch/faultmap/internal/models"
	"golang.org/x/time/rate"
)

// PostcodesIOBaseURL -- postcodes.io API base URL.
const PostcodesIOBaseURL = "https://api.postcodes.io/postcodes"

// PostcodesIOProvider implements geocoding using the postcodes.io API.
// The service only covers UK postcodes, so no country qualifier is needed.
type PostcodesIOProvider struct {
	client  HTTPClient    // HTTP client for making requests
	baseURL string        // Base URL for the postcodes.io API
	log     *slog.Logger  // Logger for logging operations
	limiter *rate.Limiter // Rate limiter
}

// ErrPostcodesIOInvalidResult is returned when the API answers without a result payload.
var ErrPostcodesIOInvalidResult = errors.New("postcodes.io API returned no result payload")

// postcodes.io API response (simplified for geocoding use-case).
type postcodesIOResponse struct {
	Result *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

// NewPostcodesIOProvider creates a new postcodes.io geocoding provider.
func NewPostcodesIOProvider(rateLimit int, log *slog.Logger) *PostcodesIOProvider {
	const timeout = 10

	return &PostcodesIOProvider{
		client: &http.Client{
			Timeout: timeout * time.Second,
		},
		baseURL: PostcodesIOBaseURL,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
	}
}

// NewPostcodesIOProviderWithClient allows injecting custom HTTP client.
func NewPostcodesIOProviderWithClient(
	client HTTPClient,
	limiter *rate.Limiter,
	log *slog.Logger,
) *PostcodesIOProvider {
	return &PostcodesIOProvider{
		client:  client,
		baseURL: PostcodesIOBaseURL,
		log:     log,
		limiter: limiter,
	}
}

// Geocode converts a UK postcode into geographic coordinates using the
// postcodes.io API. An unknown postcode maps to ErrNoMatch.
func (pp *PostcodesIOProvider) Geocode(
	ctx context.Context,
	postcode string,
) (*models.Coordinates, error) {
	// Rate limit
	if err := pp.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	if postcode == "" {
		return nil, ErrEmptyPostcode
	}

	pp.log.DebugContext(ctx, "Geocoding using postcodes.io", "postcode", postcode)

	reqURL := pp.baseURL + "/" + url.PathEscape(postcode)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := pp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute geocoding request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, ErrNoMatch
	default:
		body, _ := io.ReadAll(resp.Body)
		pp.log.ErrorContext(ctx, "postcodes.io API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("postcodes.io API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result postcodesIOResponse
	if err = json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode postcodes.io response: %w", err)
	}

	if result.Result == nil || result.Result.Latitude == nil || result.Result.Longitude == nil {
		// Terminated postcodes resolve without coordinates.
		return nil, ErrPostcodesIOInvalidResult
	}

	lat := *result.Result.Latitude
	lon := *result.Result.Longitude

	pp.log.InfoContext(ctx, "postcodes.io found result", "postcode", postcode, "lat", lat, "lon", lon)

	return &models.Coordinates{
		Latitude:  lat,
		Longitude: lon,
	}, nil
}
