package geocoding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridwatch/faultmap/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It is used to interact with the
// Google Maps geocoding services.
type GoogleProvider struct {
	client  GoogleAPIClient // client is the Google Maps API client
	country string          // country qualifier appended to the query
	log     *slog.Logger    // log is the logger for logging operations
}

type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// NewGoogleProvider initializes a new GoogleProvider with the given API client,
// country qualifier and logger.
func NewGoogleProvider(client GoogleAPIClient, country string, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, country: country, log: log}
}

// Geocode takes a context and a postcode string as input, and returns the
// geographical coordinates of the postcode using the Google Maps Geocoding API.
// The country qualifier is appended to the address to bias resolution.
// An empty response maps to ErrNoMatch.
func (gp *GoogleProvider) Geocode(ctx context.Context, postcode string) (*models.Coordinates, error) {
	if postcode == "" {
		return nil, ErrEmptyPostcode
	}

	address := postcode
	if gp.country != "" {
		address = postcode + ", " + gp.country
	}

	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "postcode", postcode, "address", address)

	req := maps.GeocodingRequest{Address: address}
	geocodeResponse, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode postcode: %w", err)
	}

	if len(geocodeResponse) == 0 {
		return nil, ErrNoMatch
	}
	coords := geocodeResponse[0].Geometry.Location

	return &models.Coordinates{Latitude: coords.Lat, Longitude: coords.Lng}, nil
}
