package geocoding

import (
	"context"
	"errors"

	"github.com/gridwatch/faultmap/internal/models"
)

// Provider is an interface that defines a method for geocoding a postcode.
// The Geocode method takes a context and a postcode string as input,
// and returns the corresponding coordinates and an error if any occurs.
type Provider interface {
	Geocode(ctx context.Context, postcode string) (*models.Coordinates, error)
}

// ErrNoMatch is returned when the geocoding service answered but found no
// location for the postcode. It is distinct from transient failures such as
// network errors or timeouts, so callers can decide retry policy.
var ErrNoMatch = errors.New("no match for postcode")

// ErrEmptyPostcode is returned for an empty postcode without any lookup.
var ErrEmptyPostcode = errors.New("empty postcode")
