package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridwatch/faultmap/internal/metrics"
	"github.com/gridwatch/faultmap/internal/models"
	"github.com/gridwatch/faultmap/internal/repository"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a Provider with a cache consulted before any network
// call. Resolved postcodes are cached for the life of the store; failed
// lookups are cached as negative entries so a repeat lookup does not issue a
// second network call. Negative entries expire after negativeTTL, or never
// when negativeTTL is zero.
type CachedProvider struct {
	inner        Provider
	store        repository.Store
	providerName string // Provider name for metrics labeling
	timeout      time.Duration
	negativeTTL  time.Duration
	clock        clockwork.Clock
	metrics      *metrics.Metrics
	log          *slog.Logger
}

// NewCachedProvider creates a cache decorator around a geocoding provider.
func NewCachedProvider(
	inner Provider,
	store repository.Store,
	providerName string,
	timeout time.Duration,
	negativeTTL time.Duration,
	appMetrics *metrics.Metrics,
	log *slog.Logger,
) *CachedProvider {
	return &CachedProvider{
		inner:        inner,
		store:        store,
		providerName: providerName,
		timeout:      timeout,
		negativeTTL:  negativeTTL,
		clock:        clockwork.NewRealClock(),
		metrics:      appMetrics,
		log:          log,
	}
}

// NewCachedProviderWithClock creates a CachedProvider with an injected clock.
// Useful for testing negative entry expiry.
func NewCachedProviderWithClock(
	inner Provider,
	store repository.Store,
	providerName string,
	timeout time.Duration,
	negativeTTL time.Duration,
	clock clockwork.Clock,
	appMetrics *metrics.Metrics,
	log *slog.Logger,
) *CachedProvider {
	cp := NewCachedProvider(inner, store, providerName, timeout, negativeTTL, appMetrics, log)
	cp.clock = clock
	return cp
}

// Geocode resolves a postcode, consulting the cache first. An empty postcode
// short-circuits to ErrEmptyPostcode without a cache write.
func (cp *CachedProvider) Geocode(ctx context.Context, postcode string) (*models.Coordinates, error) {
	if postcode == "" {
		return nil, ErrEmptyPostcode
	}

	entry, found, err := cp.store.Get(ctx, postcode)
	if err != nil {
		// A broken store degrades to a plain lookup.
		cp.log.WarnContext(ctx, "Geocode cache read failed", "postcode", postcode, "error", err)
		found = false
	}

	if found && cp.usable(entry) {
		cp.metrics.CacheLookups.WithLabelValues("hit").Inc()
		if !entry.Resolved() {
			return nil, ErrNoMatch
		}
		coords := *entry.Coords
		return &coords, nil
	}

	cp.metrics.CacheLookups.WithLabelValues("miss").Inc()

	lookupCtx, cancel := context.WithTimeout(ctx, cp.timeout)
	defer cancel()

	startTime := cp.clock.Now()
	coords, err := cp.inner.Geocode(lookupCtx, postcode)
	cp.metrics.RequestSeconds.WithLabelValues(cp.providerName).Observe(cp.clock.Since(startTime).Seconds())

	if err != nil {
		cp.storeEntry(ctx, postcode, repository.CacheEntry{StoredAt: cp.clock.Now()})

		if errors.Is(err, ErrNoMatch) {
			return nil, ErrNoMatch
		}

		cp.metrics.APIErrors.Inc()
		return nil, fmt.Errorf("geocode lookup failed: %w", err)
	}

	cp.storeEntry(ctx, postcode, repository.CacheEntry{Coords: coords, StoredAt: cp.clock.Now()})

	result := *coords
	return &result, nil
}

// usable reports whether a cached entry may still be served. Resolved
// entries never expire; negative entries expire after negativeTTL.
func (cp *CachedProvider) usable(entry repository.CacheEntry) bool {
	if entry.Resolved() {
		return true
	}
	if cp.negativeTTL == 0 {
		return true
	}
	return cp.clock.Since(entry.StoredAt) < cp.negativeTTL
}

func (cp *CachedProvider) storeEntry(ctx context.Context, postcode string, entry repository.CacheEntry) {
	if err := cp.store.Put(ctx, postcode, entry); err != nil {
		cp.log.WarnContext(ctx, "Geocode cache write failed", "postcode", postcode, "error", err)
	}
}
