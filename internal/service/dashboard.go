package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gridwatch/faultmap/internal/geocoding"
	"github.com/gridwatch/faultmap/internal/metrics"
	"github.com/gridwatch/faultmap/internal/models"
	"github.com/gridwatch/faultmap/internal/normalizer"
)

// Status filter values accepted by the dashboard.
const (
	StatusAll       = "All"
	StatusPlanned   = "Planned"
	StatusUnplanned = "Unplanned"
)

// NoDataMessage is surfaced to the end user whenever the pipeline produced
// no dataset, regardless of the underlying failure.
const NoDataMessage = "No data available."

// ValidStatus reports whether the value belongs to the fixed filter set.
func ValidStatus(status string) bool {
	return status == StatusAll || status == StatusPlanned || status == StatusUnplanned
}

// Fetcher retrieves raw fault records from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.RawRecord, error)
}

// Normalizer reshapes raw records into the canonical tabular form.
type Normalizer interface {
	Normalize(raw []models.RawRecord) ([]models.FaultRecord, error)
}

// Snapshot is one complete pipeline result handed to rendering. Rows only
// contains records whose postcode resolved to coordinates.
type Snapshot struct {
	Status      string                 `json:"status"`
	Rows        []models.GeocodedFault `json:"rows"`
	Message     string                 `json:"message,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// DashboardService runs the fetch, normalize, filter and geocode pipeline
// for the fault dashboard. Every call re-runs the whole pipeline; there is
// no incremental update.
type DashboardService struct {
	log        *slog.Logger       // Logger for logging service activities
	fetcher    Fetcher            // Upstream fault record source
	normalizer Normalizer         // Raw record normalizer
	geocoder   geocoding.Provider // Geocoding provider, usually cache-wrapped
	metrics    *metrics.Metrics   // Metrics for tracking service performance
	numWorkers int                // Number of concurrent workers for geocoding
}

// NewDashboardService creates a new instance of DashboardService. A worker
// count of 1 keeps geocoding strictly sequential.
func NewDashboardService(
	log *slog.Logger,
	fetcher Fetcher,
	normalizer Normalizer,
	geocoder geocoding.Provider,
	appMetrics *metrics.Metrics,
	numWorkers int,
) *DashboardService {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &DashboardService{
		log:        log,
		fetcher:    fetcher,
		normalizer: normalizer,
		geocoder:   geocoder,
		metrics:    appMetrics,
		numWorkers: numWorkers,
	}
}

// Refresh runs one full pipeline pass for the given status filter. Upstream
// and schema failures degrade to an empty snapshot carrying NoDataMessage;
// they are never raised to the caller.
func (ds *DashboardService) Refresh(ctx context.Context, status string) Snapshot {
	snapshot := Snapshot{Status: status, Rows: []models.GeocodedFault{}, GeneratedAt: time.Now().UTC()}

	raw, err := ds.fetcher.Fetch(ctx)
	if err != nil {
		ds.log.ErrorContext(ctx, "Failed to fetch fault records", "error", err)
		ds.metrics.PipelineRuns.WithLabelValues("upstream_error").Inc()
		snapshot.Message = NoDataMessage
		return snapshot
	}

	rows, err := ds.normalizer.Normalize(raw)
	if err != nil {
		var schemaErr *normalizer.SchemaError
		if errors.As(err, &schemaErr) {
			ds.log.WarnContext(ctx, "Raw records did not match any schema",
				"closest", schemaErr.Schema, "missing", schemaErr.Missing)
		} else {
			ds.log.ErrorContext(ctx, "Failed to normalize fault records", "error", err)
		}
		ds.metrics.PipelineRuns.WithLabelValues("schema_error").Inc()
		snapshot.Message = NoDataMessage
		return snapshot
	}

	if len(rows) == 0 {
		ds.metrics.PipelineRuns.WithLabelValues("empty").Inc()
		snapshot.Message = NoDataMessage
		return snapshot
	}

	filtered := filterByStatus(rows, status)

	snapshot.Rows = ds.geocodeAll(ctx, filtered)
	ds.metrics.PipelineRuns.WithLabelValues("success").Inc()

	ds.log.InfoContext(ctx, "Pipeline run finished",
		"status", status, "fetched", len(raw), "filtered", len(filtered), "resolved", len(snapshot.Rows))

	return snapshot
}

// filterByStatus keeps rows whose Status exactly equals the filter value.
// StatusAll passes every row through unchanged in order.
func filterByStatus(rows []models.FaultRecord, status string) []models.FaultRecord {
	if status == StatusAll {
		return rows
	}

	filtered := make([]models.FaultRecord, 0, len(rows))
	for _, row := range rows {
		if row.Status == status {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// geocodeAll resolves coordinates for each row and drops the unresolved
// ones. Row order is preserved regardless of the worker count.
func (ds *DashboardService) geocodeAll(ctx context.Context, rows []models.FaultRecord) []models.GeocodedFault {
	if len(rows) == 0 {
		return []models.GeocodedFault{}
	}

	coords := make([]*models.Coordinates, len(rows))
	jobs := make(chan int, len(rows))
	var wgr sync.WaitGroup

	for i := 1; i <= ds.numWorkers; i++ {
		wgr.Add(1)
		go ds.worker(ctx, i, &wgr, jobs, rows, coords)
	}

	for idx := range rows {
		jobs <- idx
	}
	close(jobs)

	wgr.Wait()

	resolved := make([]models.GeocodedFault, 0, len(rows))
	for idx, row := range rows {
		if coords[idx] == nil {
			continue
		}
		resolved = append(resolved, models.GeocodedFault{
			FaultRecord: row,
			Latitude:    coords[idx].Latitude,
			Longitude:   coords[idx].Longitude,
		})
	}
	return resolved
}

// worker consumes row indexes from the jobs channel and writes resolved
// coordinates into its slot of the results slice. A failed lookup only
// affects that row.
func (ds *DashboardService) worker(
	ctx context.Context,
	idx int,
	wg *sync.WaitGroup,
	jobs <-chan int,
	rows []models.FaultRecord,
	coords []*models.Coordinates,
) {
	defer wg.Done()
	for job := range jobs {
		row := rows[job]
		if row.Postcode == "" {
			ds.metrics.RecordsGeocoded.WithLabelValues("skipped").Inc()
			continue
		}

		result, err := ds.geocoder.Geocode(ctx, row.Postcode)
		if err != nil {
			ds.log.DebugContext(ctx, "Failed to geocode record",
				"worker", idx, "postcode", row.Postcode, "error", err)
			ds.metrics.RecordsGeocoded.WithLabelValues("failure").Inc()
			continue
		}

		ds.metrics.RecordsGeocoded.WithLabelValues("success").Inc()
		coords[job] = result
	}
}
