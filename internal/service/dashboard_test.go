package service_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/gridwatch/faultmap/internal/metrics"
	"github.com/gridwatch/faultmap/internal/models"
	"github.com/gridwatch/faultmap/internal/normalizer"
	"github.com/gridwatch/faultmap/internal/service"
	"github.com/gridwatch/faultmap/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	records []models.RawRecord
	err     error
}

func (s *stubFetcher) Fetch(_ context.Context) ([]models.RawRecord, error) {
	return s.records, s.err
}

type stubNormalizer struct {
	rows []models.FaultRecord
	err  error
}

func (s *stubNormalizer) Normalize(_ []models.RawRecord) ([]models.FaultRecord, error) {
	return s.rows, s.err
}

func newService(
	t *testing.T,
	fetcher service.Fetcher,
	norm service.Normalizer,
	workers int,
) (*service.DashboardService, *mocks.Provider) {
	t.Helper()
	provider := mocks.NewProvider(t)
	svc := service.NewDashboardService(
		slog.Default(),
		fetcher,
		norm,
		provider,
		metrics.NewMetrics(prometheus.NewRegistry()),
		workers,
	)
	return svc, provider
}

func sampleRows() []models.FaultRecord {
	return []models.FaultRecord{
		{Postcode: "SW1A 1AA", Status: "Planned", StartTime: "t1", Reason: "maintenance"},
		{Postcode: "E1 6AN", Status: "Unplanned", StartTime: "t2", Reason: "cable fault"},
		{Postcode: "CB2 1TN", Status: "Planned", StartTime: "t3", Reason: "upgrade"},
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	raw := []models.RawRecord{{"recordid": "a"}}

	t.Run("filter All keeps every row in order", func(t *testing.T) {
		svc, provider := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: sampleRows()}, 1)

		provider.On("Geocode", ctx, "SW1A 1AA").
			Return(&models.Coordinates{Latitude: 51.5, Longitude: -0.14}, nil).Once()
		provider.On("Geocode", ctx, "E1 6AN").
			Return(&models.Coordinates{Latitude: 51.52, Longitude: -0.07}, nil).Once()
		provider.On("Geocode", ctx, "CB2 1TN").
			Return(&models.Coordinates{Latitude: 52.2, Longitude: 0.12}, nil).Once()

		snapshot := svc.Refresh(ctx, service.StatusAll)

		require.Len(t, snapshot.Rows, 3)
		assert.Equal(t, "SW1A 1AA", snapshot.Rows[0].Postcode)
		assert.Equal(t, "E1 6AN", snapshot.Rows[1].Postcode)
		assert.Equal(t, "CB2 1TN", snapshot.Rows[2].Postcode)
		assert.Empty(t, snapshot.Message)
	})

	t.Run("filter by exact status match", func(t *testing.T) {
		svc, provider := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: sampleRows()}, 1)

		provider.On("Geocode", ctx, "SW1A 1AA").
			Return(&models.Coordinates{Latitude: 51.5, Longitude: -0.14}, nil).Once()
		provider.On("Geocode", ctx, "CB2 1TN").
			Return(&models.Coordinates{Latitude: 52.2, Longitude: 0.12}, nil).Once()

		snapshot := svc.Refresh(ctx, service.StatusPlanned)

		require.Len(t, snapshot.Rows, 2)
		for _, row := range snapshot.Rows {
			assert.Equal(t, "Planned", row.Status)
		}
		provider.AssertNotCalled(t, "Geocode", ctx, "E1 6AN")
	})

	t.Run("unresolved records are dropped without affecting others", func(t *testing.T) {
		svc, provider := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: sampleRows()}, 1)

		provider.On("Geocode", ctx, "SW1A 1AA").
			Return(&models.Coordinates{Latitude: 51.5, Longitude: -0.14}, nil).Once()
		provider.On("Geocode", ctx, "E1 6AN").Return(nil, assert.AnError).Once()
		provider.On("Geocode", ctx, "CB2 1TN").
			Return(&models.Coordinates{Latitude: 52.2, Longitude: 0.12}, nil).Once()

		snapshot := svc.Refresh(ctx, service.StatusAll)

		require.Len(t, snapshot.Rows, 2)
		assert.Equal(t, "SW1A 1AA", snapshot.Rows[0].Postcode)
		assert.Equal(t, "CB2 1TN", snapshot.Rows[1].Postcode)
	})

	t.Run("record without postcode never reaches the geocoder", func(t *testing.T) {
		rows := []models.FaultRecord{
			{Postcode: "", Status: "Planned", StartTime: "t1", Reason: "r1"},
			{Postcode: "SW1A 1AA", Status: "Planned", StartTime: "t2", Reason: "r2"},
		}
		svc, provider := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: rows}, 1)

		provider.On("Geocode", ctx, "SW1A 1AA").
			Return(&models.Coordinates{Latitude: 51.5, Longitude: -0.14}, nil).Once()

		snapshot := svc.Refresh(ctx, service.StatusAll)

		require.Len(t, snapshot.Rows, 1)
		assert.Equal(t, "SW1A 1AA", snapshot.Rows[0].Postcode)
	})

	t.Run("upstream failure degrades to empty snapshot", func(t *testing.T) {
		svc, _ := newService(t, &stubFetcher{err: assert.AnError}, &stubNormalizer{}, 1)

		snapshot := svc.Refresh(ctx, service.StatusAll)

		assert.Empty(t, snapshot.Rows)
		assert.Equal(t, service.NoDataMessage, snapshot.Message)
	})

	t.Run("schema mismatch degrades to empty snapshot", func(t *testing.T) {
		schemaErr := &normalizer.SchemaError{Schema: "v1-underscore", Missing: []string{"fields_mainmessage"}}
		svc, _ := newService(t, &stubFetcher{records: raw}, &stubNormalizer{err: schemaErr}, 1)

		snapshot := svc.Refresh(ctx, service.StatusAll)

		assert.Empty(t, snapshot.Rows)
		assert.Equal(t, service.NoDataMessage, snapshot.Message)
	})

	t.Run("zero records degrades to empty snapshot", func(t *testing.T) {
		svc, _ := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: []models.FaultRecord{}}, 1)

		snapshot := svc.Refresh(ctx, service.StatusAll)

		assert.Empty(t, snapshot.Rows)
		assert.Equal(t, service.NoDataMessage, snapshot.Message)
	})

	t.Run("worker pool preserves row order", func(t *testing.T) {
		svc, provider := newService(t, &stubFetcher{records: raw}, &stubNormalizer{rows: sampleRows()}, 3)

		provider.On("Geocode", ctx, "SW1A 1AA").
			Return(&models.Coordinates{Latitude: 51.5, Longitude: -0.14}, nil).Once()
		provider.On("Geocode", ctx, "E1 6AN").
			Return(&models.Coordinates{Latitude: 51.52, Longitude: -0.07}, nil).Once()
		provider.On("Geocode", ctx, "CB2 1TN").
			Return(&models.Coordinates{Latitude: 52.2, Longitude: 0.12}, nil).Once()

		snapshot := svc.Refresh(ctx, service.StatusAll)

		require.Len(t, snapshot.Rows, 3)
		assert.Equal(t, "SW1A 1AA", snapshot.Rows[0].Postcode)
		assert.Equal(t, "E1 6AN", snapshot.Rows[1].Postcode)
		assert.Equal(t, "CB2 1TN", snapshot.Rows[2].Postcode)
	})
}

func TestValidStatus(t *testing.T) {
	assert.True(t, service.ValidStatus(service.StatusAll))
	assert.True(t, service.ValidStatus(service.StatusPlanned))
	assert.True(t, service.ValidStatus(service.StatusUnplanned))
	assert.False(t, service.ValidStatus("Finished"))
	assert.False(t, service.ValidStatus(""))
}
