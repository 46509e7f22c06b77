package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoPoint(lat, lon float64, country, city string) *models.GeoPoint {
	return &models.GeoPoint{Latitude: &lat, Longitude: &lon, CountryCode: country, City: city}
}

var (
	newYork = geoPoint(40.7128, -74.0060, "US", "New York")
	sydney  = geoPoint(-33.8688, 151.2093, "AU", "Sydney")
	// about 2 km north of newYork
	twoKmNorth = geoPoint(40.7308, -74.0060, "US", "New York")
)

func newAnomalyService() (*services.AnomalyService, *services.MockLoginEventRepository, *services.MockAnomalyRepository) {
	events := &services.MockLoginEventRepository{}
	anomalies := &services.MockAnomalyRepository{}
	svc := services.NewAnomalyService(events, anomalies, services.DefaultAnomalyConfig(), testLogger())
	return svc, events, anomalies
}

func TestHaversineKm(t *testing.T) {
	d := services.HaversineKm(*newYork.Latitude, *newYork.Longitude, *sydney.Latitude, *sydney.Longitude)
	assert.InDelta(t, 15989, d, 50)

	assert.InDelta(t, 0, services.HaversineKm(10, 10, 10, 10), 1e-9)
}

func TestTravelSeverity(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		elapsed  time.Duration
		want     models.AnomalySeverity
		ok       bool
	}{
		{"under one km", 0.5, 0, "", false},
		{"plausible flight", 900, time.Hour, "", false},
		{"medium", 950, time.Hour, models.AnomalyMedium, true},
		{"high", 2000, time.Hour, models.AnomalyHigh, true},
		{"critical", 6000, time.Hour, models.AnomalyCritical, true},
		{"zero elapsed", 5, 0, models.AnomalyCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, ok := services.TravelSeverity(tt.distance, tt.elapsed, 900)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnomalyService_ImpossibleTravel(t *testing.T) {
	svc, _, anomalies := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", IPAddress: "1.1.1.1", Geo: newYork, Success: true, At: start})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies, "first login has no history")

	// roughly 16,000 km in five minutes
	res, err = svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", IPAddress: "2.2.2.2", Geo: sydney, Success: true, At: start.Add(5 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)

	a := res.Anomalies[0]
	assert.Equal(t, models.AnomalyImpossibleTravel, a.Type)
	assert.Contains(t, []models.AnomalySeverity{models.AnomalyHigh, models.AnomalyCritical}, a.Severity)
	assert.True(t, res.RequiresVerification)
	assert.Equal(t, "2.2.2.2", a.SourceIP)
	assert.Equal(t, "US", a.Details["from_country"])

	require.Len(t, anomalies.Anomalies, 1, "anomaly is persisted")
}

func TestAnomalyService_ShortDistanceIsNotAnomalous(t *testing.T) {
	svc, _, _ := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Geo: newYork, Success: true, At: start})
	require.NoError(t, err)

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Geo: twoKmNorth, Success: true, At: start.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
	assert.False(t, res.RequiresVerification)
}

func TestAnomalyService_MissingGeoSkipsTravel(t *testing.T) {
	svc, events, _ := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Geo: newYork, Success: true, At: start})
	require.NoError(t, err)

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Success: true, At: start.Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
	assert.Len(t, events.Events, 2, "every check is appended")
	assert.False(t, events.Events[1].HasLocation())
}

func TestAnomalyService_CountryOnlyGeoSkipsTravel(t *testing.T) {
	svc, events, _ := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Geo: &models.GeoPoint{CountryCode: "US"}, Success: true, At: start})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
	require.Len(t, events.Events, 1)
	assert.False(t, events.Events[0].HasLocation(), "no coordinates are stored")
	require.NotNil(t, events.Events[0].CountryCode)
	assert.Equal(t, "US", *events.Events[0].CountryCode)

	res, err = svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", Geo: newYork, Success: true, At: start.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies, "a country-only login is not a position")
}

func TestAnomalyService_NewDevice(t *testing.T) {
	svc, _, _ := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", DeviceFingerprint: "laptop", Success: true, At: start})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies, "no known devices yet")

	res, err = svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", DeviceFingerprint: "laptop", Success: true, At: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)

	res, err = svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", DeviceFingerprint: "phone", Success: true, At: start.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, models.AnomalyNewDevice, res.Anomalies[0].Type)
	assert.Equal(t, models.AnomalyMedium, res.Anomalies[0].Severity)
	assert.False(t, res.RequiresVerification)
}

func TestAnomalyService_DeviceHistoryIsBounded(t *testing.T) {
	svc, _, _ := newAnomalyService()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fingerprints := []string{"old", "d1", "d2", "d3", "d4", "d5"}
	for i, fp := range fingerprints {
		_, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", DeviceFingerprint: fp, Success: true, At: start.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}

	res, err := svc.CheckLogin(ctx, models.LoginCheck{UserID: "u1", DeviceFingerprint: "old", Success: true, At: start.Add(10 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1, "a device outside the last five logins is new again")
}

func TestAnomalyService_HistoryFailureFailsOpen(t *testing.T) {
	events := &services.MockLoginEventRepository{
		GetLastFunc: func(ctx context.Context, userID string, before time.Time) (*models.LoginEvent, error) {
			return nil, errors.New("db down")
		},
		GetRecentFunc: func(ctx context.Context, userID string, limit int) ([]*models.LoginEvent, error) {
			return nil, errors.New("db down")
		},
	}
	svc := services.NewAnomalyService(events, &services.MockAnomalyRepository{}, services.DefaultAnomalyConfig(), testLogger())

	res, err := svc.CheckLogin(context.Background(), models.LoginCheck{UserID: "u1", Geo: sydney, DeviceFingerprint: "x", Success: true})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
}

func TestAnomalyService_RequiresUserID(t *testing.T) {
	svc, _, _ := newAnomalyService()

	_, err := svc.CheckLogin(context.Background(), models.LoginCheck{})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAnomalyService_ActiveAnomalies(t *testing.T) {
	svc, _, anomalies := newAnomalyService()
	resolved := time.Now()
	anomalies.Anomalies = []*models.AnomalyRecord{
		{UserID: "u1", Type: models.AnomalyNewDevice},
		{UserID: "u1", Type: models.AnomalyImpossibleTravel, ResolvedAt: &resolved},
		{UserID: "u2", Type: models.AnomalyNewDevice},
	}

	list, err := svc.ActiveAnomalies(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
