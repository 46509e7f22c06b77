package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

const earthRadiusKm = 6371.0

// LoginEventRepository reads and appends login history
type LoginEventRepository interface {
	Create(ctx context.Context, e *models.LoginEvent) error
	GetLastSuccessfulWithLocation(ctx context.Context, userID string, before time.Time) (*models.LoginEvent, error)
	GetRecentSuccessful(ctx context.Context, userID string, limit int) ([]*models.LoginEvent, error)
}

// AnomalyRepository stores detected anomalies
type AnomalyRepository interface {
	Create(ctx context.Context, a *models.AnomalyRecord) error
	ListUnresolved(ctx context.Context, userID string) ([]*models.AnomalyRecord, error)
}

// AnomalyConfig tunes the detection rules
type AnomalyConfig struct {
	MaxTravelSpeedKmh float64
	DeviceHistorySize int
}

// DefaultAnomalyConfig flags travel above 900 km/h and compares devices against the last 5 logins
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{MaxTravelSpeedKmh: 900, DeviceHistorySize: 5}
}

// AnomalyService detects impossible travel and new devices at login
type AnomalyService struct {
	events    LoginEventRepository
	anomalies AnomalyRepository
	config    AnomalyConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnomalyService creates a new AnomalyService
func NewAnomalyService(events LoginEventRepository, anomalies AnomalyRepository, config AnomalyConfig, logger *slog.Logger) *AnomalyService {
	return &AnomalyService{
		events:    events,
		anomalies: anomalies,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// HaversineKm returns the great-circle distance between two points
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// TravelSeverity grades a move of distanceKm over elapsed. ok is false when
// the move is plausible.
func TravelSeverity(distanceKm float64, elapsed time.Duration, maxSpeedKmh float64) (severity models.AnomalySeverity, speedKmh float64, ok bool) {
	if distanceKm < 1 {
		return "", 0, false
	}
	if elapsed <= 0 {
		return models.AnomalyCritical, math.Inf(1), true
	}

	speedKmh = distanceKm / elapsed.Hours()
	switch {
	case speedKmh <= maxSpeedKmh:
		return "", speedKmh, false
	case speedKmh > 5000:
		return models.AnomalyCritical, speedKmh, true
	case speedKmh > 1000:
		return models.AnomalyHigh, speedKmh, true
	default:
		return models.AnomalyMedium, speedKmh, true
	}
}

// CheckLogin compares a login against history, appends it to the history
// and persists any anomaly found. History lookups that fail are skipped, as
// is the travel check for a login without coordinates.
func (s *AnomalyService) CheckLogin(ctx context.Context, check models.LoginCheck) (*models.AnomalyResult, error) {
	if check.UserID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrBadRequest)
	}

	at := check.At
	if at.IsZero() {
		at = s.now().UTC()
	}

	found := make([]*models.AnomalyRecord, 0, 2)

	if check.Geo.HasCoordinates() {
		if a := s.checkTravel(ctx, check, at); a != nil {
			found = append(found, a)
		}
	}

	if check.DeviceFingerprint != "" {
		if a := s.checkDevice(ctx, check, at); a != nil {
			found = append(found, a)
		}
	}

	s.appendEvent(ctx, check, at)

	result := &models.AnomalyResult{Anomalies: found}
	for _, a := range found {
		if a.Severity.RequiresVerification() {
			result.RequiresVerification = true
		}
		if err := s.anomalies.Create(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "failed to persist anomaly",
				slog.String("type", string(a.Type)),
				slog.Any("error", err),
			)
		}
	}

	return result, nil
}

func (s *AnomalyService) checkTravel(ctx context.Context, check models.LoginCheck, at time.Time) *models.AnomalyRecord {
	prev, err := s.events.GetLastSuccessfulWithLocation(ctx, check.UserID, at)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "login history lookup failed",
			slog.String("collaborator", "login_events"),
			slog.Any("error", err),
		)
		return nil
	}
	if !prev.HasLocation() {
		return nil
	}

	distance := HaversineKm(*prev.Latitude, *prev.Longitude, *check.Geo.Latitude, *check.Geo.Longitude)
	elapsed := at.Sub(prev.CreatedAt)

	severity, speed, ok := TravelSeverity(distance, elapsed, s.config.MaxTravelSpeedKmh)
	if !ok {
		return nil
	}

	details := models.Metadata{
		"distance_km":     math.Round(distance*10) / 10,
		"elapsed_minutes": math.Round(elapsed.Minutes()*10) / 10,
		"to_country":      check.Geo.CountryCode,
		"to_city":         check.Geo.City,
	}
	if !math.IsInf(speed, 1) {
		details["speed_kmh"] = math.Round(speed)
	}
	if prev.CountryCode != nil {
		details["from_country"] = *prev.CountryCode
	}
	if prev.City != nil {
		details["from_city"] = *prev.City
	}

	return &models.AnomalyRecord{
		ID:        uuid.New(),
		UserID:    check.UserID,
		Type:      models.AnomalyImpossibleTravel,
		Severity:  severity,
		Details:   details,
		SourceIP:  check.IPAddress,
		CreatedAt: at,
	}
}

func (s *AnomalyService) checkDevice(ctx context.Context, check models.LoginCheck, at time.Time) *models.AnomalyRecord {
	recent, err := s.events.GetRecentSuccessful(ctx, check.UserID, s.config.DeviceHistorySize)
	if err != nil {
		s.logger.WarnContext(ctx, "device history lookup failed",
			slog.String("collaborator", "login_events"),
			slog.Any("error", err),
		)
		return nil
	}

	known := make(map[string]struct{}, len(recent))
	for _, e := range recent {
		if e.DeviceFingerprint != nil && *e.DeviceFingerprint != "" {
			known[*e.DeviceFingerprint] = struct{}{}
		}
	}
	if len(known) == 0 {
		return nil
	}
	if _, ok := known[check.DeviceFingerprint]; ok {
		return nil
	}

	return &models.AnomalyRecord{
		ID:        uuid.New(),
		UserID:    check.UserID,
		Type:      models.AnomalyNewDevice,
		Severity:  models.AnomalyMedium,
		Details:   models.Metadata{"known_devices": len(known)},
		SourceIP:  check.IPAddress,
		CreatedAt: at,
	}
}

func (s *AnomalyService) appendEvent(ctx context.Context, check models.LoginCheck, at time.Time) {
	e := &models.LoginEvent{
		ID:        uuid.New(),
		UserID:    check.UserID,
		IPAddress: check.IPAddress,
		Success:   check.Success,
		CreatedAt: at,
	}
	if check.Geo != nil {
		if check.Geo.HasCoordinates() {
			lat, lon := *check.Geo.Latitude, *check.Geo.Longitude
			e.Latitude = &lat
			e.Longitude = &lon
		}
		e.CountryCode = strPtr(check.Geo.CountryCode)
		e.City = strPtr(check.Geo.City)
	}
	e.DeviceFingerprint = strPtr(check.DeviceFingerprint)

	if err := s.events.Create(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to append login event", slog.Any("error", err))
	}
}

// ActiveAnomalies returns unresolved anomalies for a user
func (s *AnomalyService) ActiveAnomalies(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
	list, err := s.anomalies.ListUnresolved(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	return list, nil
}
