package models

import (
	"time"

	"github.com/google/uuid"
)

// GeoPoint is the client location attached to a login. Coordinates are
// optional; a point may carry only a country.
type GeoPoint struct {
	Latitude    *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	CountryCode string   `json:"country_code" validate:"omitempty,len=2"`
	City        string   `json:"city" validate:"max=128"`
}

// HasCoordinates reports whether both latitude and longitude are set
func (g *GeoPoint) HasCoordinates() bool {
	return g != nil && g.Latitude != nil && g.Longitude != nil
}

// LoginEvent is an append-only record of a login attempt
type LoginEvent struct {
	ID                uuid.UUID `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	IPAddress         string    `db:"ip_address" json:"ip_address"`
	CountryCode       *string   `db:"country_code" json:"country_code,omitempty"`
	City              *string   `db:"city" json:"city,omitempty"`
	Latitude          *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude         *float64  `db:"longitude" json:"longitude,omitempty"`
	DeviceFingerprint *string   `db:"device_fingerprint" json:"device_fingerprint,omitempty"`
	Success           bool      `db:"success" json:"success"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// HasLocation reports whether the event carries coordinates
func (e *LoginEvent) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// LoginCheck is the input of an anomaly check
type LoginCheck struct {
	UserID            string
	IPAddress         string
	Geo               *GeoPoint
	DeviceFingerprint string
	Success           bool
	At                time.Time
}
