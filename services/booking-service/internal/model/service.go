package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service is a bookable offering. Its duration fixes the length of every
// appointment made for it.
type Service struct {
	ID              string
	OwnerID         string
	Name            string
	Description     string
	DurationMinutes int
	Price           decimal.Decimal
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// BusinessProfile holds the per-owner calendar settings.
type BusinessProfile struct {
	OwnerID             string
	Name                string
	Timezone            string
	OpensAt             string
	ClosesAt            string
	SlotIntervalMinutes int
	UpdatedAt           time.Time
}

func DefaultProfile(ownerID string) BusinessProfile {
	return BusinessProfile{
		OwnerID:             ownerID,
		Timezone:            "UTC",
		OpensAt:             "08:00",
		ClosesAt:            "18:00",
		SlotIntervalMinutes: 30,
	}
}

func (p BusinessProfile) Location() (*time.Location, error) {
	tz := strings.TrimSpace(p.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (p BusinessProfile) SlotInterval() time.Duration {
	return time.Duration(p.SlotIntervalMinutes) * time.Minute
}
