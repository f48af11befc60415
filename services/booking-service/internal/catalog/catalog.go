// Package catalog owns services and business profiles. Service lookups on
// the booking path are read through a cache; every write invalidates it.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

// ErrInvalid wraps every input validation failure.
var ErrInvalid = errors.New("invalid input")

type repository interface {
	GetService(ctx context.Context, ownerID, id string) (model.Service, error)
	ListServices(ctx context.Context, ownerID string, includeInactive bool) ([]model.Service, error)
	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	UpdateService(ctx context.Context, svc model.Service) (model.Service, error)
	GetOrCreateProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error)
	GetProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error)
	UpdateProfile(ctx context.Context, p model.BusinessProfile) (model.BusinessProfile, error)
}

type Catalog struct {
	repo   repository
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a catalog; a nil cache disables caching.
func New(repo repository, cache Cache, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{repo: repo, cache: cache, ttl: ttl, logger: logger.With("component", "catalog")}
}

type cachedService struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
}

func serviceKey(ownerID, id string) string {
	return "catalog:service:" + ownerID + ":" + id
}

// Lookup returns an active service. Cache failures fall back to the
// database.
func (c *Catalog) Lookup(ctx context.Context, ownerID, serviceID string) (model.Service, error) {
	key := serviceKey(ownerID, serviceID)
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			var cs cachedService
			if jerr := json.Unmarshal(raw, &cs); jerr == nil {
				if price, perr := decimal.NewFromString(cs.Price); perr == nil {
					return model.Service{
						ID: cs.ID, OwnerID: cs.OwnerID, Name: cs.Name,
						DurationMinutes: cs.DurationMinutes, Price: price, Active: cs.Active,
					}, nil
				}
			}
			c.logger.Warn("discarding malformed cache entry", "key", key)
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn("catalog cache read failed", "err", err)
		}
	}

	svc, err := c.repo.GetService(ctx, ownerID, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if !svc.Active {
		return model.Service{}, model.ErrNotFound
	}
	if c.cache != nil {
		raw, _ := json.Marshal(cachedService{
			ID: svc.ID, OwnerID: svc.OwnerID, Name: svc.Name,
			DurationMinutes: svc.DurationMinutes, Price: svc.Price.String(), Active: svc.Active,
		})
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("catalog cache write failed", "err", err)
		}
	}
	return svc, nil
}

func (c *Catalog) invalidate(ctx context.Context, ownerID, serviceID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, serviceKey(ownerID, serviceID)); err != nil {
		c.logger.Warn("catalog cache invalidation failed", "service_id", serviceID, "err", err)
	}
}

// ServiceInput is the writable part of a service.
type ServiceInput struct {
	Name            string
	Description     string
	DurationMinutes int
	Price           decimal.Decimal
	Active          *bool
}

func (in *ServiceInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case len(in.Name) > 120:
		return fmt.Errorf("%w: name is too long", ErrInvalid)
	case in.DurationMinutes < 5 || in.DurationMinutes > 24*60:
		return fmt.Errorf("%w: duration_minutes must be between 5 and 1440", ErrInvalid)
	case in.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	return nil
}

func (c *Catalog) ListServices(ctx context.Context, ownerID string, includeInactive bool) ([]model.Service, error) {
	return c.repo.ListServices(ctx, ownerID, includeInactive)
}

func (c *Catalog) GetService(ctx context.Context, ownerID, id string) (model.Service, error) {
	return c.repo.GetService(ctx, ownerID, id)
}

func (c *Catalog) CreateService(ctx context.Context, ownerID string, in ServiceInput) (model.Service, error) {
	if err := in.validate(); err != nil {
		return model.Service{}, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return c.repo.CreateService(ctx, model.Service{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            in.Name,
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price.Round(2),
		Active:          active,
	})
}

// UpdateService replaces a service's writable fields. Existing appointments
// keep their stored end times.
func (c *Catalog) UpdateService(ctx context.Context, ownerID, id string, in ServiceInput) (model.Service, error) {
	if err := in.validate(); err != nil {
		return model.Service{}, err
	}
	cur, err := c.repo.GetService(ctx, ownerID, id)
	if err != nil {
		return model.Service{}, err
	}
	cur.Name = in.Name
	cur.Description = in.Description
	cur.DurationMinutes = in.DurationMinutes
	cur.Price = in.Price.Round(2)
	if in.Active != nil {
		cur.Active = *in.Active
	}
	updated, err := c.repo.UpdateService(ctx, cur)
	if err != nil {
		return model.Service{}, err
	}
	c.invalidate(ctx, ownerID, id)
	return updated, nil
}

// DeactivateService hides a service from booking without touching its
// appointments.
func (c *Catalog) DeactivateService(ctx context.Context, ownerID, id string) (model.Service, error) {
	cur, err := c.repo.GetService(ctx, ownerID, id)
	if err != nil {
		return model.Service{}, err
	}
	if !cur.Active {
		return cur, nil
	}
	cur.Active = false
	updated, err := c.repo.UpdateService(ctx, cur)
	if err != nil {
		return model.Service{}, err
	}
	c.invalidate(ctx, ownerID, id)
	return updated, nil
}

func (c *Catalog) Profile(ctx context.Context, ownerID string) (model.BusinessProfile, error) {
	return c.repo.GetOrCreateProfile(ctx, ownerID)
}

// PublicProfile is the read-only variant of Profile for anonymous callers:
// an owner without a stored profile gets the defaults and nothing is written.
func (c *Catalog) PublicProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error) {
	p, err := c.repo.GetProfile(ctx, ownerID)
	if errors.Is(err, model.ErrNotFound) {
		return model.DefaultProfile(ownerID), nil
	}
	return p, err
}

func (c *Catalog) UpdateProfile(ctx context.Context, p model.BusinessProfile) (model.BusinessProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Timezone = strings.TrimSpace(p.Timezone)
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	loc, err := p.Location()
	if err != nil {
		return model.BusinessProfile{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := availability.ParseBusinessHours(p.OpensAt, p.ClosesAt, loc); err != nil {
		return model.BusinessProfile{}, fmt.Errorf("%w: business hours: %v", ErrInvalid, err)
	}
	if p.SlotIntervalMinutes < 5 || p.SlotIntervalMinutes > 240 {
		return model.BusinessProfile{}, fmt.Errorf("%w: slot_interval_minutes must be between 5 and 240", ErrInvalid)
	}
	return c.repo.UpdateProfile(ctx, p)
}

// Hours resolves a profile into business hours and slot interval.
func Hours(p model.BusinessProfile) (availability.BusinessHours, time.Duration, error) {
	loc, err := p.Location()
	if err != nil {
		return availability.BusinessHours{}, 0, err
	}
	hours, err := availability.ParseBusinessHours(p.OpensAt, p.ClosesAt, loc)
	if err != nil {
		return availability.BusinessHours{}, 0, err
	}
	return hours, p.SlotInterval(), nil
}
