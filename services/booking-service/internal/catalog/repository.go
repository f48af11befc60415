package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/zapagenda/zapagenda/libs/db"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

const serviceColumns = `id::text, owner_id, name, description, duration_minutes, price::text, active, created_at, updated_at`

// Repository stores services and business profiles in Postgres.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetService(ctx context.Context, ownerID, id string) (model.Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Service{}, model.ErrNotFound
	}
	svc, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+`
		FROM services
		WHERE owner_id = $1 AND id = $2`, ownerID, id))
	if db.IsNoRows(err) {
		return model.Service{}, model.ErrNotFound
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func (r *Repository) ListServices(ctx context.Context, ownerID string, includeInactive bool) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+`
		FROM services
		WHERE owner_id = $1 AND (active OR $2)
		ORDER BY name ASC`, ownerID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		return scanService(row)
	})
}

func (r *Repository) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (id, owner_id, name, description, duration_minutes, price, active)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		RETURNING created_at, updated_at
	`, svc.ID, svc.OwnerID, svc.Name, svc.Description, svc.DurationMinutes, svc.Price.String(), svc.Active).
		Scan(&svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return model.Service{}, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

func (r *Repository) UpdateService(ctx context.Context, svc model.Service) (model.Service, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE services
		SET name = $3,
			description = $4,
			duration_minutes = $5,
			price = $6::numeric,
			active = $7,
			updated_at = now()
		WHERE owner_id = $1 AND id = $2
		RETURNING created_at, updated_at
	`, svc.OwnerID, svc.ID, svc.Name, svc.Description, svc.DurationMinutes, svc.Price.String(), svc.Active).
		Scan(&svc.CreatedAt, &svc.UpdatedAt)
	if db.IsNoRows(err) {
		return model.Service{}, model.ErrNotFound
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("update service: %w", err)
	}
	return svc, nil
}

// GetOrCreateProfile returns the owner's profile, creating the default one
// on first access.
func (r *Repository) GetOrCreateProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_profiles (owner_id)
		VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return model.BusinessProfile{}, fmt.Errorf("ensure profile: %w", err)
	}

	var p model.BusinessProfile
	err = r.pool.QueryRow(ctx, `
		SELECT owner_id, name, timezone, opens_at, closes_at, slot_interval_minutes, updated_at
		FROM business_profiles
		WHERE owner_id = $1
	`, ownerID).Scan(&p.OwnerID, &p.Name, &p.Timezone, &p.OpensAt, &p.ClosesAt, &p.SlotIntervalMinutes, &p.UpdatedAt)
	if err != nil {
		return model.BusinessProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetProfile reads the owner's profile without creating it.
func (r *Repository) GetProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error) {
	var p model.BusinessProfile
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, name, timezone, opens_at, closes_at, slot_interval_minutes, updated_at
		FROM business_profiles
		WHERE owner_id = $1
	`, ownerID).Scan(&p.OwnerID, &p.Name, &p.Timezone, &p.OpensAt, &p.ClosesAt, &p.SlotIntervalMinutes, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return model.BusinessProfile{}, model.ErrNotFound
	}
	if err != nil {
		return model.BusinessProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdateProfile(ctx context.Context, p model.BusinessProfile) (model.BusinessProfile, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO business_profiles (owner_id, name, timezone, opens_at, closes_at, slot_interval_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			opens_at = EXCLUDED.opens_at,
			closes_at = EXCLUDED.closes_at,
			slot_interval_minutes = EXCLUDED.slot_interval_minutes,
			updated_at = now()
		RETURNING updated_at
	`, p.OwnerID, p.Name, p.Timezone, p.OpensAt, p.ClosesAt, p.SlotIntervalMinutes).Scan(&p.UpdatedAt)
	if err != nil {
		return model.BusinessProfile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

func scanService(row pgx.Row) (model.Service, error) {
	var (
		s     model.Service
		price string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.DurationMinutes, &price, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Service{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Service{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	s.Price = p
	return s, nil
}
