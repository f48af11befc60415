package inbox

import (
	"context"
	"fmt"

	"github.com/zapagenda/zapagenda/libs/db"
)

// Repository deduplicates consumed events by id.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim records eventID and reports whether this is its first delivery.
func (r *Repository) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, fmt.Errorf("claim event %s: %w", eventID, err)
}

// Release forgets a claim so a redelivered event is processed again.
func (r *Repository) Release(ctx context.Context, eventID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}
