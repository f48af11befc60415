package booking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

// memStore is an in-memory Store. Each owner has its own mutex held for the
// whole of InOwnerTx, and writes are staged until fn returns nil, mirroring
// the advisory-lock transaction of the Postgres store.
type memStore struct {
	mu     sync.Mutex
	owners map[string]*sync.Mutex
	appts  map[string]model.Appointment
	events []Event

	insertErr error
	// overlapCalls counts Overlapping queries.
	overlapCalls int
}

func newMemStore() *memStore {
	return &memStore{
		owners: map[string]*sync.Mutex{},
		appts:  map[string]model.Appointment{},
	}
}

func (s *memStore) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.owners[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.owners[ownerID] = l
	}
	return l
}

func (s *memStore) InOwnerTx(ctx context.Context, ownerID string, fn func(context.Context, Tx) error) error {
	l := s.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{s: s, writes: map[string]model.Appointment{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.writes {
		s.appts[id] = a
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memStore) Get(_ context.Context, ownerID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.OwnerID != ownerID {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *memStore) List(_ context.Context, ownerID string, f model.ListFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.OwnerID != ownerID {
			continue
		}
		if !f.From.IsZero() && a.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.StartTime.Before(f.To) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ServiceID != "" && a.ServiceID != f.ServiceID {
			continue
		}
		if f.ClientName != "" && !strings.Contains(strings.ToLower(a.ClientName), strings.ToLower(f.ClientName)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) Busy(_ context.Context, ownerID string, start, end time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.OwnerID == ownerID && a.Status.Blocking() && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) published() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type memTx struct {
	s      *memStore
	writes map[string]model.Appointment
	events []Event
}

func (t *memTx) lookup(id string) (model.Appointment, bool) {
	if a, ok := t.writes[id]; ok {
		return a, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.appts[id]
	return a, ok
}

func (t *memTx) Overlapping(_ context.Context, ownerID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	t.s.mu.Lock()
	t.s.overlapCalls++
	all := make(map[string]model.Appointment, len(t.s.appts))
	for id, a := range t.s.appts {
		all[id] = a
	}
	t.s.mu.Unlock()
	for id, a := range t.writes {
		all[id] = a
	}

	var out []model.Appointment
	for _, a := range all {
		if a.OwnerID == ownerID && a.ID != excludeID && a.Status.Blocking() && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) GetForUpdate(_ context.Context, ownerID, id string) (model.Appointment, error) {
	a, ok := t.lookup(id)
	if !ok || a.OwnerID != ownerID {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (t *memTx) Insert(_ context.Context, a model.Appointment) (model.Appointment, error) {
	if t.s.insertErr != nil {
		return model.Appointment{}, t.s.insertErr
	}
	if _, ok := t.lookup(a.ID); ok {
		return model.Appointment{}, model.ErrDuplicate
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.writes[a.ID] = a
	return a, nil
}

func (t *memTx) Update(_ context.Context, a model.Appointment) (model.Appointment, error) {
	if _, ok := t.lookup(a.ID); !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	t.writes[a.ID] = a
	return a, nil
}

func (t *memTx) Enqueue(_ context.Context, evt Event) error {
	t.events = append(t.events, evt)
	return nil
}

type memCatalog map[string]model.Service

func (c memCatalog) Lookup(_ context.Context, ownerID, serviceID string) (model.Service, error) {
	svc, ok := c[serviceID]
	if !ok || svc.OwnerID != ownerID || !svc.Active {
		return model.Service{}, model.ErrNotFound
	}
	return svc, nil
}
