// Package memory provides an in-memory Repository for unit tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/events"
)

type naturalKey struct {
	tenantID   string
	clientID   string
	activityID string
	day        domain.CalendarDay
}

type cadenceKey struct {
	tenantID string
	clientID string
}

// Repository stores everything in maps guarded by one mutex, so the
// check-and-insert on the completion natural key is atomic, matching the
// unique-index guarantee of the Postgres implementation.
type Repository struct {
	mu          sync.RWMutex
	clients     map[cadenceKey]domain.Client
	activities  map[string]domain.ScheduledActivity
	completions map[naturalKey]domain.CompletionRecord
	cadences    map[cadenceKey]domain.CheckinCadence
	emitted     []interface{}
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		clients:     make(map[cadenceKey]domain.Client),
		activities:  make(map[string]domain.ScheduledActivity),
		completions: make(map[naturalKey]domain.CompletionRecord),
		cadences:    make(map[cadenceKey]domain.CheckinCadence),
	}
}

// AddClient seeds a directory entry.
func (r *Repository) AddClient(client domain.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[cadenceKey{client.TenantID, client.ID}] = client
}

// AddActivity seeds a scheduled activity.
func (r *Repository) AddActivity(activity domain.ScheduledActivity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities[activity.ID] = activity
}

// Events returns the events recorded so far, in emission order. Stands in
// for the outbox in tests.
func (r *Repository) Events() []interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]interface{}, len(r.emitted))
	copy(out, r.emitted)
	return out
}

// GetClient implements domain.Repository.
func (r *Repository) GetClient(_ context.Context, tenantID, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if client, ok := r.clients[cadenceKey{tenantID, clientID}]; ok {
		return &client, nil
	}
	return nil, nil
}

// GetActivity implements domain.Repository.
func (r *Repository) GetActivity(_ context.Context, tenantID, activityID string) (*domain.ScheduledActivity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if activity, ok := r.activities[activityID]; ok && activity.TenantID == tenantID {
		return &activity, nil
	}
	return nil, nil
}

// ListActivities implements domain.Repository.
func (r *Repository) ListActivities(_ context.Context, tenantID, clientID string) ([]domain.ScheduledActivity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ScheduledActivity, 0)
	for _, activity := range r.activities {
		if activity.TenantID == tenantID && activity.ClientID == clientID && activity.DeletedAt == nil {
			out = append(out, activity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCompletion implements domain.Repository. The whole check-insert-
// advance sequence runs under one lock, mirroring the single transaction
// of the Postgres implementation.
func (r *Repository) CreateCompletion(_ context.Context, record domain.CompletionRecord, cadence *domain.CheckinCadence) (*domain.CompletionRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := naturalKey{record.TenantID, record.ClientID, record.ActivityID, record.CalendarDay}
	if existing, ok := r.completions[key]; ok {
		return &existing, false, nil
	}
	r.completions[key] = record

	if cadence != nil {
		r.cadences[cadenceKey{cadence.TenantID, cadence.ClientID}] = *cadence
		r.emitted = append(r.emitted, events.CheckinRescheduled{
			TenantID:    cadence.TenantID,
			ClientID:    cadence.ClientID,
			NextDueDate: cadence.NextDueDate.String(),
			Cause:       events.RescheduleCauseCompletion,
		})
	}

	r.emitted = append(r.emitted, events.ActivityCompleted{
		RecordID:    record.ID,
		TenantID:    record.TenantID,
		ClientID:    record.ClientID,
		ActivityID:  record.ActivityID,
		CalendarDay: record.CalendarDay.String(),
		OccurredAt:  record.OccurredAt,
	})
	return &record, true, nil
}

// GetCompletion implements domain.Repository.
func (r *Repository) GetCompletion(_ context.Context, tenantID, clientID, activityID string, day domain.CalendarDay) (*domain.CompletionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if record, ok := r.completions[naturalKey{tenantID, clientID, activityID, day}]; ok {
		return &record, nil
	}
	return nil, nil
}

// ListCompletions implements domain.Repository.
func (r *Repository) ListCompletions(_ context.Context, tenantID, clientID string, cursor *domain.Cursor, limit int) ([]domain.CompletionRecord, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.CompletionRecord, 0)
	for _, record := range r.completions {
		if record.TenantID == tenantID && record.ClientID == clientID {
			all = append(all, record)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].OccurredAt.Equal(all[j].OccurredAt) {
			return all[i].OccurredAt.After(all[j].OccurredAt)
		}
		return all[i].ID > all[j].ID
	})

	out := make([]domain.CompletionRecord, 0, limit)
	for _, record := range all {
		if cursor != nil {
			if record.OccurredAt.After(cursor.OccurredAt) {
				continue
			}
			if record.OccurredAt.Equal(cursor.OccurredAt) && record.ID >= cursor.ID {
				continue
			}
		}
		out = append(out, record)
		if len(out) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{OccurredAt: last.OccurredAt, ID: last.ID}
	}
	return out, next, nil
}

// GetCadence implements domain.Repository.
func (r *Repository) GetCadence(_ context.Context, tenantID, clientID string) (*domain.CheckinCadence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cadence, ok := r.cadences[cadenceKey{tenantID, clientID}]; ok {
		return &cadence, nil
	}
	return nil, nil
}

// CreateCadence implements domain.Repository.
func (r *Repository) CreateCadence(_ context.Context, cadence domain.CheckinCadence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cadenceKey{cadence.TenantID, cadence.ClientID}
	if _, ok := r.cadences[key]; ok {
		return domain.ErrCadenceExists
	}
	r.cadences[key] = cadence
	return nil
}

// RescheduleCadence implements domain.Repository.
func (r *Repository) RescheduleCadence(_ context.Context, tenantID, clientID string, next domain.CalendarDay) (*domain.CheckinCadence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cadenceKey{tenantID, clientID}
	cadence, ok := r.cadences[key]
	if !ok {
		return nil, domain.ErrCadenceNotFound
	}
	cadence.NextDueDate = next
	r.cadences[key] = cadence

	r.emitted = append(r.emitted, events.CheckinRescheduled{
		TenantID:    tenantID,
		ClientID:    clientID,
		NextDueDate: next.String(),
		Cause:       events.RescheduleCauseManual,
	})
	return &cadence, nil
}

// ListCadences implements domain.Repository.
func (r *Repository) ListCadences(_ context.Context, tenantID, afterClientID string, limit int) ([]domain.CheckinCadence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.CheckinCadence, 0)
	for key, cadence := range r.cadences {
		if key.tenantID == tenantID && key.clientID > afterClientID {
			all = append(all, cadence)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ClientID < all[j].ClientID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
