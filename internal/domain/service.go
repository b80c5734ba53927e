package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations. The Postgres implementation
// backs production; an in-memory implementation backs unit tests and
// local development.
type Repository interface {
	GetClient(ctx context.Context, tenantID, clientID string) (*Client, error)
	GetActivity(ctx context.Context, tenantID, activityID string) (*ScheduledActivity, error)
	ListActivities(ctx context.Context, tenantID, clientID string) ([]ScheduledActivity, error)

	// CreateCompletion persists the record unless one already exists for
	// its (client, activity, calendar day) natural key; uniqueness is
	// enforced atomically at the storage boundary, never by a
	// read-then-write. When cadence is non-nil the advanced cadence row
	// commits in the same transaction as the insert, together with the
	// outbox events for both changes. Returns the stored record and
	// whether this call created it; on conflict the existing record is
	// returned and no write of any kind happens.
	CreateCompletion(ctx context.Context, record CompletionRecord, cadence *CheckinCadence) (*CompletionRecord, bool, error)
	GetCompletion(ctx context.Context, tenantID, clientID, activityID string, day CalendarDay) (*CompletionRecord, error)
	ListCompletions(ctx context.Context, tenantID, clientID string, cursor *Cursor, limit int) ([]CompletionRecord, *Cursor, error)

	GetCadence(ctx context.Context, tenantID, clientID string) (*CheckinCadence, error)
	CreateCadence(ctx context.Context, cadence CheckinCadence) error
	// RescheduleCadence updates next_due_date and records the reschedule
	// event in the same transaction.
	RescheduleCadence(ctx context.Context, tenantID, clientID string, next CalendarDay) (*CheckinCadence, error)
	// ListCadences pages through cadences for status sweeps, keyset-paged
	// by client id.
	ListCadences(ctx context.Context, tenantID, afterClientID string, limit int) ([]CheckinCadence, error)
}

// Service orchestrates due computation, the completion ledger, and
// cadence scheduling.
type Service struct {
	repo  Repository
	clock Clock
}

// NewService constructs a Service.
func NewService(repo Repository, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{repo: repo, clock: clock}
}

// Today returns the current calendar day in the reference zone.
func (s *Service) Today() CalendarDay {
	return DayOf(s.clock.Now())
}

// RecordCompletionInput captures the payload from the API layer.
type RecordCompletionInput struct {
	TenantID   string
	ClientID   string
	ActivityID string
	OccurredAt time.Time
	Payload    json.RawMessage
}

// RecordCompletion records that the client completed the activity at the
// given instant, exactly once per calendar day. Replays and concurrent
// submissions of the same occurrence resolve to the original record with
// AlreadyCompleted set. For check-in activities the client's cadence
// advances from the completion day in the same transaction as the insert.
func (s *Service) RecordCompletion(ctx context.Context, input RecordCompletionInput) (*CompletionOutcome, error) {
	if input.OccurredAt.IsZero() {
		return nil, validationErr("occurred_at", "must be provided")
	}

	client, err := s.repo.GetClient(ctx, input.TenantID, input.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	if !client.Active {
		return nil, validationErr("client_id", "client is inactive")
	}

	activity, err := s.repo.GetActivity(ctx, input.TenantID, input.ActivityID)
	if err != nil {
		return nil, err
	}
	if activity == nil || activity.ClientID != input.ClientID {
		return nil, ErrActivityNotFound
	}

	day := DayOf(input.OccurredAt)
	record := CompletionRecord{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		ClientID:    input.ClientID,
		ActivityID:  input.ActivityID,
		CalendarDay: day,
		OccurredAt:  input.OccurredAt.UTC(),
		Payload:     input.Payload,
		CreatedAt:   s.clock.Now(),
	}

	var advanced *CheckinCadence
	if activity.Kind == ActivityKindCheckin {
		cadence, err := s.repo.GetCadence(ctx, input.TenantID, input.ClientID)
		if err != nil {
			return nil, err
		}
		// A check-in without an onboarded cadence still records; there is
		// just nothing to advance.
		if cadence != nil {
			next := *cadence
			next.CompleteOn(day)
			advanced = &next
		}
	}

	stored, created, err := s.repo.CreateCompletion(ctx, record, advanced)
	if err != nil {
		return nil, err
	}
	return &CompletionOutcome{Record: *stored, AlreadyCompleted: !created}, nil
}

// DueOn returns the activities due for the client on the given day.
func (s *Service) DueOn(ctx context.Context, tenantID, clientID string, day CalendarDay) ([]ScheduledActivity, error) {
	client, err := s.repo.GetClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	activities, err := s.repo.ListActivities(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	return DueActivities(activities, day), nil
}

// DueToday returns the activities due for the client today.
func (s *Service) DueToday(ctx context.Context, tenantID, clientID string) ([]ScheduledActivity, CalendarDay, error) {
	today := s.Today()
	due, err := s.DueOn(ctx, tenantID, clientID, today)
	return due, today, err
}

// IsCompleted reports whether a completion exists for the natural key.
// Pure read; used for display, never as a write guard.
func (s *Service) IsCompleted(ctx context.Context, tenantID, clientID, activityID string, day CalendarDay) (bool, error) {
	record, err := s.repo.GetCompletion(ctx, tenantID, clientID, activityID, day)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// ListCompletions fetches completion history with cursor pagination.
func (s *Service) ListCompletions(ctx context.Context, tenantID, clientID string, cursor *Cursor, limit int) ([]CompletionRecord, *Cursor, error) {
	return s.repo.ListCompletions(ctx, tenantID, clientID, cursor, limit)
}

// CheckinOverview pairs a cadence with its derived status for a day.
type CheckinOverview struct {
	Cadence CheckinCadence
	Status  CadenceStatus
	Today   CalendarDay
}

// CheckinStatus derives the client's check-in due-state for today.
func (s *Service) CheckinStatus(ctx context.Context, tenantID, clientID string) (*CheckinOverview, error) {
	cadence, err := s.repo.GetCadence(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	if cadence == nil {
		return nil, ErrCadenceNotFound
	}
	today := s.Today()
	return &CheckinOverview{Cadence: *cadence, Status: cadence.Status(today), Today: today}, nil
}

// CreateCadenceInput captures cadence onboarding parameters.
type CreateCadenceInput struct {
	TenantID      string
	ClientID      string
	FrequencyDays int
	FirstDueDate  CalendarDay // zero = today + frequency
}

// CreateCadence onboards a client's check-in cadence.
func (s *Service) CreateCadence(ctx context.Context, input CreateCadenceInput) (*CheckinCadence, error) {
	if input.FrequencyDays <= 0 {
		return nil, validationErr("frequency_days", "must be a positive integer")
	}

	client, err := s.repo.GetClient(ctx, input.TenantID, input.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	nextDue := input.FirstDueDate
	if nextDue.IsZero() {
		nextDue = s.Today().AddDays(input.FrequencyDays)
	}

	cadence := CheckinCadence{
		TenantID:      input.TenantID,
		ClientID:      input.ClientID,
		FrequencyDays: input.FrequencyDays,
		NextDueDate:   nextDue,
	}
	if err := s.repo.CreateCadence(ctx, cadence); err != nil {
		return nil, err
	}
	return &cadence, nil
}

// RescheduleCheckin applies a manual next-due override, independent of
// cadence math. Rescheduling to the current next-due date is a no-op:
// nothing is written and no event is emitted.
func (s *Service) RescheduleCheckin(ctx context.Context, tenantID, clientID string, newDate CalendarDay) (*CheckinCadence, error) {
	if newDate.IsZero() {
		return nil, validationErr("next_due_date", "must be provided")
	}

	cadence, err := s.repo.GetCadence(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	if cadence == nil {
		return nil, ErrCadenceNotFound
	}
	if cadence.NextDueDate.Equal(newDate) {
		return cadence, nil
	}
	return s.repo.RescheduleCadence(ctx, tenantID, clientID, newDate)
}
