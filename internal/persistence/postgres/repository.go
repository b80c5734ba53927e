// Package postgres provides pgx-backed persistence for schedules,
// completions, cadences, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/events"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/observability"
)

// Repository provides Postgres-backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

// beginTenant opens a transaction scoped to the tenant via the row-level
// security setting every table policy consults.
func (r *Repository) beginTenant(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storageErr(err)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		tx.Rollback(ctx)
		return nil, storageErr(err)
	}
	return tx, nil
}

// GetClient reads a directory entry. Returns nil when the client is unknown.
func (r *Repository) GetClient(ctx context.Context, tenantID, clientID string) (*domain.Client, error) {
	const query = `SELECT client_id, tenant_id, display_name, active
        FROM clients WHERE tenant_id=$1 AND client_id=$2`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var client domain.Client
	row := tx.QueryRow(ctx, query, tenantID, clientID)
	if err := row.Scan(&client.ID, &client.TenantID, &client.DisplayName, &client.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return &client, nil
}

const activityColumns = `activity_id, tenant_id, client_id, kind, title, weekdays, valid_from, valid_to, deleted_at`

// GetActivity retrieves a scheduled activity by id. Returns nil when absent.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.ScheduledActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM scheduled_activities WHERE tenant_id=$1 AND activity_id=$2`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	activity, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return activity, nil
}

// ListActivities returns the client's current (non-deleted) schedule.
func (r *Repository) ListActivities(ctx context.Context, tenantID, clientID string) ([]domain.ScheduledActivity, error) {
	query := `SELECT ` + activityColumns + `
        FROM scheduled_activities
        WHERE tenant_id=$1 AND client_id=$2 AND deleted_at IS NULL
        ORDER BY activity_id`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, tenantID, clientID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	activities := make([]domain.ScheduledActivity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		activities = append(activities, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return activities, nil
}

// CreateCompletion inserts the completion record, advancing the supplied
// cadence and writing the outbox events in the same transaction. The
// unique index on (tenant_id, client_id, activity_id, calendar_day)
// resolves concurrent submissions: the conditional insert either claims
// the natural key or affects zero rows, in which case the transaction is
// abandoned untouched and the pre-existing record is returned.
func (r *Repository) CreateCompletion(ctx context.Context, record domain.CompletionRecord, cadence *domain.CheckinCadence) (*domain.CompletionRecord, bool, error) {
	tx, err := r.beginTenant(ctx, record.TenantID)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO completion_records (record_id, tenant_id, client_id, activity_id, calendar_day, occurred_at, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, client_id, activity_id, calendar_day) DO NOTHING`

	tag, err := tx.Exec(ctx, insert,
		record.ID,
		record.TenantID,
		record.ClientID,
		record.ActivityID,
		record.CalendarDay.Date(),
		record.OccurredAt,
		nullIfEmptyJSON(record.Payload),
		record.CreatedAt,
	)
	if err != nil {
		return nil, false, storageErr(err)
	}

	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		existing, err := r.GetCompletion(ctx, record.TenantID, record.ClientID, record.ActivityID, record.CalendarDay)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, storageErr(fmt.Errorf("completion conflict without stored record for %s/%s/%s", record.ClientID, record.ActivityID, record.CalendarDay))
		}
		return existing, false, nil
	}

	if cadence != nil {
		const update = `UPDATE checkin_cadence
            SET next_due_date=$3, last_completed_date=$4
            WHERE tenant_id=$1 AND client_id=$2`
		if _, err := tx.Exec(ctx, update, cadence.TenantID, cadence.ClientID, cadence.NextDueDate.Date(), nullableDay(cadence.LastCompletedDate)); err != nil {
			return nil, false, storageErr(err)
		}

		if err := insertOutbox(ctx, tx, record.TenantID, "cadence", cadence.ClientID, eventCheckinRescheduled, events.CheckinRescheduled{
			TenantID:    cadence.TenantID,
			ClientID:    cadence.ClientID,
			NextDueDate: cadence.NextDueDate.String(),
			Cause:       events.RescheduleCauseCompletion,
		}); err != nil {
			return nil, false, err
		}
	}

	if err := insertOutbox(ctx, tx, record.TenantID, "completion", record.ID, eventActivityCompleted, events.ActivityCompleted{
		RecordID:    record.ID,
		TenantID:    record.TenantID,
		ClientID:    record.ClientID,
		ActivityID:  record.ActivityID,
		CalendarDay: record.CalendarDay.String(),
		OccurredAt:  record.OccurredAt,
	}); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, storageErr(err)
	}
	observability.RecordCompletionPersisted(record.CreatedAt)
	return &record, true, nil
}

const completionColumns = `record_id, tenant_id, client_id, activity_id, calendar_day, occurred_at, payload, created_at`

// GetCompletion fetches the completion for a natural key. Returns nil when
// no completion exists; performs no writes.
func (r *Repository) GetCompletion(ctx context.Context, tenantID, clientID, activityID string, day domain.CalendarDay) (*domain.CompletionRecord, error) {
	query := `SELECT ` + completionColumns + `
        FROM completion_records
        WHERE tenant_id=$1 AND client_id=$2 AND activity_id=$3 AND calendar_day=$4`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	record, err := scanCompletion(tx.QueryRow(ctx, query, tenantID, clientID, activityID, day.Date()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return record, nil
}

// ListCompletions returns completion history newest-first with keyset
// pagination on (occurred_at, record_id).
func (r *Repository) ListCompletions(ctx context.Context, tenantID, clientID string, cursor *domain.Cursor, limit int) ([]domain.CompletionRecord, *domain.Cursor, error) {
	args := []interface{}{tenantID, clientID, limit}
	query := `SELECT ` + completionColumns + `
        FROM completion_records WHERE tenant_id=$1 AND client_id=$2`

	if cursor != nil {
		query += ` AND (occurred_at, record_id) < ($4, $5)`
		args = append(args, cursor.OccurredAt, cursor.ID)
	}

	query += ` ORDER BY occurred_at DESC, record_id DESC LIMIT $3`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	defer rows.Close()

	records := make([]domain.CompletionRecord, 0, limit)
	for rows.Next() {
		record, err := scanCompletion(rows)
		if err != nil {
			return nil, nil, storageErr(err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, storageErr(err)
	}

	var next *domain.Cursor
	if len(records) == limit {
		last := records[len(records)-1]
		next = &domain.Cursor{OccurredAt: last.OccurredAt, ID: last.ID}
	}
	return records, next, nil
}

// GetCadence reads a client's cadence. Returns nil when none exists.
func (r *Repository) GetCadence(ctx context.Context, tenantID, clientID string) (*domain.CheckinCadence, error) {
	const query = `SELECT tenant_id, client_id, frequency_days, next_due_date, last_completed_date
        FROM checkin_cadence WHERE tenant_id=$1 AND client_id=$2`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cadence, err := scanCadence(tx.QueryRow(ctx, query, tenantID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return cadence, nil
}

// CreateCadence inserts the onboarding cadence row. A client can hold at
// most one cadence; a second create reports ErrCadenceExists.
func (r *Repository) CreateCadence(ctx context.Context, cadence domain.CheckinCadence) error {
	const insert = `INSERT INTO checkin_cadence (tenant_id, client_id, frequency_days, next_due_date, last_completed_date)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_id, client_id) DO NOTHING`

	tx, err := r.beginTenant(ctx, cadence.TenantID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insert, cadence.TenantID, cadence.ClientID, cadence.FrequencyDays, cadence.NextDueDate.Date(), nullableDay(cadence.LastCompletedDate))
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return domain.ErrCadenceExists
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

// RescheduleCadence applies a manual next-due override and records the
// reschedule event in the same transaction.
func (r *Repository) RescheduleCadence(ctx context.Context, tenantID, clientID string, next domain.CalendarDay) (*domain.CheckinCadence, error) {
	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE checkin_cadence SET next_due_date=$3
        WHERE tenant_id=$1 AND client_id=$2
        RETURNING frequency_days, last_completed_date`

	var frequency int
	var lastCompleted *time.Time
	if err := tx.QueryRow(ctx, update, tenantID, clientID, next.Date()).Scan(&frequency, &lastCompleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			tx.Rollback(ctx)
			return nil, domain.ErrCadenceNotFound
		}
		return nil, storageErr(err)
	}

	if err := insertOutbox(ctx, tx, tenantID, "cadence", clientID, eventCheckinRescheduled, events.CheckinRescheduled{
		TenantID:    tenantID,
		ClientID:    clientID,
		NextDueDate: next.String(),
		Cause:       events.RescheduleCauseManual,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}

	cadence := &domain.CheckinCadence{
		TenantID:      tenantID,
		ClientID:      clientID,
		FrequencyDays: frequency,
		NextDueDate:   next,
	}
	if lastCompleted != nil {
		day := domain.DayFromDate(*lastCompleted)
		cadence.LastCompletedDate = &day
	}
	return cadence, nil
}

// ListCadences pages through a tenant's cadences ordered by client id.
func (r *Repository) ListCadences(ctx context.Context, tenantID, afterClientID string, limit int) ([]domain.CheckinCadence, error) {
	const query = `SELECT tenant_id, client_id, frequency_days, next_due_date, last_completed_date
        FROM checkin_cadence
        WHERE tenant_id=$1 AND client_id > $2
        ORDER BY client_id
        LIMIT $3`

	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, tenantID, afterClientID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	cadences := make([]domain.CheckinCadence, 0, limit)
	for rows.Next() {
		cadence, err := scanCadence(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		cadences = append(cadences, *cadence)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err)
	}
	return cadences, nil
}

func scanActivity(row pgx.Row) (*domain.ScheduledActivity, error) {
	var (
		activity  domain.ScheduledActivity
		weekdays  []int16
		validFrom time.Time
		validTo   *time.Time
	)
	if err := row.Scan(&activity.ID, &activity.TenantID, &activity.ClientID, &activity.Kind, &activity.Title, &weekdays, &validFrom, &validTo, &activity.DeletedAt); err != nil {
		return nil, err
	}
	var set domain.WeekdaySet
	for _, d := range weekdays {
		set |= domain.NewWeekdaySet(time.Weekday(d))
	}
	activity.Weekdays = set
	activity.ValidFrom = domain.DayFromDate(validFrom)
	if validTo != nil {
		day := domain.DayFromDate(*validTo)
		activity.ValidTo = &day
	}
	return &activity, nil
}

func scanCompletion(row pgx.Row) (*domain.CompletionRecord, error) {
	var (
		record domain.CompletionRecord
		day    time.Time
	)
	if err := row.Scan(&record.ID, &record.TenantID, &record.ClientID, &record.ActivityID, &day, &record.OccurredAt, &record.Payload, &record.CreatedAt); err != nil {
		return nil, err
	}
	record.CalendarDay = domain.DayFromDate(day)
	return &record, nil
}

func scanCadence(row pgx.Row) (*domain.CheckinCadence, error) {
	var (
		cadence       domain.CheckinCadence
		nextDue       time.Time
		lastCompleted *time.Time
	)
	if err := row.Scan(&cadence.TenantID, &cadence.ClientID, &cadence.FrequencyDays, &nextDue, &lastCompleted); err != nil {
		return nil, err
	}
	cadence.NextDueDate = domain.DayFromDate(nextDue)
	if lastCompleted != nil {
		day := domain.DayFromDate(*lastCompleted)
		cadence.LastCompletedDate = &day
	}
	return &cadence, nil
}

func nullableDay(day *domain.CalendarDay) interface{} {
	if day == nil {
		return nil
	}
	return day.Date()
}

func nullIfEmptyJSON(payload json.RawMessage) interface{} {
	if len(payload) == 0 {
		return nil
	}
	return payload
}

const (
	eventActivityCompleted  = "completion.recorded"
	eventCheckinRescheduled = "checkin.rescheduled"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	eventActivityCompleted: {
		Topic:         "completion_events",
		SchemaSubject: "completion_events-value",
	},
	eventCheckinRescheduled: {
		Topic:         "checkin_cadence_events",
		SchemaSubject: "checkin_cadence_events-value",
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateType, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := fmt.Sprintf("%s:%s", tenantID, aggregateID)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	if _, err := tx.Exec(ctx, stmt,
		tenantID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	); err != nil {
		return storageErr(err)
	}
	return nil
}
