// Package events defines the outbound event payloads consumed by the
// notification gate and UI-refresh listeners.
package events

import "time"

// ActivityCompleted is emitted exactly once when a completion record is
// created. Idempotent replays of the same occurrence emit nothing.
type ActivityCompleted struct {
	RecordID    string    `json:"record_id"`
	TenantID    string    `json:"tenant_id"`
	ClientID    string    `json:"client_id"`
	ActivityID  string    `json:"activity_id"`
	CalendarDay string    `json:"calendar_day"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Reschedule causes distinguish a cadence advance driven by a check-in
// completion from a trainer's manual override.
const (
	RescheduleCauseCompletion = "completion"
	RescheduleCauseManual     = "manual"
)

// CheckinRescheduled is emitted exactly once whenever a client's
// next-due-date changes, carrying the cause of the change.
type CheckinRescheduled struct {
	TenantID    string `json:"tenant_id"`
	ClientID    string `json:"client_id"`
	NextDueDate string `json:"next_due_date"`
	Cause       string `json:"cause"`
}
