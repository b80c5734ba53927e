package domain

import (
	"encoding/json"
	"time"
)

// Client is the read-only directory entry for a coached client. Owned by
// an external directory service.
type Client struct {
	ID          string
	TenantID    string
	DisplayName string
	Active      bool
}

// CompletionRecord is the immutable ledger entry for one completed due
// occurrence. At most one record exists per (client, activity, calendar
// day) natural key.
type CompletionRecord struct {
	ID          string
	TenantID    string
	ClientID    string
	ActivityID  string
	CalendarDay CalendarDay
	OccurredAt  time.Time
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// CompletionOutcome reports the result of recording a completion. When
// AlreadyCompleted is true the record is the pre-existing one for the
// natural key; this is a successful idempotent replay, not an error.
type CompletionOutcome struct {
	Record           CompletionRecord
	AlreadyCompleted bool
}

// Cursor models the pagination token for completion history listings.
type Cursor struct {
	OccurredAt time.Time
	ID         string
}
