package domain

// CadenceStatus is the derived due-state of a client's periodic check-in.
// It is computed from dates on demand and never stored.
type CadenceStatus string

const (
	CadenceNotDue  CadenceStatus = "not_due"
	CadenceDue     CadenceStatus = "due"
	CadenceOverdue CadenceStatus = "overdue"
)

// CheckinCadence tracks when a client's next periodic check-in falls due.
// One row per client, created at onboarding; mutated only by check-in
// completion or an explicit reschedule.
type CheckinCadence struct {
	TenantID          string
	ClientID          string
	FrequencyDays     int
	NextDueDate       CalendarDay
	LastCompletedDate *CalendarDay
}

// Status derives the due-state for the given day. Due only on the exact
// next-due day, Overdue strictly after, NotDue strictly before.
func (c CheckinCadence) Status(today CalendarDay) CadenceStatus {
	switch {
	case today.After(c.NextDueDate):
		return CadenceOverdue
	case today.Equal(c.NextDueDate):
		return CadenceDue
	default:
		return CadenceNotDue
	}
}

// CompleteOn advances the cadence from a check-in completed on day.
// The next due date is always completionDay + frequency, relative to the
// actual completion day rather than the previous due date, so early and
// late check-ins both reset the cycle cleanly.
func (c *CheckinCadence) CompleteOn(day CalendarDay) {
	completed := day
	c.LastCompletedDate = &completed
	c.NextDueDate = day.AddDays(c.FrequencyDays)
}
