package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/events"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/persistence/memory"
)

const (
	testTenant = "tenant-a"
	testClient = "client-1"
)

func newFixture(t *testing.T, now time.Time) (*domain.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	repo.AddClient(domain.Client{
		ID:          testClient,
		TenantID:    testTenant,
		DisplayName: "Dana",
		Active:      true,
	})
	return domain.NewService(repo, domain.FixedClock(now)), repo
}

func seedWorkout(repo *memory.Repository, id string) {
	repo.AddActivity(domain.ScheduledActivity{
		ID:        id,
		TenantID:  testTenant,
		ClientID:  testClient,
		Kind:      domain.ActivityKindWorkout,
		Title:     "Strength block",
		Weekdays:  domain.NewWeekdaySet(time.Monday, time.Wednesday, time.Friday),
		ValidFrom: domain.CalendarDay{2025, time.January, 1},
	})
}

func TestRecordCompletionCreatesRecord(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	outcome, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now,
	})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyCompleted)
	require.NotEmpty(t, outcome.Record.ID)
	require.Equal(t, domain.CalendarDay{2025, time.January, 15}, outcome.Record.CalendarDay)

	recorded := repo.Events()
	require.Len(t, recorded, 1)
	completed, ok := recorded[0].(events.ActivityCompleted)
	require.True(t, ok)
	require.Equal(t, outcome.Record.ID, completed.RecordID)
	require.Equal(t, "2025-01-15", completed.CalendarDay)
}

func TestRecordCompletionReplaySameDay(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	first, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now,
	})
	require.NoError(t, err)

	// Same client, activity, and reference day; a different instant.
	second, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now.Add(6 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, second.AlreadyCompleted)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, first.Record.OccurredAt, second.Record.OccurredAt)

	// The replay produced no second event.
	require.Len(t, repo.Events(), 1)
}

func TestRecordCompletionNextDayIsNewRecord(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	first, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now,
	})
	require.NoError(t, err)

	second, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	require.False(t, second.AlreadyCompleted)
	require.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestRecordCompletionConcurrentSubmissions(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	const submitters = 16
	outcomes := make([]*domain.CompletionOutcome, submitters)
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
				TenantID:   testTenant,
				ClientID:   testClient,
				ActivityID: "act-1",
				OccurredAt: now.Add(time.Duration(i) * time.Minute),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	created := 0
	var winnerID string
	for _, outcome := range outcomes {
		if !outcome.AlreadyCompleted {
			created++
			winnerID = outcome.Record.ID
		}
	}
	require.Equal(t, 1, created, "exactly one submission wins")
	for _, outcome := range outcomes {
		require.Equal(t, winnerID, outcome.Record.ID, "every caller sees the winning record")
	}
	require.Len(t, repo.Events(), 1)
}

func TestRecordCompletionCheckinAdvancesCadence(t *testing.T) {
	now := time.Date(2025, time.January, 9, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	repo.AddActivity(domain.ScheduledActivity{
		ID:        "checkin-1",
		TenantID:  testTenant,
		ClientID:  testClient,
		Kind:      domain.ActivityKindCheckin,
		Title:     "Weekly check-in",
		Weekdays:  domain.NewWeekdaySet(time.Friday),
		ValidFrom: domain.CalendarDay{2025, time.January, 1},
	})
	require.NoError(t, repo.CreateCadence(context.Background(), domain.CheckinCadence{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
		NextDueDate:   domain.CalendarDay{2025, time.January, 10},
	}))

	outcome, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "checkin-1",
		OccurredAt: now,
	})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyCompleted)

	cadence, err := repo.GetCadence(context.Background(), testTenant, testClient)
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 16}, cadence.NextDueDate)
	require.Equal(t, domain.CalendarDay{2025, time.January, 9}, *cadence.LastCompletedDate)

	recorded := repo.Events()
	require.Len(t, recorded, 2)
	rescheduled, ok := recorded[0].(events.CheckinRescheduled)
	require.True(t, ok)
	require.Equal(t, "2025-01-16", rescheduled.NextDueDate)
	require.Equal(t, events.RescheduleCauseCompletion, rescheduled.Cause)
}

func TestRecordCompletionCheckinReplayDoesNotReAdvance(t *testing.T) {
	now := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	repo.AddActivity(domain.ScheduledActivity{
		ID:        "checkin-1",
		TenantID:  testTenant,
		ClientID:  testClient,
		Kind:      domain.ActivityKindCheckin,
		Weekdays:  domain.NewWeekdaySet(time.Friday),
		ValidFrom: domain.CalendarDay{2025, time.January, 1},
	})
	require.NoError(t, repo.CreateCadence(context.Background(), domain.CheckinCadence{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
		NextDueDate:   domain.CalendarDay{2025, time.January, 10},
	}))

	_, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "checkin-1",
		OccurredAt: now,
	})
	require.NoError(t, err)

	replay, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "checkin-1",
		OccurredAt: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, replay.AlreadyCompleted)

	cadence, err := repo.GetCadence(context.Background(), testTenant, testClient)
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 17}, cadence.NextDueDate, "cadence advanced once, not twice")
	require.Len(t, repo.Events(), 2)
}

func TestRecordCompletionCheckinWithoutCadenceStillRecords(t *testing.T) {
	now := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	repo.AddActivity(domain.ScheduledActivity{
		ID:        "checkin-1",
		TenantID:  testTenant,
		ClientID:  testClient,
		Kind:      domain.ActivityKindCheckin,
		Weekdays:  domain.NewWeekdaySet(time.Friday),
		ValidFrom: domain.CalendarDay{2025, time.January, 1},
	})

	outcome, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "checkin-1",
		OccurredAt: now,
	})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyCompleted)
	require.Len(t, repo.Events(), 1)
}

func TestRecordCompletionValidation(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	_, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "occurred_at", verr.Field)

	_, err = svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   "nobody",
		ActivityID: "act-1",
		OccurredAt: now,
	})
	require.ErrorIs(t, err, domain.ErrClientNotFound)

	_, err = svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "missing",
		OccurredAt: now,
	})
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestRecordCompletionRejectsForeignActivity(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	repo.AddActivity(domain.ScheduledActivity{
		ID:        "act-other",
		TenantID:  testTenant,
		ClientID:  "client-2",
		Kind:      domain.ActivityKindWorkout,
		Weekdays:  domain.NewWeekdaySet(time.Monday),
		ValidFrom: domain.CalendarDay{2025, time.January, 1},
	})

	_, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-other",
		OccurredAt: now,
	})
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestRecordCompletionInactiveClient(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	repo.AddClient(domain.Client{ID: testClient, TenantID: testTenant, Active: false})
	seedWorkout(repo, "act-1")

	_, err := svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now,
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "client_id", verr.Field)
}

func TestDueTodayUsesInjectedClock(t *testing.T) {
	// 22:30 UTC on Tuesday 2025-01-14 is already Wednesday in the
	// reference zone; the Wednesday activity must show as due.
	now := time.Date(2025, time.January, 14, 22, 30, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	due, today, err := svc.DueToday(context.Background(), testTenant, testClient)
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 15}, today)
	require.Len(t, due, 1)
	require.Equal(t, "act-1", due[0].ID)
}

func TestDueOnUnknownClient(t *testing.T) {
	svc, _ := newFixture(t, time.Now())

	_, err := svc.DueOn(context.Background(), testTenant, "nobody", domain.CalendarDay{2025, time.January, 15})
	require.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestCreateCadenceDefaultsFirstDueDate(t *testing.T) {
	now := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC)
	svc, _ := newFixture(t, now)

	cadence, err := svc.CreateCadence(context.Background(), domain.CreateCadenceInput{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
	})
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 17}, cadence.NextDueDate)
}

func TestCreateCadenceRejectsNonPositiveFrequency(t *testing.T) {
	svc, _ := newFixture(t, time.Now())

	for _, freq := range []int{0, -3} {
		_, err := svc.CreateCadence(context.Background(), domain.CreateCadenceInput{
			TenantID:      testTenant,
			ClientID:      testClient,
			FrequencyDays: freq,
		})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "frequency_days", verr.Field)
	}
}

func TestCreateCadenceDuplicate(t *testing.T) {
	svc, _ := newFixture(t, time.Now())

	input := domain.CreateCadenceInput{TenantID: testTenant, ClientID: testClient, FrequencyDays: 7}
	_, err := svc.CreateCadence(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.CreateCadence(context.Background(), input)
	require.ErrorIs(t, err, domain.ErrCadenceExists)
}

func TestCheckinStatusReflectsToday(t *testing.T) {
	now := time.Date(2025, time.January, 11, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	require.NoError(t, repo.CreateCadence(context.Background(), domain.CheckinCadence{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
		NextDueDate:   domain.CalendarDay{2025, time.January, 10},
	}))

	overview, err := svc.CheckinStatus(context.Background(), testTenant, testClient)
	require.NoError(t, err)
	require.Equal(t, domain.CadenceOverdue, overview.Status)
	require.Equal(t, domain.CalendarDay{2025, time.January, 11}, overview.Today)
}

func TestCheckinStatusNoCadence(t *testing.T) {
	svc, _ := newFixture(t, time.Now())

	_, err := svc.CheckinStatus(context.Background(), testTenant, testClient)
	require.ErrorIs(t, err, domain.ErrCadenceNotFound)
}

func TestRescheduleCheckin(t *testing.T) {
	now := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	require.NoError(t, repo.CreateCadence(context.Background(), domain.CheckinCadence{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
		NextDueDate:   domain.CalendarDay{2025, time.January, 10},
	}))

	cadence, err := svc.RescheduleCheckin(context.Background(), testTenant, testClient, domain.CalendarDay{2025, time.January, 20})
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 20}, cadence.NextDueDate)
	require.Equal(t, 7, cadence.FrequencyDays, "frequency untouched by manual override")

	recorded := repo.Events()
	require.Len(t, recorded, 1)
	rescheduled := recorded[0].(events.CheckinRescheduled)
	require.Equal(t, events.RescheduleCauseManual, rescheduled.Cause)
}

func TestRescheduleCheckinToSameDateIsNoOp(t *testing.T) {
	svc, repo := newFixture(t, time.Now())
	require.NoError(t, repo.CreateCadence(context.Background(), domain.CheckinCadence{
		TenantID:      testTenant,
		ClientID:      testClient,
		FrequencyDays: 7,
		NextDueDate:   domain.CalendarDay{2025, time.January, 10},
	}))

	cadence, err := svc.RescheduleCheckin(context.Background(), testTenant, testClient, domain.CalendarDay{2025, time.January, 10})
	require.NoError(t, err)
	require.Equal(t, domain.CalendarDay{2025, time.January, 10}, cadence.NextDueDate)
	require.Empty(t, repo.Events(), "no event for an unchanged date")
}

func TestRescheduleCheckinValidation(t *testing.T) {
	svc, _ := newFixture(t, time.Now())

	_, err := svc.RescheduleCheckin(context.Background(), testTenant, testClient, domain.CalendarDay{})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = svc.RescheduleCheckin(context.Background(), testTenant, testClient, domain.CalendarDay{2025, time.February, 1})
	require.ErrorIs(t, err, domain.ErrCadenceNotFound)
}

func TestIsCompleted(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newFixture(t, now)
	seedWorkout(repo, "act-1")

	day := domain.CalendarDay{2025, time.January, 15}
	done, err := svc.IsCompleted(context.Background(), testTenant, testClient, "act-1", day)
	require.NoError(t, err)
	require.False(t, done)

	_, err = svc.RecordCompletion(context.Background(), domain.RecordCompletionInput{
		TenantID:   testTenant,
		ClientID:   testClient,
		ActivityID: "act-1",
		OccurredAt: now,
	})
	require.NoError(t, err)

	done, err = svc.IsCompleted(context.Background(), testTenant, testClient, "act-1", day)
	require.NoError(t, err)
	require.True(t, done)
}
