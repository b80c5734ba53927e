// Package sweep implements the read-only overdue check-in scan.
package sweep

import (
	"context"
	"log"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/observability"
)

// Sweeper pages through cadences and derives each client's check-in
// status. It performs no writes, so a cancelled or crashed sweep leaves
// nothing to clean up.
type Sweeper struct {
	repo      domain.Repository
	clock     domain.Clock
	batchSize int
}

// NewSweeper constructs a Sweeper.
func NewSweeper(repo domain.Repository, clock domain.Clock, batchSize int) *Sweeper {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Sweeper{repo: repo, clock: clock, batchSize: batchSize}
}

// Result summarises one sweep over a tenant.
type Result struct {
	Scanned int
	Due     []domain.CheckinCadence
	Overdue []domain.CheckinCadence
}

// Run scans every cadence of the tenant and classifies it against today's
// calendar day.
func (s *Sweeper) Run(ctx context.Context, tenantID string) (*Result, error) {
	today := domain.DayOf(s.clock.Now())
	result := &Result{}

	after := ""
	for {
		batch, err := s.repo.ListCadences(ctx, tenantID, after, s.batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, cadence := range batch {
			result.Scanned++
			switch cadence.Status(today) {
			case domain.CadenceDue:
				result.Due = append(result.Due, cadence)
			case domain.CadenceOverdue:
				result.Overdue = append(result.Overdue, cadence)
			}
		}

		after = batch[len(batch)-1].ClientID
		if len(batch) < s.batchSize {
			break
		}
	}

	observability.RecordOverdueClients(tenantID, len(result.Overdue))
	for _, cadence := range result.Overdue {
		log.Printf("sweep: client %s overdue since %s (frequency %dd)", cadence.ClientID, cadence.NextDueDate, cadence.FrequencyDays)
	}
	return result, nil
}
