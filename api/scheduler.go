/*
scheduler.go - Schedule reminder scanner

PURPOSE:
  Periodically lists scheduled transactions whose reminder window has
  opened and logs one line per schedule. Read-only: it never advances a
  schedule or creates transactions.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Logs each due schedule once per scan
  - Stops on Stop() or when the context passed to Start is cancelled

USAGE:
  scanner := NewReminderScanner(schedules, log)
  scanner.Start(ctx)
  // ... later
  scanner.Stop()

SEE ALSO:
  - handlers.go: DueSchedules endpoint (on-demand listing)
  - schedules/schedules.go: Due
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/schedules"
)

// DueLister is the part of the schedule engine the scanner needs.
type DueLister interface {
	Due(ctx context.Context, asOf ledger.Epoch) ([]ledger.ScheduledTransaction, error)
}

var _ DueLister = (*schedules.Engine)(nil)

// ReminderScanner logs due schedule reminders on an interval.
type ReminderScanner struct {
	Schedules     DueLister
	CheckInterval time.Duration
	Now           func() ledger.Epoch

	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReminderScanner creates a scanner that checks once an hour.
func NewReminderScanner(s DueLister, log zerolog.Logger) *ReminderScanner {
	return &ReminderScanner{
		Schedules:     s,
		CheckInterval: time.Hour,
		Now:           ledger.Now,
		log:           log,
	}
}

// Start begins scanning. It is a no-op if the scanner is already running
// or the interval is not positive.
func (rs *ReminderScanner) Start(ctx context.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel != nil {
		return
	}
	if rs.CheckInterval <= 0 {
		rs.log.Info().Msg("reminder scanner disabled")
		return
	}

	ctx, rs.cancel = context.WithCancel(ctx)
	rs.wg.Add(1)
	go rs.run(ctx)

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("reminder scanner started")
}

// Stop stops the scanner and waits for an in-flight scan to finish.
func (rs *ReminderScanner) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel == nil {
		return
	}
	rs.cancel()
	rs.wg.Wait()
	rs.cancel = nil
	rs.log.Info().Msg("reminder scanner stopped")
}

func (rs *ReminderScanner) run(ctx context.Context) {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	rs.Scan(ctx)

	for {
		select {
		case <-ticker.C:
			rs.Scan(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Scan logs every due schedule and returns how many there were.
func (rs *ReminderScanner) Scan(ctx context.Context) int {
	asOf := rs.Now()
	due, err := rs.Schedules.Due(ctx, asOf)
	if err != nil {
		rs.log.Error().Err(err).Msg("failed to list due schedules")
		return 0
	}

	for _, s := range due {
		rs.log.Info().
			Int64("schedule_id", s.ID).
			Int64("template_id", s.TemplateID).
			Str("next_date", s.NextDate.String()).
			Str("reminder_date", s.ReminderDate().String()).
			Msg("scheduled transaction due")
	}
	rs.log.Debug().Str("as_of", asOf.String()).Int("due", len(due)).Msg("reminder scan complete")
	return len(due)
}
