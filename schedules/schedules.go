/*
Package schedules implements the schedule engine: scheduled-transaction
selectors and the RecurringTransaction rows that carry their reminder
settings.

LAYOUT:
  A schedule is two rows. The RecurringTransaction row holds the reminder
  lead time and the first unprocessed event date; the selector row holds
  the template, the start and next dates and the repeat settings, and
  points at the RecurringTransaction. Create and Delete write both rows in
  one atomic unit.

DEFAULTS:
  Repeat interval 1 (daily), repeat multiplier 1, reminder lead time 7 days.
*/
package schedules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

const (
	DefaultRepeatInterval   = ledger.RepeatDaily
	DefaultRepeatMultiplier = 1
	DefaultReminderDays     = 7
)

// Engine is the schedule engine over one store.
type Engine struct {
	store *sqlite.Store
}

// New creates a schedule engine.
func New(store *sqlite.Store) *Engine {
	return &Engine{store: store}
}

// CreateInput describes a new schedule. Zero repeat settings and an absent
// reminder take the defaults.
type CreateInput struct {
	TemplateID       int64
	StartDate        ledger.Epoch
	RepeatInterval   ledger.RepeatInterval
	RepeatMultiplier int
	ReminderDays     ledger.Optional[int]
}

// ScheduleUpdate lists the fields an update may change.
type ScheduleUpdate struct {
	NextDate         ledger.Optional[ledger.Epoch]
	RepeatInterval   ledger.Optional[ledger.RepeatInterval]
	RepeatMultiplier ledger.Optional[int]
	ReminderDays     ledger.Optional[int]
}

// =============================================================================
// CREATE / DELETE
// =============================================================================

// Create inserts the RecurringTransaction row, then the selector that
// references it and the template.
func (e *Engine) Create(ctx context.Context, in CreateInput) (int64, error) {
	interval := in.RepeatInterval
	if interval == 0 {
		interval = DefaultRepeatInterval
	}
	multiplier := in.RepeatMultiplier
	if multiplier == 0 {
		multiplier = DefaultRepeatMultiplier
	}
	reminder := in.ReminderDays.Or(DefaultReminderDays)

	var id int64
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		recurringID, err := e.store.Insert(ctx, q, sqlite.EntityRecurringTransaction,
			[]string{"ZPREMINDDAYSINADVANCE", "ZPFIRSTUNPROCESSEDEVENTDATE"},
			reminder, in.StartDate,
		)
		if err != nil {
			return err
		}
		id, err = e.store.Insert(ctx, q, sqlite.SelectorEntity(ledger.SelectorScheduled),
			[]string{"ZPTRANSACTIONTEMPLATE", "ZPSTARTDATE", "ZPNEXTDATE", "ZPREPEATINTERVAL", "ZPREPEATMULTIPLIER", "ZPRECURRINGTRANSACTION", "ZPMODIFICATIONDATE"},
			in.TemplateID, in.StartDate, in.StartDate, int(interval), multiplier, recurringID, ledger.Now(),
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("schedule_id", id).
		Int64("template_id", in.TemplateID).
		Str("start", in.StartDate.String()).
		Msg("schedule created")
	return id, nil
}

// Delete removes the selector and, when linked, its RecurringTransaction.
func (e *Engine) Delete(ctx context.Context, id int64) (bool, error) {
	where, err := e.scheduleFilter(id)
	if err != nil {
		return false, err
	}

	var deleted bool
	err = e.store.WithTx(ctx, func(q sqlite.Querier) error {
		var link sql.NullInt64
		err := q.QueryRowContext(ctx,
			`SELECT ZPRECURRINGTRANSACTION FROM ZSELECTOR WHERE Z_PK = ?`, id,
		).Scan(&link)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to load schedule: %w", err)
		}

		n, err := sqlite.Delete(ctx, q, "ZSELECTOR", where)
		if err != nil {
			return err
		}
		deleted = n > 0
		if !deleted || !link.Valid {
			return nil
		}
		_, err = sqlite.Delete(ctx, q, "ZRECURRINGTRANSACTION", sqlite.ByID(link.Int64))
		return err
	})
	return deleted, err
}

// =============================================================================
// UPDATE / ADVANCE
// =============================================================================

// Update applies a partial update to the selector and, for the reminder
// lead time, to its RecurringTransaction.
func (e *Engine) Update(ctx context.Context, id int64, u ScheduleUpdate) (bool, error) {
	where, err := e.scheduleFilter(id)
	if err != nil {
		return false, err
	}

	var changed bool
	err = e.store.WithTx(ctx, func(q sqlite.Querier) error {
		s, err := e.get(ctx, q, id)
		if err != nil || s == nil {
			return err
		}

		n, err := sqlite.NewUpdate("ZSELECTOR").
			Set("ZPNEXTDATE", u.NextDate).
			Set("ZPREPEATINTERVAL", u.RepeatInterval).
			Set("ZPREPEATMULTIPLIER", u.RepeatMultiplier).
			Touch().
			Exec(ctx, q, where)
		if err != nil {
			return err
		}
		changed = n > 0

		if u.ReminderDays.Present() && s.RecurringTransactionID != nil {
			n, err := sqlite.NewUpdate("ZRECURRINGTRANSACTION").
				Set("ZPREMINDDAYSINADVANCE", u.ReminderDays).
				Exec(ctx, q, sqlite.ByID(*s.RecurringTransactionID))
			if err != nil {
				return err
			}
			changed = changed || n > 0
		}
		return nil
	})
	return changed, err
}

// Advance moves the schedule to its next occurrence and records the new
// date as the first unprocessed event. Returns the updated schedule, or
// nil if it does not exist.
func (e *Engine) Advance(ctx context.Context, id int64) (*ledger.ScheduledTransaction, error) {
	var out *ledger.ScheduledTransaction
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		s, err := e.get(ctx, q, id)
		if err != nil || s == nil {
			return err
		}

		next := s.NextAfter(s.NextDate)
		if _, err := sqlite.NewUpdate("ZSELECTOR").
			Set("ZPNEXTDATE", ledger.Some(next)).
			Touch().
			Exec(ctx, q, sqlite.ByID(id)); err != nil {
			return err
		}
		if s.RecurringTransactionID != nil {
			if _, err := sqlite.NewUpdate("ZRECURRINGTRANSACTION").
				Set("ZPFIRSTUNPROCESSEDEVENTDATE", ledger.Some(next)).
				Exec(ctx, q, sqlite.ByID(*s.RecurringTransactionID)); err != nil {
				return err
			}
		}

		s.NextDate = next
		s.FirstUnprocessedDate = next
		out = s
		return nil
	})
	if err == nil && out != nil {
		zerolog.Ctx(ctx).Debug().Int64("schedule_id", id).Str("next", out.NextDate.String()).Msg("schedule advanced")
	}
	return out, err
}

// =============================================================================
// READS
// =============================================================================

const scheduleSelect = `
	SELECT s.Z_PK, s.ZPTRANSACTIONTEMPLATE, s.ZPSTARTDATE, s.ZPNEXTDATE,
	       COALESCE(s.ZPREPEATINTERVAL, 1), COALESCE(s.ZPREPEATMULTIPLIER, 1), s.ZPRECURRINGTRANSACTION,
	       COALESCE(r.ZPREMINDDAYSINADVANCE, 7), r.ZPFIRSTUNPROCESSEDEVENTDATE
	FROM ZSELECTOR s
	LEFT JOIN ZRECURRINGTRANSACTION r ON r.Z_PK = s.ZPRECURRINGTRANSACTION
	WHERE s.Z_ENT = ?`

// Get returns a schedule by id, or nil.
func (e *Engine) Get(ctx context.Context, id int64) (*ledger.ScheduledTransaction, error) {
	return e.get(ctx, e.store.DB(), id)
}

func (e *Engine) get(ctx context.Context, q sqlite.Querier, id int64) (*ledger.ScheduledTransaction, error) {
	ent, err := e.store.Ent(sqlite.EntityScheduledTransactionSelector)
	if err != nil {
		return nil, err
	}
	s, err := scanSchedule(q.QueryRowContext(ctx, scheduleSelect+` AND s.Z_PK = ?`, ent, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &s, nil
}

// List returns every schedule ordered by next occurrence.
func (e *Engine) List(ctx context.Context) ([]ledger.ScheduledTransaction, error) {
	ent, err := e.store.Ent(sqlite.EntityScheduledTransactionSelector)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.DB().QueryContext(ctx, scheduleSelect+` ORDER BY s.ZPNEXTDATE, s.Z_PK`, ent)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []ledger.ScheduledTransaction
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Due returns schedules whose reminder window has opened by asOf.
func (e *Engine) Due(ctx context.Context, asOf ledger.Epoch) ([]ledger.ScheduledTransaction, error) {
	all, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	var due []ledger.ScheduledTransaction
	for _, s := range all {
		if s.ReminderDate() <= asOf {
			due = append(due, s)
		}
	}
	return due, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (ledger.ScheduledTransaction, error) {
	var (
		s         ledger.ScheduledTransaction
		interval  int
		recurring sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.TemplateID, &s.StartDate, &s.NextDate,
		&interval, &s.RepeatMultiplier, &recurring, &s.ReminderDays, &s.FirstUnprocessedDate); err != nil {
		return s, err
	}
	s.RepeatInterval = ledger.RepeatInterval(interval)
	if recurring.Valid {
		s.RecurringTransactionID = &recurring.Int64
	}
	return s, nil
}

func (e *Engine) scheduleFilter(id int64) (sqlite.Filter, error) {
	return sqlite.ByID(id).OfEntity(e.store, sqlite.EntityScheduledTransactionSelector)
}
