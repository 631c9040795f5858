/*
Package transactions creates, updates and deletes transactions and their
line items while keeping every account's running balances correct.

CRITICAL INVARIANT:
  For a fixed account, order its line items by (owning transaction's date,
  line item id). Each line item's running balance equals the sum of the
  amounts up to and including itself.

  The running balance is materialized on the row, so anything that changes
  an account's membership or ordering must be followed by
  RecalculateRunningBalances for that account:
  - line item inserted, deleted, amount changed
  - line item moved to another account (both accounts)
  - owning transaction's date changed (every account it touches)

ATOMICITY:
  Every mutation, including the recalculation it triggers, runs inside one
  store.WithTx unit. A failure anywhere (for example a line item naming an
  account that does not exist) leaves the previous state untouched.

NOT FOUND:
  Update and Delete on a missing id return false without error. An update
  with no fields present also returns false; callers tell the two apart by
  convention only.

SEE ALSO:
  - running_balance.go: the recalculation walk
  - line_items.go: line-item level operations
*/
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// Engine is the transaction engine over one store.
type Engine struct {
	store *sqlite.Store
}

// New creates a transaction engine.
func New(store *sqlite.Store) *Engine {
	return &Engine{store: store}
}

// LineItemInput describes one leg of a new transaction.
type LineItemInput struct {
	AccountID int64
	Amount    decimal.Decimal
	Memo      string
	Cleared   bool
}

// CreateInput describes a new transaction.
type CreateInput struct {
	Title           string
	Date            ledger.Epoch
	Note            string
	Cleared         bool
	TransactionType string // display name or short code; unknown names are ignored
	LineItems       []LineItemInput
}

// TransactionUpdate lists the fields an update may change.
type TransactionUpdate struct {
	Title           ledger.Optional[string]
	Date            ledger.Optional[ledger.Epoch]
	Note            ledger.Optional[string]
	Cleared         ledger.Optional[bool]
	Void            ledger.Optional[bool]
	TransactionType ledger.Optional[string]
}

// =============================================================================
// CREATE
// =============================================================================

// Create inserts a transaction and its line items, then recalculates every
// account touched. Returns the new transaction id.
func (e *Engine) Create(ctx context.Context, in CreateInput) (int64, error) {
	var id int64
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		typeID, err := e.resolveType(ctx, q, in.TransactionType)
		if err != nil {
			return err
		}

		now := ledger.Now()
		id, err = e.store.Insert(ctx, q, sqlite.EntityTransaction,
			[]string{"ZPUNIQUEID", "ZPDATE", "ZPTITLE", "ZPNOTE", "ZPCLEARED", "ZPVOID", "ZPTRANSACTIONTYPE", "ZPCREATIONDATE", "ZPMODIFICATIONDATE"},
			uuid.NewString(), in.Date, in.Title, nullString(in.Note), in.Cleared, false, typeID, now, now,
		)
		if err != nil {
			return err
		}

		touched := make([]int64, 0, len(in.LineItems))
		for _, li := range in.LineItems {
			if _, err := e.insertLineItem(ctx, q, id, li); err != nil {
				return err
			}
			touched = append(touched, li.AccountID)
		}
		return e.recalculate(ctx, q, touched...)
	})
	if err != nil {
		return 0, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("transaction_id", id).
		Str("date", in.Date.String()).
		Int("line_items", len(in.LineItems)).
		Msg("transaction created")
	return id, nil
}

// resolveType finds a transaction type by display name or short code.
// Empty or unknown names resolve to nil.
func (e *Engine) resolveType(ctx context.Context, q sqlite.Querier, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT Z_PK FROM ZTRANSACTIONTYPE
		WHERE LOWER(ZPNAME) = LOWER(?) OR LOWER(ZPSHORTNAME) = LOWER(?)
		ORDER BY Z_PK LIMIT 1`, name, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		zerolog.Ctx(ctx).Debug().Str("transaction_type", name).Msg("transaction type not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transaction type: %w", err)
	}
	return &id, nil
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

// Update applies a partial update. When the date moves, every account the
// transaction touches is recalculated, since its position relative to
// other transactions may have changed.
func (e *Engine) Update(ctx context.Context, id int64, u TransactionUpdate) (bool, error) {
	var changed bool
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		typeID := ledger.None[*int64]()
		if name, ok := u.TransactionType.Get(); ok {
			resolved, err := e.resolveType(ctx, q, name)
			if err != nil {
				return err
			}
			typeID = ledger.Some(resolved)
		}
		note := ledger.None[sql.NullString]()
		if v, ok := u.Note.Get(); ok {
			note = ledger.Some(nullString(v))
		}

		where, err := sqlite.ByID(id).OfEntity(e.store, sqlite.EntityTransaction)
		if err != nil {
			return err
		}
		n, err := sqlite.NewUpdate("ZTRANSACTION").
			Set("ZPTITLE", u.Title).
			Set("ZPDATE", u.Date).
			Set("ZPNOTE", note).
			Set("ZPCLEARED", u.Cleared).
			Set("ZPVOID", u.Void).
			Set("ZPTRANSACTIONTYPE", typeID).
			Touch().
			Exec(ctx, q, where)
		if err != nil {
			return err
		}
		changed = n > 0

		if changed && u.Date.Present() {
			accounts, err := accountsOf(ctx, q, id)
			if err != nil {
				return err
			}
			return e.recalculate(ctx, q, accounts...)
		}
		return nil
	})
	return changed, err
}

// Delete removes a transaction, its line items and their tag associations,
// then recalculates the accounts those line items belonged to.
func (e *Engine) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		accounts, err := accountsOf(ctx, q, id)
		if err != nil {
			return err
		}

		if _, err := sqlite.Delete(ctx, q, "Z_LINEITEMTAGS",
			sqlite.Where("Z_LINEITEM IN (SELECT Z_PK FROM ZLINEITEM WHERE ZPTRANSACTION = ?)", id)); err != nil {
			return err
		}
		if _, err := sqlite.Delete(ctx, q, "ZLINEITEM", sqlite.Where("ZPTRANSACTION = ?", id)); err != nil {
			return err
		}
		n, err := sqlite.Delete(ctx, q, "ZTRANSACTION", sqlite.ByID(id))
		if err != nil {
			return err
		}
		deleted = n > 0
		if !deleted {
			return nil
		}
		return e.recalculate(ctx, q, accounts...)
	})
	if err == nil && deleted {
		zerolog.Ctx(ctx).Debug().Int64("transaction_id", id).Msg("transaction deleted")
	}
	return deleted, err
}

// =============================================================================
// READS
// =============================================================================

// Get returns a transaction with its line items (by id), or nil.
func (e *Engine) Get(ctx context.Context, id int64) (*ledger.Transaction, error) {
	var (
		t      ledger.Transaction
		note   sql.NullString
		typeID sql.NullInt64
	)
	err := e.store.DB().QueryRowContext(ctx, `
		SELECT Z_PK, Z_OPT, ZPUNIQUEID, ZPDATE, ZPTITLE, ZPNOTE, ZPCLEARED, ZPVOID, ZPTRANSACTIONTYPE
		FROM ZTRANSACTION WHERE Z_PK = ?`, id,
	).Scan(&t.ID, &t.Version, &t.UniqueID, &t.Date, &t.Title, &note, &t.Cleared, &t.Void, &typeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	t.Note = note.String
	if typeID.Valid {
		t.TransactionTypeID = &typeID.Int64
	}

	t.LineItems, err = queryLineItems(ctx, e.store.DB(), `
		SELECT li.Z_PK, li.ZPTRANSACTION, li.ZPACCOUNT, li.ZPTRANSACTIONAMOUNT, li.ZPMEMO,
		       li.ZPRUNNINGBALANCE, li.ZPCLEARED, t.ZPDATE
		FROM ZLINEITEM li JOIN ZTRANSACTION t ON t.Z_PK = li.ZPTRANSACTION
		WHERE li.ZPTRANSACTION = ?
		ORDER BY li.Z_PK`, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LineItems returns an account's register in running-balance order.
func (e *Engine) LineItems(ctx context.Context, accountID int64) ([]ledger.LineItem, error) {
	return queryLineItems(ctx, e.store.DB(), `
		SELECT li.Z_PK, li.ZPTRANSACTION, li.ZPACCOUNT, li.ZPTRANSACTIONAMOUNT, li.ZPMEMO,
		       li.ZPRUNNINGBALANCE, li.ZPCLEARED, t.ZPDATE
		FROM ZLINEITEM li JOIN ZTRANSACTION t ON t.Z_PK = li.ZPTRANSACTION
		WHERE li.ZPACCOUNT = ?
		ORDER BY t.ZPDATE ASC, li.Z_PK ASC`, accountID)
}

func queryLineItems(ctx context.Context, q sqlite.Querier, query string, args ...any) ([]ledger.LineItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var out []ledger.LineItem
	for rows.Next() {
		var (
			li   ledger.LineItem
			memo sql.NullString
		)
		if err := rows.Scan(&li.ID, &li.TransactionID, &li.AccountID, &li.Amount, &memo,
			&li.RunningBalance, &li.Cleared, &li.Date); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		li.Memo = memo.String
		out = append(out, li)
	}
	return out, rows.Err()
}

// accountsOf returns the distinct accounts referenced by a transaction's
// line items.
func accountsOf(ctx context.Context, q sqlite.Querier, transactionID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT ZPACCOUNT FROM ZLINEITEM WHERE ZPTRANSACTION = ? ORDER BY ZPACCOUNT`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
