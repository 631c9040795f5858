package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// LineItemUpdate lists the fields a line-item update may change.
type LineItemUpdate struct {
	AccountID ledger.Optional[int64]
	Amount    ledger.Optional[decimal.Decimal]
	Memo      ledger.Optional[string]
	Cleared   ledger.Optional[bool]
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// AddLineItem appends a line item to an existing transaction and
// recalculates its account.
func (e *Engine) AddLineItem(ctx context.Context, transactionID int64, in LineItemInput) (int64, error) {
	var id int64
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		id, err = e.insertLineItem(ctx, q, transactionID, in)
		if err != nil {
			return err
		}
		return e.recalculate(ctx, q, in.AccountID)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateLineItem applies a partial update. A changed amount recalculates
// the account; a changed account recalculates both the old and the new one.
// Line-item updates do not bump the version counter.
func (e *Engine) UpdateLineItem(ctx context.Context, id int64, u LineItemUpdate) (bool, error) {
	amount := ledger.None[float64]()
	if v, ok := u.Amount.Get(); ok {
		amount = ledger.Some(v.InexactFloat64())
	}
	memo := ledger.None[sql.NullString]()
	if v, ok := u.Memo.Get(); ok {
		memo = ledger.Some(nullString(v))
	}

	var changed bool
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		oldAccount, found, err := lineItemAccount(ctx, q, id)
		if err != nil || !found {
			return err
		}

		n, err := sqlite.NewUpdate("ZLINEITEM").
			Set("ZPACCOUNT", u.AccountID).
			Set("ZPTRANSACTIONAMOUNT", amount).
			Set("ZPMEMO", memo).
			Set("ZPCLEARED", u.Cleared).
			Exec(ctx, q, sqlite.ByID(id))
		if err != nil {
			return err
		}
		changed = n > 0
		if !changed || (!u.AccountID.Present() && !u.Amount.Present()) {
			return nil
		}
		return e.recalculate(ctx, q, oldAccount, u.AccountID.Or(oldAccount))
	})
	return changed, err
}

// DeleteLineItem removes one line item and its tag associations, then
// recalculates its account. The owning transaction is kept even when it
// ends up with no line items.
func (e *Engine) DeleteLineItem(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		account, found, err := lineItemAccount(ctx, q, id)
		if err != nil || !found {
			return err
		}

		if _, err := sqlite.Delete(ctx, q, "Z_LINEITEMTAGS", sqlite.Where("Z_LINEITEM = ?", id)); err != nil {
			return err
		}
		n, err := sqlite.Delete(ctx, q, "ZLINEITEM", sqlite.ByID(id))
		if err != nil {
			return err
		}
		deleted = n > 0
		return e.recalculate(ctx, q, account)
	})
	return deleted, err
}

// insertLineItem writes a line item with a zero running balance; the
// caller recalculates the account before the unit commits.
func (e *Engine) insertLineItem(ctx context.Context, q sqlite.Querier, transactionID int64, in LineItemInput) (int64, error) {
	return e.store.Insert(ctx, q, sqlite.EntityLineItem,
		[]string{"ZPTRANSACTION", "ZPACCOUNT", "ZPTRANSACTIONAMOUNT", "ZPMEMO", "ZPRUNNINGBALANCE", "ZPCLEARED"},
		transactionID, in.AccountID, in.Amount.InexactFloat64(), nullString(in.Memo), 0.0, in.Cleared,
	)
}

func lineItemAccount(ctx context.Context, q sqlite.Querier, id int64) (int64, bool, error) {
	var account int64
	err := q.QueryRowContext(ctx, `SELECT ZPACCOUNT FROM ZLINEITEM WHERE Z_PK = ?`, id).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load line item: %w", err)
	}
	return account, true, nil
}
