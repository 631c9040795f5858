package transactions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// =============================================================================
// RUNNING BALANCES
// =============================================================================
//
// Recalculation is a full linear rescan of one account's history, not an
// incremental patch. Ordering is (transaction date, line item id); ids are
// allocated monotonically, so the tie-break is insertion order and repeated
// runs produce identical output.

// RecalculateRunningBalances rewrites the running balance of every line
// item in the account.
func (e *Engine) RecalculateRunningBalances(ctx context.Context, accountID int64) error {
	return e.store.WithTx(ctx, func(q sqlite.Querier) error {
		return e.recalculate(ctx, q, accountID)
	})
}

// RecalculateAll repairs every account that holds line items and returns
// how many accounts were walked.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	var count int
	err := e.store.WithTx(ctx, func(q sqlite.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT DISTINCT ZPACCOUNT FROM ZLINEITEM ORDER BY ZPACCOUNT`)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		count = len(ids)
		return e.recalculate(ctx, q, ids...)
	})
	return count, err
}

type balanceRow struct {
	id     int64
	amount decimal.Decimal
	stored decimal.Decimal
}

// recalculate walks each distinct account once. Rows whose stored balance
// already matches are not rewritten.
func (e *Engine) recalculate(ctx context.Context, q sqlite.Querier, accountIDs ...int64) error {
	for _, accountID := range distinct(accountIDs) {
		items, err := loadBalanceRows(ctx, q, accountID)
		if err != nil {
			return err
		}

		running := decimal.Zero
		written := 0
		for _, it := range items {
			running = running.Add(it.amount)
			if ledger.RoundAmount(running).Equal(ledger.RoundAmount(it.stored)) {
				continue
			}
			if _, err := q.ExecContext(ctx,
				`UPDATE ZLINEITEM SET ZPRUNNINGBALANCE = ? WHERE Z_PK = ?`,
				running.InexactFloat64(), it.id,
			); err != nil {
				return sqlite.Translate("update running balance", err)
			}
			written++
		}

		zerolog.Ctx(ctx).Debug().
			Int64("account_id", accountID).
			Int("line_items", len(items)).
			Int("rewritten", written).
			Msg("running balances recalculated")
	}
	return nil
}

func loadBalanceRows(ctx context.Context, q sqlite.Querier, accountID int64) ([]balanceRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT li.Z_PK, li.ZPTRANSACTIONAMOUNT, li.ZPRUNNINGBALANCE
		FROM ZLINEITEM li
		JOIN ZTRANSACTION t ON t.Z_PK = li.ZPTRANSACTION
		WHERE li.ZPACCOUNT = ?
		ORDER BY t.ZPDATE ASC, li.Z_PK ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var out []balanceRow
	for rows.Next() {
		var r balanceRow
		if err := rows.Scan(&r.id, &r.amount, &r.stored); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
