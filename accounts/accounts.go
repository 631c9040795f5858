/*
Package accounts implements the account ledger: account creation and
updates, balances, category analysis and net worth.

BALANCES:
  Balance is always recomputed from line-item rows. Nothing is cached, so
  it can never drift. The per-line-item running balance maintained by the
  transactions package is a separate, materialized value; Balance is what
  it is checked against.

VARIANTS:
  Accounts and categories share ZACCOUNT. The discriminator is chosen from
  the class code (sqlite.AccountEntity); callers never pass it.

SEE ALSO:
  - ledger/account_class.go: class table, kinds, debit nature
  - transactions: running-balance maintenance
*/
package accounts

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

// Ledger is the account ledger over one store.
type Ledger struct {
	store *sqlite.Store
}

// New creates an account ledger.
func New(store *sqlite.Store) *Ledger {
	return &Ledger{store: store}
}

// CreateInput describes a new account.
type CreateInput struct {
	Name         string
	FullName     string // defaults to Name
	Class        ledger.AccountClass
	CurrencyCode string // defaults to the file's first currency
	Hidden       bool
}

// AccountUpdate lists the fields an update may change.
type AccountUpdate struct {
	Name     ledger.Optional[string]
	FullName ledger.Optional[string]
	Hidden   ledger.Optional[bool]
}

const accountColumns = `Z_PK, Z_OPT, ZPUNIQUEID, ZPNAME, ZPFULLNAME, ZPACCOUNTCLASS, ZPDEBIT, ZPHIDDEN, ZCURRENCY`

// =============================================================================
// CREATE / UPDATE
// =============================================================================

// Create inserts an account and returns its id. Debit nature and the
// account/category discriminator are derived from the class.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (int64, error) {
	if !in.Class.Valid() {
		return 0, fmt.Errorf("%w: %d", ledger.ErrInvalidAccountClass, int(in.Class))
	}
	fullName := in.FullName
	if fullName == "" {
		fullName = in.Name
	}

	var id int64
	err := l.store.WithTx(ctx, func(q sqlite.Querier) error {
		currencyID, err := l.resolveCurrency(ctx, q, in.CurrencyCode)
		if err != nil {
			return err
		}
		now := ledger.Now()
		id, err = l.store.Insert(ctx, q, sqlite.AccountEntity(in.Class),
			[]string{"ZPUNIQUEID", "ZPNAME", "ZPFULLNAME", "ZPACCOUNTCLASS", "ZPDEBIT", "ZPHIDDEN", "ZCURRENCY", "ZPCREATIONDATE", "ZPMODIFICATIONDATE"},
			uuid.NewString(), in.Name, fullName, int(in.Class), in.Class.IsDebit(), in.Hidden, currencyID, now, now,
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("account_id", id).
		Str("name", in.Name).
		Str("type", in.Class.DisplayType()).
		Msg("account created")
	return id, nil
}

// Update applies a partial update. It returns false when the account does
// not exist or no field was supplied.
func (l *Ledger) Update(ctx context.Context, id int64, u AccountUpdate) (bool, error) {
	upd := sqlite.NewUpdate("ZACCOUNT").
		Set("ZPNAME", u.Name).
		Set("ZPFULLNAME", u.FullName).
		Set("ZPHIDDEN", u.Hidden).
		Touch()
	if upd.Empty() {
		return false, nil
	}

	var n int64
	err := l.store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		n, err = upd.Exec(ctx, q, sqlite.ByID(id))
		return err
	})
	return n > 0, err
}

// ResolveCurrency returns the id for an ISO code, or the file's first
// currency when code is empty or unknown. Nil when the file has none.
func (l *Ledger) ResolveCurrency(ctx context.Context, code string) (*int64, error) {
	return l.resolveCurrency(ctx, l.store.DB(), code)
}

func (l *Ledger) resolveCurrency(ctx context.Context, q sqlite.Querier, code string) (*int64, error) {
	var id int64
	if code != "" {
		err := q.QueryRowContext(ctx,
			`SELECT Z_PK FROM ZCURRENCY WHERE UPPER(ZPCODE) = UPPER(?) ORDER BY Z_PK LIMIT 1`, code,
		).Scan(&id)
		if err == nil {
			return &id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		zerolog.Ctx(ctx).Warn().Str("currency", code).Msg("unknown currency code, using default")
	}

	err := q.QueryRowContext(ctx, `SELECT Z_PK FROM ZCURRENCY ORDER BY Z_PK LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

// Get returns an account by id, or nil if it doesn't exist.
func (l *Ledger) Get(ctx context.Context, id int64) (*ledger.Account, error) {
	row := l.store.DB().QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ZACCOUNT WHERE Z_PK = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByName looks an account up by display or full name, ignoring case.
// Returns nil if none matches.
func (l *Ledger) FindByName(ctx context.Context, name string) (*ledger.Account, error) {
	row := l.store.DB().QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ZACCOUNT
		 WHERE LOWER(ZPNAME) = LOWER(?) OR LOWER(ZPFULLNAME) = LOWER(?)
		 ORDER BY Z_PK LIMIT 1`, name, name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns accounts ordered by full name.
func (l *Ledger) List(ctx context.Context, includeHidden bool) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ZACCOUNT`
	if !includeHidden {
		query += ` WHERE ZPHIDDEN = 0`
	}
	query += ` ORDER BY ZPFULLNAME, Z_PK`

	rows, err := l.store.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (ledger.Account, error) {
	var (
		a        ledger.Account
		class    int
		currency sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.Version, &a.UniqueID, &a.Name, &a.FullName,
		&class, &a.Debit, &a.Hidden, &currency); err != nil {
		return a, err
	}
	a.Class = ledger.AccountClass(class)
	if currency.Valid {
		a.CurrencyID = &currency.Int64
	}
	return a, nil
}

// =============================================================================
// BALANCES AND REPORTS
// =============================================================================

// Balance sums every line-item amount of the account. O(n), uncached.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.store.DB().QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ZPTRANSACTIONAMOUNT), 0) FROM ZLINEITEM WHERE ZPACCOUNT = ?`, accountID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute balance: %w", err)
	}
	return ledger.RoundAmount(total), nil
}

// CategoryAnalysis groups line-item amounts by category for income or
// expense, optionally limited to transactions dated within period. Rows
// are ordered by total, largest first.
func (l *Ledger) CategoryAnalysis(ctx context.Context, kind ledger.AccountKind, period *ledger.Period) ([]ledger.CategoryTotal, error) {
	if kind != ledger.KindIncome && kind != ledger.KindExpense {
		return nil, fmt.Errorf("%w: category analysis needs income or expense, got %s", ledger.ErrInvalidAccountClass, kind)
	}

	classes := ledger.ClassesOfKind(kind)
	args := make([]any, len(classes))
	for i, c := range classes {
		args[i] = int(c)
	}
	where := sqlite.Filter{}.In("a.ZPACCOUNTCLASS", args...)
	if period != nil {
		where = where.And("t.ZPDATE >= ? AND t.ZPDATE <= ?", period.Start, period.End)
	}
	clause, clauseArgs := where.Clause()

	rows, err := l.store.DB().QueryContext(ctx, `
		SELECT a.Z_PK, a.ZPNAME, SUM(li.ZPTRANSACTIONAMOUNT) AS total, COUNT(DISTINCT li.ZPTRANSACTION)
		FROM ZLINEITEM li
		JOIN ZACCOUNT a ON a.Z_PK = li.ZPACCOUNT
		JOIN ZTRANSACTION t ON t.Z_PK = li.ZPTRANSACTION`+clause+`
		GROUP BY a.Z_PK, a.ZPNAME
		ORDER BY total DESC, a.ZPNAME`, clauseArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.CategoryTotal
	for rows.Next() {
		var ct ledger.CategoryTotal
		if err := rows.Scan(&ct.AccountID, &ct.Name, &ct.Total, &ct.TransactionCount); err != nil {
			return nil, err
		}
		ct.Total = ledger.RoundAmount(ct.Total)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// NetWorth sums asset accounts and liability accounts. Liabilities come
// out negative, so the total is their sum.
func (l *Ledger) NetWorth(ctx context.Context) (ledger.NetWorth, error) {
	var nw ledger.NetWorth
	err := l.store.DB().QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN a.ZPACCOUNTCLASS < ? THEN li.ZPTRANSACTIONAMOUNT END), 0),
			COALESCE(SUM(CASE WHEN a.ZPACCOUNTCLASS >= ? AND a.ZPACCOUNTCLASS < ? THEN li.ZPTRANSACTIONAMOUNT END), 0)
		FROM ZLINEITEM li
		JOIN ZACCOUNT a ON a.Z_PK = li.ZPACCOUNT`,
		int(ledger.ClassLiability), int(ledger.ClassLiability), int(ledger.ClassIncome),
	).Scan(&nw.Assets, &nw.Liabilities)
	if err != nil {
		return nw, fmt.Errorf("failed to compute net worth: %w", err)
	}
	nw.Assets = ledger.RoundAmount(nw.Assets)
	nw.Liabilities = ledger.RoundAmount(nw.Liabilities)
	nw.Total = nw.Assets.Add(nw.Liabilities)
	return nw, nil
}
