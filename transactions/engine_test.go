package transactions_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/accounts"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/tags"
	"github.com/warp/ledger-engine/transactions"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	store    *sqlite.Store
	accounts *accounts.Ledger
	engine   *transactions.Engine
}

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{store: store, accounts: accounts.New(store), engine: transactions.New(store)}
}

func (f *fixture) account(t *testing.T, name string, class ledger.AccountClass) int64 {
	id, err := f.accounts.Create(context.Background(), accounts.CreateInput{Name: name, Class: class})
	require.NoError(t, err)
	return id
}

func (f *fixture) single(t *testing.T, date string, account int64, amount string) int64 {
	id, err := f.engine.Create(context.Background(), transactions.CreateInput{
		Title: "t",
		Date:  ledger.MustEpoch(date),
		LineItems: []transactions.LineItemInput{
			{AccountID: account, Amount: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	return id
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// runningBalances returns the account's running balances in register order.
func (f *fixture) runningBalances(t *testing.T, account int64) []string {
	items, err := f.engine.LineItems(context.Background(), account)
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, li := range items {
		out[i] = li.RunningBalance.String()
	}
	return out
}

// requireConsistent checks that every running balance is the inclusive
// prefix sum in (date, id) order and that the last one equals Balance.
func (f *fixture) requireConsistent(t *testing.T, account int64) {
	t.Helper()
	ctx := context.Background()
	items, err := f.engine.LineItems(ctx, account)
	require.NoError(t, err)

	sum := decimal.Zero
	for i, li := range items {
		if i > 0 {
			prev := items[i-1]
			require.True(t, prev.Date < li.Date || (prev.Date == li.Date && prev.ID < li.ID),
				"register out of order at %d", li.ID)
		}
		sum = sum.Add(li.Amount)
		require.True(t, ledger.RoundAmount(sum).Equal(ledger.RoundAmount(li.RunningBalance)),
			"line item %d: running %s, want %s", li.ID, li.RunningBalance, sum)
	}

	bal, err := f.accounts.Balance(ctx, account)
	require.NoError(t, err)
	if len(items) == 0 {
		require.True(t, bal.IsZero())
		return
	}
	require.True(t, bal.Equal(ledger.RoundAmount(items[len(items)-1].RunningBalance)),
		"balance %s disagrees with last running balance %s", bal, items[len(items)-1].RunningBalance)
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	var n int
	require.NoError(t, f.store.DB().QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestCreateAndDelete_TwoLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	groceries := f.account(t, "Groceries", ledger.ClassExpense)

	id, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "Groceries",
		Date:  ledger.MustEpoch("2024-01-15"),
		LineItems: []transactions.LineItemInput{
			{AccountID: checking, Amount: dec("-50.00")},
			{AccountID: groceries, Amount: dec("50.00")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"-50"}, f.runningBalances(t, checking))
	assert.Equal(t, []string{"50"}, f.runningBalances(t, groceries))

	txn, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "Groceries", txn.Title)
	assert.Equal(t, "2024-01-15", txn.Date.String())
	assert.Len(t, txn.LineItems, 2)
	assert.NotEmpty(t, txn.UniqueID)

	ok, err := f.engine.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, acct := range []int64{checking, groceries} {
		items, err := f.engine.LineItems(ctx, acct)
		require.NoError(t, err)
		assert.Empty(t, items)
		bal, err := f.accounts.Balance(ctx, acct)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
	}
}

func TestDates_ReadBackThroughDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)

	// GIVEN: one date after the ledger origin and one before it
	later := f.single(t, "2024-01-15", checking, "10")
	earlier := f.single(t, "1999-12-31", checking, "5")

	// WHEN: another writer rewrites a date as a REAL with fractional seconds
	_, err := f.store.DB().ExecContext(ctx,
		`UPDATE ZTRANSACTION SET ZPDATE = ? WHERE Z_PK = ?`, float64(ledger.MustEpoch("2024-01-15"))+0.25, later)
	require.NoError(t, err)

	// THEN: both transactions and the register read back the calendar dates
	txn, err := f.engine.Get(ctx, later)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "2024-01-15", txn.Date.String())

	txn, err = f.engine.Get(ctx, earlier)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "1999-12-31", txn.Date.String())

	items, err := f.engine.LineItems(ctx, checking)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1999-12-31", items[0].Date.String())
	assert.Equal(t, "2024-01-15", items[1].Date.String())
	assert.Equal(t, []string{"5", "15"}, f.runningBalances(t, checking))
}

func TestRunningBalance_OutOfOrderInsert(t *testing.T) {
	f := newFixture(t)
	checking := f.account(t, "Checking", ledger.ClassChecking)

	f.single(t, "2024-01-01", checking, "100")
	f.single(t, "2024-01-03", checking, "30")
	f.single(t, "2024-01-02", checking, "-20")

	assert.Equal(t, []string{"100", "80", "110"}, f.runningBalances(t, checking))
	f.requireConsistent(t, checking)
}

func TestRunningBalance_SameDayTieBreakIsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	checking := f.account(t, "Checking", ledger.ClassChecking)

	f.single(t, "2024-03-01", checking, "10")
	f.single(t, "2024-03-01", checking, "5")
	f.single(t, "2024-02-28", checking, "1")

	assert.Equal(t, []string{"1", "11", "16"}, f.runningBalances(t, checking))
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_DateMoveReorders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	savings := f.account(t, "Savings", ledger.ClassSavings)

	f.single(t, "2024-01-01", checking, "100")
	moved, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "transfer",
		Date:  ledger.MustEpoch("2024-01-05"),
		LineItems: []transactions.LineItemInput{
			{AccountID: checking, Amount: dec("-40")},
			{AccountID: savings, Amount: dec("40")},
		},
	})
	require.NoError(t, err)
	f.single(t, "2024-01-03", checking, "10")
	assert.Equal(t, []string{"100", "110", "70"}, f.runningBalances(t, checking))

	ok, err := f.engine.Update(ctx, moved, transactions.TransactionUpdate{
		Date: ledger.Some(ledger.MustEpoch("2023-12-31")),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"-40", "60", "70"}, f.runningBalances(t, checking))
	f.requireConsistent(t, checking)
	f.requireConsistent(t, savings)
}

func TestUpdate_FieldsAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	id := f.single(t, "2024-01-01", checking, "1")

	ok, err := f.engine.Update(ctx, 999, transactions.TransactionUpdate{Title: ledger.Some("x")})
	require.NoError(t, err)
	assert.False(t, ok, "missing transaction")

	ok, err = f.engine.Update(ctx, id, transactions.TransactionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok, "no fields present")

	ok, err = f.engine.Update(ctx, id, transactions.TransactionUpdate{
		Title:           ledger.Some("Paycheck"),
		Note:            ledger.Some("january"),
		Cleared:         ledger.Some(true),
		Void:            ledger.Some(true),
		TransactionType: ledger.Some("dep"),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	txn, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Paycheck", txn.Title)
	assert.Equal(t, "january", txn.Note)
	assert.True(t, txn.Cleared)
	assert.True(t, txn.Void)
	require.NotNil(t, txn.TransactionTypeID)
	assert.Equal(t, int64(1), *txn.TransactionTypeID, "Deposit resolved by short code")
	assert.Equal(t, int64(2), txn.Version)
}

func TestCreate_TransactionTypeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)

	known, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "a", Date: ledger.MustEpoch("2024-01-01"), TransactionType: "Withdrawal",
		LineItems: []transactions.LineItemInput{{AccountID: checking, Amount: dec("-1")}},
	})
	require.NoError(t, err)
	unknown, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "b", Date: ledger.MustEpoch("2024-01-01"), TransactionType: "Barter",
		LineItems: []transactions.LineItemInput{{AccountID: checking, Amount: dec("-1")}},
	})
	require.NoError(t, err)

	a, err := f.engine.Get(ctx, known)
	require.NoError(t, err)
	require.NotNil(t, a.TransactionTypeID)
	assert.Equal(t, int64(2), *a.TransactionTypeID)

	b, err := f.engine.Get(ctx, unknown)
	require.NoError(t, err)
	assert.Nil(t, b.TransactionTypeID)
}

// =============================================================================
// ATOMICITY AND CASCADES
// =============================================================================

func TestCreate_InvalidAccountLeavesNoRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)

	_, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "broken",
		Date:  ledger.MustEpoch("2024-01-01"),
		LineItems: []transactions.LineItemInput{
			{AccountID: checking, Amount: dec("-10")},
			{AccountID: 4242, Amount: dec("10")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrIntegrity)

	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM ZTRANSACTION`))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM ZLINEITEM`))
}

func TestDelete_RemovesTagAssociations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	dining := f.account(t, "Dining", ledger.ClassExpense)
	index := tags.New(f.store)

	id, err := f.engine.Create(ctx, transactions.CreateInput{
		Title: "Dinner",
		Date:  ledger.MustEpoch("2024-04-01"),
		LineItems: []transactions.LineItemInput{
			{AccountID: checking, Amount: dec("-30")},
			{AccountID: dining, Amount: dec("30")},
		},
	})
	require.NoError(t, err)
	keep := f.single(t, "2024-04-02", checking, "5")

	tag, err := index.Create(ctx, "Vacation")
	require.NoError(t, err)
	n, err := index.TagTransaction(ctx, id, tag)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = index.TagTransaction(ctx, keep, tag)
	require.NoError(t, err)

	ok, err := f.engine.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM ZLINEITEM WHERE ZPTRANSACTION = ?`, id))
	assert.Zero(t, f.count(t,
		`SELECT COUNT(*) FROM Z_LINEITEMTAGS WHERE Z_LINEITEM NOT IN (SELECT Z_PK FROM ZLINEITEM)`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM Z_LINEITEMTAGS`))
	assert.Equal(t, []string{"5"}, f.runningBalances(t, checking))

	ok, err = f.engine.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "already deleted")
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func TestLineItem_ReassignRecalculatesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	savings := f.account(t, "Savings", ledger.ClassSavings)

	f.single(t, "2024-01-01", checking, "100")
	f.single(t, "2024-01-01", savings, "500")
	txn := f.single(t, "2024-01-02", checking, "25")

	got, err := f.engine.Get(ctx, txn)
	require.NoError(t, err)
	lineItem := got.LineItems[0].ID

	ok, err := f.engine.UpdateLineItem(ctx, lineItem, transactions.LineItemUpdate{
		AccountID: ledger.Some(savings),
		Amount:    ledger.Some(dec("30")),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"100"}, f.runningBalances(t, checking))
	assert.Equal(t, []string{"500", "530"}, f.runningBalances(t, savings))
}

func TestLineItem_AddAndDeleteLast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	card := f.account(t, "Visa", ledger.ClassCreditCard)

	txn := f.single(t, "2024-01-01", checking, "-75")
	added, err := f.engine.AddLineItem(ctx, txn, transactions.LineItemInput{AccountID: card, Amount: dec("75")})
	require.NoError(t, err)
	assert.Equal(t, []string{"75"}, f.runningBalances(t, card))

	ok, err := f.engine.DeleteLineItem(ctx, added)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.runningBalances(t, card))
	f.requireConsistent(t, card)

	ok, err = f.engine.DeleteLineItem(ctx, added)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.engine.UpdateLineItem(ctx, added, transactions.LineItemUpdate{Memo: ledger.Some("x")})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.engine.AddLineItem(ctx, 999, transactions.LineItemInput{AccountID: card, Amount: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrIntegrity)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestRecalculate_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	for _, d := range []string{"2024-05-01", "2024-04-01", "2024-05-01", "2024-03-15"} {
		f.single(t, d, checking, "12.34")
	}

	require.NoError(t, f.engine.RecalculateRunningBalances(ctx, checking))
	first := f.runningBalances(t, checking)
	require.NoError(t, f.engine.RecalculateRunningBalances(ctx, checking))
	assert.Equal(t, first, f.runningBalances(t, checking))
}

func TestRecalculateAll_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	savings := f.account(t, "Savings", ledger.ClassSavings)
	f.single(t, "2024-01-01", checking, "10")
	f.single(t, "2024-01-02", checking, "20")
	f.single(t, "2024-01-01", savings, "7")

	_, err := f.store.DB().ExecContext(ctx, `UPDATE ZLINEITEM SET ZPRUNNINGBALANCE = 999`)
	require.NoError(t, err)

	n, err := f.engine.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	f.requireConsistent(t, checking)
	f.requireConsistent(t, savings)
}

func TestRunningBalance_RandomizedSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accts := []int64{
		f.account(t, "Checking", ledger.ClassChecking),
		f.account(t, "Savings", ledger.ClassSavings),
		f.account(t, "Visa", ledger.ClassCreditCard),
	}
	rng := rand.New(rand.NewSource(7))
	base := ledger.MustEpoch("2024-01-01")

	var live []int64
	for i := 0; i < 60; i++ {
		switch op := rng.Intn(4); {
		case op <= 1 || len(live) == 0:
			amount := decimal.New(int64(rng.Intn(20000)-10000), -2)
			id, err := f.engine.Create(ctx, transactions.CreateInput{
				Title: "r",
				Date:  base.AddDays(rng.Intn(30)),
				LineItems: []transactions.LineItemInput{
					{AccountID: accts[rng.Intn(3)], Amount: amount},
					{AccountID: accts[rng.Intn(3)], Amount: amount.Neg()},
				},
			})
			require.NoError(t, err)
			live = append(live, id)
		case op == 2:
			id := live[rng.Intn(len(live))]
			_, err := f.engine.Update(ctx, id, transactions.TransactionUpdate{
				Date: ledger.Some(base.AddDays(rng.Intn(30))),
			})
			require.NoError(t, err)
		default:
			k := rng.Intn(len(live))
			_, err := f.engine.Delete(ctx, live[k])
			require.NoError(t, err)
			live = append(live[:k], live[k+1:]...)
		}
	}

	for _, a := range accts {
		f.requireConsistent(t, a)
	}
}
