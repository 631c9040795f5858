package accounts_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/accounts"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
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

// post records a two-legged transaction: amount into "to", the opposite out of "from".
func (f *fixture) post(t *testing.T, date string, from, to int64, amount string) int64 {
	amt := decimal.RequireFromString(amount)
	id, err := f.engine.Create(context.Background(), transactions.CreateInput{
		Title: "t",
		Date:  ledger.MustEpoch(date),
		LineItems: []transactions.LineItemInput{
			{AccountID: from, Amount: amt.Neg()},
			{AccountID: to, Amount: amt},
		},
	})
	require.NoError(t, err)
	return id
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_DerivesVariantAndNature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checking := f.account(t, "Checking", ledger.ClassChecking)
	card := f.account(t, "Visa", ledger.ClassCreditCard)
	groceries := f.account(t, "Groceries", ledger.ClassExpense)

	a, err := f.accounts.Get(ctx, checking)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.Debit)
	assert.False(t, a.IsCategory())
	assert.Equal(t, "Checking", a.FullName, "full name defaults to name")
	require.NotNil(t, a.CurrencyID)
	assert.Equal(t, int64(1), *a.CurrencyID, "defaults to the first currency")

	c, err := f.accounts.Get(ctx, card)
	require.NoError(t, err)
	assert.False(t, c.Debit, "credit cards are credit-natured")

	g, err := f.accounts.Get(ctx, groceries)
	require.NoError(t, err)
	assert.True(t, g.IsCategory())

	wantEnt := map[int64]int{checking: 2, card: 2, groceries: 3}
	for id, want := range wantEnt {
		var ent int
		require.NoError(t, f.store.DB().QueryRowContext(ctx,
			`SELECT Z_ENT FROM ZACCOUNT WHERE Z_PK = ?`, id).Scan(&ent))
		assert.Equal(t, want, ent)
	}
}

func TestCreate_RejectsUnknownClass(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.Create(context.Background(), accounts.CreateInput{Name: "x", Class: 1234})
	assert.ErrorIs(t, err, ledger.ErrInvalidAccountClass)
}

func TestResolveCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.accounts.ResolveCurrency(ctx, "usd")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(1), *id)

	id, err = f.accounts.ResolveCurrency(ctx, "XYZ")
	require.NoError(t, err)
	require.NotNil(t, id, "unknown codes fall back to the default currency")
	assert.Equal(t, int64(1), *id)
}

// =============================================================================
// UPDATE / LOOKUP
// =============================================================================

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "Savings", ledger.ClassSavings)

	ok, err := f.accounts.Update(ctx, id, accounts.AccountUpdate{})
	require.NoError(t, err)
	assert.False(t, ok, "no fields present")

	ok, err = f.accounts.Update(ctx, 999, accounts.AccountUpdate{Hidden: ledger.Some(true)})
	require.NoError(t, err)
	assert.False(t, ok, "missing account")

	ok, err = f.accounts.Update(ctx, id, accounts.AccountUpdate{
		FullName: ledger.Some("Savings:Emergency"),
		Hidden:   ledger.Some(true),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := f.accounts.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Savings", a.Name)
	assert.Equal(t, "Savings:Emergency", a.FullName)
	assert.True(t, a.Hidden)
	assert.Equal(t, int64(2), a.Version)

	visible, err := f.accounts.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := f.accounts.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetAndFindByName_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Checking", ledger.ClassChecking)

	a, err := f.accounts.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = f.accounts.FindByName(ctx, "CHECKING")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Checking", a.Name)

	a, err = f.accounts.FindByName(ctx, "Brokerage")
	require.NoError(t, err)
	assert.Nil(t, a)
}

// =============================================================================
// BALANCES AND REPORTS
// =============================================================================

func TestBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	salary := f.account(t, "Salary", ledger.ClassIncome)
	rent := f.account(t, "Rent", ledger.ClassExpense)

	bal, err := f.accounts.Balance(ctx, checking)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "no line items")

	f.post(t, "2024-01-01", salary, checking, "2500.10")
	f.post(t, "2024-01-02", checking, rent, "1200.05")

	bal, err = f.accounts.Balance(ctx, checking)
	require.NoError(t, err)
	assert.True(t, dec("1300.05").Equal(bal), "got %s", bal)
}

func TestCategoryAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	groceries := f.account(t, "Groceries", ledger.ClassExpense)
	rent := f.account(t, "Rent", ledger.ClassExpense)
	salary := f.account(t, "Salary", ledger.ClassIncome)

	f.post(t, "2024-01-05", checking, groceries, "40")
	f.post(t, "2024-01-06", checking, groceries, "60")
	f.post(t, "2024-01-10", checking, rent, "900")
	f.post(t, "2024-02-05", checking, groceries, "25")
	f.post(t, "2024-01-01", salary, checking, "3000")

	rows, err := f.accounts.CategoryAnalysis(ctx, ledger.KindExpense, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rent, rows[0].AccountID, "largest total first")
	assert.True(t, dec("900").Equal(rows[0].Total))
	assert.Equal(t, groceries, rows[1].AccountID)
	assert.True(t, dec("125").Equal(rows[1].Total))
	assert.Equal(t, 3, rows[1].TransactionCount)

	jan, err := ledger.NewPeriod("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	rows, err = f.accounts.CategoryAnalysis(ctx, ledger.KindExpense, &jan)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, dec("100").Equal(rows[1].Total))
	assert.Equal(t, 2, rows[1].TransactionCount)

	income, err := f.accounts.CategoryAnalysis(ctx, ledger.KindIncome, nil)
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.True(t, dec("-3000").Equal(income[0].Total))

	_, err = f.accounts.CategoryAnalysis(ctx, ledger.KindAsset, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidAccountClass)
}

func TestNetWorth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.account(t, "Checking", ledger.ClassChecking)
	savings := f.account(t, "Savings", ledger.ClassSavings)
	card := f.account(t, "Visa", ledger.ClassCreditCard)
	salary := f.account(t, "Salary", ledger.ClassIncome)
	dining := f.account(t, "Dining", ledger.ClassExpense)

	f.post(t, "2024-01-01", salary, checking, "1000")
	f.post(t, "2024-01-02", checking, savings, "250")
	f.post(t, "2024-01-03", card, dining, "80.25")

	nw, err := f.accounts.NetWorth(ctx)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(nw.Assets), "got %s", nw.Assets)
	assert.True(t, dec("-80.25").Equal(nw.Liabilities), "got %s", nw.Liabilities)
	assert.True(t, dec("919.75").Equal(nw.Total), "got %s", nw.Total)
}
