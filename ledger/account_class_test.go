package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/ledger-engine/ledger"
)

func TestAccountClass_Kind(t *testing.T) {
	cases := map[ledger.AccountClass]ledger.AccountKind{
		ledger.ClassChecking:   ledger.KindAsset,
		ledger.ClassSavings:    ledger.KindAsset,
		ledger.ClassInvestment: ledger.KindAsset,
		ledger.ClassCreditCard: ledger.KindLiability,
		ledger.ClassLiability:  ledger.KindLiability,
		ledger.ClassIncome:     ledger.KindIncome,
		ledger.ClassExpense:    ledger.KindExpense,
	}
	for class, kind := range cases {
		assert.Equal(t, kind, class.Kind(), class.DisplayType())
	}
}

func TestAccountClass_OnlyCreditCardIsCredit(t *testing.T) {
	for _, k := range []ledger.AccountKind{ledger.KindAsset, ledger.KindLiability, ledger.KindIncome, ledger.KindExpense} {
		for _, c := range ledger.ClassesOfKind(k) {
			assert.Equal(t, c != ledger.ClassCreditCard, c.IsDebit(), c.DisplayType())
		}
	}
}

func TestAccountClass_Category(t *testing.T) {
	assert.True(t, ledger.ClassIncome.IsCategory())
	assert.True(t, ledger.ClassExpense.IsCategory())
	assert.False(t, ledger.ClassChecking.IsCategory())
	assert.True(t, ledger.ClassCreditCard.BalanceBearing())
	assert.False(t, ledger.AccountClass(1234).Valid())
}

func TestOptional(t *testing.T) {
	var absent ledger.Optional[string]
	assert.False(t, absent.Present())
	assert.Equal(t, "x", absent.Or("x"))

	v, ok := ledger.Some("title").Get()
	assert.True(t, ok)
	assert.Equal(t, "title", v)
	assert.True(t, ledger.Some(false).Present())
}
