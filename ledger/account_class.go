package ledger

import "fmt"

// AccountClass is the numeric class code stored on every account.
// Codes below 6000 are balance-bearing accounts; 6000 is income and 7000
// is expense.
type AccountClass int

const (
	ClassCash       AccountClass = 1000
	ClassSavings    AccountClass = 1002
	ClassChecking   AccountClass = 1006
	ClassInvestment AccountClass = 2000
	ClassAsset      AccountClass = 3000
	ClassLiability  AccountClass = 4000
	ClassCreditCard AccountClass = 5001
	ClassIncome     AccountClass = 6000
	ClassExpense    AccountClass = 7000
)

// AccountKind is the accounting classification derived from the class code.
type AccountKind string

const (
	KindAsset     AccountKind = "asset"
	KindLiability AccountKind = "liability"
	KindIncome    AccountKind = "income"
	KindExpense   AccountKind = "expense"
)

var displayTypes = map[AccountClass]string{
	ClassCash:       "cash",
	ClassSavings:    "savings",
	ClassChecking:   "checking",
	ClassInvestment: "investment",
	ClassAsset:      "asset",
	ClassLiability:  "liability",
	ClassCreditCard: "credit card",
	ClassIncome:     "income",
	ClassExpense:    "expense",
}

// Valid reports whether c is a known class code.
func (c AccountClass) Valid() bool {
	_, ok := displayTypes[c]
	return ok
}

// DisplayType is the fixed display name for the class.
func (c AccountClass) DisplayType() string {
	if s, ok := displayTypes[c]; ok {
		return s
	}
	return fmt.Sprintf("class %d", int(c))
}

// Kind classifies the account by numeric range.
func (c AccountClass) Kind() AccountKind {
	switch {
	case c >= ClassExpense:
		return KindExpense
	case c >= ClassIncome:
		return KindIncome
	case c >= ClassLiability:
		return KindLiability
	default:
		return KindAsset
	}
}

// BalanceBearing is true for every class below income.
func (c AccountClass) BalanceBearing() bool { return c < ClassIncome }

// IsCategory is true for income and expense classes.
func (c AccountClass) IsCategory() bool { return !c.BalanceBearing() }

// IsDebit reports the natural side of the account. Every class is
// debit-natured except credit cards.
func (c AccountClass) IsDebit() bool { return c != ClassCreditCard }

// ClassesOfKind returns the known class codes with the given kind.
func ClassesOfKind(k AccountKind) []AccountClass {
	var out []AccountClass
	for _, c := range []AccountClass{
		ClassCash, ClassSavings, ClassChecking, ClassInvestment, ClassAsset,
		ClassLiability, ClassCreditCard, ClassIncome, ClassExpense,
	} {
		if c.Kind() == k {
			out = append(out, c)
		}
	}
	return out
}
