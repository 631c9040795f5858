/*
Package ledger provides the domain types shared by every component of the
ledger engine.

PURPOSE:
  Accounts, transactions, line items, tags, templates and selectors as they
  are persisted in a ledger file. Components (accounts, transactions, tags,
  rules, schedules, templates) build on these types and on the store in
  store/sqlite. Nothing in this package touches the database.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: balance-bearing account or income/expense category
  - Transaction + LineItem: one dated event and its per-account legs
  - Tag: case-normalized label attached to line items
  - TransactionTemplate + LineItemTemplate: reusable transaction shapes
  - Selector: ImportRule or ScheduledTransaction, both built on a template

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal, never float64
  2. Derived state is explicit: LineItem.RunningBalance is a snapshot that
     the transactions package keeps correct, not something computed on read
  3. Row identity is the per-table primary key (Z_PK), an int64

SEE ALSO:
  - epoch.go: DateCodec (calendar date <-> stored epoch)
  - account_class.go: account class table and classification
  - optional.go: Optional[T] for partial updates
  - errors.go: sentinel and structured errors
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept when a sum comes back
// from SQL as a float.
const AmountScale = 4

// RoundAmount normalizes a summed amount to AmountScale places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// Currency is a currency row referenced by accounts.
type Currency struct {
	ID   int64
	Code string
	Name string
}

// Account is a balance-bearing account or an income/expense category.
// Which one is decided by Class, never by the caller.
type Account struct {
	ID         int64
	UniqueID   string
	Name       string
	FullName   string
	Class      AccountClass
	Debit      bool
	Hidden     bool
	CurrencyID *int64
	Version    int64
}

// IsCategory reports whether the account is an income or expense category.
func (a Account) IsCategory() bool { return a.Class.IsCategory() }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionType is a named kind of transaction (Deposit, Check, ...).
type TransactionType struct {
	ID        int64
	Name      string
	ShortName string
}

// Transaction is one dated event. It owns its line items.
type Transaction struct {
	ID                int64
	UniqueID          string
	Date              Epoch
	Title             string
	Note              string
	Cleared           bool
	Void              bool
	TransactionTypeID *int64
	Version           int64
	LineItems         []LineItem
}

// LineItem is one leg of a transaction: one account, one signed amount.
type LineItem struct {
	ID             int64
	TransactionID  int64
	AccountID      int64
	Amount         decimal.Decimal
	Memo           string
	RunningBalance decimal.Decimal
	Cleared        bool

	// Date of the owning transaction; filled by register queries.
	Date Epoch
}

// Tag is a label attached to line items. CanonicalName is unique.
type Tag struct {
	ID            int64
	Name          string
	CanonicalName string
}

// =============================================================================
// TEMPLATES AND SELECTORS
// =============================================================================

// TransactionTemplate is a reusable payee/amount/note template.
type TransactionTemplate struct {
	ID        int64
	UniqueID  string
	Title     string
	Amount    decimal.Decimal
	Note      string
	LineItems []LineItemTemplate
}

// LineItemTemplate references its account by the account's UniqueID, not
// its row id, so templates survive being exported and imported elsewhere.
type LineItemTemplate struct {
	ID        int64
	AccountID string
	Amount    decimal.Decimal
	Memo      string
}

// SelectorKind identifies which variant a selector row holds.
type SelectorKind int

const (
	SelectorImportRule SelectorKind = iota + 1
	SelectorScheduled
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorImportRule:
		return "import_rule"
	case SelectorScheduled:
		return "scheduled_transaction"
	default:
		return "unknown"
	}
}

// Selector is a row of the shared selector table. It is either an
// *ImportRule or a *ScheduledTransaction.
type Selector interface {
	Kind() SelectorKind
	Template() int64
}

// ImportRule suggests a template for imported transactions whose
// description matches Pattern (case-insensitive regular expression).
type ImportRule struct {
	ID            int64
	TemplateID    int64
	TemplateTitle string
	Pattern       string
	AccountID     string
	Payee         string
}

func (r *ImportRule) Kind() SelectorKind { return SelectorImportRule }
func (r *ImportRule) Template() int64    { return r.TemplateID }

// RepeatInterval is the unit a schedule repeats in.
type RepeatInterval int

const (
	RepeatDaily   RepeatInterval = 1
	RepeatWeekly  RepeatInterval = 2
	RepeatMonthly RepeatInterval = 3
	RepeatYearly  RepeatInterval = 4
)

// ScheduledTransaction creates transactions from a template on a
// recurrence. It owns one RecurringTransaction row.
type ScheduledTransaction struct {
	ID                     int64
	TemplateID             int64
	StartDate              Epoch
	NextDate               Epoch
	RepeatInterval         RepeatInterval
	RepeatMultiplier       int
	RecurringTransactionID *int64
	ReminderDays           int
	FirstUnprocessedDate   Epoch
}

func (s *ScheduledTransaction) Kind() SelectorKind { return SelectorScheduled }
func (s *ScheduledTransaction) Template() int64    { return s.TemplateID }

// ReminderDate is the first date a reminder is due for the next occurrence.
func (s *ScheduledTransaction) ReminderDate() Epoch {
	return s.NextDate.AddDays(-s.ReminderDays)
}

// NextAfter returns the occurrence following d for the schedule's repeat
// settings.
func (s *ScheduledTransaction) NextAfter(d Epoch) Epoch {
	n := s.RepeatMultiplier
	if n < 1 {
		n = 1
	}
	switch s.RepeatInterval {
	case RepeatWeekly:
		return d.AddDays(7 * n)
	case RepeatMonthly:
		return d.AddMonths(n)
	case RepeatYearly:
		return d.AddMonths(12 * n)
	default:
		return d.AddDays(n)
	}
}

// =============================================================================
// REPORTS
// =============================================================================

// CategoryTotal is one row of a category analysis.
type CategoryTotal struct {
	AccountID        int64
	Name             string
	Total            decimal.Decimal
	TransactionCount int
}

// NetWorth splits total holdings into assets and liabilities.
// Liabilities are naturally negative, so Total = Assets + Liabilities.
type NetWorth struct {
	Assets      decimal.Decimal
	Liabilities decimal.Decimal
	Total       decimal.Decimal
}
