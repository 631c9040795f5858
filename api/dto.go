/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes for the HTTP front end. Domain types in package ledger stay
  free of JSON tags; handlers convert at the edge.

NAMING CONVENTION:
  - *DTO:     response types returned to clients
  - *Request: request body types from clients

CONVENTIONS:
  - Dates are ISO calendar dates (YYYY-MM-DD), never epochs.
  - Amounts are decimal strings ("-50.00"); numbers are accepted on input.
  - Update requests use pointer fields: nil means "leave unchanged".
  - Line items may name their account by id or by name.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account or category.
type AccountDTO struct {
	ID         int64  `json:"id"`
	UniqueID   string `json:"unique_id"`
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	Class      int    `json:"class"`
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	Debit      bool   `json:"debit"`
	Hidden     bool   `json:"hidden"`
	IsCategory bool   `json:"is_category"`
	CurrencyID *int64 `json:"currency_id,omitempty"`
}

// CreateAccountRequest is the request to create an account.
type CreateAccountRequest struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Class    int    `json:"class"`
	Currency string `json:"currency"`
	Hidden   bool   `json:"hidden"`
}

// UpdateAccountRequest is a partial account update.
type UpdateAccountRequest struct {
	Name     *string `json:"name"`
	FullName *string `json:"full_name"`
	Hidden   *bool   `json:"hidden"`
}

// BalanceDTO is an account balance.
type BalanceDTO struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// CategoryTotalDTO is one row of a category analysis.
type CategoryTotalDTO struct {
	AccountID        int64           `json:"account_id"`
	Name             string          `json:"name"`
	Total            decimal.Decimal `json:"total"`
	TransactionCount int             `json:"transaction_count"`
}

// NetWorthDTO is the net-worth report.
type NetWorthDTO struct {
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	NetWorth    decimal.Decimal `json:"net_worth"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a transaction with its line items.
type TransactionDTO struct {
	ID                int64         `json:"id"`
	UniqueID          string        `json:"unique_id"`
	Date              string        `json:"date"`
	Title             string        `json:"title"`
	Note              string        `json:"note,omitempty"`
	Cleared           bool          `json:"cleared"`
	Void              bool          `json:"void"`
	TransactionTypeID *int64        `json:"transaction_type_id,omitempty"`
	LineItems         []LineItemDTO `json:"line_items"`
}

// LineItemDTO represents one line item.
type LineItemDTO struct {
	ID             int64           `json:"id"`
	TransactionID  int64           `json:"transaction_id"`
	AccountID      int64           `json:"account_id"`
	Date           string          `json:"date,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Memo           string          `json:"memo,omitempty"`
	Cleared        bool            `json:"cleared"`
}

// LineItemRequest is one leg of a new transaction. Account is a name,
// used when AccountID is zero.
type LineItemRequest struct {
	AccountID int64           `json:"account_id"`
	Account   string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo"`
	Cleared   bool            `json:"cleared"`
}

// CreateTransactionRequest is the request to create a transaction.
type CreateTransactionRequest struct {
	Title           string            `json:"title"`
	Date            string            `json:"date"`
	Note            string            `json:"note"`
	Cleared         bool              `json:"cleared"`
	TransactionType string            `json:"transaction_type"`
	LineItems       []LineItemRequest `json:"line_items"`
}

// UpdateTransactionRequest is a partial transaction update.
type UpdateTransactionRequest struct {
	Title           *string `json:"title"`
	Date            *string `json:"date"`
	Note            *string `json:"note"`
	Cleared         *bool   `json:"cleared"`
	Void            *bool   `json:"void"`
	TransactionType *string `json:"transaction_type"`
}

// UpdateLineItemRequest is a partial line-item update.
type UpdateLineItemRequest struct {
	AccountID *int64           `json:"account_id"`
	Amount    *decimal.Decimal `json:"amount"`
	Memo      *string          `json:"memo"`
	Cleared   *bool            `json:"cleared"`
}

// ChangedDTO reports the outcome of an update or delete.
type ChangedDTO struct {
	Changed bool `json:"changed"`
}

// CountDTO reports how many rows an operation affected.
type CountDTO struct {
	Count int `json:"count"`
}

// =============================================================================
// TAGS, TEMPLATES, SELECTORS
// =============================================================================

// TagDTO represents a tag.
type TagDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CanonicalName string `json:"canonical_name"`
}

// CreateTagRequest is the request to create a tag.
type CreateTagRequest struct {
	Name string `json:"name"`
}

// TemplateDTO represents a transaction template.
type TemplateDTO struct {
	ID        int64                 `json:"id"`
	UniqueID  string                `json:"unique_id"`
	Title     string                `json:"title"`
	Amount    decimal.Decimal       `json:"amount"`
	Note      string                `json:"note,omitempty"`
	LineItems []LineItemTemplateDTO `json:"line_items,omitempty"`
}

// LineItemTemplateDTO is one line of a template; AccountID is the
// account's unique id.
type LineItemTemplateDTO struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
}

// CreateTemplateRequest is the request to create a template.
type CreateTemplateRequest struct {
	Title     string                `json:"title"`
	Amount    decimal.Decimal       `json:"amount"`
	Note      string                `json:"note"`
	LineItems []LineItemTemplateDTO `json:"line_items"`
}

// ImportRuleDTO represents an import rule.
type ImportRuleDTO struct {
	ID            int64  `json:"id"`
	TemplateID    int64  `json:"template_id"`
	TemplateTitle string `json:"template_title"`
	Pattern       string `json:"pattern"`
	AccountID     string `json:"account_id,omitempty"`
	Payee         string `json:"payee,omitempty"`
}

// CreateRuleRequest is the request to create an import rule.
type CreateRuleRequest struct {
	TemplateID int64  `json:"template_id"`
	Pattern    string `json:"pattern"`
	AccountID  string `json:"account_id"`
	Payee      string `json:"payee"`
}

// MatchRequest asks which rules match a description.
type MatchRequest struct {
	Description string `json:"description"`
}

// ScheduleDTO represents a scheduled transaction.
type ScheduleDTO struct {
	ID                   int64  `json:"id"`
	TemplateID           int64  `json:"template_id"`
	StartDate            string `json:"start_date"`
	NextDate             string `json:"next_date"`
	ReminderDate         string `json:"reminder_date"`
	RepeatInterval       int    `json:"repeat_interval"`
	RepeatMultiplier     int    `json:"repeat_multiplier"`
	ReminderDays         int    `json:"reminder_days"`
	FirstUnprocessedDate string `json:"first_unprocessed_date,omitempty"`
}

// CreateScheduleRequest is the request to create a schedule.
type CreateScheduleRequest struct {
	TemplateID       int64  `json:"template_id"`
	StartDate        string `json:"start_date"`
	RepeatInterval   int    `json:"repeat_interval"`
	RepeatMultiplier int    `json:"repeat_multiplier"`
	ReminderDays     *int   `json:"reminder_days"`
}

// UpdateScheduleRequest is a partial schedule update.
type UpdateScheduleRequest struct {
	NextDate         *string `json:"next_date"`
	RepeatInterval   *int    `json:"repeat_interval"`
	RepeatMultiplier *int    `json:"repeat_multiplier"`
	ReminderDays     *int    `json:"reminder_days"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:         a.ID,
		UniqueID:   a.UniqueID,
		Name:       a.Name,
		FullName:   a.FullName,
		Class:      int(a.Class),
		Type:       a.Class.DisplayType(),
		Kind:       string(a.Class.Kind()),
		Debit:      a.Debit,
		Hidden:     a.Hidden,
		IsCategory: a.IsCategory(),
		CurrencyID: a.CurrencyID,
	}
}

func toLineItemDTO(li ledger.LineItem) LineItemDTO {
	dto := LineItemDTO{
		ID:             li.ID,
		TransactionID:  li.TransactionID,
		AccountID:      li.AccountID,
		Amount:         li.Amount,
		RunningBalance: li.RunningBalance,
		Memo:           li.Memo,
		Cleared:        li.Cleared,
	}
	if li.Date != 0 {
		dto.Date = li.Date.String()
	}
	return dto
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                t.ID,
		UniqueID:          t.UniqueID,
		Date:              t.Date.String(),
		Title:             t.Title,
		Note:              t.Note,
		Cleared:           t.Cleared,
		Void:              t.Void,
		TransactionTypeID: t.TransactionTypeID,
		LineItems:         make([]LineItemDTO, 0, len(t.LineItems)),
	}
	for _, li := range t.LineItems {
		dto.LineItems = append(dto.LineItems, toLineItemDTO(li))
	}
	return dto
}

func toTemplateDTO(t ledger.TransactionTemplate) TemplateDTO {
	dto := TemplateDTO{ID: t.ID, UniqueID: t.UniqueID, Title: t.Title, Amount: t.Amount, Note: t.Note}
	for _, li := range t.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemTemplateDTO{AccountID: li.AccountID, Amount: li.Amount, Memo: li.Memo})
	}
	return dto
}

func toRuleDTO(r ledger.ImportRule) ImportRuleDTO {
	return ImportRuleDTO{
		ID:            r.ID,
		TemplateID:    r.TemplateID,
		TemplateTitle: r.TemplateTitle,
		Pattern:       r.Pattern,
		AccountID:     r.AccountID,
		Payee:         r.Payee,
	}
}

func toScheduleDTO(s ledger.ScheduledTransaction) ScheduleDTO {
	dto := ScheduleDTO{
		ID:               s.ID,
		TemplateID:       s.TemplateID,
		StartDate:        s.StartDate.String(),
		NextDate:         s.NextDate.String(),
		ReminderDate:     s.ReminderDate().String(),
		RepeatInterval:   int(s.RepeatInterval),
		RepeatMultiplier: s.RepeatMultiplier,
		ReminderDays:     s.ReminderDays,
	}
	if s.FirstUnprocessedDate != 0 {
		dto.FirstUnprocessedDate = s.FirstUnprocessedDate.String()
	}
	return dto
}

// optional maps a nil pointer to an absent field.
func optional[T any](p *T) ledger.Optional[T] {
	if p == nil {
		return ledger.None[T]()
	}
	return ledger.Some(*p)
}
