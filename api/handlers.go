/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger components via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the component packages. Handlers hold
  no ledger logic of their own.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List accounts (?hidden=true)
    POST   /api/accounts                    Create account or category
    GET    /api/accounts/{id}               Get account
    PATCH  /api/accounts/{id}               Partial update
    GET    /api/accounts/{id}/balance       Current balance
    GET    /api/accounts/{id}/register      Line items with running balances
    POST   /api/accounts/{id}/recalculate   Rebuild running balances

  Reports:
    GET    /api/reports/categories          ?kind=expense|income&from=&to=
    GET    /api/reports/net-worth

  Transactions:
    POST   /api/transactions                Create with line items
    GET    /api/transactions/{id}
    PATCH  /api/transactions/{id}
    DELETE /api/transactions/{id}
    POST   /api/transactions/{id}/line-items

  Tags, templates, rules, schedules: see server.go.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, dangling references, unknown account names
  - 403: Write against a ledger opened read-only
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/ledger-engine/accounts"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logger"
	"github.com/warp/ledger-engine/rules"
	"github.com/warp/ledger-engine/schedules"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/tags"
	"github.com/warp/ledger-engine/templates"
	"github.com/warp/ledger-engine/transactions"
)

// maxImportBytes caps template import bodies.
const maxImportBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	Store        *sqlite.Store
	Accounts     *accounts.Ledger
	Transactions *transactions.Engine
	Tags         *tags.Index
	Templates    *templates.Catalog
	Rules        *rules.Matcher
	Schedules    *schedules.Engine
}

// NewHandler creates a new handler with every component bound to store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:        store,
		Accounts:     accounts.New(store),
		Transactions: transactions.New(store),
		Tags:         tags.New(store),
		Templates:    templates.New(store),
		Rules:        rules.New(store),
		Schedules:    schedules.New(store),
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns accounts and categories.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeHidden, _ := strconv.ParseBool(r.URL.Query().Get("hidden"))

	list, err := h.Accounts.List(r.Context(), includeHidden)
	if err != nil {
		fail(w, r, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, 0, len(list))
	for _, a := range list {
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates an account or category.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	ctx := r.Context()
	id, err := h.Accounts.Create(ctx, accounts.CreateInput{
		Name:         req.Name,
		FullName:     req.FullName,
		Class:        ledger.AccountClass(req.Class),
		CurrencyCode: req.Currency,
		Hidden:       req.Hidden,
	})
	if err != nil {
		fail(w, r, "Failed to create account", err)
		return
	}

	a, err := h.Accounts.Get(ctx, id)
	if err != nil || a == nil {
		fail(w, r, "Failed to load account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*a))
}

// GetAccount returns one account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*a))
}

// UpdateAccount applies a partial update.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid account id", err)
		return
	}
	var req UpdateAccountRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	changed, err := h.Accounts.Update(r.Context(), id, accounts.AccountUpdate{
		Name:     optional(req.Name),
		FullName: optional(req.FullName),
		Hidden:   optional(req.Hidden),
	})
	if err != nil {
		fail(w, r, "Failed to update account", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// GetBalance returns the sum of the account's line items.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	balance, err := h.Accounts.Balance(r.Context(), a.ID)
	if err != nil {
		fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{AccountID: a.ID, Balance: balance})
}

// GetRegister returns the account's line items in (date, id) order with
// their running balances.
func (h *Handler) GetRegister(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	items, err := h.Transactions.LineItems(r.Context(), a.ID)
	if err != nil {
		fail(w, r, "Failed to load register", err)
		return
	}

	dtos := make([]LineItemDTO, 0, len(items))
	for _, li := range items {
		dtos = append(dtos, toLineItemDTO(li))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecalculateAccount rebuilds one account's running balances.
func (h *Handler) RecalculateAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := h.Transactions.RecalculateRunningBalances(r.Context(), a.ID); err != nil {
		fail(w, r, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "recalculated", "account_id": a.ID})
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) (*ledger.Account, bool) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid account id", err)
		return nil, false
	}
	a, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to get account", err)
		return nil, false
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return nil, false
	}
	return a, true
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// CategoryAnalysis totals income or expense categories.
func (h *Handler) CategoryAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := ledger.AccountKind(q.Get("kind"))
	if kind == "" {
		kind = ledger.KindExpense
	}

	var period *ledger.Period
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		p, err := ledger.NewPeriod(from, to)
		if err != nil {
			fail(w, r, "Invalid period", err)
			return
		}
		period = &p
	}

	totals, err := h.Accounts.CategoryAnalysis(r.Context(), kind, period)
	if err != nil {
		fail(w, r, "Failed to analyze categories", err)
		return
	}

	dtos := make([]CategoryTotalDTO, 0, len(totals))
	for _, ct := range totals {
		dtos = append(dtos, CategoryTotalDTO{
			AccountID:        ct.AccountID,
			Name:             ct.Name,
			Total:            ct.Total,
			TransactionCount: ct.TransactionCount,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// NetWorth returns assets, liabilities and their sum.
func (h *Handler) NetWorth(w http.ResponseWriter, r *http.Request) {
	nw, err := h.Accounts.NetWorth(r.Context())
	if err != nil {
		fail(w, r, "Failed to compute net worth", err)
		return
	}
	writeJSON(w, http.StatusOK, NetWorthDTO{Assets: nw.Assets, Liabilities: nw.Liabilities, NetWorth: nw.Total})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction creates a transaction and its line items.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	date, err := ledger.ToEpoch(req.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}

	in := transactions.CreateInput{
		Title:           req.Title,
		Date:            date,
		Note:            req.Note,
		Cleared:         req.Cleared,
		TransactionType: req.TransactionType,
	}
	for _, li := range req.LineItems {
		item, err := h.lineItemInput(ctx, li)
		if err != nil {
			fail(w, r, "Invalid line item", err)
			return
		}
		in.LineItems = append(in.LineItems, item)
	}

	id, err := h.Transactions.Create(ctx, in)
	if err != nil {
		fail(w, r, "Failed to create transaction", err)
		return
	}

	logger.FromContext(ctx).Info().
		Int64("transaction_id", id).
		Int("line_items", len(in.LineItems)).
		Msg("transaction created")

	h.writeTransaction(w, r, http.StatusCreated, id)
}

// GetTransaction returns a transaction with its line items.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid transaction id", err)
		return
	}
	h.writeTransaction(w, r, http.StatusOK, id)
}

// UpdateTransaction applies a partial update. A date change reorders the
// registers of every account the transaction touches.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid transaction id", err)
		return
	}
	var req UpdateTransactionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	u := transactions.TransactionUpdate{
		Title:           optional(req.Title),
		Note:            optional(req.Note),
		Cleared:         optional(req.Cleared),
		Void:            optional(req.Void),
		TransactionType: optional(req.TransactionType),
	}
	if req.Date != nil {
		date, err := ledger.ToEpoch(*req.Date)
		if err != nil {
			fail(w, r, "Invalid date", err)
			return
		}
		u.Date = ledger.Some(date)
	}

	changed, err := h.Transactions.Update(r.Context(), id, u)
	if err != nil {
		fail(w, r, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// DeleteTransaction deletes a transaction, its line items and their tags.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid transaction id", err)
		return
	}
	deleted, err := h.Transactions.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete transaction", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

// AddLineItem appends a line item to a transaction.
func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	txID, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid transaction id", err)
		return
	}
	var req LineItemRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	in, err := h.lineItemInput(ctx, req)
	if err != nil {
		fail(w, r, "Invalid line item", err)
		return
	}
	id, err := h.Transactions.AddLineItem(ctx, txID, in)
	if err != nil {
		fail(w, r, "Failed to add line item", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "transaction_id": txID})
}

// UpdateLineItem applies a partial line-item update.
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid line item id", err)
		return
	}
	var req UpdateLineItemRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	changed, err := h.Transactions.UpdateLineItem(r.Context(), id, transactions.LineItemUpdate{
		AccountID: optional(req.AccountID),
		Amount:    optional(req.Amount),
		Memo:      optional(req.Memo),
		Cleared:   optional(req.Cleared),
	})
	if err != nil {
		fail(w, r, "Failed to update line item", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// DeleteLineItem removes one line item.
func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid line item id", err)
		return
	}
	deleted, err := h.Transactions.DeleteLineItem(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete line item", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Line item not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

func (h *Handler) writeTransaction(w http.ResponseWriter, r *http.Request, status int, id int64) {
	t, err := h.Transactions.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to get transaction", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, status, toTransactionDTO(*t))
}

// lineItemInput resolves a by-name account reference.
func (h *Handler) lineItemInput(ctx context.Context, req LineItemRequest) (transactions.LineItemInput, error) {
	in := transactions.LineItemInput{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Memo:      req.Memo,
		Cleared:   req.Cleared,
	}
	if in.AccountID != 0 {
		return in, nil
	}
	if req.Account == "" {
		return in, fmt.Errorf("%w: line item needs account_id or account", errBadRequest)
	}
	a, err := h.Accounts.FindByName(ctx, req.Account)
	if err != nil {
		return in, err
	}
	if a == nil {
		return in, fmt.Errorf("%w: unknown account %q", errBadRequest, req.Account)
	}
	in.AccountID = a.ID
	return in, nil
}

// =============================================================================
// TAG HANDLERS
// =============================================================================

// ListTags returns every tag.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	list, err := h.Tags.List(r.Context())
	if err != nil {
		fail(w, r, "Failed to list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, toTagDTOs(list))
}

// CreateTag returns the tag for a name, creating it if needed.
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req CreateTagRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	if _, err := h.Tags.Create(ctx, req.Name); err != nil {
		fail(w, r, "Failed to create tag", err)
		return
	}
	t, err := h.Tags.Get(ctx, req.Name)
	if err != nil || t == nil {
		fail(w, r, "Failed to load tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, TagDTO{ID: t.ID, Name: t.Name, CanonicalName: t.CanonicalName})
}

// DeleteTag deletes a tag and its associations.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid tag id", err)
		return
	}
	deleted, err := h.Tags.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete tag", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Tag not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

// TagTransaction tags every line item of a transaction.
func (h *Handler) TagTransaction(w http.ResponseWriter, r *http.Request) {
	h.tagTransaction(w, r, h.Tags.TagTransaction)
}

// UntagTransaction removes a tag from every line item of a transaction.
func (h *Handler) UntagTransaction(w http.ResponseWriter, r *http.Request) {
	h.tagTransaction(w, r, h.Tags.UntagTransaction)
}

func (h *Handler) tagTransaction(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, int64) (int, error)) {
	txID, tagID, err := idPair(r)
	if err != nil {
		fail(w, r, "Invalid id", err)
		return
	}
	n, err := op(r.Context(), txID, tagID)
	if err != nil {
		fail(w, r, "Failed to update tags", err)
		return
	}
	writeJSON(w, http.StatusOK, CountDTO{Count: n})
}

// LineItemTags lists the tags on a line item.
func (h *Handler) LineItemTags(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid line item id", err)
		return
	}
	list, err := h.Tags.TagsForLineItem(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, toTagDTOs(list))
}

// TagLineItem tags one line item.
func (h *Handler) TagLineItem(w http.ResponseWriter, r *http.Request) {
	h.tagLineItem(w, r, h.Tags.TagLineItem)
}

// UntagLineItem removes a tag from one line item.
func (h *Handler) UntagLineItem(w http.ResponseWriter, r *http.Request) {
	h.tagLineItem(w, r, h.Tags.UntagLineItem)
}

func (h *Handler) tagLineItem(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, int64) (bool, error)) {
	lineItemID, tagID, err := idPair(r)
	if err != nil {
		fail(w, r, "Invalid id", err)
		return
	}
	changed, err := op(r.Context(), lineItemID, tagID)
	if err != nil {
		fail(w, r, "Failed to update tags", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

func toTagDTOs(list []ledger.Tag) []TagDTO {
	dtos := make([]TagDTO, 0, len(list))
	for _, t := range list {
		dtos = append(dtos, TagDTO{ID: t.ID, Name: t.Name, CanonicalName: t.CanonicalName})
	}
	return dtos
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns templates ordered by title.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.Templates.List(r.Context())
	if err != nil {
		fail(w, r, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, 0, len(list))
	for _, t := range list {
		dtos = append(dtos, toTemplateDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate creates a template with its line items.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	in := templates.CreateInput{Title: req.Title, Amount: req.Amount, Note: req.Note}
	for _, li := range req.LineItems {
		in.LineItems = append(in.LineItems, templates.LineItemInput{AccountID: li.AccountID, Amount: li.Amount, Memo: li.Memo})
	}

	id, err := h.Templates.Create(r.Context(), in)
	if err != nil {
		fail(w, r, "Failed to create template", err)
		return
	}
	h.writeTemplate(w, r, http.StatusCreated, id)
}

// GetTemplate returns one template.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid template id", err)
		return
	}
	h.writeTemplate(w, r, http.StatusOK, id)
}

// DeleteTemplate deletes a template and everything that references it.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid template id", err)
		return
	}
	deleted, err := h.Templates.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete template", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

// ExportTemplate returns a template as YAML.
func (h *Handler) ExportTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid template id", err)
		return
	}
	data, err := h.Templates.Export(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to export template", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportTemplate creates a template from a YAML body.
func (h *Handler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		fail(w, r, "Failed to read body", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	id, err := h.Templates.Import(r.Context(), data)
	if err != nil {
		fail(w, r, "Failed to import template", err)
		return
	}
	h.writeTemplate(w, r, http.StatusCreated, id)
}

func (h *Handler) writeTemplate(w http.ResponseWriter, r *http.Request, status int, id int64) {
	t, err := h.Templates.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to get template", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return
	}
	writeJSON(w, status, toTemplateDTO(*t))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns import rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.Rules.List(r.Context())
	if err != nil {
		fail(w, r, "Failed to list rules", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTOs(list))
}

// CreateRule creates an import rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	id, err := h.Rules.Create(r.Context(), rules.CreateInput{
		TemplateID: req.TemplateID,
		Pattern:    req.Pattern,
		AccountID:  req.AccountID,
		Payee:      req.Payee,
	})
	if err != nil {
		fail(w, r, "Failed to create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// DeleteRule deletes an import rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid rule id", err)
		return
	}
	deleted, err := h.Rules.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete rule", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Rule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

// MatchRules returns every rule whose pattern matches the description.
func (h *Handler) MatchRules(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	matched, err := h.Rules.Match(r.Context(), req.Description)
	if err != nil {
		fail(w, r, "Failed to match rules", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTOs(matched))
}

func toRuleDTOs(list []ledger.ImportRule) []ImportRuleDTO {
	dtos := make([]ImportRuleDTO, 0, len(list))
	for _, rule := range list {
		dtos = append(dtos, toRuleDTO(rule))
	}
	return dtos
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns schedules ordered by next occurrence.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := h.Schedules.List(r.Context())
	if err != nil {
		fail(w, r, "Failed to list schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(list))
}

// DueSchedules returns schedules whose reminder is due (?as_of=, default
// today).
func (h *Handler) DueSchedules(w http.ResponseWriter, r *http.Request) {
	asOf := ledger.Now()
	if s := r.URL.Query().Get("as_of"); s != "" {
		e, err := ledger.ToEpoch(s)
		if err != nil {
			fail(w, r, "Invalid as_of date", err)
			return
		}
		asOf = e
	}
	due, err := h.Schedules.Due(r.Context(), asOf)
	if err != nil {
		fail(w, r, "Failed to list due schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(due))
}

// CreateSchedule creates a scheduled transaction.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	start, err := ledger.ToEpoch(req.StartDate)
	if err != nil {
		fail(w, r, "Invalid start date", err)
		return
	}

	id, err := h.Schedules.Create(r.Context(), schedules.CreateInput{
		TemplateID:       req.TemplateID,
		StartDate:        start,
		RepeatInterval:   ledger.RepeatInterval(req.RepeatInterval),
		RepeatMultiplier: req.RepeatMultiplier,
		ReminderDays:     optional(req.ReminderDays),
	})
	if err != nil {
		fail(w, r, "Failed to create schedule", err)
		return
	}
	h.writeSchedule(w, r, http.StatusCreated, id)
}

// GetSchedule returns one schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid schedule id", err)
		return
	}
	h.writeSchedule(w, r, http.StatusOK, id)
}

// UpdateSchedule applies a partial update.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid schedule id", err)
		return
	}
	var req UpdateScheduleRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	u := schedules.ScheduleUpdate{
		RepeatMultiplier: optional(req.RepeatMultiplier),
		ReminderDays:     optional(req.ReminderDays),
	}
	if req.RepeatInterval != nil {
		u.RepeatInterval = ledger.Some(ledger.RepeatInterval(*req.RepeatInterval))
	}
	if req.NextDate != nil {
		next, err := ledger.ToEpoch(*req.NextDate)
		if err != nil {
			fail(w, r, "Invalid next date", err)
			return
		}
		u.NextDate = ledger.Some(next)
	}

	changed, err := h.Schedules.Update(r.Context(), id, u)
	if err != nil {
		fail(w, r, "Failed to update schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// DeleteSchedule deletes a schedule and its recurring-transaction row.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid schedule id", err)
		return
	}
	deleted, err := h.Schedules.Delete(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to delete schedule", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: true})
}

// AdvanceSchedule moves a schedule to its next occurrence.
func (h *Handler) AdvanceSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, "Invalid schedule id", err)
		return
	}
	s, err := h.Schedules.Advance(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to advance schedule", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*s))
}

func (h *Handler) writeSchedule(w http.ResponseWriter, r *http.Request, status int, id int64) {
	s, err := h.Schedules.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to get schedule", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}
	writeJSON(w, status, toScheduleDTO(*s))
}

func toScheduleDTOs(list []ledger.ScheduledTransaction) []ScheduleDTO {
	dtos := make([]ScheduleDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, toScheduleDTO(s))
	}
	return dtos
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RecalculateAll rebuilds running balances for every account.
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.Transactions.RecalculateAll(r.Context())
	if err != nil {
		fail(w, r, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, CountDTO{Count: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail writes err with the status its category maps to. Server errors are
// logged; client errors only reach the response.
func fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrReadOnly):
		return http.StatusForbidden
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return id, nil
}

func idPair(r *http.Request) (int64, int64, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return 0, 0, err
	}
	tagID, err := idParam(r, "tagID")
	if err != nil {
		return 0, 0, err
	}
	return id, tagID, nil
}
