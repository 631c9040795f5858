/*
scenarios.go - Demo scenario loaders

PURPOSE:

	Pre-built scenarios that populate an empty ledger with realistic data
	for demos and manual testing. Every loader goes through the component
	packages, so running balances, tags and selector links are exactly what
	normal use would produce.

AVAILABLE SCENARIOS:

	household:        Checking, savings and a credit card with a month of
	                  salary, rent, groceries and a transfer
	recurring-bills:  Templates with import rules and monthly schedules

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "household"}

NOTE:

	Scenarios only load into a ledger with no accounts. They never reset
	existing data. A load that fails part way removes what it created, so
	it can be retried on the same ledger.

SEE ALSO:
  - handlers.go: component handlers
  - cmd/server/main.go: seed command
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/accounts"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/rules"
	"github.com/warp/ledger-engine/schedules"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/templates"
	"github.com/warp/ledger-engine/transactions"
)

// ErrLedgerNotEmpty is returned when a scenario is loaded into a ledger
// that already has accounts.
var ErrLedgerNotEmpty = errors.New("ledger is not empty")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "household",
		Name:        "Household",
		Description: "Checking, savings and a credit card with a month of activity",
	},
	{
		ID:          "recurring-bills",
		Name:        "Recurring Bills",
		Description: "Rent and utility templates with import rules and monthly schedules",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into an empty ledger.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	err := h.LoadScenarioByID(r.Context(), req.ScenarioID)
	switch {
	case errors.Is(err, ErrLedgerNotEmpty):
		writeError(w, http.StatusConflict, "Ledger already has accounts", err)
		return
	case err != nil:
		fail(w, r, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID runs one scenario's loader. On failure the rows it
// created are removed again.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var load func(context.Context, *undoLog) error
	switch id {
	case "household":
		load = h.loadHouseholdScenario
	case "recurring-bills":
		load = h.loadRecurringBillsScenario
	default:
		return fmt.Errorf("%w: unknown scenario %q", errBadRequest, id)
	}

	existing, err := h.Accounts.List(ctx, true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrLedgerNotEmpty
	}

	var undo undoLog
	if err := load(ctx, &undo); err != nil {
		if uerr := undo.run(ctx); uerr != nil {
			return errors.Join(err, fmt.Errorf("scenario cleanup: %w", uerr))
		}
		return err
	}
	return nil
}

// undoLog collects the removals for a partially loaded scenario.
type undoLog struct {
	steps []func(context.Context) error
}

func (u *undoLog) add(step func(context.Context) error) {
	u.steps = append(u.steps, step)
}

// run undoes in reverse creation order and keeps going past failures.
func (u *undoLog) run(ctx context.Context) error {
	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func errOnly(_ bool, err error) error { return err }

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioPost struct {
	date, title, kind string
	from, to          string
	amount            string
}

var householdPosts = []scenarioPost{
	{"2024-01-01", "Payroll", "Deposit", "Salary", "Checking", "3000"},
	{"2024-01-03", "January rent", "Check", "Checking", "Rent", "1200"},
	{"2024-01-05", "Farmers market", "Payment", "Visa", "Groceries", "85.40"},
	{"2024-01-10", "Save", "Transfer", "Checking", "Savings", "500"},
	{"2024-01-12", "Supermarket", "Payment", "Visa", "Groceries", "132.17"},
	{"2024-01-15", "Payroll", "Deposit", "Salary", "Checking", "3000"},
}

func (h *Handler) loadHouseholdScenario(ctx context.Context, undo *undoLog) error {
	ids, err := h.createAccounts(ctx, undo, []accounts.CreateInput{
		{Name: "Checking", Class: ledger.ClassChecking},
		{Name: "Savings", Class: ledger.ClassSavings},
		{Name: "Visa", Class: ledger.ClassCreditCard},
		{Name: "Salary", Class: ledger.ClassIncome},
		{Name: "Rent", Class: ledger.ClassExpense},
		{Name: "Groceries", Class: ledger.ClassExpense},
	})
	if err != nil {
		return err
	}

	var groceries []int64
	for _, p := range householdPosts {
		id, err := h.post(ctx, undo, p.date, p.title, p.kind, ids[p.from], ids[p.to], p.amount)
		if err != nil {
			return fmt.Errorf("%s %s: %w", p.date, p.title, err)
		}
		if p.to == "Groceries" {
			groceries = append(groceries, id)
		}
	}

	existing, err := h.Tags.Get(ctx, "Household")
	if err != nil {
		return err
	}
	tag, err := h.Tags.Create(ctx, "Household")
	if err != nil {
		return err
	}
	if existing == nil {
		undo.add(func(ctx context.Context) error { return errOnly(h.Tags.Delete(ctx, tag)) })
	}
	for _, id := range groceries {
		if _, err := h.Tags.TagTransaction(ctx, id, tag); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRecurringBillsScenario(ctx context.Context, undo *undoLog) error {
	ids, err := h.createAccounts(ctx, undo, []accounts.CreateInput{
		{Name: "Checking", Class: ledger.ClassChecking},
		{Name: "Rent", Class: ledger.ClassExpense},
		{Name: "Utilities", Class: ledger.ClassExpense},
	})
	if err != nil {
		return err
	}

	bills := []struct {
		title, expense, amount, pattern, start string
	}{
		{"Rent", "Rent", "1200", "LANDLORD|PROPERTY MGMT", "2024-02-01"},
		{"Electric", "Utilities", "74.25", "PG&E|ELECTRIC", "2024-02-15"},
	}
	for _, b := range bills {
		amount := decimal.RequireFromString(b.amount)
		checking, err := h.Accounts.Get(ctx, ids["Checking"])
		if err != nil {
			return err
		}
		expense, err := h.Accounts.Get(ctx, ids[b.expense])
		if err != nil {
			return err
		}

		tpl, err := h.Templates.Create(ctx, templates.CreateInput{
			Title:  b.title,
			Amount: amount,
			LineItems: []templates.LineItemInput{
				{AccountID: checking.UniqueID, Amount: amount.Neg()},
				{AccountID: expense.UniqueID, Amount: amount},
			},
		})
		if err != nil {
			return err
		}
		// Deleting the template also removes its rule and schedule.
		undo.add(func(ctx context.Context) error { return errOnly(h.Templates.Delete(ctx, tpl)) })

		if _, err := h.Rules.Create(ctx, rules.CreateInput{TemplateID: tpl, Pattern: b.pattern, AccountID: checking.UniqueID}); err != nil {
			return err
		}
		if _, err := h.Schedules.Create(ctx, schedules.CreateInput{
			TemplateID:     tpl,
			StartDate:      ledger.MustEpoch(b.start),
			RepeatInterval: ledger.RepeatMonthly,
		}); err != nil {
			return err
		}
	}
	return nil
}

// createAccounts creates accounts and returns their ids by name.
func (h *Handler) createAccounts(ctx context.Context, undo *undoLog, inputs []accounts.CreateInput) (map[string]int64, error) {
	ids := make(map[string]int64, len(inputs))
	for _, in := range inputs {
		id, err := h.Accounts.Create(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", in.Name, err)
		}
		ids[in.Name] = id
		undo.add(func(ctx context.Context) error {
			return h.Store.WithTx(ctx, func(q sqlite.Querier) error {
				_, err := sqlite.Delete(ctx, q, "ZACCOUNT", sqlite.ByID(id))
				return err
			})
		})
	}
	return ids, nil
}

// post records amount moving from one account to another.
func (h *Handler) post(ctx context.Context, undo *undoLog, date, title, kind string, from, to int64, amount string) (int64, error) {
	d, err := ledger.ToEpoch(date)
	if err != nil {
		return 0, err
	}
	a := decimal.RequireFromString(amount)
	id, err := h.Transactions.Create(ctx, transactions.CreateInput{
		Title:           title,
		Date:            d,
		Cleared:         true,
		TransactionType: kind,
		LineItems: []transactions.LineItemInput{
			{AccountID: from, Amount: a.Neg()},
			{AccountID: to, Amount: a},
		},
	})
	if err != nil {
		return 0, err
	}
	undo.add(func(ctx context.Context) error { return errOnly(h.Transactions.Delete(ctx, id)) })
	return id, nil
}
