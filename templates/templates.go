/*
Package templates stores transaction templates: reusable payee, amount and
note shapes with their line-item templates. Import rules and scheduled
transactions (the selectors) are built on top of a template.

OWNERSHIP:
  A template owns its line-item templates and every selector that refers to
  it. A scheduled-transaction selector in turn owns its RecurringTransaction
  row. Delete removes the whole tree in one atomic unit:

    recurring transactions of schedule selectors
    -> selectors
    -> line-item templates
    -> template

PORTABILITY:
  Line-item templates name their account by the account's unique id (a
  uuid), never by row id, so Export/Import can move a template between
  ledger files.

SEE ALSO:
  - rules: import-rule selectors
  - schedules: scheduled-transaction selectors
*/
package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// Catalog is the template store over one ledger file.
type Catalog struct {
	store *sqlite.Store
}

// New creates a template catalog.
func New(store *sqlite.Store) *Catalog {
	return &Catalog{store: store}
}

// LineItemInput describes one line-item template. AccountID is the
// account's unique id.
type LineItemInput struct {
	AccountID string
	Amount    decimal.Decimal
	Memo      string
}

// CreateInput describes a new template.
type CreateInput struct {
	Title     string
	Amount    decimal.Decimal
	Note      string
	LineItems []LineItemInput
}

// =============================================================================
// CREATE / DELETE
// =============================================================================

// Create inserts a template and its line-item templates atomically.
func (c *Catalog) Create(ctx context.Context, in CreateInput) (int64, error) {
	if strings.TrimSpace(in.Title) == "" {
		return 0, ledger.ErrEmptyName
	}

	var id int64
	err := c.store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		id, err = c.store.Insert(ctx, q, sqlite.EntityTransactionTemplate,
			[]string{"ZPUNIQUEID", "ZPTITLE", "ZPAMOUNT", "ZPNOTE", "ZPMODIFICATIONDATE"},
			uuid.NewString(), in.Title, in.Amount.InexactFloat64(), nullString(in.Note), ledger.Now(),
		)
		if err != nil {
			return err
		}
		for _, li := range in.LineItems {
			if _, err := c.store.Insert(ctx, q, sqlite.EntityLineItemTemplate,
				[]string{"ZPTRANSACTIONTEMPLATE", "ZPACCOUNTID", "ZPTRANSACTIONAMOUNT", "ZPMEMO"},
				id, nullString(li.AccountID), li.Amount.InexactFloat64(), nullString(li.Memo),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	zerolog.Ctx(ctx).Debug().Int64("template_id", id).Str("title", in.Title).Msg("template created")
	return id, nil
}

// Delete removes a template together with everything it owns.
func (c *Catalog) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := c.store.WithTx(ctx, func(q sqlite.Querier) error {
		selectors, err := c.selectorsOf(ctx, q, id)
		if err != nil {
			return err
		}
		var recurring []any
		for _, sel := range selectors {
			if s, ok := sel.(*ledger.ScheduledTransaction); ok && s.RecurringTransactionID != nil {
				recurring = append(recurring, *s.RecurringTransactionID)
			}
		}

		if _, err := sqlite.Delete(ctx, q, "ZSELECTOR", sqlite.Where("ZPTRANSACTIONTEMPLATE = ?", id)); err != nil {
			return err
		}
		if len(recurring) > 0 {
			if _, err := sqlite.Delete(ctx, q, "ZRECURRINGTRANSACTION",
				sqlite.Filter{}.In("Z_PK", recurring...)); err != nil {
				return err
			}
		}
		if _, err := sqlite.Delete(ctx, q, "ZLINEITEMTEMPLATE", sqlite.Where("ZPTRANSACTIONTEMPLATE = ?", id)); err != nil {
			return err
		}
		n, err := sqlite.Delete(ctx, q, "ZTRANSACTIONTEMPLATE", sqlite.ByID(id))
		if err != nil {
			return err
		}
		deleted = n > 0

		zerolog.Ctx(ctx).Debug().
			Int64("template_id", id).
			Int("selectors", len(selectors)).
			Int("recurring", len(recurring)).
			Msg("template deleted")
		return nil
	})
	return deleted, err
}

// Selectors returns the import rules and scheduled transactions built on a
// template, in id order.
func (c *Catalog) Selectors(ctx context.Context, templateID int64) ([]ledger.Selector, error) {
	return c.selectorsOf(ctx, c.store.DB(), templateID)
}

// selectorsOf reads the template's selector rows and builds the variant
// each row's discriminator names. Only the columns shared with the cascade
// are filled in.
func (c *Catalog) selectorsOf(ctx context.Context, q sqlite.Querier, templateID int64) ([]ledger.Selector, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT Z_PK, Z_ENT, ZPDETAILSEXPRESSION, ZPRECURRINGTRANSACTION FROM ZSELECTOR
		WHERE ZPTRANSACTIONTEMPLATE = ? ORDER BY Z_PK`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load selectors: %w", err)
	}
	defer rows.Close()

	var out []ledger.Selector
	for rows.Next() {
		var (
			id        int64
			ent       int
			pattern   sql.NullString
			recurring sql.NullInt64
		)
		if err := rows.Scan(&id, &ent, &pattern, &recurring); err != nil {
			return nil, err
		}

		name, _ := c.store.EntName(ent)
		switch name {
		case sqlite.EntityImportRuleSelector.Name:
			out = append(out, &ledger.ImportRule{ID: id, TemplateID: templateID, Pattern: pattern.String})
		case sqlite.EntityScheduledTransactionSelector.Name:
			s := &ledger.ScheduledTransaction{ID: id, TemplateID: templateID}
			if recurring.Valid {
				s.RecurringTransactionID = &recurring.Int64
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("%w: selector %d has Z_ENT %d", ledger.ErrUnknownEntity, id, ent)
		}
	}
	return out, rows.Err()
}

// =============================================================================
// READS
// =============================================================================

// Get returns a template with its line-item templates, or nil.
func (c *Catalog) Get(ctx context.Context, id int64) (*ledger.TransactionTemplate, error) {
	var (
		t    ledger.TransactionTemplate
		note sql.NullString
	)
	err := c.store.DB().QueryRowContext(ctx,
		`SELECT Z_PK, ZPUNIQUEID, ZPTITLE, ZPAMOUNT, ZPNOTE FROM ZTRANSACTIONTEMPLATE WHERE Z_PK = ?`, id,
	).Scan(&t.ID, &t.UniqueID, &t.Title, &t.Amount, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	t.Note = note.String

	rows, err := c.store.DB().QueryContext(ctx, `
		SELECT Z_PK, ZPACCOUNTID, ZPTRANSACTIONAMOUNT, ZPMEMO
		FROM ZLINEITEMTEMPLATE WHERE ZPTRANSACTIONTEMPLATE = ? ORDER BY Z_PK`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load line-item templates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			li            ledger.LineItemTemplate
			account, memo sql.NullString
		)
		if err := rows.Scan(&li.ID, &account, &li.Amount, &memo); err != nil {
			return nil, err
		}
		li.AccountID = account.String
		li.Memo = memo.String
		t.LineItems = append(t.LineItems, li)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns templates ordered by title, without line items.
func (c *Catalog) List(ctx context.Context) ([]ledger.TransactionTemplate, error) {
	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT Z_PK, ZPUNIQUEID, ZPTITLE, ZPAMOUNT, ZPNOTE FROM ZTRANSACTIONTEMPLATE ORDER BY ZPTITLE, Z_PK`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []ledger.TransactionTemplate
	for rows.Next() {
		var (
			t    ledger.TransactionTemplate
			note sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UniqueID, &t.Title, &t.Amount, &note); err != nil {
			return nil, err
		}
		t.Note = note.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
