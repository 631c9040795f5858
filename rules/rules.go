// Package rules implements the import-rule matcher. An import rule is a
// selector row holding a regular expression; imported transaction
// descriptions that match it are offered the rule's template.
package rules

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// Matcher is the rule matcher over one store.
type Matcher struct {
	store *sqlite.Store
}

// New creates a rule matcher.
func New(store *sqlite.Store) *Matcher {
	return &Matcher{store: store}
}

// CreateInput describes a new import rule.
type CreateInput struct {
	TemplateID int64
	Pattern    string
	AccountID  string // unique id of the account imports land in; optional
	Payee      string
}

// Create stores an import rule. The pattern is not validated here: rules
// that fail to compile are skipped by Match.
func (m *Matcher) Create(ctx context.Context, in CreateInput) (int64, error) {
	var id int64
	err := m.store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		id, err = m.store.Insert(ctx, q, sqlite.SelectorEntity(ledger.SelectorImportRule),
			[]string{"ZPTRANSACTIONTEMPLATE", "ZPDETAILSEXPRESSION", "ZPACCOUNTID", "ZPPAYEE", "ZPMODIFICATIONDATE"},
			in.TemplateID, in.Pattern, nullString(in.AccountID), nullString(in.Payee), ledger.Now(),
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Delete removes an import rule. Scheduled-transaction selectors sharing
// the table are never matched.
func (m *Matcher) Delete(ctx context.Context, id int64) (bool, error) {
	where, err := sqlite.ByID(id).OfEntity(m.store, sqlite.EntityImportRuleSelector)
	if err != nil {
		return false, err
	}
	var n int64
	err = m.store.WithTx(ctx, func(q sqlite.Querier) error {
		n, err = sqlite.Delete(ctx, q, "ZSELECTOR", where)
		return err
	})
	return n > 0, err
}

// List returns every import rule ordered by its template's title.
func (m *Matcher) List(ctx context.Context) ([]ledger.ImportRule, error) {
	ent, err := m.store.Ent(sqlite.EntityImportRuleSelector)
	if err != nil {
		return nil, err
	}

	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT s.Z_PK, s.ZPTRANSACTIONTEMPLATE, t.ZPTITLE, s.ZPDETAILSEXPRESSION, s.ZPACCOUNTID, s.ZPPAYEE
		FROM ZSELECTOR s
		JOIN ZTRANSACTIONTEMPLATE t ON t.Z_PK = s.ZPTRANSACTIONTEMPLATE
		WHERE s.Z_ENT = ?
		ORDER BY t.ZPTITLE, s.Z_PK`, ent)
	if err != nil {
		return nil, fmt.Errorf("failed to list import rules: %w", err)
	}
	defer rows.Close()

	var out []ledger.ImportRule
	for rows.Next() {
		var (
			r                       ledger.ImportRule
			pattern, account, payee sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TemplateID, &r.TemplateTitle, &pattern, &account, &payee); err != nil {
			return nil, err
		}
		r.Pattern = pattern.String
		r.AccountID = account.String
		r.Payee = payee.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Match returns every rule whose pattern matches description, ignoring
// case, in List order. Rules with patterns that do not compile never match.
func (m *Matcher) Match(ctx context.Context, description string) ([]ledger.ImportRule, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var matched []ledger.ImportRule
	for _, r := range all {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			zerolog.Ctx(ctx).Warn().
				Int64("rule_id", r.ID).
				Str("pattern", r.Pattern).
				Err(err).
				Msg("skipping import rule with invalid pattern")
			continue
		}
		if re.MatchString(description) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
