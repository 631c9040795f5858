package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// FILTER - WHERE clause built from predicates
// =============================================================================

// Filter is a conjunction of parameterized predicates.
type Filter struct {
	clauses []string
	args    []any
}

// Where starts a filter with a raw predicate.
func Where(clause string, args ...any) Filter {
	return Filter{}.And(clause, args...)
}

// ByID filters on the primary key.
func ByID(id int64) Filter {
	return Where("Z_PK = ?", id)
}

// And appends a predicate.
func (f Filter) And(clause string, args ...any) Filter {
	return Filter{
		clauses: append(append([]string(nil), f.clauses...), clause),
		args:    append(append([]any(nil), f.args...), args...),
	}
}

// OfEntity restricts the filter to rows carrying e's discriminator.
func (f Filter) OfEntity(s *Store, e Entity) (Filter, error) {
	ent, err := s.Ent(e)
	if err != nil {
		return Filter{}, err
	}
	return f.And("Z_ENT = ?", ent), nil
}

// In appends column IN (values...). An empty list matches nothing.
func (f Filter) In(column string, values ...any) Filter {
	if len(values) == 0 {
		return f.And("0")
	}
	return f.And(fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))), values...)
}

// Clause returns the WHERE clause (with leading space) and its arguments,
// for use in hand-written SELECTs.
func (f Filter) Clause() (string, []any) {
	return f.sql(), f.args
}

func (f Filter) sql() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// =============================================================================
// UPDATE - Partial update from Optional fields
// =============================================================================

// Update builds an UPDATE touching only the fields that are present.
//
//	n, err := store.NewUpdate("ZTRANSACTION").
//	    Set("ZPTITLE", u.Title).
//	    Set("ZPDATE", u.Date).
//	    Touch().
//	    Exec(ctx, q, sqlite.ByID(id))
type Update struct {
	table   string
	columns []string
	values  []any
	touch   bool
}

// NewUpdate starts an update against table.
func NewUpdate(table string) *Update {
	return &Update{table: table}
}

// Set adds column = value when v is present; absent fields are skipped.
func (u *Update) Set(column string, v ledger.FieldValue) *Update {
	if v.Present() {
		u.columns = append(u.columns, column)
		u.values = append(u.values, v.Any())
	}
	return u
}

// Touch also writes the modification date and increments the version
// counter. Line-item updates leave it off.
func (u *Update) Touch() *Update {
	u.touch = true
	return u
}

// Empty reports whether no field is present.
func (u *Update) Empty() bool { return len(u.columns) == 0 }

// Exec runs the update and returns the number of rows changed. With no
// present fields nothing is executed and 0 is returned.
func (u *Update) Exec(ctx context.Context, q Querier, where Filter) (int64, error) {
	if u.Empty() {
		return 0, nil
	}

	sets := make([]string, 0, len(u.columns)+2)
	for _, c := range u.columns {
		sets = append(sets, c+" = ?")
	}
	args := append([]any(nil), u.values...)
	if u.touch {
		sets = append(sets, "ZPMODIFICATIONDATE = ?", "Z_OPT = Z_OPT + 1")
		args = append(args, ledger.Now())
	}
	args = append(args, where.args...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", u.table, strings.Join(sets, ", "), where.sql())
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, Translate("update "+strings.ToLower(u.table), err)
	}
	return res.RowsAffected()
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes the rows of table matching where and returns the count.
// An empty filter is refused rather than wiping the table.
func Delete(ctx context.Context, q Querier, table string, where Filter) (int64, error) {
	if len(where.clauses) == 0 {
		return 0, fmt.Errorf("delete from %s: refusing unfiltered delete", table)
	}
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+where.sql(), where.args...)
	if err != nil {
		return 0, Translate("delete from "+strings.ToLower(table), err)
	}
	return res.RowsAffected()
}
