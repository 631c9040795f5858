// Package tags implements the tag index: case-normalized tags and their
// many-to-many association with line items.
//
// Tags are unique by canonical name (trimmed, case-folded), so Create is
// idempotent. Tagging a transaction applies to every line item it owns at
// the time of the call; counts report only associations actually added or
// removed.
package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
	"golang.org/x/text/cases"
)

// Canonical returns the uniqueness key for a tag name. A Caser is stateful,
// so each call gets its own.
func Canonical(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Index is the tag index over one store.
type Index struct {
	store *sqlite.Store
}

// New creates a tag index.
func New(store *sqlite.Store) *Index {
	return &Index{store: store}
}

// Create returns the id of the tag with name's canonical form, inserting
// it if none exists.
func (x *Index) Create(ctx context.Context, name string) (int64, error) {
	display := strings.TrimSpace(name)
	canonical := Canonical(name)
	if canonical == "" {
		return 0, ledger.ErrEmptyName
	}

	var (
		id      int64
		created bool
	)
	err := x.store.WithTx(ctx, func(q sqlite.Querier) error {
		found, ok, err := lookup(ctx, q, canonical)
		if err != nil {
			return err
		}
		if ok {
			id = found
			return nil
		}
		id, err = x.store.Insert(ctx, q, sqlite.EntityTag,
			[]string{"ZPNAME", "ZPCANONICALNAME"}, display, canonical)
		created = err == nil
		return err
	})
	if err != nil {
		return 0, err
	}
	if created {
		zerolog.Ctx(ctx).Debug().Int64("tag_id", id).Str("name", display).Msg("tag created")
	}
	return id, nil
}

// Get returns a tag by canonical name, or nil.
func (x *Index) Get(ctx context.Context, name string) (*ledger.Tag, error) {
	var t ledger.Tag
	err := x.store.DB().QueryRowContext(ctx,
		`SELECT Z_PK, ZPNAME, ZPCANONICALNAME FROM ZTAG WHERE ZPCANONICALNAME = ?`, Canonical(name),
	).Scan(&t.ID, &t.Name, &t.CanonicalName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

// List returns every tag ordered by canonical name.
func (x *Index) List(ctx context.Context) ([]ledger.Tag, error) {
	return queryTags(ctx, x.store.DB(),
		`SELECT Z_PK, ZPNAME, ZPCANONICALNAME FROM ZTAG ORDER BY ZPCANONICALNAME`)
}

// Delete removes a tag and all of its associations.
func (x *Index) Delete(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := x.store.WithTx(ctx, func(q sqlite.Querier) error {
		if _, err := sqlite.Delete(ctx, q, "Z_LINEITEMTAGS", sqlite.Where("Z_TAG = ?", id)); err != nil {
			return err
		}
		var err error
		n, err = sqlite.Delete(ctx, q, "ZTAG", sqlite.ByID(id))
		return err
	})
	return n > 0, err
}

// =============================================================================
// ASSOCIATIONS
// =============================================================================

// TagTransaction attaches the tag to every line item of the transaction and
// returns how many associations were added.
func (x *Index) TagTransaction(ctx context.Context, transactionID, tagID int64) (int, error) {
	return x.exec(ctx, `
		INSERT OR IGNORE INTO Z_LINEITEMTAGS (Z_LINEITEM, Z_TAG)
		SELECT Z_PK, ? FROM ZLINEITEM WHERE ZPTRANSACTION = ?`, tagID, transactionID)
}

// UntagTransaction detaches the tag from every line item of the
// transaction and returns how many associations were removed.
func (x *Index) UntagTransaction(ctx context.Context, transactionID, tagID int64) (int, error) {
	return x.exec(ctx, `
		DELETE FROM Z_LINEITEMTAGS
		WHERE Z_TAG = ? AND Z_LINEITEM IN (SELECT Z_PK FROM ZLINEITEM WHERE ZPTRANSACTION = ?)`,
		tagID, transactionID)
}

// TagLineItem attaches the tag to one line item. Reports whether an
// association was added.
func (x *Index) TagLineItem(ctx context.Context, lineItemID, tagID int64) (bool, error) {
	n, err := x.exec(ctx,
		`INSERT OR IGNORE INTO Z_LINEITEMTAGS (Z_LINEITEM, Z_TAG) VALUES (?, ?)`, lineItemID, tagID)
	return n > 0, err
}

// UntagLineItem detaches the tag from one line item.
func (x *Index) UntagLineItem(ctx context.Context, lineItemID, tagID int64) (bool, error) {
	n, err := x.exec(ctx,
		`DELETE FROM Z_LINEITEMTAGS WHERE Z_LINEITEM = ? AND Z_TAG = ?`, lineItemID, tagID)
	return n > 0, err
}

// TagsForLineItem returns the tags attached to a line item.
func (x *Index) TagsForLineItem(ctx context.Context, lineItemID int64) ([]ledger.Tag, error) {
	return queryTags(ctx, x.store.DB(), `
		SELECT t.Z_PK, t.ZPNAME, t.ZPCANONICALNAME
		FROM ZTAG t JOIN Z_LINEITEMTAGS lt ON lt.Z_TAG = t.Z_PK
		WHERE lt.Z_LINEITEM = ?
		ORDER BY t.ZPCANONICALNAME`, lineItemID)
}

func (x *Index) exec(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	err := x.store.WithTx(ctx, func(q sqlite.Querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return sqlite.Translate("update tag associations", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func lookup(ctx context.Context, q sqlite.Querier, canonical string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT Z_PK FROM ZTAG WHERE ZPCANONICALNAME = ?`, canonical).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up tag: %w", err)
	}
	return id, true, nil
}

func queryTags(ctx context.Context, q sqlite.Querier, query string, args ...any) ([]ledger.Tag, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var out []ledger.Tag
	for rows.Next() {
		var t ledger.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CanonicalName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
