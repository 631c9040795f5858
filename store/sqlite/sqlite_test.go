package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTag(t *testing.T, store *sqlite.Store, name string) int64 {
	var id int64
	err := store.WithTx(context.Background(), func(q sqlite.Querier) error {
		var err error
		id, err = store.Insert(context.Background(), q, sqlite.EntityTag,
			[]string{"ZPNAME", "ZPCANONICALNAME"}, name, name)
		return err
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// DISCRIMINATORS AND KEYS
// =============================================================================

func TestStore_SeededDiscriminators(t *testing.T) {
	store := newTestStore(t)

	cases := map[sqlite.Entity]int{
		sqlite.EntityPrimaryAccount:               2,
		sqlite.EntityCategory:                     3,
		sqlite.EntityTransaction:                  5,
		sqlite.EntityLineItem:                     6,
		sqlite.EntityImportRuleSelector:           12,
		sqlite.EntityScheduledTransactionSelector: 13,
	}
	for e, want := range cases {
		got, err := store.Ent(e)
		require.NoError(t, err)
		assert.Equal(t, want, got, e.Name)

		name, ok := store.EntName(want)
		require.True(t, ok)
		assert.Equal(t, e.Name, name)
	}

	_, ok := store.EntName(999)
	assert.False(t, ok)

	_, err := store.Ent(sqlite.Entity{Name: "Payee", Table: "ZPAYEE"})
	assert.ErrorIs(t, err, ledger.ErrUnknownEntity)
}

func TestStore_AccountEntityFromClass(t *testing.T) {
	assert.Equal(t, sqlite.EntityCategory, sqlite.AccountEntity(ledger.ClassExpense))
	assert.Equal(t, sqlite.EntityCategory, sqlite.AccountEntity(ledger.ClassIncome))
	assert.Equal(t, sqlite.EntityPrimaryAccount, sqlite.AccountEntity(ledger.ClassCreditCard))
	assert.Equal(t, sqlite.EntityScheduledTransactionSelector, sqlite.SelectorEntity(ledger.SelectorScheduled))
}

func TestStore_NextID_SharedAcrossVariants(t *testing.T) {
	// Import rules and schedules share ZSELECTOR, so they share one counter.
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	err := store.WithTx(ctx, func(q sqlite.Querier) error {
		for _, e := range []sqlite.Entity{
			sqlite.EntityImportRuleSelector,
			sqlite.EntityScheduledTransactionSelector,
			sqlite.EntityImportRuleSelector,
		} {
			id, err := store.NextID(ctx, q, e)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestStore_NextID_ContinuesAfterSeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var id int64
	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		id, err = store.NextID(ctx, q, sqlite.EntityCurrency)
		return err
	}))
	assert.Equal(t, int64(2), id, "USD is seeded as currency 1")
}

// =============================================================================
// BUILDERS
// =============================================================================

func TestUpdate_SkipsAbsentFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := insertTag(t, store, "travel")

	var n int64
	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		n, err = sqlite.NewUpdate("ZTAG").
			Set("ZPNAME", ledger.None[string]()).
			Exec(ctx, q, sqlite.ByID(id))
		return err
	}))
	assert.Equal(t, int64(0), n, "no present fields means no rows changed")

	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		n, err = sqlite.NewUpdate("ZTAG").
			Set("ZPNAME", ledger.Some("Travel")).
			Exec(ctx, q, sqlite.ByID(id))
		return err
	}))
	assert.Equal(t, int64(1), n)

	var name string
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT ZPNAME FROM ZTAG WHERE Z_PK = ?`, id).Scan(&name))
	assert.Equal(t, "Travel", name)
}

func TestUpdate_TouchBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var id int64
	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		var err error
		id, err = store.Insert(ctx, q, sqlite.EntityTransactionTemplate,
			[]string{"ZPUNIQUEID", "ZPTITLE"}, "u-1", "Rent")
		return err
	}))

	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		_, err := sqlite.NewUpdate("ZTRANSACTIONTEMPLATE").
			Set("ZPTITLE", ledger.Some("Rent (monthly)")).
			Touch().
			Exec(ctx, q, sqlite.ByID(id))
		return err
	}))

	var version int64
	var modified ledger.Epoch
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT Z_OPT, ZPMODIFICATIONDATE FROM ZTRANSACTIONTEMPLATE WHERE Z_PK = ?`, id,
	).Scan(&version, &modified))
	assert.Equal(t, int64(2), version)
	assert.NotZero(t, modified)
}

func TestUpdate_EntityFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := insertTag(t, store, "work")

	where, err := sqlite.ByID(id).OfEntity(store, sqlite.EntityCategory)
	require.NoError(t, err)

	var n int64
	require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
		n, err = sqlite.NewUpdate("ZTAG").Set("ZPNAME", ledger.Some("x")).Exec(ctx, q, where)
		return err
	}))
	assert.Equal(t, int64(0), n, "tag row does not carry the category discriminator")
}

func TestDelete_RefusesEmptyFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	insertTag(t, store, "keep")

	err := store.WithTx(ctx, func(q sqlite.Querier) error {
		_, err := sqlite.Delete(ctx, q, "ZTAG", sqlite.Filter{})
		return err
	})
	assert.Error(t, err)
}

// =============================================================================
// ATOMIC UNIT
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(q sqlite.Querier) error {
		if _, err := store.Insert(ctx, q, sqlite.EntityTag,
			[]string{"ZPNAME", "ZPCANONICALNAME"}, "a", "a"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM ZTAG`).Scan(&count))
	assert.Equal(t, 0, count)

	// Key allocation rolled back too.
	id := insertTag(t, store, "b")
	assert.Equal(t, int64(1), id)
}

// =============================================================================
// DATES
// =============================================================================

func TestEpoch_TimestampColumnRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := ledger.MustEpoch("2024-01-15")

	_, err := store.DB().ExecContext(ctx, `CREATE TEMP TABLE dated (id INTEGER PRIMARY KEY, d TIMESTAMP)`)
	require.NoError(t, err)

	// GIVEN: a date written by this package, one written by another tool as
	// an INTEGER, one with fractional seconds, and a NULL
	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO dated (id, d) VALUES (1, ?), (2, ?), (3, ?), (4, NULL)`,
		day, int64(day), float64(day)+0.5)
	require.NoError(t, err)

	// THEN: whole values are kept as INTEGER by the column affinity
	var kind string
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT typeof(d) FROM dated WHERE id = 1`).Scan(&kind))
	assert.Equal(t, "integer", kind)
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT typeof(d) FROM dated WHERE id = 3`).Scan(&kind))
	assert.Equal(t, "real", kind)

	// AND: every row scans back into the same day
	want := map[int64]ledger.Epoch{1: day, 2: day, 3: day, 4: 0}
	rows, err := store.DB().QueryContext(ctx, `SELECT id, d FROM dated ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	n := 0
	for rows.Next() {
		var (
			id int64
			e  ledger.Epoch
		)
		require.NoError(t, rows.Scan(&id, &e))
		assert.Equal(t, want[id], e, "row %d", id)
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 4, n)

	// AND: range predicates compare numerically across storage classes
	var inRange int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dated WHERE d >= ? AND d <= ?`, day, day.AddDays(1),
	).Scan(&inRange))
	assert.Equal(t, 3, inRange)
}

func TestInsert_ForeignKeyIsIntegrityError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(q sqlite.Querier) error {
		_, err := store.Insert(ctx, q, sqlite.EntityLineItemTemplate,
			[]string{"ZPTRANSACTIONTEMPLATE", "ZPTRANSACTIONAMOUNT"}, 999, 10.0)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrIntegrity)

	var ie *ledger.IntegrityError
	assert.ErrorAs(t, err, &ie)
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	rw, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := sqlite.Open(path, sqlite.Options{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	assert.True(t, ro.ReadOnly())
	err = ro.WithTx(context.Background(), func(q sqlite.Querier) error { return nil })
	assert.ErrorIs(t, err, ledger.ErrReadOnly)

	ent, err := ro.Ent(sqlite.EntityTransaction)
	require.NoError(t, err)
	assert.Equal(t, 5, ent)
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := sqlite.New(path)
	require.NoError(t, err)
	insertTag(t, first, "kept")
	require.NoError(t, first.Close())

	second, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	var count int
	require.NoError(t, second.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM ZTAG`).Scan(&count))
	assert.Equal(t, 1, count)
}
