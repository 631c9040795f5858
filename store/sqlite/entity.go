package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// ENTITIES - Logical kinds and the physical tables they live in
// =============================================================================

// Entity names a logical entity kind and the table holding its rows.
type Entity struct {
	Name  string
	Table string
}

var (
	EntityAccount                      = Entity{"Account", "ZACCOUNT"}
	EntityPrimaryAccount               = Entity{"PrimaryAccount", "ZACCOUNT"}
	EntityCategory                     = Entity{"Category", "ZACCOUNT"}
	EntityCurrency                     = Entity{"Currency", "ZCURRENCY"}
	EntityTransaction                  = Entity{"Transaction", "ZTRANSACTION"}
	EntityLineItem                     = Entity{"LineItem", "ZLINEITEM"}
	EntityTag                          = Entity{"Tag", "ZTAG"}
	EntityTransactionType              = Entity{"TransactionType", "ZTRANSACTIONTYPE"}
	EntityTransactionTemplate          = Entity{"TransactionTemplate", "ZTRANSACTIONTEMPLATE"}
	EntityLineItemTemplate             = Entity{"LineItemTemplate", "ZLINEITEMTEMPLATE"}
	EntitySelector                     = Entity{"Selector", "ZSELECTOR"}
	EntityImportRuleSelector           = Entity{"ImportRuleSelector", "ZSELECTOR"}
	EntityScheduledTransactionSelector = Entity{"ScheduledTransactionSelector", "ZSELECTOR"}
	EntityRecurringTransaction         = Entity{"RecurringTransaction", "ZRECURRINGTRANSACTION"}
)

// AccountEntity picks the account variant from the class code: income and
// expense classes are categories, everything else a primary account.
func AccountEntity(class ledger.AccountClass) Entity {
	if class.IsCategory() {
		return EntityCategory
	}
	return EntityPrimaryAccount
}

// SelectorEntity picks the selector variant for a kind.
func SelectorEntity(kind ledger.SelectorKind) Entity {
	if kind == ledger.SelectorScheduled {
		return EntityScheduledTransactionSelector
	}
	return EntityImportRuleSelector
}

// =============================================================================
// REGISTRY - Z_PRIMARYKEY contents
// =============================================================================

type registryEntry struct {
	ent   int
	super int
}

type registry struct {
	byName map[string]registryEntry
	byEnt  map[int]string
}

func loadRegistry(ctx context.Context, q Querier) (*registry, error) {
	rows, err := q.QueryContext(ctx, `SELECT Z_ENT, Z_NAME, Z_SUPER FROM Z_PRIMARYKEY`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r := &registry{byName: map[string]registryEntry{}, byEnt: map[int]string{}}
	for rows.Next() {
		var (
			ent, super int
			name       string
		)
		if err := rows.Scan(&ent, &name, &super); err != nil {
			return nil, err
		}
		r.byName[name] = registryEntry{ent: ent, super: super}
		r.byEnt[ent] = name
	}
	return r, rows.Err()
}

// root walks Z_SUPER up to the entity that owns the table's key counter.
func (r *registry) root(name string) (registryEntry, error) {
	e, ok := r.byName[name]
	if !ok {
		return registryEntry{}, fmt.Errorf("%w: %s", ledger.ErrUnknownEntity, name)
	}
	for seen := 0; e.super != 0; seen++ {
		parent, ok := r.byEnt[e.super]
		if !ok || seen > len(r.byEnt) {
			return registryEntry{}, fmt.Errorf("%w: broken hierarchy above %s", ledger.ErrUnknownEntity, name)
		}
		e = r.byName[parent]
	}
	return e, nil
}

// Ent returns the discriminator stored for an entity.
func (s *Store) Ent(e Entity) (int, error) {
	entry, ok := s.entities.byName[e.Name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ledger.ErrUnknownEntity, e.Name)
	}
	return entry.ent, nil
}

// EntName maps a stored discriminator back to its entity name.
func (s *Store) EntName(ent int) (string, bool) {
	name, ok := s.entities.byEnt[ent]
	return name, ok
}

// NextID allocates the next primary key for the entity's table by bumping
// Z_MAX on the table's root entity. Must run inside WithTx.
func (s *Store) NextID(ctx context.Context, q Querier, e Entity) (int64, error) {
	root, err := s.entities.root(e.Name)
	if err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE Z_PRIMARYKEY SET Z_MAX = Z_MAX + 1 WHERE Z_ENT = ?`, root.ent,
	); err != nil {
		return 0, fmt.Errorf("failed to allocate key for %s: %w", e.Name, err)
	}

	var id int64
	if err := q.QueryRowContext(ctx,
		`SELECT Z_MAX FROM Z_PRIMARYKEY WHERE Z_ENT = ?`, root.ent,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read key for %s: %w", e.Name, err)
	}
	return id, nil
}

// Insert writes one row of entity e with a freshly allocated primary key,
// its discriminator and version 1, followed by the given columns.
func (s *Store) Insert(ctx context.Context, q Querier, e Entity, columns []string, values ...any) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("insert %s: %d columns, %d values", e.Name, len(columns), len(values))
	}
	ent, err := s.Ent(e)
	if err != nil {
		return 0, err
	}
	id, err := s.NextID(ctx, q, e)
	if err != nil {
		return 0, err
	}

	cols := append([]string{"Z_PK", "Z_ENT", "Z_OPT"}, columns...)
	args := append([]any{id, ent, 1}, values...)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.Table, strings.Join(cols, ", "), placeholders(len(cols)))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return 0, Translate("insert "+strings.ToLower(e.Name), err)
	}
	return id, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
