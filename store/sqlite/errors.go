package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/ledger-engine/ledger"
)

// Translate maps constraint failures to *ledger.IntegrityError and wraps
// everything else with the operation name.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return &ledger.IntegrityError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
