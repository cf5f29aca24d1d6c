package data

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var stateQueries = map[string]string{
	"runs":     "SELECT COUNT(*) FROM batch_run",
	"results":  "SELECT COUNT(*) FROM results",
	"failures": "SELECT COUNT(*) FROM batch_failure",
	"batches":  "SELECT COUNT(DISTINCT batch_id) FROM results",
}

// GetDataState returns row counts of the database.
func GetDataState(ctx context.Context, db *sqlx.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64, len(stateQueries))
	for k, q := range stateQueries {
		var count int64
		if err := db.GetContext(ctx, &count, q); err != nil {
			return nil, errors.Wrapf(err, "error getting %s count", k)
		}
		state[k] = count
	}

	return state, nil
}

// Reset deletes all runs, results and failures. The schema is kept.
func Reset(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return errors.Wrapf(err, "failed to delete from %s", t)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit reset")
}
