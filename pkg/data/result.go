package data

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/specqc/pkg/batch"
	"github.com/pkg/errors"
)

const (
	insertRun = `INSERT INTO batch_run (run_id, batch_id, instrument_sn, model_name, started_at, processed, failed)
		VALUES (:run_id, :batch_id, :instrument_sn, :model_name, :started_at, :processed, :failed)`

	insertResult = `INSERT INTO results (run_id, batch_id, instrument_sn, prediction, t2, q_residual, test_time)
		VALUES (:run_id, :batch_id, :instrument_sn, :prediction, :t2, :q_residual, :test_time)`

	insertFailure = `INSERT INTO batch_failure (run_id, source, kind, message)
		VALUES (:run_id, :source, :kind, :message)`

	selectResults = `SELECT run_id, batch_id, instrument_sn, prediction, t2, q_residual, test_time
		FROM results WHERE batch_id = ? ORDER BY test_time, run_id`

	selectRuns = `SELECT run_id, batch_id, instrument_sn, model_name, started_at, processed, failed
		FROM batch_run ORDER BY started_at DESC LIMIT ?`

	selectFailures = `SELECT run_id, source, kind, message FROM batch_failure WHERE run_id = ? ORDER BY source`

	runLimitDefault = 20

	// fixed width so that started_at sorts as text
	runTimeFormat = "2006-01-02T15:04:05.000000Z07:00"
)

// Result is a persisted prediction record.
type Result struct {
	RunID                  string `json:"run_id" yaml:"run_id" db:"run_id"`
	batch.PredictionResult `yaml:",inline"`
}

// Run is a persisted batch execution.
type Run struct {
	RunID        string `json:"run_id" yaml:"run_id" db:"run_id"`
	BatchID      string `json:"batch_id" yaml:"batch_id" db:"batch_id"`
	InstrumentSN string `json:"instrument_sn" yaml:"instrument_sn" db:"instrument_sn"`
	ModelName    string `json:"model_name" yaml:"model_name" db:"model_name"`
	StartedAt    string `json:"started_at" yaml:"started_at" db:"started_at"`
	Processed    int    `json:"processed" yaml:"processed" db:"processed"`
	Failed       int    `json:"failed" yaml:"failed" db:"failed"`
}

// Failure is a persisted per-spectrum failure.
type Failure struct {
	RunID   string `json:"run_id" yaml:"run_id" db:"run_id"`
	Source  string `json:"source" yaml:"source" db:"source"`
	Kind    string `json:"kind" yaml:"kind" db:"kind"`
	Message string `json:"message" yaml:"message" db:"message"`
}

// SaveRun writes the run, its results and its failures in one transaction.
func SaveRun(ctx context.Context, db *sqlx.DB, r *batch.Report) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil {
		return errors.New("report required")
	}

	runID := r.RunID.String()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	run := &Run{
		RunID:        runID,
		BatchID:      r.BatchID,
		InstrumentSN: r.InstrumentSN,
		ModelName:    r.Model,
		StartedAt:    r.Started.UTC().Format(runTimeFormat),
		Processed:    len(r.Rows),
		Failed:       len(r.Failures),
	}
	if _, err := tx.NamedExecContext(ctx, insertRun, run); err != nil {
		return errors.Wrapf(err, "failed to insert run %s", runID)
	}

	for _, row := range r.Rows {
		res := &Result{RunID: runID, PredictionResult: row.Result}
		if _, err := tx.NamedExecContext(ctx, insertResult, res); err != nil {
			return errors.Wrapf(err, "failed to insert result for %s", row.Source)
		}
	}

	for _, fl := range r.Failures {
		rec := &Failure{RunID: runID, Source: fl.Source, Kind: string(fl.Kind), Message: fl.Message}
		if _, err := tx.NamedExecContext(ctx, insertFailure, rec); err != nil {
			return errors.Wrapf(err, "failed to insert failure for %s", fl.Source)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit run")
	}
	return nil
}

// GetResults returns all results recorded for a batch.
func GetResults(ctx context.Context, db *sqlx.DB, batchID string) ([]*Result, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if batchID == "" {
		return nil, errors.New("batch id required")
	}

	list := make([]*Result, 0)
	if err := db.SelectContext(ctx, &list, db.Rebind(selectResults), batchID); err != nil {
		return nil, errors.Wrapf(err, "failed to select results for batch %s", batchID)
	}
	return list, nil
}

// GetRuns returns the most recent runs, newest first.
func GetRuns(ctx context.Context, db *sqlx.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = runLimitDefault
	}

	list := make([]*Run, 0)
	if err := db.SelectContext(ctx, &list, db.Rebind(selectRuns), limit); err != nil {
		return nil, errors.Wrap(err, "failed to select runs")
	}
	return list, nil
}

// GetFailures returns the failures recorded for a run.
func GetFailures(ctx context.Context, db *sqlx.DB, runID string) ([]*Failure, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	list := make([]*Failure, 0)
	if err := db.SelectContext(ctx, &list, db.Rebind(selectFailures), runID); err != nil {
		return nil, errors.Wrapf(err, "failed to select failures for run %s", runID)
	}
	return list, nil
}
