package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ChemScreen/internal/domain/screening"
	appErrors "github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

const runColumns = `id, params, status, error, corpus_size, hits, skipped,
       load_report, started_at, completed_at, created_at, updated_at, version`

// ─────────────────────────────────────────────────────────────────────────────
// ScreeningRunRepository
// ─────────────────────────────────────────────────────────────────────────────

// ScreeningRunRepository persists screening runs. Parameters, hits, and load
// reports are stored as JSONB so completed result sets travel with the run.
type ScreeningRunRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewScreeningRunRepository constructs a ready-to-use ScreeningRunRepository.
func NewScreeningRunRepository(pool *pgxpool.Pool, logger Logger) *ScreeningRunRepository {
	return &ScreeningRunRepository{pool: pool, logger: logger}
}

// Save inserts a new run row.
func (r *ScreeningRunRepository) Save(ctx context.Context, run *screening.Run) error {
	r.logger.Debug("ScreeningRunRepository.Save", "run_id", run.ID, "status", run.Status)

	paramsJSON, _ := json.Marshal(run.Params)
	hitsJSON, _ := json.Marshal(run.Hits)
	reportJSON, _ := json.Marshal(run.Report)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO screening_runs (
			id, params, status, error, corpus_size, hits, skipped,
			load_report, started_at, completed_at, created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		run.ID, paramsJSON, run.Status, run.Error, run.CorpusSize, hitsJSON, run.SkippedN,
		reportJSON, run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt, run.Version,
	)
	if err != nil {
		r.logger.Error("ScreeningRunRepository.Save", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert screening run")
	}
	return nil
}

// Update rewrites the mutable run state with optimistic locking on version.
func (r *ScreeningRunRepository) Update(ctx context.Context, run *screening.Run) error {
	r.logger.Debug("ScreeningRunRepository.Update", "run_id", run.ID, "status", run.Status)

	hitsJSON, _ := json.Marshal(run.Hits)
	reportJSON, _ := json.Marshal(run.Report)
	newVersion := run.Version + 1

	tag, err := r.pool.Exec(ctx, `
		UPDATE screening_runs SET
			status=$1, error=$2, corpus_size=$3, hits=$4, skipped=$5,
			load_report=$6, started_at=$7, completed_at=$8,
			updated_at=NOW(), version=$9
		WHERE id=$10 AND version=$11`,
		run.Status, run.Error, run.CorpusSize, hitsJSON, run.SkippedN,
		reportJSON, run.StartedAt, run.CompletedAt,
		newVersion, run.ID, run.Version,
	)
	if err != nil {
		r.logger.Error("ScreeningRunRepository.Update", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to update screening run")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeConflict, "optimistic lock conflict: run version mismatch")
	}
	run.Version = newVersion
	return nil
}

// FindByID loads one run including its stored hits.
func (r *ScreeningRunRepository) FindByID(ctx context.Context, id common.ID) (*screening.Run, error) {
	r.logger.Debug("ScreeningRunRepository.FindByID", "id", id)

	return scanRun(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM screening_runs WHERE id = $1`, runColumns), id))
}

// List returns runs newest-first, optionally filtered by status.
func (r *ScreeningRunRepository) List(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error) {
	r.logger.Debug("ScreeningRunRepository.List", "status", status, "page", page.Page)

	var (
		whereClause string
		args        []interface{}
	)
	if status != "" {
		whereClause = "WHERE status = $1"
		args = append(args, status)
	}

	var total int64
	if err := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM screening_runs %s", whereClause), args...,
	).Scan(&total); err != nil {
		r.logger.Error("ScreeningRunRepository.List: count", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "count failed")
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM screening_runs %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, runColumns, whereClause, pageSize, page.Offset()), args...)
	if err != nil {
		r.logger.Error("ScreeningRunRepository.List: query", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "list query failed")
	}
	defer rows.Close()

	var runs []*screening.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return runs, total, nil
}

// Delete removes a run.
func (r *ScreeningRunRepository) Delete(ctx context.Context, id common.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM screening_runs WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("ScreeningRunRepository.Delete", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete screening run")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeScreeningRunNotFound, "screening run not found")
	}
	return nil
}

func scanRun(row pgx.Row) (*screening.Run, error) {
	var (
		run        screening.Run
		paramsJSON []byte
		hitsJSON   []byte
		reportJSON []byte
	)

	err := row.Scan(
		&run.ID, &paramsJSON, &run.Status, &run.Error, &run.CorpusSize, &hitsJSON, &run.SkippedN,
		&reportJSON, &run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt, &run.Version,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.ErrCodeScreeningRunNotFound, "screening run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan screening run")
	}

	if len(paramsJSON) > 0 {
		_ = json.Unmarshal(paramsJSON, &run.Params)
	}
	if len(hitsJSON) > 0 {
		var hits []mtypes.SimilarityHit
		_ = json.Unmarshal(hitsJSON, &hits)
		run.Hits = hits
	}
	if len(reportJSON) > 0 && string(reportJSON) != "null" {
		var report screening.LoadReport
		if json.Unmarshal(reportJSON, &report) == nil {
			run.Report = &report
		}
	}
	return &run, nil
}
