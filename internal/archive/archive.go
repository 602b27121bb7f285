// Package archive persists accepted power-flow snapshots to Postgres so past
// runs stay queryable after the in-memory result has been replaced.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/splx7/gridflow-sub000/api/schemas"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL implementation of schemas.ResultArchive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.ResultArchive = (*Store)(nil)

// New creates an archive store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

// Run is one archived power-flow execution.
type Run struct {
	ID         string
	ProjectID  string
	Converged  bool
	Iterations int
	Summary    schemas.ResultSummary
	SolvedAt   time.Time
}

// ArchiveResult stores a result row plus its violations in one transaction.
func (s *Store) ArchiveResult(ctx context.Context, result *schemas.PowerFlowResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && rollbackErr != pgx.ErrTxClosed {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	runID := uuid.NewString()
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result payload: %w", err)
	}

	const insertRun = `
        INSERT INTO pf_runs (id, project_id, converged, iterations, summary, payload, solved_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	if _, err := tx.Exec(ctx, insertRun,
		runID, result.ProjectID, result.Converged, result.Iterations,
		summary, payload, result.SolvedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}

	if len(result.Violations) > 0 {
		rows := violationRows(runID, result.Violations)
		copyCount, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"pf_violations"},
			[]string{"run_id", "type", "target_id", "value", "violation_limit", "message"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy violations: %w", err)
		}
		if int(copyCount) != len(result.Violations) {
			return fmt.Errorf("mismatch in copied violations count: expected %d, got %d", len(result.Violations), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// violationRows shapes violations for CopyFrom.
func violationRows(runID string, violations []schemas.Violation) [][]interface{} {
	rows := make([][]interface{}, len(violations))
	for i, v := range violations {
		rows[i] = []interface{}{runID, string(v.Type), v.TargetID, v.Value, v.Limit, v.Message}
	}
	return rows
}

// ListRuns returns archived runs for a project, most recent first.
func (s *Store) ListRuns(ctx context.Context, projectID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, project_id, converged, iterations, summary, solved_at
        FROM pf_runs
        WHERE project_id = $1
        ORDER BY solved_at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var summary []byte
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.Converged, &run.Iterations, &summary, &run.SolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if len(summary) > 0 {
			if err := json.Unmarshal(summary, &run.Summary); err != nil {
				return nil, fmt.Errorf("unmarshal summary for run %s: %w", run.ID, err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// GetRun returns the full archived payload of one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*schemas.PowerFlowResult, error) {
	const query = `SELECT payload FROM pf_runs WHERE id = $1;`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("run %s not found", runID)
	}
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, fmt.Errorf("failed to scan run payload: %w", err)
	}
	var result schemas.PowerFlowResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload for run %s: %w", runID, err)
	}
	return &result, nil
}
