package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/motionlab/movement-analyzer/internal/domain/entity"
)

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, run *entity.Run) error {
	query := `
		INSERT INTO comparison_runs (
			id, user_id, short_video_key, reference_video_key, target_frames,
			state, score, analysis_text, error_kind, error_message,
			attempt, max_attempts, created_at, updated_at, scored_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := r.pool.Exec(ctx, query,
		run.ID, run.UserID, run.ShortVideoKey, run.ReferenceVideoKey, run.TargetFrames,
		string(run.State), run.Score, run.AnalysisText, string(run.ErrorKind), run.ErrorMessage,
		run.Attempt, run.MaxAttempts, run.CreatedAt, run.UpdatedAt, run.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *entity.Run) error {
	query := `
		UPDATE comparison_runs SET
			state=$2, score=$3, analysis_text=$4, error_kind=$5, error_message=$6,
			attempt=$7, updated_at=$8, scored_at=$9
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		run.ID, string(run.State), run.Score, run.AnalysisText,
		string(run.ErrorKind), run.ErrorMessage,
		run.Attempt, run.UpdatedAt, run.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Run, error) {
	query := `
		SELECT id, user_id, short_video_key, reference_video_key, target_frames,
			state, score, analysis_text, error_kind, error_message,
			attempt, max_attempts, created_at, updated_at, scored_at
		FROM comparison_runs WHERE id=$1`

	run := &entity.Run{}
	var state, errorKind string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.UserID, &run.ShortVideoKey, &run.ReferenceVideoKey, &run.TargetFrames,
		&state, &run.Score, &run.AnalysisText, &errorKind, &run.ErrorMessage,
		&run.Attempt, &run.MaxAttempts, &run.CreatedAt, &run.UpdatedAt, &run.ScoredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find run by id: %w", err)
	}
	run.State = entity.RunState(state)
	run.ErrorKind = entity.ErrorKind(errorKind)
	return run, nil
}
