package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"match-service/internal/models"
)

type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// SaveProgress upserts the full snapshot for a lead. Last write wins: there is
// no version check, a later save fully replaces the stored state.
func (r *ProgressRepository) SaveProgress(ctx context.Context, progress *models.Progress) error {
	progress.UpdatedAt = time.Now()

	responsesJSON, err := json.Marshal(progress.Responses)
	if err != nil {
		return fmt.Errorf("failed to marshal responses: %w", err)
	}

	query := `
		INSERT INTO progress (lead_id, quiz_id, version_id, responses, current_step, question_index, program_id, superseded, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lead_id) DO UPDATE SET
			responses = EXCLUDED.responses,
			current_step = EXCLUDED.current_step,
			question_index = EXCLUDED.question_index,
			program_id = EXCLUDED.program_id,
			superseded = EXCLUDED.superseded,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		progress.LeadID,
		progress.QuizID,
		progress.VersionID,
		string(responsesJSON),
		progress.CurrentStep,
		progress.QuestionIndex,
		progress.ProgramID,
		progress.Superseded,
		progress.UpdatedAt,
	)

	return err
}

func (r *ProgressRepository) GetProgress(ctx context.Context, leadID string) (*models.Progress, error) {
	query := `
		SELECT lead_id, quiz_id, version_id, responses, current_step, question_index, program_id, superseded, updated_at
		FROM progress
		WHERE lead_id = $1
	`

	progress := &models.Progress{}
	var responsesJSON string
	err := r.db.QueryRowContext(ctx, query, leadID).Scan(
		&progress.LeadID,
		&progress.QuizID,
		&progress.VersionID,
		&responsesJSON,
		&progress.CurrentStep,
		&progress.QuestionIndex,
		&progress.ProgramID,
		&progress.Superseded,
		&progress.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(responsesJSON), &progress.Responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal responses: %w", err)
	}

	return progress, nil
}

// MarkSuperseded flags the snapshot once an outcome exists. The row is kept,
// not deleted, so support can still inspect the final answer state.
func (r *ProgressRepository) MarkSuperseded(ctx context.Context, leadID string) error {
	query := `UPDATE progress SET superseded = TRUE, updated_at = $1 WHERE lead_id = $2`

	_, err := r.db.ExecContext(ctx, query, time.Now(), leadID)
	return err
}
