package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"match-service/internal/models"

	"github.com/google/uuid"
)

type OutcomeRepository struct {
	db *sql.DB
}

func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// CreateOutcome inserts a new immutable outcome. A re-attempt inserts another
// row; nothing is ever updated in place.
func (r *OutcomeRepository) CreateOutcome(ctx context.Context, outcome *models.Outcome) error {
	outcome.ID = uuid.New().String()
	outcome.CreatedAt = time.Now()

	rankedJSON, err := json.Marshal(outcome.RankedPrograms)
	if err != nil {
		return fmt.Errorf("failed to marshal ranked programs: %w", err)
	}

	query := `
		INSERT INTO outcomes (id, lead_id, quiz_id, version_id, ranked_programs, global_confidence, generated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		outcome.ID,
		outcome.LeadID,
		outcome.QuizID,
		outcome.VersionID,
		string(rankedJSON),
		outcome.GlobalConfidence,
		outcome.GeneratedBy,
		outcome.CreatedAt,
	)

	return err
}

// GetLatestOutcome returns the most recent outcome for a lead. Resume uses
// this: outcome presence always wins over whatever step progress recorded.
func (r *OutcomeRepository) GetLatestOutcome(ctx context.Context, leadID string) (*models.Outcome, error) {
	query := `
		SELECT id, lead_id, quiz_id, version_id, ranked_programs, global_confidence, generated_by, created_at
		FROM outcomes
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	outcome := &models.Outcome{}
	var rankedJSON string
	err := r.db.QueryRowContext(ctx, query, leadID).Scan(
		&outcome.ID,
		&outcome.LeadID,
		&outcome.QuizID,
		&outcome.VersionID,
		&rankedJSON,
		&outcome.GlobalConfidence,
		&outcome.GeneratedBy,
		&outcome.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rankedJSON), &outcome.RankedPrograms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranked programs: %w", err)
	}

	return outcome, nil
}
