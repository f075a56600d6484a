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

type ReadinessRepository struct {
	db *sql.DB
}

func NewReadinessRepository(db *sql.DB) *ReadinessRepository {
	return &ReadinessRepository{db: db}
}

// SaveReadiness upserts the per-program assessment result. Retaking the
// readiness flow for the same program replaces the previous result.
func (r *ReadinessRepository) SaveReadiness(ctx context.Context, readiness *models.Readiness) error {
	if readiness.ID == "" {
		readiness.ID = uuid.New().String()
	}
	readiness.CompletedAt = time.Now()

	scoresJSON, err := json.Marshal(readiness.DimensionScores)
	if err != nil {
		return fmt.Errorf("failed to marshal dimension scores: %w", err)
	}

	guidanceJSON, err := json.Marshal(readiness.PrepGuidance)
	if err != nil {
		return fmt.Errorf("failed to marshal prep guidance: %w", err)
	}

	query := `
		INSERT INTO readiness_results (id, lead_id, program_id, band, dimension_scores, prep_guidance, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id, program_id) DO UPDATE SET
			band = EXCLUDED.band,
			dimension_scores = EXCLUDED.dimension_scores,
			prep_guidance = EXCLUDED.prep_guidance,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		readiness.ID,
		readiness.LeadID,
		readiness.ProgramID,
		readiness.Band,
		string(scoresJSON),
		string(guidanceJSON),
		readiness.CompletedAt,
	)

	return err
}

func (r *ReadinessRepository) GetReadinessByLead(ctx context.Context, leadID string) ([]*models.Readiness, error) {
	query := `
		SELECT id, lead_id, program_id, band, dimension_scores, prep_guidance, completed_at
		FROM readiness_results
		WHERE lead_id = $1
		ORDER BY completed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.Readiness
	for rows.Next() {
		readiness := &models.Readiness{}
		var scoresJSON, guidanceJSON string
		err := rows.Scan(
			&readiness.ID,
			&readiness.LeadID,
			&readiness.ProgramID,
			&readiness.Band,
			&scoresJSON,
			&guidanceJSON,
			&readiness.CompletedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(scoresJSON), &readiness.DimensionScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dimension scores: %w", err)
		}
		if err := json.Unmarshal([]byte(guidanceJSON), &readiness.PrepGuidance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prep guidance: %w", err)
		}

		results = append(results, readiness)
	}

	return results, rows.Err()
}
