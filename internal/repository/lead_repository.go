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

type LeadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) CreateLead(ctx context.Context, lead *models.Lead) error {
	lead.ID = uuid.New().String()
	lead.CreatedAt = time.Now()

	consentsJSON, err := json.Marshal(lead.Consents)
	if err != nil {
		return fmt.Errorf("failed to marshal consents: %w", err)
	}

	query := `
		INSERT INTO leads (id, quiz_id, version_id, workspace_id, email, first_name, last_name, phone, start_term, modality, consents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		lead.ID,
		lead.QuizID,
		lead.VersionID,
		lead.WorkspaceID,
		lead.Email,
		lead.FirstName,
		lead.LastName,
		lead.Phone,
		lead.StartTerm,
		lead.Modality,
		string(consentsJSON),
		lead.CreatedAt,
	)

	return err
}

func (r *LeadRepository) GetLeadByID(ctx context.Context, leadID string) (*models.Lead, error) {
	query := `
		SELECT id, quiz_id, version_id, workspace_id, email, first_name, last_name, phone, start_term, modality, consents, created_at
		FROM leads
		WHERE id = $1
	`

	lead := &models.Lead{}
	var consentsJSON string
	err := r.db.QueryRowContext(ctx, query, leadID).Scan(
		&lead.ID,
		&lead.QuizID,
		&lead.VersionID,
		&lead.WorkspaceID,
		&lead.Email,
		&lead.FirstName,
		&lead.LastName,
		&lead.Phone,
		&lead.StartTerm,
		&lead.Modality,
		&consentsJSON,
		&lead.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(consentsJSON), &lead.Consents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consents: %w", err)
	}

	return lead, nil
}

// UpdateConsents is the only mutation a lead supports after creation.
func (r *LeadRepository) UpdateConsents(ctx context.Context, leadID string, consents map[string]bool) error {
	consentsJSON, err := json.Marshal(consents)
	if err != nil {
		return fmt.Errorf("failed to marshal consents: %w", err)
	}

	query := `UPDATE leads SET consents = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, string(consentsJSON), leadID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
