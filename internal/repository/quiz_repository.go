package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type QuizRepository struct {
	db *sql.DB
}

func NewQuizRepository(db *sql.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

type QuizVersion struct {
	ID          string
	QuizID      string
	VersionID   string
	WorkspaceID string
	Status      string
	Config      string // JSON
	PublishedAt time.Time
}

func (r *QuizRepository) PublishVersion(ctx context.Context, version *QuizVersion) error {
	version.ID = uuid.New().String()
	version.Status = "published"
	version.PublishedAt = time.Now()

	query := `
		INSERT INTO quiz_versions (id, quiz_id, version_id, workspace_id, status, config, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		version.ID,
		version.QuizID,
		version.VersionID,
		version.WorkspaceID,
		version.Status,
		version.Config,
		version.PublishedAt,
	)

	return err
}

func (r *QuizRepository) GetVersion(ctx context.Context, quizID, versionID, workspaceID string) (*QuizVersion, error) {
	query := `
		SELECT id, quiz_id, version_id, workspace_id, status, config, published_at
		FROM quiz_versions
		WHERE quiz_id = $1 AND version_id = $2 AND workspace_id = $3
	`

	version := &QuizVersion{}
	err := r.db.QueryRowContext(ctx, query, quizID, versionID, workspaceID).Scan(
		&version.ID,
		&version.QuizID,
		&version.VersionID,
		&version.WorkspaceID,
		&version.Status,
		&version.Config,
		&version.PublishedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return version, nil
}
