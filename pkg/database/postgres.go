package database

import (
	"context"
	"database/sql"
	"fmt"

	"match-service/config"

	_ "github.com/lib/pq"
)

type PostgresClient struct {
	db     *sql.DB
	config *config.DBConfig
}

func NewPostgresClient(cfg *config.DBConfig) (*PostgresClient, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{
		db:     db,
		config: cfg,
	}, nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.db
}

func (c *PostgresClient) InitSchema(ctx context.Context) error {
	createQuizVersionsTable := `
		CREATE TABLE IF NOT EXISTS quiz_versions (
			id VARCHAR(255) PRIMARY KEY,
			quiz_id VARCHAR(255) NOT NULL,
			version_id VARCHAR(255) NOT NULL,
			workspace_id VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'published',
			config JSONB NOT NULL DEFAULT '{}',
			published_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (quiz_id, version_id, workspace_id)
		);
		CREATE INDEX IF NOT EXISTS idx_quiz_versions_quiz_id ON quiz_versions(quiz_id);
	`

	createLeadsTable := `
		CREATE TABLE IF NOT EXISTS leads (
			id VARCHAR(255) PRIMARY KEY,
			quiz_id VARCHAR(255) NOT NULL,
			version_id VARCHAR(255) NOT NULL,
			workspace_id VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(50) NOT NULL DEFAULT '',
			start_term VARCHAR(100) NOT NULL DEFAULT '',
			modality VARCHAR(100) NOT NULL DEFAULT '',
			consents JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_leads_quiz_version ON leads(quiz_id, version_id);
		CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
	`

	createProgressTable := `
		CREATE TABLE IF NOT EXISTS progress (
			lead_id VARCHAR(255) PRIMARY KEY,
			quiz_id VARCHAR(255) NOT NULL,
			version_id VARCHAR(255) NOT NULL,
			responses JSONB NOT NULL DEFAULT '{}',
			current_step VARCHAR(50) NOT NULL,
			question_index INTEGER NOT NULL DEFAULT 0,
			program_id VARCHAR(255),
			superseded BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE CASCADE
		);
	`

	createOutcomesTable := `
		CREATE TABLE IF NOT EXISTS outcomes (
			id VARCHAR(255) PRIMARY KEY,
			lead_id VARCHAR(255) NOT NULL,
			quiz_id VARCHAR(255) NOT NULL,
			version_id VARCHAR(255) NOT NULL,
			ranked_programs JSONB NOT NULL DEFAULT '[]',
			global_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			generated_by VARCHAR(50) NOT NULL DEFAULT 'baseline',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_lead_id ON outcomes(lead_id);
	`

	createReadinessTable := `
		CREATE TABLE IF NOT EXISTS readiness_results (
			id VARCHAR(255) PRIMARY KEY,
			lead_id VARCHAR(255) NOT NULL,
			program_id VARCHAR(255) NOT NULL,
			band VARCHAR(50) NOT NULL,
			dimension_scores JSONB NOT NULL DEFAULT '{}',
			prep_guidance JSONB NOT NULL DEFAULT '[]',
			completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (lead_id, program_id),
			FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_readiness_results_lead_id ON readiness_results(lead_id);
	`

	if _, err := c.db.ExecContext(ctx, createQuizVersionsTable); err != nil {
		return fmt.Errorf("failed to create quiz_versions table: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, createLeadsTable); err != nil {
		return fmt.Errorf("failed to create leads table: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, createProgressTable); err != nil {
		return fmt.Errorf("failed to create progress table: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, createOutcomesTable); err != nil {
		return fmt.Errorf("failed to create outcomes table: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, createReadinessTable); err != nil {
		return fmt.Errorf("failed to create readiness_results table: %w", err)
	}

	return nil
}
