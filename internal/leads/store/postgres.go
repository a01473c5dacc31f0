package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"leadtriage/internal/leads/models"
	"leadtriage/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS leads (
	seq                    BIGSERIAL PRIMARY KEY,
	id                     TEXT NOT NULL UNIQUE,
	first_name             TEXT NOT NULL,
	last_name              TEXT NOT NULL,
	email                  TEXT NOT NULL,
	linkedin_profile       TEXT NOT NULL,
	country_of_citizenship TEXT NOT NULL,
	visas_of_interest      TEXT[] NOT NULL,
	resume_url             TEXT NOT NULL,
	additional_info        TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL CHECK (status IN ('PENDING', 'REACHED_OUT')),
	submitted_at           TIMESTAMPTZ NOT NULL
)`

const leadColumns = `id, first_name, last_name, email, linkedin_profile, country_of_citizenship,
	visas_of_interest, resume_url, additional_info, status, submitted_at`

// PostgresStore persists leads in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed lead store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the leads table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, lead *models.Lead) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		lead.ID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.LinkedInProfile,
		lead.CountryOfCitizenship,
		pq.Array(lead.VisasOfInterest),
		lead.ResumeURL,
		lead.AdditionalInfo,
		string(lead.Status),
		lead.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("lead %s: %w", lead.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Lead, 0)
	for rows.Next() {
		lead, err := scanPostgresLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanPostgresLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return lead, nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the whole
// validate-mutate-write sequence.
func (s *PostgresStore) Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lead update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id)
	current, err := scanPostgresLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}

	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	protectImmutable(current, working)

	_, err = tx.ExecContext(ctx, `UPDATE leads SET
			first_name = $2,
			last_name = $3,
			email = $4,
			linkedin_profile = $5,
			country_of_citizenship = $6,
			visas_of_interest = $7,
			resume_url = $8,
			additional_info = $9,
			status = $10
		WHERE id = $1`,
		working.ID,
		working.FirstName,
		working.LastName,
		working.Email,
		working.LinkedInProfile,
		working.CountryOfCitizenship,
		pq.Array(working.VisasOfInterest),
		working.ResumeURL,
		working.AdditionalInfo,
		string(working.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lead update: %w", err)
	}
	return working, nil
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", sentinel.ErrUnavailable)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresLead(row rowScanner) (*models.Lead, error) {
	var (
		lead   models.Lead
		visas  pq.StringArray
		status string
	)
	err := row.Scan(
		&lead.ID,
		&lead.FirstName,
		&lead.LastName,
		&lead.Email,
		&lead.LinkedInProfile,
		&lead.CountryOfCitizenship,
		&visas,
		&lead.ResumeURL,
		&lead.AdditionalInfo,
		&status,
		&lead.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	lead.VisasOfInterest = []string(visas)
	lead.Status = models.Status(status)
	lead.SubmittedAt = lead.SubmittedAt.UTC()
	return &lead, nil
}
