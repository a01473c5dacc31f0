package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"leadtriage/internal/leads/models"
	"leadtriage/pkg/platform/sentinel"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leads (
	seq                    INTEGER PRIMARY KEY AUTOINCREMENT,
	id                     TEXT NOT NULL UNIQUE,
	first_name             TEXT NOT NULL,
	last_name              TEXT NOT NULL,
	email                  TEXT NOT NULL,
	linkedin_profile       TEXT NOT NULL,
	country_of_citizenship TEXT NOT NULL,
	visas_of_interest      TEXT NOT NULL,
	resume_url             TEXT NOT NULL,
	additional_info        TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL CHECK (status IN ('PENDING', 'REACHED_OUT')),
	submitted_at           TEXT NOT NULL
)`

// SQLiteStore persists leads in a single sqlite file. Visas are stored as a
// JSON array and timestamps as RFC 3339 text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite constructs a sqlite-backed lead store.
func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the leads table when missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, lead *models.Lead) error {
	visas, err := json.Marshal(lead.VisasOfInterest)
	if err != nil {
		return fmt.Errorf("marshal visas: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.LinkedInProfile,
		lead.CountryOfCitizenship,
		string(visas),
		lead.ResumeURL,
		lead.AdditionalInfo,
		string(lead.Status),
		lead.SubmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("lead %s: %w", lead.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Lead, 0)
	for rows.Next() {
		lead, err := scanSQLiteLead(rows)
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

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	lead, err := scanSQLiteLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return lead, nil
}

// Execute runs the validate-mutate-write sequence in one transaction. The
// pool holds a single connection, so transactions never interleave.
func (s *SQLiteStore) Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lead update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	current, err := scanSQLiteLead(row)
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

	visas, err := json.Marshal(working.VisasOfInterest)
	if err != nil {
		return nil, fmt.Errorf("marshal visas: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE leads SET
			first_name = ?,
			last_name = ?,
			email = ?,
			linkedin_profile = ?,
			country_of_citizenship = ?,
			visas_of_interest = ?,
			resume_url = ?,
			additional_info = ?,
			status = ?
		WHERE id = ?`,
		working.FirstName,
		working.LastName,
		working.Email,
		working.LinkedInProfile,
		working.CountryOfCitizenship,
		string(visas),
		working.ResumeURL,
		working.AdditionalInfo,
		string(working.Status),
		working.ID,
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
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func scanSQLiteLead(row rowScanner) (*models.Lead, error) {
	var (
		lead        models.Lead
		visas       string
		status      string
		submittedAt string
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
		&submittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	if err := json.Unmarshal([]byte(visas), &lead.VisasOfInterest); err != nil {
		return nil, fmt.Errorf("unmarshal visas: %w", err)
	}
	lead.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	lead.Status = models.Status(status)
	return &lead, nil
}
