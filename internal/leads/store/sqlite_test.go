package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"leadtriage/internal/platform/database"
)

type SQLiteStoreSuite struct {
	contractSuite
	db *sql.DB
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.ctx = context.Background()

	db, err := database.OpenSQLite(s.ctx, filepath.Join(s.T().TempDir(), "leads.db"))
	s.Require().NoError(err)
	s.db = db

	st := NewSQLite(db)
	s.Require().NoError(st.Migrate(s.ctx))
	s.store = st
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *SQLiteStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(NewSQLite(s.db).Migrate(s.ctx))
}
