package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capillaire.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"plans", "subscriptions", "clients", "preferences", "auth_sessions", "execution_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	// reopening an up-to-date database is a no-op
	db2, err := NewDB(path)
	require.NoError(t, err)
	db2.Close()
}

func TestPgxURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@host:5432/db?sslmode=disable", pgxURL("postgres://u:p@host:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://host/db", pgxURL("postgresql://host/db"))
	assert.Equal(t, "pgx5://host/db", pgxURL("pgx5://host/db"))
}
