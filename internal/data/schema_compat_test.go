package data

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The workflow host links the store through the CGO sqlite driver, so the
// embedded schema must apply cleanly under both drivers. This suite runs the
// migration through mattn/go-sqlite3 instead of modernc.
func setupCompatDB(t *testing.T) *sql.DB {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "brain-compat-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	db, err := sql.Open("sqlite3", tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range splitSQL(brainSchema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, "statement: %s", stmt)
	}

	return db
}

func TestSchemaAppliesUnderCGODriver(t *testing.T) {
	db := setupCompatDB(t)

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())

	assert.Contains(t, tables, "brain_decisions")
	assert.Contains(t, tables, "brain_memories")
	assert.Contains(t, tables, "brain_dreams")
}

func TestDecisionRoundTripUnderCGODriver(t *testing.T) {
	db := setupCompatDB(t)

	_, err := db.Exec(`
		INSERT INTO brain_decisions (decision_id, conversation_id, user_message, brain_mode)
		VALUES ('d-1', 'conv-1', 'hello', 'shadow')`)
	require.NoError(t, err)

	var mode, conflict string
	err = db.QueryRow(`SELECT brain_mode, conflict_detected FROM brain_decisions WHERE decision_id = 'd-1'`).
		Scan(&mode, &conflict)
	require.NoError(t, err)

	assert.Equal(t, "shadow", mode)
	assert.Equal(t, "none", conflict, "schema default applies")
}
