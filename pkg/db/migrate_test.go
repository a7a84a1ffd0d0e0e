package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"migrations/0001_ledger.sql", "migrations/0002_engage_event.sql"}, names)

	capture, err := migrations.ReadFile("migrations/0002_engage_event.sql")
	require.NoError(t, err)
	script := string(capture)
	require.Contains(t, script, "pg_notify('"+NotifyChannel+"', payload)")
	require.True(t, strings.Contains(script, "AFTER UPDATE ON engage"))
}
