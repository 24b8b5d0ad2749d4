package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "host=localhost port=5432 user=postgres password=admin dbname=workbench sslmode=disable", cfg.DSN())
}

func TestConfigURLEscapesCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss/word"

	got := cfg.URL()
	assert.True(t, strings.HasPrefix(got, "pgx5://postgres:"))
	assert.Contains(t, got, "@localhost:5432/workbench?sslmode=disable")
	assert.NotContains(t, got, "p@ss/word")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrationFiles, down)
		assert.NoError(t, err, "missing %s", down)
	}
}
