package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
	assert.Equal(t, StorageFile, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "Work Item Type", cfg.Ingestion.Columns["type"])
}

func TestLoadFileEnvAndDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workbench.yaml")
	writeFile(t, path, `
database:
  host: db.internal
  port: 6543
storage:
  driver: postgres
log:
  level: debug
http:
  allowed_origins: ["https://app.example.com"]
ingestion:
  columns:
    title: Summary
`)
	writeFile(t, filepath.Join(dir, ".env"), "WORKBENCH_DATABASE_USER=from_dotenv\nWORKBENCH_DATABASE_PORT=1111\n")
	t.Setenv("WORKBENCH_DATABASE_PORT", "7777")
	t.Setenv("WORKBENCH_DATABASE_USER", "")
	require.NoError(t, os.Unsetenv("WORKBENCH_DATABASE_USER"))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 7777, cfg.Database.Port, "process env wins over file and .env")
	assert.Equal(t, "from_dotenv", cfg.Database.User)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "Summary", cfg.Ingestion.Columns["title"])
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "storage:\n  driver: s3\n")

	_, err := Load(viper.New(), path)
	assert.ErrorContains(t, err, "unsupported storage.driver")
}

func TestLoadReportsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "database: [unclosed\n")

	_, err := Load(viper.New(), path)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Directory = " "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
