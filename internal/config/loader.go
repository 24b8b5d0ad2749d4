// Package config loads workbench settings from config.yaml, .env files and
// WORKBENCH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/workbench/internal/db"
	"github.com/rpattn/workbench/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. WORKBENCH_DATABASE_HOST.
const EnvPrefix = "WORKBENCH"

// Storage drivers for filter collections.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

var envFiles = []string{".env", ".env.local"}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	Directory string `mapstructure:"directory"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ExportConfig struct {
	Directory string `mapstructure:"directory"`
	SheetName string `mapstructure:"sheet_name"`
}

// IngestionConfig maps work item attributes to table column headers.
type IngestionConfig struct {
	Columns map[string]string `mapstructure:"columns"`
}

// Config is the full workbench configuration.
type Config struct {
	Database  db.Config       `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       logging.Config  `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Export    ExportConfig    `mapstructure:"export"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Driver:    StorageFile,
			Directory: filepath.Join(".workbench", "filters"),
		},
		Log: logging.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Export: ExportConfig{
			Directory: filepath.Join(".workbench", "exports"),
			SheetName: "Work Items",
		},
		Ingestion: IngestionConfig{
			Columns: map[string]string{
				"id":          "ID",
				"type":        "Work Item Type",
				"title":       "Title",
				"description": "Description",
				"effort":      "Effort",
				"assigned_to": "Assigned To",
			},
		},
	}
}

// Load reads configuration into v and decodes it. An empty path searches the
// working directory and ./config for config.yaml. Flags bound to v before
// calling Load take precedence over file and environment values.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		loadEnvFiles(filepath.Dir(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		loadEnvFiles(".", "./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageFile:
		if strings.TrimSpace(c.Storage.Directory) == "" {
			return fmt.Errorf("storage.directory is required for the %s driver", StorageFile)
		}
	case StoragePostgres:
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.directory", d.Storage.Directory)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.no_terminal", d.Log.NoTerminal)
	v.SetDefault("log.rotation.max_size", d.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", d.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)

	v.SetDefault("export.directory", d.Export.Directory)
	v.SetDefault("export.sheet_name", d.Export.SheetName)

	v.SetDefault("ingestion.columns", d.Ingestion.Columns)
}

// loadEnvFiles never overrides variables that are already set.
func loadEnvFiles(dirs ...string) {
	for _, dir := range dirs {
		for _, name := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, name))
		}
	}
}
