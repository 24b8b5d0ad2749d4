package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rpattn/workbench/internal/config"
	"github.com/rpattn/workbench/internal/db"
	"github.com/rpattn/workbench/internal/export"
	"github.com/rpattn/workbench/internal/filtering"
	"github.com/rpattn/workbench/internal/ingestion"
	"github.com/rpattn/workbench/internal/logging"
	"github.com/rpattn/workbench/internal/repository"
)

// app holds what every command shares once configuration is loaded.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
	logger     *zap.Logger
	conn       *db.Connection
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
		a.logger = nil
	}
}

func (a *app) repository(ctx context.Context) (repository.FilterCollectionRepository, error) {
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		if a.conn == nil {
			conn, err := db.NewConnection(ctx, a.cfg.Database, a.logger)
			if err != nil {
				return nil, err
			}
			a.conn = conn
		}
		return repository.NewPostgresFilterCollectionRepository(a.conn), nil
	default:
		return repository.NewFileFilterCollectionRepository(a.cfg.Storage.Directory), nil
	}
}

// filters builds the coordinator. Warnings about reset filters go to warn.
func (a *app) filters(ctx context.Context, warn io.Writer) (*filtering.Service, error) {
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, err
	}
	notifier := filtering.NotifierFunc(func(_ context.Context, _ string, message string) {
		fmt.Fprintf(warn, "warning: %s\n", message)
	})
	return filtering.NewService(repo,
		filtering.WithNotifier(notifier),
		filtering.WithLogger(a.logger),
	), nil
}

func (a *app) ingestion() *ingestion.Service {
	return ingestion.NewService(
		ingestion.WithColumns(ingestion.ColumnsFromMap(a.cfg.Ingestion.Columns)),
		ingestion.WithLogger(a.logger),
	)
}

func (a *app) exporter() *export.Service {
	return export.NewService(
		export.WithExportDirectory(a.cfg.Export.Directory),
		export.WithSheetName(a.cfg.Export.SheetName),
		export.WithLogger(a.logger),
	)
}
