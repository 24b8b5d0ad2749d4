package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rpattn/workbench/internal/httpapi"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the filter HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			filters, err := a.filters(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			handler := httpapi.NewHandler(filters,
				httpapi.WithIngestion(a.ingestion()),
				httpapi.WithExporter(a.exporter()),
				httpapi.WithLogger(a.logger),
			)
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			server := httpapi.NewServer(addr, a.cfg.HTTP.AllowedOrigins, handler, a.logger)
			return server.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from http.addr)")
	return cmd
}
