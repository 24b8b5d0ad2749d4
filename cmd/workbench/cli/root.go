// Package cli implements the workbench command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type VersionInfo struct {
	Version string
	Commit  string
}

func NewRootCommand(info VersionInfo) *cobra.Command {
	return newRootCommand(info, &app{v: viper.New()})
}

func newRootCommand(info VersionInfo, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workbench",
		Short:         "Work item filter workbench",
		Long:          "Maintain per-project include/exclude filters for work items, evaluate them against CSV or Excel exports, and serve them over HTTP.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("storage", "", "filter storage driver (file, postgres)")

	_ = a.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("storage.driver", cmd.PersistentFlags().Lookup("storage"))

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	cmd.AddCommand(newVersionCommand(info))
	cmd.AddCommand(newFilterCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newMigrateCommand(a))
	releaseAfterRun(cmd, a)
	return cmd
}

// releaseAfterRun closes the app after every command, including failed ones;
// cobra skips post-run hooks when RunE returns an error.
func releaseAfterRun(cmd *cobra.Command, a *app) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return run(cmd, args)
		}
	}
	for _, child := range cmd.Commands() {
		releaseAfterRun(child, a)
	}
}

func newVersionCommand(info VersionInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Config is not needed to print the version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "workbench %s (%s)\n", info.Version, info.Commit)
		},
	}
}
