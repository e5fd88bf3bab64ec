// Package main implements the pkit CLI for materializing and archiving projects.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectkit/internal/config"
	"github.com/fyrsmithlabs/projectkit/internal/logging"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "pkit",
		Short: "Materialize generated projects and package them as zip archives",
		Long: `pkit writes generated file sets into project directories and packages
project directories as zip archives. It works directly on the local
filesystem; use "pkit health" to check a running projectkitd.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each file to stdout")

	cmd.AddCommand(newMaterializeCmd(opts))
	cmd.AddCommand(newArchiveCmd(opts))
	cmd.AddCommand(newHealthCmd())
	return cmd
}

// logger returns a console logger when --verbose is set and a nop logger
// otherwise.
func (o *globalOptions) logger() (*logging.Logger, error) {
	if !o.verbose {
		return logging.NewNop(), nil
	}
	cfg, err := logging.FromSettings(config.LoggingConfig{Level: "debug", Format: "console"})
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(cfg, nil)
}
