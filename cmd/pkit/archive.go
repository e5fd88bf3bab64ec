package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectkit/internal/archive"
)

type archiveOptions struct {
	output string
	level  int
}

func newArchiveCmd(global *globalOptions) *cobra.Command {
	opts := &archiveOptions{}

	cmd := &cobra.Command{
		Use:   "archive <dir>",
		Short: "Package a directory as a zip archive",
		Long: `Package every regular file below <dir> into a zip archive.

Entry names are relative to <dir> and use forward slashes. The archive is
written to <base>.zip in the current directory unless -o is given.

Examples:
  # Writes site.zip
  pkit archive ./site

  # Choose the output file and compression level
  pkit archive ./site -o /tmp/out.zip --level 9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default <base>.zip)")
	cmd.Flags().IntVar(&opts.level, "level", -1, "flate compression level (-2 to 9)")
	return cmd
}

func runArchive(cmd *cobra.Command, global *globalOptions, opts *archiveOptions, dir string) (err error) {
	logger, err := global.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := opts.output
	if out == "" {
		out = archive.DownloadName(dir)
	}
	// The output may sit inside dir ("pkit archive ."), so the walk must skip it
	outAbs, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", out, err)
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", out, cerr)
		}
		if err != nil {
			_ = os.Remove(out)
		}
	}()

	a := archive.NewArchiver(
		archive.WithCompressionLevel(opts.level),
		archive.WithLogger(logger),
		archive.WithExclude(outAbs),
	)
	n, err := a.WriteTo(cmd.Context(), dir, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d file(s))\n", out, n)
	return nil
}
