package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectkit/internal/project"
)

type materializeOptions struct {
	name      string
	workspace string
	noStaging bool
}

func newMaterializeCmd(global *globalOptions) *cobra.Command {
	opts := &materializeOptions{}

	cmd := &cobra.Command{
		Use:   "materialize [file.json|-]",
		Short: "Write a file set into a project directory",
		Long: `Write a file set into <workspace>/<name>.

The input is a JSON object mapping category names to objects of relative
path and file content:

  {"html": {"index.html": "<html></html>"}, "css": {"style.css": "body{}"}}

Existing projects are merged: files not in the input are left alone and
files in the input are overwritten.

Examples:
  # Materialize from a file
  pkit materialize --name site files.json

  # Materialize from stdin into another workspace
  cat files.json | pkit materialize --name site --workspace /srv/projects -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", "testProject", "project name")
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", ".", "directory projects are created in")
	cmd.Flags().BoolVar(&opts.noStaging, "no-staging", false, "write new projects in place instead of staging them")
	return cmd
}

func runMaterialize(cmd *cobra.Command, global *globalOptions, opts *materializeOptions, args []string) error {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	files, err := project.ParseFileSet(content)
	if err != nil {
		return err
	}

	logger, err := global.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m := project.NewMaterializer(opts.workspace,
		project.WithLogger(logger),
		project.WithStaging(!opts.noStaging),
	)

	res, err := m.Materialize(cmd.Context(), files, opts.name)
	if err != nil {
		var merr *project.MaterializeError
		if errors.As(err, &merr) && merr.Partial() {
			fmt.Fprintf(cmd.ErrOrStderr(), "[pkit] %d file(s) were written before the failure:\n", len(merr.Written))
			for _, p := range merr.Written {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
			}
		}
		return err
	}

	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d file(s) written\n", verb, res.Root, res.Files)
	return nil
}
