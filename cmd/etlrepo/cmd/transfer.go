package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"etlrepo/internal/codec"
	"etlrepo/internal/service"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export a directory tree to an XML document",
		Long: `Write every transformation, then every job, stored in the directory and its
subdirectories to one XML export document. "-" writes to standard output.
Objects that cannot be loaded are reported and left out.
`,
		Example: `% etlrepo export repository.xml --dir /etl`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				path := a.cfg.Export.Path
				if len(args) == 1 {
					path = args[0]
				}
				if dir == "" {
					dir = a.cfg.Export.Directory
				}

				var (
					result *service.ExportResult
					err    error
				)
				if path == "-" {
					result, err = a.transfer.Export(ctx, cmd.OutOrStdout(), dir)
				} else {
					result, err = a.transfer.ExportFile(ctx, path, dir)
				}
				if result != nil {
					for _, line := range result.Log {
						fmt.Fprintln(cmd.ErrOrStderr(), line)
					}
				}
				if err != nil {
					return err
				}
				if path != "-" {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s: %s\n", path, result.Summary())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to export (default from config, /)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		base      string
		transDir  string
		jobDir    string
		overwrite string
		cont      bool
		comment   string
		limit     []string
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "import {file}",
		Short: "Import an XML export document",
		Long: `Read an export document one object at a time and save every transformation
and job into the repository. Each object is committed on its own; objects
saved before a failure stay saved.

Directories recorded in the document are placed below --base. --trans-dir
and --job-dir put every transformation or job into one directory instead.
With --overwrite ask every existing object is confirmed on the terminal.
`,
		Example: `% etlrepo import repository.xml --base /imported --overwrite ask
% etlrepo import repository.xml --limit /etl/daily --continue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("overwrite") {
					overwrite = a.cfg.Import.Overwrite
				}
				policy, err := service.ParseOverwritePolicy(overwrite)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("base") {
					base = a.cfg.Import.BaseDirectory
				}
				if !cmd.Flags().Changed("comment") {
					comment = a.cfg.Import.VersionComment
				}
				importOpts := service.ImportOptions{
					BaseDirectory:    base,
					TransDirOverride: transDir,
					JobDirOverride:   jobDir,
					Overwrite:        policy,
					ContinueOnError:  cont || a.cfg.Import.ContinueOnError,
					VersionComment:   comment,
					LimitDirs:        limit,
				}

				fb := newPromptFeedback(cmd.InOrStdin(), cmd.OutOrStdout(), quiet)
				result, err := a.transfer.ImportFile(ctx, args[0], importOpts, fb)
				if result != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %s\n", args[0], result.Summary())
				}
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&base, "base", "", "directory the recorded directories are placed below")
	flags.StringVar(&transDir, "trans-dir", "", "directory every transformation is imported into")
	flags.StringVar(&jobDir, "job-dir", "", "directory every job is imported into")
	flags.StringVar(&overwrite, "overwrite", "never", "existing objects: always, never or ask")
	flags.BoolVar(&cont, "continue", false, "go on with the next object after a failure")
	flags.StringVarP(&comment, "comment", "m", "", "version comment recorded in the change log")
	flags.StringSliceVar(&limit, "limit", nil, "only import objects recorded below these directories")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only print the summary")
	return cmd
}

func newInventoryCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inventory [file]",
		Short: "List every transformation and job per directory as YAML or JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := codec.ExporterFor(format)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				inv, err := a.svc.Inventory(ctx)
				if err != nil {
					return err
				}
				if len(args) == 0 || args[0] == "-" {
					return exporter.Export(inv, cmd.OutOrStdout())
				}
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create inventory file: %w", err)
				}
				defer f.Close()
				if err := exporter.Export(inv, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Listed %d objects in %s\n", inv.Count(), args[0])
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func newLogCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the repository change log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.svc.Log(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, humanize.Time(e.Date), e.User, e.Description)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries, 0 for all")
	return cmd
}
