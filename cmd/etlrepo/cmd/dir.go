package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"etlrepo/internal/domain"
)

func newDirCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Commands to manage the repository directory tree",
		Long: `Directories organize transformations and jobs. Paths are absolute and use
"/" as separator; names compare case-insensitively.
`,
	}
	cmd.AddCommand(
		newDirMkdirCmd(opts),
		newDirRmdirCmd(opts),
		newDirMvCmd(opts),
		newDirLsCmd(opts),
	)
	return cmd
}

func newDirMkdirCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "mkdir {path}",
		Short:   "Create a directory and its missing parents",
		Example: `% etlrepo dir mkdir /etl/daily`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				dir, err := a.svc.CreateDirectory(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (id %d)\n", dir.Path(), dir.ID)
				return nil
			})
		},
	}
}

func newDirRmdirCmd(opts *rootOptions) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "rmdir {path}",
		Short: "Delete a directory",
		Long: `Delete a directory. Without --cascade the directory must not contain
subdirectories, transformations or jobs.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.DeleteDirectory(ctx, args[0], cascade); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", domain.CleanPath(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "delete everything below the directory")
	return cmd
}

func newDirMvCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "mv {path} {new name}",
		Short:   "Rename a directory",
		Example: `% etlrepo dir mv /etl/daily nightly`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.RenameDirectory(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", domain.CleanPath(args[0]), args[1])
				return nil
			})
		},
	}
}

func newDirLsCmd(opts *rootOptions) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List the subdirectories, transformations and jobs of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := domain.PathSeparator
			if len(args) == 1 {
				path = args[0]
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				dir, err := a.repo.FindDirectory(path)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if tree {
					dir.Walk(func(d *domain.DirectoryNode) bool {
						fmt.Fprintln(out, d.Path())
						return true
					})
					return nil
				}

				infos, err := a.svc.ListDirectory(ctx, path)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, child := range dir.Children() {
					fmt.Fprintf(w, "%s\t%s/\t\t\n", domain.KindDirectory, child.Name)
				}
				for _, info := range infos {
					modified := ""
					if !info.ModifiedDate.IsZero() {
						modified = humanize.Time(info.ModifiedDate)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Kind, info.Name, info.ModifiedUser, modified)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "print every directory below the path instead")
	return cmd
}
