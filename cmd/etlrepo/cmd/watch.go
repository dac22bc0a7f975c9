package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"etlrepo/internal/service"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path...]",
		Short: "Import export files whenever they change",
		Long: `Watch export files, or directories of *.xml export files, and import a file
once it has stopped changing. Paths default to import.watch_paths from the
config. Import options come from the import section of the config; the ask
overwrite policy is treated as never.
`,
		Example: `% etlrepo watch /srv/etl/drop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				paths := args
				if len(paths) == 0 {
					paths = a.cfg.Import.WatchPaths
				}
				if len(paths) == 0 {
					return fmt.Errorf("nothing to watch: pass paths or set import.watch_paths")
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				out := cmd.OutOrStdout()
				w := newWatcher(a, paths).OnImport(func(path string, result *service.ImportResult, err error) {
					if err != nil {
						fmt.Fprintf(out, "%s: %v\n", path, err)
						return
					}
					fmt.Fprintf(out, "%s: %s\n", path, result.Summary())
				})
				return ignoreCanceled(w.Watch(ctx))
			})
		},
	}
}
