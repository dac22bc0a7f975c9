package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"etlrepo/internal/handler"
	"etlrepo/internal/hub"
	"etlrepo/internal/service"
	"etlrepo/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repository over HTTP",
		Long: `Serve the JSON API under /api and a Server-Sent Events stream of repository
changes under /events. Locks taken through the API belong to the server
session and are released when it stops.

Export files given with --watch (or import.watch_paths in the config) are
imported whenever they change.
`,
		Example: `% etlrepo serve --addr :8080 --watch /srv/etl/drop`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				if len(watch) == 0 {
					watch = a.cfg.Import.WatchPaths
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, a, addr, watch)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "export files or directories to import on change")
	return cmd
}

// serve runs the HTTP server, the event hub and the optional watcher until
// ctx is cancelled or one of them fails.
func serve(ctx context.Context, a *app, addr string, watchPaths []string) error {
	logger := a.logger
	sseHub := hub.New(hub.WithLogger(logger.Named("hub")))

	mux := http.NewServeMux()
	handler.NewRepositoryHandler(a.svc, a.transfer, a.users, logger.Named("api")).Routes(mux)
	mux.Handle("GET /events", sseHub)

	server := &http.Server{
		Addr: addr,
		Handler: handler.Chain(mux,
			handler.Recover(logger),
			handler.CORS,
			handler.Logger(logger.Named("http")),
		),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sseHub.Run(gctx) })
	g.Go(func() error { return sseHub.Forward(gctx, a.bus) })
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if len(watchPaths) > 0 {
		w := newWatcher(a, watchPaths)
		g.Go(func() error { return ignoreCanceled(w.Watch(gctx)) })
	}

	err := g.Wait()
	logger.Info("server stopped")
	return err
}

func newWatcher(a *app, paths []string) *watcher.Watcher {
	policy, _ := service.ParseOverwritePolicy(a.cfg.Import.Overwrite)
	// Nobody can answer overwrite questions in the background
	if policy == service.OverwriteAsk {
		policy = service.OverwriteNever
	}
	opts := service.ImportOptions{
		BaseDirectory:   a.cfg.Import.BaseDirectory,
		Overwrite:       policy,
		ContinueOnError: a.cfg.Import.ContinueOnError,
		VersionComment:  a.cfg.Import.VersionComment,
	}
	return watcher.New(a.transfer, opts, paths...).
		WithDebounce(a.cfg.Import.Debounce.Duration()).
		WithLogger(a.logger.Named("watcher"))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
