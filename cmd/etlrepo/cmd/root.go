package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"etlrepo/internal/config"
	"etlrepo/internal/logging"
	"etlrepo/internal/repository/sqlite"
	"etlrepo/internal/service"
)

// rootOptions carries the persistent flags. Values are read through viper
// so that ETLREPO_* environment variables work as well.
type rootOptions struct {
	configPath string
	v          *viper.Viper
}

// Execute runs the etlrepo command line. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:   "etlrepo",
		Short: "etlrepo stores ETL transformations and jobs in a relational repository",
		Long: `etlrepo keeps the designs of an ETL tool (transformations, jobs and the
database connections, slave servers, cluster and partition schemas they share)
in a relational repository organized as a directory tree.

Whole repositories or subtrees move between installations as a single XML
export document. The serve command exposes the repository over HTTP with a
live event stream.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: $ETLREPO_CONFIG, ./etlrepo.yaml, ~/.config/etlrepo/config.yaml)")
	flags.String("db", "", "repository database file")
	flags.String("lock-source", "", "identity the session takes locks under (default: generated)")
	flags.String("user", "", "repository user the session acts as")
	flags.String("log-level", "", "log level: debug, info, warn, error or none")

	for key, flag := range map[string]string{
		"database.path":       "db",
		"session.lock_source": "lock-source",
		"session.user":        "user",
		"log.level":           "log-level",
	} {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}
	opts.v.SetEnvPrefix("ETLREPO")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	opts.v.AutomaticEnv()

	root.AddCommand(newObjectCmds(opts)...)
	root.AddCommand(
		newInitCmd(opts),
		newDirCmd(opts),
		newLockCmd(),
		newUnlockCmd(),
		newLocksCmd(),
		newExportCmd(opts),
		newImportCmd(opts),
		newInventoryCmd(opts),
		newLogCmd(opts),
		newUserCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, _, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if path := o.v.GetString("database.path"); path != "" {
		cfg.Database.Path = path
		cfg.Database.URL = ""
	}
	if lockSource := o.v.GetString("session.lock_source"); lockSource != "" {
		cfg.Session.LockSource = lockSource
	}
	if user := o.v.GetString("session.user"); user != "" {
		cfg.Session.User = user
	}
	if level := o.v.GetString("log.level"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is one open repository session with its services
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlite.Store
	repo     *sqlite.Repository
	bus      *service.EventBus
	svc      *service.RepositoryService
	transfer *service.TransferService
	users    *service.UserService
}

func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.GetConsoleLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, path, sqlite.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	repo, err := store.Connect(ctx, cfg.Session.LockSource, cfg.Session.User)
	if err != nil {
		store.Close()
		return nil, err
	}

	bus := service.NewEventBus()
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		repo:     repo,
		bus:      bus,
		svc:      service.NewRepositoryService(repo, bus, logger),
		transfer: service.NewTransferService(repo, bus, service.WithTransferLogger(logger)),
		users:    service.NewUserService(repo, repo, bus, logger),
	}, nil
}

func (a *app) Close() error {
	_ = a.repo.Disconnect()
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}

// withApp opens the repository for the duration of fn
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
