package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"etlrepo/internal/config"
	"etlrepo/internal/domain"
	"etlrepo/internal/repository/sqlite"
	"etlrepo/internal/service"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var (
		force         bool
		adminLogin    string
		adminPassword string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file and create the repository schema",
		Long: `Write a config file (to --config, or ./etlrepo.yaml) and create every
repository table in the configured database. Existing tables are kept.

With --admin-password an enabled account is created that sessions can act as
through --user.
`,
		Example: `% etlrepo init --db /var/lib/etlrepo/repo.db --admin-password s3cret`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.ConfigFileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite it", path)
			}

			cfg := config.DefaultConfig()
			if db := opts.v.GetString("database.path"); db != "" {
				cfg.Database.Path = db
			}
			if lockSource := opts.v.GetString("session.lock_source"); lockSource != "" {
				cfg.Session.LockSource = lockSource
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			ctx := cmd.Context()
			dbPath, err := cfg.DatabasePath()
			if err != nil {
				return err
			}
			store, err := sqlite.Open(ctx, dbPath, sqlite.WithLogger(zap.NewNop()))
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", path)
			fmt.Fprintf(out, "Repository schema ready in %s\n", dbPath)

			if adminPassword == "" {
				return nil
			}
			repo, err := store.Connect(ctx, cfg.Session.LockSource, "")
			if err != nil {
				return err
			}
			defer repo.Disconnect()
			users := service.NewUserService(repo, repo, nil, nil)
			admin := &domain.User{Login: adminLogin, Password: adminPassword, Name: "Administrator", Enabled: true}
			if err := users.Save(ctx, admin); err != nil {
				return err
			}
			fmt.Fprintf(out, "Created user %s\n", adminLogin)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&adminLogin, "admin-login", "admin", "login of the account created with --admin-password")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "create an enabled account with this password")
	return cmd
}
