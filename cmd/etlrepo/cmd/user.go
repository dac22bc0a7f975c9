package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"etlrepo/internal/domain"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Commands to manage repository accounts",
		Long: `Accounts identify who changed what: a session connected with --user records
that login as the creating and modifying user of every object it saves.
`,
	}
	cmd.AddCommand(
		newUserAddCmd(opts),
		newUserListCmd(opts),
		newUserEnableCmd(opts, true),
		newUserEnableCmd(opts, false),
		newUserRmCmd(opts),
	)
	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var (
		password    string
		name        string
		description string
		disabled    bool
	)
	cmd := &cobra.Command{
		Use:   "add {login}",
		Short: "Create an account, or update it when the login exists",
		Long: `Create an account, or update it when the login exists. The password is
required for a new account and kept when an existing one is updated without it.
`,
		Example: `% etlrepo user add etl --password s3cret --name "ETL batch user"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				u := &domain.User{
					Login:       args[0],
					Password:    password,
					Name:        name,
					Description: description,
					Enabled:     !disabled,
				}
				if err := a.users.Save(ctx, u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s (id %d)\n", u.Login, u.ID)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&password, "password", "p", "", "password of the account")
	flags.StringVar(&name, "name", "", "full name")
	flags.StringVar(&description, "description", "", "description")
	flags.BoolVar(&disabled, "disabled", false, "create the account disabled")
	return cmd
}

func newUserListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				users, err := a.users.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, u := range users {
					state := "enabled"
					if !u.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.Login, u.Name, state)
				}
				return w.Flush()
			})
		},
	}
}

func newUserEnableCmd(opts *rootOptions, enable bool) *cobra.Command {
	use, short := "enable {login}", "Allow an account to connect"
	if !enable {
		use, short = "disable {login}", "Stop an account from connecting"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.users.SetEnabled(ctx, args[0], enable)
			})
		},
	}
}

func newUserRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm {login}",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.users.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
				return nil
			})
		},
	}
}
