package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"etlrepo/internal/domain"
)

// objectArgs resolves the {kind} {name} arguments and --dir flag shared by
// the object commands.
type objectArgs struct {
	dir string
}

func (o *objectArgs) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.dir, "dir", "d", domain.PathSeparator, "directory of the transformation or job")
}

func parseKind(s string) (domain.Kind, error) {
	kind, err := domain.ParseKind(s)
	if err != nil {
		return domain.KindUnknown, fmt.Errorf("%w (use transformation, job, database, slave_server, cluster_schema or partition_schema)", err)
	}
	return kind, nil
}

func newObjectCmds(opts *rootOptions) []*cobra.Command {
	return []*cobra.Command{
		newShowCmd(opts),
		newRmCmd(opts),
		newMvCmd(opts),
		newSharedCmd(opts),
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var oa objectArgs
	cmd := &cobra.Command{
		Use:     "show {kind} {name}",
		Short:   "Print an object as JSON",
		Example: `% etlrepo show transformation load_orders --dir /etl/daily`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				obj, err := a.svc.Get(ctx, kind, args[1], oa.dir)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(obj)
			})
		},
	}
	oa.addFlags(cmd)
	return cmd
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	var oa objectArgs
	cmd := &cobra.Command{
		Use:   "rm {kind} {name}",
		Short: "Delete an object and everything it owns",
		Long: `Delete a transformation or job with its steps, hops, notes and attributes,
or a shared object. A shared object that is still used cannot be deleted.
`,
		Example: `% etlrepo rm job nightly --dir /etl
% etlrepo rm database ORA1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.Delete(ctx, kind, args[1], oa.dir); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", kind, args[1])
				return nil
			})
		},
	}
	oa.addFlags(cmd)
	return cmd
}

func newMvCmd(opts *rootOptions) *cobra.Command {
	var (
		oa objectArgs
		to string
	)
	cmd := &cobra.Command{
		Use:     "mv {kind} {name} {new name}",
		Short:   "Rename an object, or move a transformation or job with --to",
		Example: `% etlrepo mv transformation load_orders load_all_orders --dir /etl --to /etl/archive`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.Rename(ctx, kind, args[1], oa.dir, args[2], to); err != nil {
					return err
				}
				target := args[2]
				if to != "" {
					target = strings.TrimSuffix(domain.CleanPath(to), "/") + "/" + args[2]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s %s to %s\n", kind, args[1], target)
				return nil
			})
		},
	}
	oa.addFlags(cmd)
	cmd.Flags().StringVar(&to, "to", "", "directory to move the object to")
	return cmd
}

func newSharedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "shared {kind}",
		Short:   "List the shared objects of a kind",
		Example: `% etlrepo shared database`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				objs, err := a.svc.SharedObjects(kind)
				if err != nil {
					return err
				}
				for _, obj := range objs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", obj.ObjectName(), obj.ObjectID())
				}
				return nil
			})
		},
	}
}
