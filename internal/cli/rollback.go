package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/versioning"
)

func (a *app) rollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <type> <id> [version]",
		Short: "Restore a record to an earlier version",
		Long: `Restore a record to the given version, or to the version before the
current one when no version is given. The restore is recorded as a new
version; history is never rewritten. A deleted record is recreated.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[1])
			if err != nil {
				return err
			}
			var target *int64
			if len(args) == 3 {
				n, err := parseVersionNumber(args[2])
				if err != nil {
					return err
				}
				target = &n
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				result, err := rt.Service.Rollback(ctx, versioning.RollbackRequest{
					EntityType: args[0],
					EntityID:   id,
					Version:    target,
					Author:     a.opts.author,
					Branch:     a.opts.branch,
				})
				if err != nil {
					return err
				}
				if result == nil {
					return fmt.Errorf("nothing to roll back to for %s #%d", args[0], id)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rolled back %s #%d to v%d (recorded as v%d)\n",
					args[0], id, result.Target.VersionNumber, result.Version.VersionNumber)
				if result.Recreated {
					fmt.Fprintln(out, "  record was recreated")
				}
				for _, field := range result.Skipped {
					fmt.Fprintf(out, "  skipped %s\n", field)
				}
				return nil
			})
		},
	}
}
