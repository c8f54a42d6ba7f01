package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/domain"
)

func (a *app) cleanupCommand() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old versions, keeping the newest of every chain",
		Long: `Delete all but the newest versions of every record on every branch.
The current version is never deleted.

Example:
  vcsctl cleanup             # keep versioning.keep_last versions
  vcsctl cleanup --keep 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				keepLast := keep
				if !cmd.Flags().Changed("keep") {
					keepLast = rt.Config.Versioning.KeepLast
				}
				result, err := rt.Service.Cleanup(ctx, keepLast)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s versions across %s chains (kept %d per chain)\n",
					humanize.Comma(result.Deleted), humanize.Comma(int64(result.Chains)), keepLast)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "versions to keep per chain")
	return cmd
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show version counts by entity type and action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				stats, err := rt.Service.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total versions: %s\n", humanize.Comma(stats.Total))

				fmt.Fprintln(out, "\nBy entity type:")
				types := make([]string, 0, len(stats.ByEntityType))
				for entityType := range stats.ByEntityType {
					types = append(types, entityType)
				}
				sort.Strings(types)
				for _, entityType := range types {
					fmt.Fprintf(out, "  %-10s %s\n", entityType, humanize.Comma(stats.ByEntityType[entityType]))
				}

				fmt.Fprintln(out, "\nBy action:")
				actions := make([]string, 0, len(stats.ByAction))
				for action := range stats.ByAction {
					actions = append(actions, string(action))
				}
				sort.Strings(actions)
				for _, action := range actions {
					fmt.Fprintf(out, "  %-10s %s\n", action, humanize.Comma(stats.ByAction[domain.Action(action)]))
				}
				return nil
			})
		},
	}
}
