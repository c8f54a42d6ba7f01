package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/versioning"
)

func (a *app) branchesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "branches <type> <id>",
		Short: "List the branches a record has versions on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[1])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				branches, err := rt.Service.ListBranches(ctx, args[0], id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(branches) == 0 {
					fmt.Fprintf(out, "No branches for %s #%d\n", args[0], id)
					return nil
				}
				for _, branch := range branches {
					current, err := rt.Service.CurrentVersion(ctx, args[0], id, branch)
					if err != nil {
						return err
					}
					marker := " "
					if branch == a.branchOr(rt) {
						marker = "*"
					}
					if current == nil {
						fmt.Fprintf(out, "%s %s\n", marker, branch)
						continue
					}
					fmt.Fprintf(out, "%s %s (v%d)\n", marker, branch, current.VersionNumber)
				}
				return nil
			})
		},
	}
}

func (a *app) branchCommand() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "branch <type> <id> <name>",
		Short: "Start a new branch from the current version of another branch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[1])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				version, err := rt.Service.CreateBranch(ctx, versioning.BranchRequest{
					EntityType: args[0],
					EntityID:   id,
					Name:       args[2],
					From:       from,
					Author:     a.opts.author,
				})
				if err != nil {
					return err
				}
				if version == nil {
					return fmt.Errorf("%s #%d has no versions to branch from", args[0], id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s: %s\n", version.Branch, version.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source branch (default from config)")
	return cmd
}

func (a *app) compareCommand() *cobra.Command {
	var unified bool
	cmd := &cobra.Command{
		Use:   "compare <type> <id> <a> <b>",
		Short: "Show the fields that differ between two versions",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[1])
			if err != nil {
				return err
			}
			first, err := parseVersionNumber(args[2])
			if err != nil {
				return err
			}
			second, err := parseVersionNumber(args[3])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				branch := a.branchOr(rt)
				out := cmd.OutOrStdout()
				if unified {
					return printUnifiedDiff(ctx, cmd, rt, args[0], id, branch, first, second)
				}
				diff, err := rt.Service.CompareVersionNumbers(ctx, args[0], id, branch, first, second)
				if err != nil {
					return err
				}
				if len(diff) == 0 {
					fmt.Fprintf(out, "v%d and v%d are identical\n", first, second)
					return nil
				}
				fields := make([]string, 0, len(diff))
				for field := range diff {
					fields = append(fields, field)
				}
				sort.Strings(fields)
				for _, field := range fields {
					fmt.Fprintf(out, "%s: %s -> %s\n", field,
						domain.FormatValue(diff[field].A), domain.FormatValue(diff[field].B))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&unified, "unified", "u", false, "print a unified diff of both snapshots")
	return cmd
}

func printUnifiedDiff(ctx context.Context, cmd *cobra.Command, rt *bootstrap.Runtime, entityType string, id int64, branch string, a, b int64) error {
	first, err := rt.Service.GetVersion(ctx, entityType, id, a, branch)
	if err != nil {
		return err
	}
	second, err := rt.Service.GetVersion(ctx, entityType, id, b, branch)
	if err != nil {
		return err
	}
	if first == nil || second == nil {
		return fmt.Errorf("%s #%d has no version %d or %d on %s", entityType, id, a, b, branch)
	}
	firstView, secondView := domain.NewSnapshotView(*first), domain.NewSnapshotView(*second)
	fmt.Fprint(cmd.OutOrStdout(), domain.DiffSnapshots(
		fmt.Sprintf("v%d", a), &firstView, fmt.Sprintf("v%d", b), &secondView))
	return nil
}
