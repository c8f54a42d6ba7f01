package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/export"
	"github.com/rpattn/rentalvc/internal/versioning"
)

func (a *app) historyCommand() *cobra.Command {
	var (
		limit  int
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "history <type> <id>",
		Short: "Show the version history of a record",
		Long: `Show the versions of one record on a branch, newest first.

Example:
  vcsctl history vehicle 12
  vcsctl history rental 7 --branch promo --limit 5
  vcsctl history vehicle 12 --output history.xlsx --format xlsx`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[1])
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if output != "" {
					return exportHistory(ctx, rt, export.Request{
						EntityType: args[0], EntityID: id, Branch: a.branchOr(rt), Limit: limit,
					}, format, output, cmd)
				}
				return printHistory(ctx, cmd, rt.Service, args[0], id, a.branchOr(rt), limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of versions (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the history to a file instead of the terminal")
	cmd.Flags().StringVar(&format, "format", "csv", "file format for --output: csv or xlsx")
	return cmd
}

func printHistory(ctx context.Context, cmd *cobra.Command, service *versioning.Service, entityType string, id int64, branch string, limit int) error {
	out := cmd.OutOrStdout()
	versions, err := service.History(ctx, entityType, id, branch, limit)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintf(out, "No version history for %s #%d on %s\n", entityType, id, branch)
		return nil
	}

	fmt.Fprintf(out, "Version history for %s #%d (%s)\n", entityType, id, branch)
	for _, version := range versions {
		marker := ""
		if version.IsCurrent {
			marker = " [CURRENT]"
		}
		fmt.Fprintf(out, "\nv%d%s %s by %s, %s\n", version.VersionNumber, marker,
			strings.ToUpper(string(version.Action)), version.Author, humanize.Time(version.CreatedAt))
		if version.Message != "" {
			fmt.Fprintf(out, "  %s\n", version.Message)
		}
		changes, err := service.ChangesFromParent(ctx, version)
		if err != nil {
			return err
		}
		if text := versioning.FormatChanges(changes); text != "" {
			fmt.Fprintf(out, "  changes: %s\n", text)
		}
	}
	return nil
}

func exportHistory(ctx context.Context, rt *bootstrap.Runtime, req export.Request, format, path string, cmd *cobra.Command) error {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	req.Format = parsed

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.NewExporter(rt.Service).Export(ctx, file, req); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	return nil
}
