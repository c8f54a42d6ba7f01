package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/rentalvc/internal/bootstrap"
	"github.com/rpattn/rentalvc/internal/ingestion"
)

func (a *app) importCommand() *cobra.Command {
	var headerRow int
	cmd := &cobra.Command{
		Use:   "import <type> <file>",
		Short: "Import records from a CSV or XLSX file",
		Long: `Import records from a CSV or XLSX file. Column headers name the fields.
Rows with an id update that record; other rows create new records. Every
imported row is committed as a version.

Example:
  vcsctl import vehicle fleet.csv --author ops
  vcsctl import rental rentals.xlsx --header-row 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[1], err)
			}
			defer file.Close()

			req := ingestion.Request{
				EntityType: args[0],
				FileName:   filepath.Base(args[1]),
				Author:     a.opts.author,
				Data:       file,
			}
			if headerRow > 0 {
				index := headerRow - 1
				req.HeaderRowIndex = &index
			}
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				summary, err := rt.Importer.Ingest(ctx, req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d of %d rows (%d created, %d updated)\n",
					summary.Created+summary.Updated, summary.TotalRows, summary.Created, summary.Updated)
				for _, column := range summary.IgnoredColumns {
					fmt.Fprintf(out, "  ignored column %q\n", column)
				}
				for _, rowErr := range summary.Errors {
					fmt.Fprintf(out, "  row %d: %s\n", rowErr.Row, rowErr.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "1-based row holding the column names (default: first non-empty row)")
	return cmd
}
