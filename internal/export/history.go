// Package export renders version history as CSV or XLSX.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/rentalvc/internal/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "History"

// ParseFormat accepts "csv" or "xlsx"; empty selects CSV.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", value)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// HistorySource lists the versions of one chain, newest first.
type HistorySource interface {
	History(ctx context.Context, entityType string, entityID int64, branch string, limit int) ([]domain.Version, error)
}

// Request selects the chain to export.
type Request struct {
	EntityType string
	EntityID   int64
	Branch     string
	Format     Format
	Limit      int
}

// FileName returns the download name of the export.
func (r Request) FileName() string {
	branch := r.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}
	branch = strings.ReplaceAll(branch, "/", "-")
	return fmt.Sprintf("%s-%d-%s-history.%s", r.EntityType, r.EntityID, branch, r.Format)
}

type Exporter struct {
	source HistorySource
}

func NewExporter(source HistorySource) *Exporter {
	return &Exporter{source: source}
}

// Export writes the history selected by req to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, req Request) error {
	versions, err := e.source.History(ctx, req.EntityType, req.EntityID, req.Branch, req.Limit)
	if err != nil {
		return err
	}
	return WriteHistory(w, req.Format, versions)
}

// WriteHistory renders versions as one row each. Snapshot fields become
// columns after the version metadata, in sorted order.
func WriteHistory(w io.Writer, format Format, versions []domain.Version) error {
	header, rows := historyTable(versions)
	switch format {
	case FormatCSV, "":
		return writeCSV(w, header, rows)
	case FormatXLSX:
		return writeXLSX(w, header, rows)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

var metadataColumns = []string{"version", "branch", "action", "author", "message", "is_current", "created_at", "version_id", "parent_id"}

func historyTable(versions []domain.Version) ([]string, [][]string) {
	fieldSet := map[string]struct{}{}
	for _, version := range versions {
		for key := range version.Snapshot {
			fieldSet[key] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for key := range fieldSet {
		fields = append(fields, key)
	}
	sort.Strings(fields)

	header := append(append([]string{}, metadataColumns...), fields...)
	rows := make([][]string, 0, len(versions))
	for _, version := range versions {
		parent := ""
		if version.HasParent() {
			parent = version.ParentID.String()
		}
		row := []string{
			strconv.FormatInt(version.VersionNumber, 10),
			version.Branch,
			string(version.Action),
			version.Author,
			version.Message,
			formatValue(version.IsCurrent),
			formatValue(version.CreatedAt),
			version.ID.String(),
			parent,
		}
		for _, field := range fields {
			value, ok := version.Snapshot[field]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatValue(value))
		}
		rows = append(rows, row)
	}
	return header, rows
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write xlsx row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int32, int64:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
