// Package ingestion imports rental records from CSV and XLSX uploads.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/snapshot"
	"github.com/rpattn/rentalvc/internal/versioning"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006/01/02",
		"02/01/2006",
	}
)

// RecordWriter creates and updates primary-table rows and versions them.
type RecordWriter interface {
	Create(ctx context.Context, entityType string, fields map[string]any, author string) (domain.Entity, *domain.Version, error)
	Update(ctx context.Context, entityType string, id int64, fields map[string]any, author string) (domain.Entity, *domain.Version, error)
}

// Service imports tabular data as rental records. Each imported row produces
// one version, so a bad import can be undone per record with a rollback.
type Service struct {
	records  RecordWriter
	registry *versioning.Registry
	logger   *logrus.Entry
}

// NewService creates a new import service.
func NewService(records RecordWriter, registry *versioning.Registry, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{records: records, registry: registry, logger: logger}
}

// Request describes the import input.
type Request struct {
	EntityType     string
	FileName       string
	Author         string
	HeaderRowIndex *int
	Data           io.Reader
}

// RowError describes a row that was not imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Summary returns import level metrics.
type Summary struct {
	TotalRows      int        `json:"totalRows"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	InvalidRows    int        `json:"invalidRows"`
	IgnoredColumns []string   `json:"ignoredColumns"`
	Errors         []RowError `json:"errors"`
}

type tableData struct {
	headers []string
	rows    [][]string
	// rowNumbers holds the 1-based record number of each row in the file.
	rowNumbers []int
}

// Ingest reads the uploaded file and writes every valid row. A row with a
// non-empty id column updates that record; other rows create new records.
// Invalid rows are reported in the summary and do not stop the import.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{IgnoredColumns: []string{}, Errors: []RowError{}}

	adapter, err := s.registry.Lookup(req.EntityType)
	if err != nil {
		return summary, err
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}

	specs := adapter.New(0).FieldSpecs()
	columns := make([]*domain.FieldSpec, len(table.headers))
	idColumn := -1
	for idx, header := range table.headers {
		spec, ok := domain.FieldSpecByName(specs, header)
		switch {
		case ok && spec.PrimaryKey:
			idColumn = idx
		case ok && spec.Restorable():
			columns[idx] = &spec
		default:
			summary.IgnoredColumns = append(summary.IgnoredColumns, header)
		}
	}

	summary.TotalRows = len(table.rows)
	logger := s.logger.WithFields(logrus.Fields{
		"entity_type": req.EntityType,
		"file":        req.FileName,
	})

	for i, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rowNumber := table.rowNumbers[i]

		fields, err := rowFields(columns, row)
		if err == nil {
			var updated bool
			updated, err = s.writeRow(ctx, req, idColumn, row, fields)
			if err == nil {
				if updated {
					summary.Updated++
				} else {
					summary.Created++
				}
				continue
			}
		}

		summary.InvalidRows++
		summary.Errors = append(summary.Errors, RowError{Row: rowNumber, Message: err.Error()})
		logger.WithField("row", rowNumber).WithError(err).Warn("row not imported")
	}

	logger.WithFields(logrus.Fields{
		"rows":    summary.TotalRows,
		"created": summary.Created,
		"updated": summary.Updated,
		"invalid": summary.InvalidRows,
	}).Info("import finished")
	return summary, nil
}

func (s *Service) writeRow(ctx context.Context, req Request, idColumn int, row []string, fields map[string]any) (bool, error) {
	if idColumn >= 0 {
		if raw := strings.TrimSpace(row[idColumn]); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return false, fmt.Errorf("invalid id %q", raw)
			}
			if _, _, err := s.records.Update(ctx, req.EntityType, id, fields, req.Author); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return false, fmt.Errorf("%s %d does not exist", req.EntityType, id)
				}
				return false, err
			}
			return true, nil
		}
	}
	if _, _, err := s.records.Create(ctx, req.EntityType, fields, req.Author); err != nil {
		return false, err
	}
	return false, nil
}

// rowFields converts the cells of one row into snapshot-form values. Empty
// cells are omitted, except for nullable fields where they clear the value.
func rowFields(columns []*domain.FieldSpec, row []string) (map[string]any, error) {
	fields := map[string]any{}
	for idx, spec := range columns {
		if spec == nil {
			continue
		}
		raw := strings.TrimSpace(row[idx])
		if raw == "" {
			if spec.Nullable {
				fields[spec.Name] = nil
			}
			continue
		}
		value, err := coerceValue(spec.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
		fields[spec.Name] = value
	}
	return fields, nil
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows, headerRowIndex)
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if len(cleanRow(records[*headerRowIndex])) == 0 {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
	} else {
		for idx, row := range records {
			if len(cleanRow(row)) == 0 {
				continue
			}
			headerRow = row
			headerIndex = idx
			break
		}
	}

	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	table := tableData{headers: sanitizeHeaders(headerRow)}
	for idx := headerIndex + 1; idx < len(records); idx++ {
		if len(cleanRow(records[idx])) == 0 {
			continue
		}
		table.rows = append(table.rows, padRow(records[idx], len(table.headers)))
		table.rowNumbers = append(table.rowNumbers, idx+1)
	}
	return table, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

// sanitizeHeaders maps labels such as "Plate Number" to field names.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.NewReplacer(" ", "_", ".", "_", "-", "_").Replace(name)
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func coerceValue(kind domain.FieldKind, raw string) (any, error) {
	switch kind {
	case domain.FieldKindString:
		return raw, nil
	case domain.FieldKindInteger, domain.FieldKindReference:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldKindFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to float", raw)
	case domain.FieldKindDecimal:
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to decimal", raw)
		}
		return json.Number(d.String()), nil
	case domain.FieldKindBoolean:
		value := strings.ToLower(raw)
		switch value {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return boolVal, nil
	case domain.FieldKindTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	case domain.FieldKindDate:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return ts.Format(snapshot.DateLayout), nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", kind)
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
