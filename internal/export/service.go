// Package export writes a filtered work item view to XLSX or CSV.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/workbench/internal/domain"
)

// ErrUnsupportedFormat is returned for file types the exporter cannot write.
var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

const filterSheetName = "Filter"

var baseHeaders = []string{"ID", "Work Item Type", "Title", "Description", "Effort", "Assigned To"}

// View is the filtered item list of one project.
type View struct {
	Project     string
	Description string
	Items       []*domain.WorkItem
}

// Result describes a written export.
type Result struct {
	Path   string `json:"path,omitempty"`
	Format Format `json:"format"`
	Rows   int    `json:"rows"`
	Bytes  int64  `json:"bytes"`
}

type Service struct {
	exportDir string
	sheetName string
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithSheetName(name string) Option {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.sheetName = strings.TrimSpace(name)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(opts ...Option) *Service {
	service := &Service{
		exportDir: filepath.Join(os.TempDir(), "workbench-exports"),
		sheetName: "Work Items",
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.logger = service.logger.Named("export")
	return service
}

// Export writes the view into the export directory under a generated name.
func (s *Service) Export(ctx context.Context, view View, format Format) (Result, error) {
	if err := s.ensureExportDirectory(); err != nil {
		return Result{}, err
	}
	name := fmt.Sprintf("%s-%s-%s.%s",
		sanitizeFileComponent(view.Project),
		s.now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		format,
	)
	return s.WriteFile(ctx, filepath.Join(s.exportDir, name), view)
}

// WriteFile writes the view to path; the extension selects the format.
func (s *Service) WriteFile(ctx context.Context, path string, view View) (Result, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Result{}, err
	}
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".export-*."+string(format))
	if err != nil {
		return Result{}, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	result, err := s.Write(ctx, tempFile, format, view)
	if err != nil {
		return Result{}, err
	}
	if err := tempFile.Close(); err != nil {
		return Result{}, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return Result{}, fmt.Errorf("finalize export file: %w", err)
	}
	cleanup = false

	result.Path = path
	s.logger.Info("export written",
		zap.String("project", view.Project),
		zap.String("path", path),
		zap.Int("rows", result.Rows),
		zap.Int64("bytes", result.Bytes),
	)
	return result, nil
}

// Write streams the view to w in the given format.
func (s *Service) Write(ctx context.Context, w io.Writer, format Format, view View) (Result, error) {
	buffered := bufio.NewWriterSize(w, 1<<16)
	counter := &countingWriter{writer: buffered}

	var err error
	switch format {
	case FormatCSV:
		err = s.writeCSV(ctx, counter, view)
	case FormatXLSX:
		err = s.writeXLSX(ctx, counter, view)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Result{}, err
	}
	if err := buffered.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush export: %w", err)
	}
	return Result{Format: format, Rows: len(view.Items), Bytes: counter.count}, nil
}

func (s *Service) writeCSV(ctx context.Context, w io.Writer, view View) error {
	fields := fieldColumns(view.Items)
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(append(append([]string(nil), baseHeaders...), fields...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(baseHeaders)+len(fields))
	for i, item := range view.Items {
		if i%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		record[0] = strconv.FormatInt(item.ID, 10)
		record[1] = item.Type
		record[2] = item.Title
		record[3] = item.Description
		record[4] = strconv.FormatFloat(item.Effort, 'f', -1, 64)
		record[5] = item.AssignedTo
		for j, name := range fields {
			record[len(baseHeaders)+j] = formatValue(item.Field(name))
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func (s *Service) writeXLSX(ctx context.Context, w io.Writer, view View) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName(book.GetSheetName(0), s.sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	stream, err := book.NewStreamWriter(s.sheetName)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}

	fields := fieldColumns(view.Items)
	header := make([]any, 0, len(baseHeaders)+len(fields))
	for _, h := range baseHeaders {
		header = append(header, h)
	}
	for _, f := range fields {
		header = append(header, f)
	}
	if err := stream.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, item := range view.Items {
		if i%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		row := make([]any, 0, len(header))
		row = append(row, item.ID, item.Type, item.Title, item.Description, item.Effort, item.AssignedTo)
		for _, name := range fields {
			row = append(row, cellValue(item.Field(name)))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := stream.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if err := s.writeFilterSheet(book, view); err != nil {
		return err
	}
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeFilterSheet records which filter produced the view.
func (s *Service) writeFilterSheet(book *excelize.File, view View) error {
	if _, err := book.NewSheet(filterSheetName); err != nil {
		return fmt.Errorf("add filter sheet: %w", err)
	}
	rows := [][]any{
		{"Project", view.Project},
		{"Exported", s.now().UTC().Format(time.RFC3339)},
		{"Items", len(view.Items)},
		{},
		{"Filter"},
	}
	for _, line := range strings.Split(view.Description, "\n") {
		rows = append(rows, []any{line})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(filterSheetName, cell, &row); err != nil {
			return fmt.Errorf("write filter sheet: %w", err)
		}
	}
	return nil
}

func (s *Service) ensureExportDirectory() error {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	return nil
}

// fieldColumns is the sorted union of the items' field names.
func fieldColumns(items []*domain.WorkItem) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for _, name := range item.FieldNames() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cellValue(value domain.FieldValue) any {
	switch value.Kind() {
	case domain.KindNull:
		return nil
	case domain.KindInt:
		v, _ := value.Int()
		return v
	case domain.KindDouble:
		v, _ := value.Double()
		return v
	case domain.KindOther:
		return value.Interface()
	default:
		return formatValue(value)
	}
}

func formatValue(value domain.FieldValue) string {
	if t, ok := value.DateTime(); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return value.Text()
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

type countingWriter struct {
	writer io.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}
