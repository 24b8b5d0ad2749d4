// Package ingestion reads work item tables from CSV and XLSX files.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/workbench/internal/domain"
	"github.com/rpattn/workbench/internal/filter"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMissingColumn is returned when the table has no work item type column.
	ErrMissingColumn = errors.New("required column missing")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Columns names the table headers that carry the built-in work item
// attributes. Matching is case-insensitive; every other column becomes a field.
type Columns struct {
	ID          string
	Type        string
	Title       string
	Description string
	Effort      string
	AssignedTo  string
}

// DefaultColumns matches the headers of a typical work item query export.
func DefaultColumns() Columns {
	return Columns{
		ID:          "ID",
		Type:        "Work Item Type",
		Title:       "Title",
		Description: "Description",
		Effort:      "Effort",
		AssignedTo:  "Assigned To",
	}
}

// ColumnsFromMap overrides the defaults with the keys id, type, title,
// description, effort and assigned_to.
func ColumnsFromMap(m map[string]string) Columns {
	c := DefaultColumns()
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(m[key]); v != "" {
			*dst = v
		}
	}
	set(&c.ID, "id")
	set(&c.Type, "type")
	set(&c.Title, "title")
	set(&c.Description, "description")
	set(&c.Effort, "effort")
	set(&c.AssignedTo, "assigned_to")
	return c
}

// Service turns tabular files into work items.
type Service struct {
	columns Columns
	logger  *zap.Logger
}

type Option func(*Service)

func WithColumns(columns Columns) Option {
	return func(s *Service) {
		s.columns = columns
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new ingestion service.
func NewService(opts ...Option) *Service {
	s := &Service{columns: DefaultColumns(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("ingestion")
	return s
}

// Request describes the ingestion input.
type Request struct {
	FileName       string
	Data           io.Reader
	HeaderRowIndex *int
}

// RowError reports a data row that could not become a work item. Row is the
// 1-based row number in the source table.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result holds the parsed items and what was learned about the table.
type Result struct {
	Items     []*domain.WorkItem       `json:"-"`
	Fields    []domain.FieldDefinition `json:"fields"`
	TotalRows int                      `json:"totalRows"`
	RowErrors []RowError               `json:"rowErrors,omitempty"`
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
	rowNumbers     []int
}

// Ingest parses the request's table. Rows that cannot be read are reported in
// RowErrors and skipped.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.Data == nil {
		return Result{}, errors.New("no data provided")
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read upload: %w", err)
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return Result{}, err
	}

	layout, err := s.bindColumns(table.headers)
	if err != nil {
		return Result{}, err
	}

	result := Result{TotalRows: len(table.rows)}
	definitions := inferFieldDefinitions(table)
	for _, idx := range layout.fieldColumns {
		result.Fields = append(result.Fields, definitions[idx])
	}

	for i, row := range table.rows {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		rowNumber := table.rowNumbers[i]
		item, err := layout.workItem(row, definitions, int64(i+1))
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: rowNumber, Message: err.Error()})
			continue
		}
		result.Items = append(result.Items, item)
	}

	s.logger.Info("table ingested",
		zap.String("file", req.FileName),
		zap.Int("rows", result.TotalRows),
		zap.Int("items", len(result.Items)),
		zap.Int("rejected", len(result.RowErrors)),
	)
	return result, nil
}

// IngestFile reads a .csv or .xlsx file from disk.
func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.Ingest(ctx, Request{FileName: filepath.Base(path), Data: f})
}

type columnLayout struct {
	id, typ, title, description, effort, assignedTo int
	fieldColumns                                    []int
	headers                                         []string
}

func (s *Service) bindColumns(headers []string) (columnLayout, error) {
	layout := columnLayout{
		id: -1, typ: -1, title: -1, description: -1, effort: -1, assignedTo: -1,
		headers: headers,
	}
	targets := []struct {
		name string
		dst  *int
	}{
		{s.columns.ID, &layout.id},
		{s.columns.Type, &layout.typ},
		{s.columns.Title, &layout.title},
		{s.columns.Description, &layout.description},
		{s.columns.Effort, &layout.effort},
		{s.columns.AssignedTo, &layout.assignedTo},
	}

	bound := make(map[int]bool)
	for _, target := range targets {
		for idx, header := range headers {
			if !bound[idx] && strings.EqualFold(header, strings.TrimSpace(target.name)) {
				*target.dst = idx
				bound[idx] = true
				break
			}
		}
	}
	if layout.typ < 0 {
		return columnLayout{}, fmt.Errorf("%w: %q", ErrMissingColumn, s.columns.Type)
	}
	for idx := range headers {
		if !bound[idx] {
			layout.fieldColumns = append(layout.fieldColumns, idx)
		}
	}
	return layout, nil
}

func (l columnLayout) workItem(row []string, definitions []domain.FieldDefinition, fallbackID int64) (*domain.WorkItem, error) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	typeName := cell(l.typ)
	if typeName == "" {
		return nil, fmt.Errorf("%s is empty", l.headers[l.typ])
	}

	id := fallbackID
	if raw := cell(l.id); raw != "" {
		value, err := coerceValue(domain.FieldTypeInteger, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.headers[l.id], err)
		}
		id, _ = value.Int()
	}

	fields := make(map[string]domain.FieldValue, len(l.fieldColumns))
	for _, idx := range l.fieldColumns {
		raw := cell(idx)
		if raw == "" {
			continue
		}
		def := definitions[idx]
		value, err := coerceValue(def.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		fields[def.Name] = value
	}

	item := domain.NewWorkItem(id, typeName, cell(l.title), fields)
	item.Description = cell(l.description)
	item.AssignedTo = cell(l.assignedTo)
	if raw := cell(l.effort); raw != "" {
		value, err := coerceValue(domain.FieldTypeFloat, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.headers[l.effort], err)
		}
		item.Effort, _ = value.Double()
	}
	return item, nil
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

	start := 0
	headerIndex := -1
	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if isBlankRow(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerIndex = *headerRowIndex
		start = headerIndex + 1
	}

	var headerRow []string
	var dataRows [][]string
	var rowNumbers []int
	if headerIndex >= 0 {
		headerRow = records[headerIndex]
	}
	for idx := start; idx < len(records); idx++ {
		row := records[idx]
		if isBlankRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			headerIndex = idx
			continue
		}
		dataRows = append(dataRows, row)
		rowNumbers = append(rowNumbers, idx+1)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := fieldNames(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers:        headers,
		rows:           dataRows,
		headerRowIndex: headerIndex,
		rowNumbers:     rowNumbers,
	}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// fieldNames keeps headers as written so rules can name them; blanks and
// duplicates get positional names.
func fieldNames(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("Column %d", idx+1)
		}

		key := strings.ToLower(name)
		count := seen[key]
		if count > 0 {
			name = fmt.Sprintf("%s %d", name, count+1)
		}
		seen[key] = count + 1

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

func inferFieldDefinitions(table tableData) []domain.FieldDefinition {
	definitions := make([]domain.FieldDefinition, 0, len(table.headers))
	for idx, header := range table.headers {
		fieldType, required := profileColumn(idx, table.rows)
		definitions = append(definitions, domain.FieldDefinition{
			Name:     header,
			Type:     fieldType,
			Required: required,
		})
	}
	return definitions
}

func profileColumn(col int, rows [][]string) (domain.FieldType, bool) {
	isBool := true
	isInt := true
	isFloat := true
	isTimestamp := true
	allPresent := true
	hasValue := false

	for _, row := range rows {
		value := ""
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		if value == "" {
			allPresent = false
			continue
		}

		hasValue = true
		isBool = isBool && looksLikeBool(value)
		isInt = isInt && looksLikeInt(value)
		isFloat = isFloat && looksLikeFloat(value)
		isTimestamp = isTimestamp && looksLikeTimestamp(value)
	}

	required := allPresent && hasValue
	switch {
	case !hasValue:
		return domain.FieldTypeString, false
	case isBool:
		return domain.FieldTypeBoolean, required
	case isInt:
		return domain.FieldTypeInteger, required
	case isFloat:
		return domain.FieldTypeFloat, required
	case isTimestamp:
		return domain.FieldTypeTimestamp, required
	default:
		return domain.FieldTypeString, required
	}
}

// Numeric columns holding only 0 and 1 are integers, not flags.
func looksLikeBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0 && math.Abs(f) < 1<<53
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func looksLikeTimestamp(value string) bool {
	_, err := filter.ParseDateTime(value)
	return err == nil
}

func coerceValue(fieldType domain.FieldType, raw string) (domain.FieldValue, error) {
	switch fieldType {
	case domain.FieldTypeString:
		return domain.StringValue(raw), nil
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return domain.IntValue(i), nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return domain.IntValue(int64(f)), nil
		}
		return domain.NullValue(), fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return domain.DoubleValue(f), nil
		}
		return domain.NullValue(), fmt.Errorf("unable to coerce %q to float", raw)
	case domain.FieldTypeBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes":
			return domain.OtherValue(true), nil
		case "false", "no":
			return domain.OtherValue(false), nil
		}
		return domain.NullValue(), fmt.Errorf("unable to coerce %q to boolean", raw)
	case domain.FieldTypeTimestamp:
		ts, err := filter.ParseDateTime(raw)
		if err != nil {
			return domain.NullValue(), fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return domain.DateTimeValue(ts), nil
	default:
		return domain.StringValue(raw), nil
	}
}
