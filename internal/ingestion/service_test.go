package ingestion

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/workbench/internal/domain"
	"github.com/rpattn/workbench/internal/filter"
)

const workItemsCSV = "\xEF\xBB\xBFID,Work Item Type,Title,State,Priority,Due,Effort,Assigned To,Blocked\n" +
	"101,Bug,Login fails,Active,2,2024-05-01,3.5,Dana,no\n" +
	"\n" +
	"102,Task,Write docs,Closed,1,2024-06-15,,Sam,yes\n" +
	"103,Bug,Crash on save,,3,2024-07-01,5,,no\n"

func TestIngestCSVBuildsTypedWorkItems(t *testing.T) {
	service := NewService()

	result, err := service.Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader(workItemsCSV)})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalRows)
	assert.Empty(t, result.RowErrors)
	require.Len(t, result.Items, 3)

	types := map[string]domain.FieldType{}
	for _, f := range result.Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, map[string]domain.FieldType{
		"State":    domain.FieldTypeString,
		"Priority": domain.FieldTypeInteger,
		"Due":      domain.FieldTypeTimestamp,
		"Blocked":  domain.FieldTypeBoolean,
	}, types)

	first := result.Items[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, "Bug", first.TypeName())
	assert.Equal(t, "Login fails", first.Caption())
	assert.Equal(t, 3.5, first.Metric())
	assert.Equal(t, "Dana", first.Owner())
	assert.True(t, domain.IntValue(2).Equal(first.Field("Priority")))
	assert.True(t, domain.DateTimeValue(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)).Equal(first.Field("Due")))
	assert.True(t, domain.OtherValue(false).Equal(first.Field("Blocked")))

	third := result.Items[2]
	assert.True(t, third.Field("State").IsNull(), "empty cells are absent fields")
	assert.Equal(t, "", third.Owner())
}

func TestIngestReportsBadRows(t *testing.T) {
	data := "ID,Work Item Type,Title,Effort\n" +
		"1,Bug,ok,2\n" +
		"x,Bug,bad id,2\n" +
		"3,,no type,2\n" +
		"4,Task,bad effort,lots\n"

	result, err := NewService().Ingest(context.Background(), Request{FileName: "items.CSV", Data: strings.NewReader(data)})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Len(t, result.RowErrors, 3)
	assert.Equal(t, 3, result.RowErrors[0].Row)
	assert.Contains(t, result.RowErrors[0].Message, "ID")
	assert.Equal(t, 4, result.RowErrors[1].Row)
	assert.Contains(t, result.RowErrors[1].Message, "Work Item Type is empty")
	assert.Equal(t, 5, result.RowErrors[2].Row)
}

func TestIngestCustomColumns(t *testing.T) {
	data := "Key,Kind,Summary,Owner\n7,Story,Checkout,Lee\n"
	service := NewService(WithColumns(ColumnsFromMap(map[string]string{
		"id":          "key",
		"type":        "Kind",
		"title":       "Summary",
		"assigned_to": "Owner",
	})))

	result, err := service.Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(7), result.Items[0].ID)
	assert.Equal(t, "Story", result.Items[0].TypeName())
	assert.Equal(t, "Checkout", result.Items[0].Caption())
	assert.Equal(t, "Lee", result.Items[0].Owner())
	assert.Empty(t, result.Fields)
}

func TestIngestRequiresTypeColumn(t *testing.T) {
	_, err := NewService().Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader("ID,Title\n1,x\n")})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestIngestRejectsUnknownExtension(t *testing.T) {
	_, err := NewService().Ingest(context.Background(), Request{FileName: "items.json", Data: strings.NewReader("{}")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestIngestHeaderRowIndex(t *testing.T) {
	data := "Exported from tracker\n\nID,Work Item Type,Title\n1,Bug,first\n"
	index := 1

	result, err := NewService().Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader(data), HeaderRowIndex: &index})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "first", result.Items[0].Caption())

	index = 7
	_, err = NewService().Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader(data), HeaderRowIndex: &index})
	assert.ErrorContains(t, err, "out of range")
}

func TestIngestXLSXFile(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"ID", "Work Item Type", "Title", "Priority", "Area"},
		{11, "Bug", "Broken link", 2, "Web"},
		{12, "Feature", "Dark mode", 1, "UI"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	path := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	result, err := NewService().IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(12), result.Items[1].ID)
	assert.Equal(t, "Feature", result.Items[1].TypeName())
	assert.True(t, domain.IntValue(1).Equal(result.Items[1].Field("Priority")))
	assert.True(t, domain.StringValue("UI").Equal(result.Items[1].Field("Area")))
}

func TestFieldNamesDisambiguates(t *testing.T) {
	assert.Equal(t, []string{"State", "Column 2", "state 2"}, fieldNames([]string{" State ", "", "state"}))
}

func TestCoerceValue(t *testing.T) {
	cases := []struct {
		fieldType domain.FieldType
		raw       string
		want      domain.FieldValue
		err       bool
	}{
		{domain.FieldTypeInteger, "42", domain.IntValue(42), false},
		{domain.FieldTypeInteger, "42.0", domain.IntValue(42), false},
		{domain.FieldTypeInteger, "4.2", domain.NullValue(), true},
		{domain.FieldTypeFloat, "0.5", domain.DoubleValue(0.5), false},
		{domain.FieldTypeBoolean, "Yes", domain.OtherValue(true), false},
		{domain.FieldTypeBoolean, "maybe", domain.NullValue(), true},
		{domain.FieldTypeTimestamp, "2024/02/03", domain.DateTimeValue(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)), false},
		{domain.FieldTypeString, " raw ", domain.StringValue(" raw "), false},
	}
	for _, tc := range cases {
		got, err := coerceValue(tc.fieldType, tc.raw)
		if tc.err {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.True(t, tc.want.Equal(got), "%s %q: got %v", tc.fieldType, tc.raw, got)
	}
}

func TestOwnerColumnIsFilterableByHeader(t *testing.T) {
	csv := "ID,Work Item Type,Title,Assigned To,State\n1,Bug,Login,Alice,Active\n2,Bug,Crash,Bob,Active\n"
	result, err := NewService().Ingest(context.Background(), Request{FileName: "items.csv", Data: strings.NewReader(csv)})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	for _, field := range []string{"Assigned To", "AssignedTo", "Owner"} {
		rule := filter.NewRule().WithField(field).That(filter.IsEqualTo, "alice")
		matched, err := rule.IsMatch(result.Items[0])
		require.NoError(t, err)
		assert.True(t, matched, field)

		matched, err = rule.IsMatch(result.Items[1])
		require.NoError(t, err)
		assert.False(t, matched, field)
	}

	nullRule := filter.NewRule().WithField("Assigned To").That(filter.IsEqualTo, "")
	matched, err := nullRule.IsMatch(result.Items[0])
	require.NoError(t, err)
	assert.False(t, matched, "an assigned item does not have a null owner")
}
