package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/workbench/internal/domain"
)

func sampleView() View {
	bug := domain.NewWorkItem(7, "Bug", "Login fails", map[string]domain.FieldValue{
		"State":    domain.StringValue("Active"),
		"Priority": domain.IntValue(2),
		"Due":      domain.DateTimeValue(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)),
	})
	bug.Effort = 1.5
	bug.AssignedTo = "Dana"
	task := domain.NewWorkItem(8, "Task", "Docs, part 2", map[string]domain.FieldValue{
		"State": domain.StringValue("Closed"),
	})
	return View{
		Project:     "Team Alpha",
		Description: "Include items of type '*' where 'State' is not equal to 'Removed'\nExclude items of type 'Task' where 'Effort' is greater than '8'",
		Items:       []*domain.WorkItem{bug, task},
	}
}

func fixedClock(s *Service) {
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	result, err := NewService().Write(context.Background(), &buf, FormatCSV, sampleView())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, int64(buf.Len()), result.Bytes)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"ID", "Work Item Type", "Title", "Description", "Effort", "Assigned To", "Due", "Priority", "State"}, records[0])
	assert.Equal(t, []string{"7", "Bug", "Login fails", "", "1.5", "Dana", "2024-05-01T09:30:00Z", "2", "Active"}, records[1])
	assert.Equal(t, []string{"8", "Task", "Docs, part 2", "", "0", "", "", "", "Closed"}, records[2])
}

func TestWriteXLSXIncludesFilterSheet(t *testing.T) {
	service := NewService(WithSheetName("Items"))
	fixedClock(service)

	var buf bytes.Buffer
	_, err := service.Write(context.Background(), &buf, FormatXLSX, sampleView())
	require.NoError(t, err)

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"Items", "Filter"}, book.GetSheetList())

	rows, err := book.GetRows("Items")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Priority", rows[0][7])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "2", rows[1][7])
	assert.Equal(t, "Closed", rows[2][8])

	meta, err := book.GetRows("Filter")
	require.NoError(t, err)
	assert.Equal(t, []string{"Project", "Team Alpha"}, meta[0])
	assert.Equal(t, []string{"Exported", "2024-06-01T12:00:00Z"}, meta[1])
	assert.Equal(t, "Include items of type '*' where 'State' is not equal to 'Removed'", meta[5][0])
	assert.Equal(t, "Exclude items of type 'Task' where 'Effort' is greater than '8'", meta[6][0])
}

func TestExportNamesFileAfterProject(t *testing.T) {
	dir := t.TempDir()
	service := NewService(WithExportDirectory(dir))
	fixedClock(service)

	result, err := service.Export(context.Background(), sampleView(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(result.Path))
	assert.Regexp(t, `^team-alpha-20240601T120000-[0-9a-f]{8}\.csv$`, filepath.Base(result.Path))

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Equal(t, result.Bytes, info.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWriteFileRejectsUnknownExtension(t *testing.T) {
	_, err := NewService().WriteFile(context.Background(), filepath.Join(t.TempDir(), "view.pdf"), sampleView())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSanitizeFileComponent(t *testing.T) {
	assert.Equal(t, "team-alpha", sanitizeFileComponent(" Team Alpha "))
	assert.Equal(t, "a-b_c", sanitizeFileComponent("a/b_c"))
	assert.Equal(t, "export", sanitizeFileComponent("///"))
}
