package domain

import (
	"sort"
	"strings"
)

// FieldType describes the declared type of a work item column.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
)

// FieldDefinition describes one named field of a work item table.
type FieldDefinition struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// WorkItem is a tracked unit of work (bug, task, story...) with a fixed set of
// well-known attributes and an open set of named fields.
type WorkItem struct {
	ID          int64                 `json:"id"`
	Type        string                `json:"type"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Effort      float64               `json:"effort"`
	AssignedTo  string                `json:"assignedTo,omitempty"`
	Fields      map[string]FieldValue `json:"-"`
}

// NewWorkItem creates a work item with a private copy of fields.
func NewWorkItem(id int64, typeName, title string, fields map[string]FieldValue) *WorkItem {
	return &WorkItem{
		ID:     id,
		Type:   typeName,
		Title:  title,
		Fields: copyFields(fields),
	}
}

// WithField returns a copy of the item with an added/updated field.
func (w WorkItem) WithField(name string, value FieldValue) *WorkItem {
	fields := copyFields(w.Fields)
	fields[name] = value
	w.Fields = fields
	return &w
}

// WithoutField returns a copy of the item without the named field.
func (w WorkItem) WithoutField(name string) *WorkItem {
	fields := copyFields(w.Fields)
	delete(fields, name)
	w.Fields = fields
	return &w
}

func (w *WorkItem) TypeName() string { return w.Type }
func (w *WorkItem) Caption() string  { return w.Title }
func (w *WorkItem) Body() string     { return w.Description }
func (w *WorkItem) Metric() float64  { return w.Effort }
func (w *WorkItem) Owner() string    { return w.AssignedTo }

// Field looks up a named field. Exact names win over case-insensitive
// matches; the built-in attributes are reachable by their column names when
// no explicit field shadows them. Missing fields are null.
func (w *WorkItem) Field(name string) FieldValue {
	if value, ok := w.Fields[name]; ok {
		return value
	}
	for key, value := range w.Fields {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	switch strings.ToLower(name) {
	case "id":
		return IntValue(w.ID)
	case "type", "work item type":
		return StringValue(w.Type)
	case "title":
		return StringValue(w.Title)
	case "description":
		return StringValue(w.Description)
	case "effort":
		return DoubleValue(w.Effort)
	case "assigned to", "assignedto":
		return StringValue(w.AssignedTo)
	}
	return NullValue()
}

// FieldNames returns the item's explicit field names in sorted order.
func (w *WorkItem) FieldNames() []string {
	names := make([]string, 0, len(w.Fields))
	for name := range w.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyFields(fields map[string]FieldValue) map[string]FieldValue {
	clone := make(map[string]FieldValue, len(fields))
	for k, v := range fields {
		clone[k] = v
	}
	return clone
}
