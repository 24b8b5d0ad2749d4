package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/workbench/internal/domain"
	"github.com/rpattn/workbench/internal/filter"
	"github.com/rpattn/workbench/internal/ingestion"
)

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []filter.Violation `json:"violations,omitempty"`
}

type rulePayload struct {
	ID          string `json:"id,omitempty"`
	Action      string `json:"action"`
	TypeName    string `json:"typeName"`
	FieldName   string `json:"fieldName"`
	Operator    string `json:"operator"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

func newRulePayload(rule *filter.Rule) rulePayload {
	return rulePayload{
		ID:          rule.ID().String(),
		Action:      rule.Action().String(),
		TypeName:    rule.ItemTypeName(),
		FieldName:   rule.FieldName(),
		Operator:    rule.Operator().String(),
		Value:       rule.ComparisonValue(),
		Description: rule.Description(),
	}
}

// rule builds a new rule; a missing action means Include and a missing type
// means any type.
func (p rulePayload) rule() (*filter.Rule, error) {
	action := filter.Include
	if strings.TrimSpace(p.Action) != "" {
		parsed, err := filter.ParseAction(p.Action)
		if err != nil {
			return nil, err
		}
		action = parsed
	}
	op := filter.IsEqualTo
	if strings.TrimSpace(p.Operator) != "" {
		parsed, err := filter.ParseOperator(p.Operator)
		if err != nil {
			return nil, err
		}
		op = parsed
	}
	typeName := p.TypeName
	if strings.TrimSpace(typeName) == "" {
		typeName = filter.AnyType
	}
	return filter.NewRuleWith(action, typeName, p.FieldName, op, p.Value), nil
}

type descriptionResponse struct {
	Description string        `json:"description"`
	Rules       []rulePayload `json:"rules"`
}

type itemPayload struct {
	ID          int64                      `json:"id"`
	Type        string                     `json:"type"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Effort      float64                    `json:"effort"`
	AssignedTo  string                     `json:"assignedTo"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

type evaluateRequest struct {
	Items []itemPayload `json:"items"`
}

type evaluateResponse struct {
	Description string               `json:"description"`
	Total       int                  `json:"total"`
	Included    []int64              `json:"included"`
	RowErrors   []ingestion.RowError `json:"rowErrors,omitempty"`
}

func (p itemPayload) workItem() (*domain.WorkItem, error) {
	if strings.TrimSpace(p.Type) == "" {
		return nil, fmt.Errorf("type is required")
	}
	fields := make(map[string]domain.FieldValue, len(p.Fields))
	for name, raw := range p.Fields {
		value, err := decodeFieldValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if !value.IsNull() {
			fields[name] = value
		}
	}
	item := domain.NewWorkItem(p.ID, p.Type, p.Title, fields)
	item.Description = p.Description
	item.Effort = p.Effort
	item.AssignedTo = p.AssignedTo
	return item, nil
}

// decodeFieldValue maps JSON onto field values. JSON has no date type, so
// RFC 3339 strings are read as date/times; whole numbers are integers.
func decodeFieldValue(raw json.RawMessage) (domain.FieldValue, error) {
	var v any
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&v); err != nil {
		return domain.NullValue(), err
	}
	switch value := v.(type) {
	case nil:
		return domain.NullValue(), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return domain.DateTimeValue(t), nil
		}
		return domain.StringValue(value), nil
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return domain.IntValue(i), nil
		}
		f, err := value.Float64()
		if err != nil {
			return domain.NullValue(), err
		}
		return domain.DoubleValue(f), nil
	case bool:
		return domain.OtherValue(value), nil
	default:
		return domain.NullValue(), fmt.Errorf("unsupported value %s", string(raw))
	}
}
