package filter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Namespace is the XML namespace of a persisted filter collection.
const Namespace = "http://schemas.workbench.rpattn.dev/filters/2010"

const (
	elemCollection = "FilterCollection"
	elemFilter     = "Filter"
	elemValue      = "Value"

	attrAction    = "action"
	attrTypeName  = "typename"
	attrFieldName = "fieldname"
	attrOperator  = "operator"
)

// ErrSchemaValidation is wrapped by every *SchemaError.
var ErrSchemaValidation = errors.New("filter collection failed schema validation")

// Violation is one schema rule broken by a document.
type Violation struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Line == 0 {
		return v.Message
	}
	return fmt.Sprintf("line %d, column %d: %s", v.Line, v.Column, v.Message)
}

// SchemaError lists every violation found in a filter collection document.
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	messages := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		messages[i] = v.String()
	}
	return fmt.Sprintf("%v: %s", ErrSchemaValidation, strings.Join(messages, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrSchemaValidation }

type xmlCollection struct {
	XMLName xml.Name    `xml:"http://schemas.workbench.rpattn.dev/filters/2010 FilterCollection"`
	Filters []xmlFilter `xml:"Filter"`
}

type xmlFilter struct {
	Action    string  `xml:"action,attr"`
	TypeName  string  `xml:"typename,attr"`
	FieldName string  `xml:"fieldname,attr"`
	Operator  string  `xml:"operator,attr"`
	Value     *string `xml:"Value,omitempty"`
}

// Encode writes the set as an indented FilterCollection document.
func (s *RuleSet) Encode(w io.Writer) error {
	doc := xmlCollection{Filters: make([]xmlFilter, 0, len(s.members))}
	for i, m := range s.members {
		rule := m.rule
		for _, text := range []string{rule.ItemTypeName(), rule.FieldName(), rule.ComparisonValue()} {
			if !isXMLText(text) {
				return fmt.Errorf("%w: rule %d holds %q, which XML cannot represent", ErrInvalidFilter, i, text)
			}
		}
		f := xmlFilter{
			Action:    rule.Action().String(),
			TypeName:  rule.ItemTypeName(),
			FieldName: rule.FieldName(),
			Operator:  rule.Operator().String(),
		}
		if rule.HasValue() {
			value := rule.ComparisonValue()
			f.Value = &value
		}
		doc.Filters = append(doc.Filters, f)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode filter collection: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close filter collection encoder: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Marshal renders the set as a FilterCollection document.
func Marshal(s *RuleSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads, validates and decodes a FilterCollection document.
func Decode(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read filter collection: %w", err)
	}
	return Unmarshal(data)
}

// Unmarshal validates data against the FilterCollection schema and builds a
// rule set from it. Schema failures return a *SchemaError.
func Unmarshal(data []byte) (*RuleSet, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var doc xmlCollection
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode filter collection: %w", err)
	}

	set := NewRuleSet()
	for i, f := range doc.Filters {
		action, err := ParseAction(f.Action)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		op, err := ParseOperator(f.Operator)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		value := ""
		if f.Value != nil {
			value = *f.Value
		}
		set.add(NewRuleWith(action, f.TypeName, f.FieldName, op, value))
	}
	return set, nil
}

// Validate checks a document against the FilterCollection schema and
// reports every violation it finds.
func Validate(data []byte) error {
	v := &schemaValidator{dec: xml.NewDecoder(bytes.NewReader(data))}
	v.run()
	if len(v.violations) == 0 {
		return nil
	}
	return &SchemaError{Violations: v.violations}
}

type schemaValidator struct {
	dec        *xml.Decoder
	violations []Violation
	depth      int
	roots      int
	valueCount int
}

func (v *schemaValidator) run() {
	for {
		tok, err := v.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			v.fail("malformed document: %v", err)
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v.depth++
			v.startElement(t)
		case xml.EndElement:
			v.depth--
		case xml.CharData:
			if v.depth >= 1 && v.depth <= 2 && len(bytes.TrimSpace(t)) > 0 {
				v.fail("unexpected text content")
			}
		}
	}
	if v.roots == 0 {
		v.fail("missing %s root element", elemCollection)
	}
}

func (v *schemaValidator) startElement(el xml.StartElement) {
	switch v.depth {
	case 1:
		v.roots++
		if v.roots > 1 {
			v.fail("multiple root elements")
			return
		}
		v.expectName(el, elemCollection)
		v.rejectAttributes(el)
	case 2:
		v.valueCount = 0
		if !v.expectName(el, elemFilter) {
			return
		}
		v.checkFilterAttributes(el)
	case 3:
		if !v.expectName(el, elemValue) {
			return
		}
		v.valueCount++
		if v.valueCount > 1 {
			v.fail("%s allows at most one %s element", elemFilter, elemValue)
		}
		v.rejectAttributes(el)
	default:
		v.fail("unexpected element %s inside %s", el.Name.Local, elemValue)
	}
}

func (v *schemaValidator) expectName(el xml.StartElement, local string) bool {
	if el.Name.Local != local {
		v.fail("unexpected element %s, expected %s", el.Name.Local, local)
		return false
	}
	if el.Name.Space != Namespace {
		v.fail("element %s must be in namespace %s", local, Namespace)
		return false
	}
	return true
}

func (v *schemaValidator) checkFilterAttributes(el xml.StartElement) {
	seen := map[string]string{}
	for _, attr := range el.Attr {
		if isNamespaceDecl(attr) {
			continue
		}
		switch attr.Name.Local {
		case attrAction, attrTypeName, attrFieldName, attrOperator:
			if attr.Name.Space != "" {
				v.fail("attribute %s must not be namespace qualified", attr.Name.Local)
				continue
			}
			seen[attr.Name.Local] = attr.Value
		default:
			v.fail("unexpected attribute %s on %s", attr.Name.Local, elemFilter)
		}
	}
	for _, name := range []string{attrAction, attrTypeName, attrFieldName, attrOperator} {
		value, ok := seen[name]
		if !ok {
			v.fail("%s is missing required attribute %s", elemFilter, name)
			continue
		}
		if strings.TrimSpace(value) == "" {
			v.fail("attribute %s must not be empty", name)
		}
	}
	if value, ok := seen[attrAction]; ok && value != "" {
		if _, err := ParseAction(value); err != nil {
			v.fail("attribute %s: %v", attrAction, err)
		}
	}
	if value, ok := seen[attrOperator]; ok && value != "" {
		if _, err := ParseOperator(value); err != nil {
			v.fail("attribute %s: %v", attrOperator, err)
		}
	}
}

func (v *schemaValidator) rejectAttributes(el xml.StartElement) {
	for _, attr := range el.Attr {
		if !isNamespaceDecl(attr) {
			v.fail("unexpected attribute %s on %s", attr.Name.Local, el.Name.Local)
		}
	}
}

func (v *schemaValidator) fail(format string, args ...any) {
	line, column := v.dec.InputPos()
	v.violations = append(v.violations, Violation{Line: line, Column: column, Message: fmt.Sprintf(format, args...)})
}

// isXMLText reports whether s is valid UTF-8 made only of XML 1.0 characters.
func isXMLText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t', r == '\n', r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

func isNamespaceDecl(attr xml.Attr) bool {
	return attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns")
}
