package filter

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/rpattn/workbench/internal/domain"
)

// AnyType is the item type sentinel that matches items of every type.
const AnyType = "*"

// Synthetic field selectors available on every item.
const (
	FieldCaption     = "Caption"
	FieldTitle       = "Title"
	FieldBody        = "Body"
	FieldDescription = "Description"
	FieldMetric      = "Metric"
	FieldEffort      = "Effort"
	FieldOwner       = "Owner"
)

// Item is the capability set a rule needs from a work item.
type Item interface {
	TypeName() string
	Caption() string
	Body() string
	Metric() float64
	Owner() string
	Field(name string) domain.FieldValue
}

// RuleObserver is notified synchronously after any attribute of a rule changes.
type RuleObserver interface {
	RuleChanged(rule *Rule)
}

// RuleObserverFunc adapts a function to RuleObserver.
type RuleObserverFunc func(rule *Rule)

func (f RuleObserverFunc) RuleChanged(rule *Rule) { f(rule) }

type ruleSubscription struct {
	token    int
	observer RuleObserver
}

// Rule is a single include or exclude condition. A Rule is not safe for
// concurrent mutation; the builder methods mutate the receiver and return it.
type Rule struct {
	id           uuid.UUID
	action       Action
	itemTypeName string
	fieldName    string
	operator     Operator
	value        string
	description  string

	subscriptions []ruleSubscription
	nextToken     int
}

// NewRule returns an Include rule that applies to any item type.
func NewRule() *Rule {
	r := &Rule{
		id:           uuid.New(),
		action:       Include,
		itemTypeName: AnyType,
		operator:     IsEqualTo,
	}
	r.description = r.render()
	return r
}

// NewRuleWith builds a fully specified rule.
func NewRuleWith(action Action, itemTypeName, fieldName string, op Operator, value string) *Rule {
	r := &Rule{
		id:           uuid.New(),
		action:       action,
		itemTypeName: itemTypeName,
		fieldName:    fieldName,
		operator:     op,
		value:        value,
	}
	r.description = r.render()
	return r
}

func (r *Rule) ID() uuid.UUID           { return r.id }
func (r *Rule) Action() Action          { return r.action }
func (r *Rule) ItemTypeName() string    { return r.itemTypeName }
func (r *Rule) FieldName() string       { return r.fieldName }
func (r *Rule) Operator() Operator      { return r.operator }
func (r *Rule) ComparisonValue() string { return r.value }
func (r *Rule) Description() string     { return r.description }

// HasValue reports whether a comparison literal is set; an empty literal is null.
func (r *Rule) HasValue() bool { return r.value != "" }

func (r *Rule) SetAction(action Action) {
	r.action = action
	r.changed()
}

func (r *Rule) SetItemTypeName(name string) {
	r.itemTypeName = name
	r.changed()
}

func (r *Rule) SetFieldName(name string) {
	r.fieldName = name
	r.changed()
}

func (r *Rule) SetOperator(op Operator) {
	r.operator = op
	r.changed()
}

func (r *Rule) SetComparisonValue(value string) {
	r.value = value
	r.changed()
}

// ItemsOfType scopes the rule to one item type.
func (r *Rule) ItemsOfType(name string) *Rule {
	r.SetItemTypeName(name)
	return r
}

// WithField selects the field the rule compares.
func (r *Rule) WithField(name string) *Rule {
	r.SetFieldName(name)
	return r
}

// That sets the operator and the comparison literal in one step.
func (r *Rule) That(op Operator, value string) *Rule {
	r.operator = op
	r.value = value
	r.changed()
	return r
}

// IsValid reports whether the rule names both an item type and a field.
func (r *Rule) IsValid() bool {
	return strings.TrimSpace(r.itemTypeName) != "" && strings.TrimSpace(r.fieldName) != ""
}

// Validate returns ErrInvalidFilter describing what is missing.
func (r *Rule) Validate() error {
	switch {
	case strings.TrimSpace(r.itemTypeName) == "":
		return fmt.Errorf("%w: item type name is required", ErrInvalidFilter)
	case strings.TrimSpace(r.fieldName) == "":
		return fmt.Errorf("%w: field name is required", ErrInvalidFilter)
	}
	return nil
}

// Subscribe registers an observer and returns the function that removes it.
func (r *Rule) Subscribe(observer RuleObserver) (unsubscribe func()) {
	r.nextToken++
	token := r.nextToken
	r.subscriptions = append(r.subscriptions, ruleSubscription{token: token, observer: observer})
	return func() {
		for i, sub := range r.subscriptions {
			if sub.token == token {
				r.subscriptions = append(r.subscriptions[:i:i], r.subscriptions[i+1:]...)
				return
			}
		}
	}
}

// Clone returns an independent copy with the same identity and attributes
// and no observers.
func (r *Rule) Clone() *Rule {
	return &Rule{
		id:           r.id,
		action:       r.action,
		itemTypeName: r.itemTypeName,
		fieldName:    r.fieldName,
		operator:     r.operator,
		value:        r.value,
		description:  r.description,
	}
}

// AppliesToType reports whether the rule's type scope admits typeName.
func (r *Rule) AppliesToType(typeName string) bool {
	return r.itemTypeName == AnyType || r.itemTypeName == typeName
}

// IsMatch evaluates the rule against one item. Literals that cannot be read
// as the field's type never match; they are not errors.
func (r *Rule) IsMatch(item Item) (bool, error) {
	if isNilItem(item) {
		return false, fmt.Errorf("%w: item is nil", ErrInvalidArgument)
	}
	if err := r.Validate(); err != nil {
		return false, err
	}
	if !r.AppliesToType(item.TypeName()) {
		return false, nil
	}

	value := resolveField(item, r.fieldName)
	if value.IsNull() {
		return !r.HasValue(), nil
	}

	literal, asString, ok := Coerce(r.value, value)
	if !ok {
		return false, nil
	}
	return evaluate(r.operator, value, literal, asString), nil
}

func (r *Rule) changed() {
	r.description = r.render()
	subs := append([]ruleSubscription(nil), r.subscriptions...)
	for _, sub := range subs {
		sub.observer.RuleChanged(r)
	}
}

func (r *Rule) render() string {
	if !r.HasValue() {
		return Text(MsgRuleDescriptionNull, r.action.Label(), r.itemTypeName, r.fieldName, r.operator.Label())
	}
	return Text(MsgRuleDescription, r.action.Label(), r.itemTypeName, r.fieldName, r.operator.Label(), r.value)
}

func resolveField(item Item, name string) domain.FieldValue {
	switch {
	case strings.EqualFold(name, FieldCaption), strings.EqualFold(name, FieldTitle):
		return domain.StringValue(item.Caption())
	case strings.EqualFold(name, FieldBody), strings.EqualFold(name, FieldDescription):
		return domain.StringValue(item.Body())
	case strings.EqualFold(name, FieldMetric), strings.EqualFold(name, FieldEffort):
		return domain.DoubleValue(item.Metric())
	case strings.EqualFold(name, FieldOwner):
		return domain.StringValue(item.Owner())
	default:
		return item.Field(name)
	}
}

func evaluate(op Operator, field, literal domain.FieldValue, asString bool) bool {
	if op.IsOrdering() {
		c, ok := compare(field, literal, asString)
		if !ok {
			return false
		}
		switch op {
		case IsEqualTo:
			return c == 0
		case IsNotEqualTo:
			return c != 0
		case IsGreaterThan:
			return c > 0
		case IsLessThan:
			return c < 0
		case IsGreaterThanOrEqualTo:
			return c >= 0
		case IsLessThanOrEqualTo:
			return c <= 0
		}
		return false
	}

	// Substring operators are defined for text fields only.
	if !asString {
		return false
	}
	subject := fold(field.Text())
	needle := fold(literal.Text())
	switch op {
	case StartsWith:
		return strings.HasPrefix(subject, needle)
	case EndsWith:
		return strings.HasSuffix(subject, needle)
	case Contains:
		return strings.Contains(subject, needle)
	case DoesNotStartWith:
		return !strings.HasPrefix(subject, needle)
	case DoesNotEndWith:
		return !strings.HasSuffix(subject, needle)
	case DoesNotContain:
		return !strings.Contains(subject, needle)
	default:
		return false
	}
}

func compare(field, literal domain.FieldValue, asString bool) (int, bool) {
	if asString {
		return strings.Compare(fold(field.Text()), fold(literal.Text())), true
	}
	switch field.Kind() {
	case domain.KindInt:
		a, _ := field.Int()
		b, ok := literal.Int()
		return cmp.Compare(a, b), ok
	case domain.KindDouble:
		a, _ := field.Double()
		b, ok := literal.Double()
		return cmp.Compare(a, b), ok
	case domain.KindDateTime:
		a, _ := field.DateTime()
		b, ok := literal.DateTime()
		return a.Compare(b), ok
	default:
		return 0, false
	}
}

// fold applies Unicode case folding. A Caser is stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func isNilItem(item Item) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
