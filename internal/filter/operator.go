// Package filter evaluates user-authored include/exclude rules against work
// items.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned when a nil item or rule is supplied.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidFilter is returned when a rule without item type or field name is evaluated.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Operator is the comparison applied between a field value and a rule literal.
type Operator int

const (
	IsEqualTo Operator = iota
	IsNotEqualTo
	IsGreaterThan
	IsLessThan
	IsGreaterThanOrEqualTo
	IsLessThanOrEqualTo
	StartsWith
	EndsWith
	Contains
	DoesNotStartWith
	DoesNotEndWith
	DoesNotContain
)

var operatorNames = [...]string{
	IsEqualTo:              "IsEqualTo",
	IsNotEqualTo:           "IsNotEqualTo",
	IsGreaterThan:          "IsGreaterThan",
	IsLessThan:             "IsLessThan",
	IsGreaterThanOrEqualTo: "IsGreaterThanOrEqualTo",
	IsLessThanOrEqualTo:    "IsLessThanOrEqualTo",
	StartsWith:             "StartsWith",
	EndsWith:               "EndsWith",
	Contains:               "Contains",
	DoesNotStartWith:       "DoesNotStartWith",
	DoesNotEndWith:         "DoesNotEndWith",
	DoesNotContain:         "DoesNotContain",
}

// Operators lists every operator in display order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorNames))
	for i := range operatorNames {
		ops[i] = Operator(i)
	}
	return ops
}

func (op Operator) IsValid() bool {
	return op >= IsEqualTo && int(op) < len(operatorNames)
}

// String returns the enum name used in persisted filter collections.
func (op Operator) String() string {
	if !op.IsValid() {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorNames[op]
}

// IsOrdering reports whether the operator compares values rather than substrings.
func (op Operator) IsOrdering() bool {
	return op >= IsEqualTo && op <= IsLessThanOrEqualTo
}

// ParseOperator resolves an operator from its enum name, ignoring case.
func ParseOperator(name string) (Operator, error) {
	name = strings.TrimSpace(name)
	for i, candidate := range operatorNames {
		if strings.EqualFold(candidate, name) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", name)
}

// Action decides how a rule's match result feeds the aggregate decision.
type Action int

const (
	Include Action = iota
	Exclude
)

func (a Action) IsValid() bool {
	return a == Include || a == Exclude
}

func (a Action) String() string {
	switch a {
	case Include:
		return "Include"
	case Exclude:
		return "Exclude"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction resolves an action from its enum name, ignoring case.
func ParseAction(name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "include":
		return Include, nil
	case "exclude":
		return Exclude, nil
	default:
		return 0, fmt.Errorf("unknown action %q", name)
	}
}
