package filter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type member struct {
	rule        *Rule
	unsubscribe func()
}

type setSubscription struct {
	token int
	fn    func(*RuleSet)
}

// RuleSet combines rules into one inclusion decision: an item is included
// when it matches any include rule (or there are none) and no exclude rule.
// A RuleSet is not safe for concurrent mutation; concurrent IsIncluded calls
// are safe while no writer is active.
type RuleSet struct {
	members     []member
	description string

	subscriptions []setSubscription
	nextToken     int
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	s := &RuleSet{}
	s.description = s.render()
	return s
}

// Include appends an include rule and returns the set for chaining.
func (s *RuleSet) Include(itemTypeName, fieldName string, op Operator, value string) *RuleSet {
	s.add(NewRuleWith(Include, itemTypeName, fieldName, op, value))
	return s
}

// Exclude appends an exclude rule and returns the set for chaining.
func (s *RuleSet) Exclude(itemTypeName, fieldName string, op Operator, value string) *RuleSet {
	s.add(NewRuleWith(Exclude, itemTypeName, fieldName, op, value))
	return s
}

// And appends an already constructed rule. The set observes the rule until
// it is removed.
func (s *RuleSet) And(rule *Rule) (*RuleSet, error) {
	if rule == nil {
		return s, fmt.Errorf("%w: rule is nil", ErrInvalidArgument)
	}
	s.add(rule)
	return s, nil
}

// Remove detaches the first occurrence of rule. It reports whether the rule
// was a member.
func (s *RuleSet) Remove(rule *Rule) bool {
	for i, m := range s.members {
		if m.rule == rule {
			s.removeAt(i)
			return true
		}
	}
	return false
}

// RemoveByID detaches the first rule with the given identity.
func (s *RuleSet) RemoveByID(id uuid.UUID) bool {
	for i, m := range s.members {
		if m.rule.ID() == id {
			s.removeAt(i)
			return true
		}
	}
	return false
}

// Clear removes every rule.
func (s *RuleSet) Clear() {
	for _, m := range s.members {
		m.unsubscribe()
	}
	s.members = nil
	s.changed()
}

// Find returns the rule with the given identity.
func (s *RuleSet) Find(id uuid.UUID) (*Rule, bool) {
	for _, m := range s.members {
		if m.rule.ID() == id {
			return m.rule, true
		}
	}
	return nil, false
}

// Rules returns the member rules in insertion order.
func (s *RuleSet) Rules() []*Rule {
	rules := make([]*Rule, len(s.members))
	for i, m := range s.members {
		rules[i] = m.rule
	}
	return rules
}

func (s *RuleSet) IncludeRules() []*Rule { return s.byAction(Include) }
func (s *RuleSet) ExcludeRules() []*Rule { return s.byAction(Exclude) }

func (s *RuleSet) Len() int { return len(s.members) }

// Description is the newline-joined member descriptions, or the "no filter"
// text when the set is empty.
func (s *RuleSet) Description() string { return s.description }

// RuleChanged keeps the description current when a member rule is edited.
func (s *RuleSet) RuleChanged(*Rule) {
	s.changed()
}

// OnChange registers fn to run after every structural or member change.
func (s *RuleSet) OnChange(fn func(*RuleSet)) (cancel func()) {
	s.nextToken++
	token := s.nextToken
	s.subscriptions = append(s.subscriptions, setSubscription{token: token, fn: fn})
	return func() {
		for i, sub := range s.subscriptions {
			if sub.token == token {
				s.subscriptions = append(s.subscriptions[:i:i], s.subscriptions[i+1:]...)
				return
			}
		}
	}
}

// Clone deep-copies every member rule into a new set.
func (s *RuleSet) Clone() *RuleSet {
	clone := &RuleSet{members: make([]member, 0, len(s.members))}
	for _, m := range s.members {
		rule := m.rule.Clone()
		clone.members = append(clone.members, member{rule: rule, unsubscribe: rule.Subscribe(clone)})
	}
	clone.description = clone.render()
	return clone
}

// IsIncluded decides whether item belongs in the filtered view. Every member
// rule must be valid.
func (s *RuleSet) IsIncluded(item Item) (bool, error) {
	if isNilItem(item) {
		return false, fmt.Errorf("%w: item is nil", ErrInvalidArgument)
	}
	for i, m := range s.members {
		if err := m.rule.Validate(); err != nil {
			return false, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	hasInclude := false
	included := false
	for _, m := range s.members {
		if m.rule.Action() != Include {
			continue
		}
		hasInclude = true
		matched, err := m.rule.IsMatch(item)
		if err != nil {
			return false, err
		}
		if matched {
			included = true
			break
		}
	}
	if hasInclude && !included {
		return false, nil
	}

	for _, m := range s.members {
		if m.rule.Action() != Exclude {
			continue
		}
		matched, err := m.rule.IsMatch(item)
		if err != nil {
			return false, err
		}
		if matched {
			return false, nil
		}
	}
	return true, nil
}

// Filter returns the items the set includes, preserving order.
func Filter[T Item](s *RuleSet, items []T) ([]T, error) {
	result := make([]T, 0, len(items))
	for i, item := range items {
		ok, err := s.IsIncluded(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *RuleSet) add(rule *Rule) {
	s.members = append(s.members, member{rule: rule, unsubscribe: rule.Subscribe(s)})
	s.changed()
}

func (s *RuleSet) removeAt(i int) {
	s.members[i].unsubscribe()
	s.members = append(s.members[:i:i], s.members[i+1:]...)
	s.changed()
}

func (s *RuleSet) byAction(action Action) []*Rule {
	var rules []*Rule
	for _, m := range s.members {
		if m.rule.Action() == action {
			rules = append(rules, m.rule)
		}
	}
	return rules
}

func (s *RuleSet) changed() {
	s.description = s.render()
	subs := append([]setSubscription(nil), s.subscriptions...)
	for _, sub := range subs {
		sub.fn(s)
	}
}

func (s *RuleSet) render() string {
	if len(s.members) == 0 {
		return Text(MsgNoFilter)
	}
	lines := make([]string, len(s.members))
	for i, m := range s.members {
		lines[i] = m.rule.Description()
	}
	return strings.Join(lines, "\n")
}
