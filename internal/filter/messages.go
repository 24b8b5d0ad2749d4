package filter

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message identifiers for user-facing text. Only an English catalog ships.
const (
	MsgNoFilter            = "filter.set.none"
	MsgRuleDescription     = "filter.rule.description"
	MsgRuleDescriptionNull = "filter.rule.description.null"
	MsgActionInclude       = "filter.action.include"
	MsgActionExclude       = "filter.action.exclude"
	MsgSchemaInvalid       = "filter.schema.invalid"
)

var englishMessages = map[string]string{
	MsgNoFilter:            "No filter applied",
	MsgRuleDescription:     "%s items of type '%s' where '%s' %s '%s'",
	MsgRuleDescriptionNull: "%s items of type '%s' where '%s' %s Null",
	MsgActionInclude:       "Include",
	MsgActionExclude:       "Exclude",
	MsgSchemaInvalid:       "The saved filter for %s is invalid and has been reset: %s",

	operatorMessageID(IsEqualTo):              "is equal to",
	operatorMessageID(IsNotEqualTo):           "is not equal to",
	operatorMessageID(IsGreaterThan):          "is greater than",
	operatorMessageID(IsLessThan):             "is less than",
	operatorMessageID(IsGreaterThanOrEqualTo): "is greater than or equal to",
	operatorMessageID(IsLessThanOrEqualTo):    "is less than or equal to",
	operatorMessageID(StartsWith):             "starts with",
	operatorMessageID(EndsWith):               "ends with",
	operatorMessageID(Contains):               "contains",
	operatorMessageID(DoesNotStartWith):       "does not start with",
	operatorMessageID(DoesNotEndWith):         "does not end with",
	operatorMessageID(DoesNotContain):         "does not contain",
}

var printer = newPrinter()

func newPrinter() *message.Printer {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for id, text := range englishMessages {
		if err := builder.SetString(language.English, id, text); err != nil {
			panic(err)
		}
	}
	return message.NewPrinter(language.English, message.Catalog(builder))
}

// Text renders the message with the given identifier.
func Text(id string, args ...any) string {
	return printer.Sprintf(id, args...)
}

func operatorMessageID(op Operator) string {
	return "filter.operator." + op.String()
}

// Label returns the display text of the operator, e.g. "is equal to".
func (op Operator) Label() string {
	return Text(operatorMessageID(op))
}

// Label returns the display text of the action.
func (a Action) Label() string {
	if a == Exclude {
		return Text(MsgActionExclude)
	}
	return Text(MsgActionInclude)
}
