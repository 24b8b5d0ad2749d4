package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOfMapsRuntimeTypes(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   any
		kind ValueKind
	}{
		{"nil", nil, KindNull},
		{"string", "Active", KindString},
		{"int", 3, KindInt},
		{"int32", int32(3), KindInt},
		{"uint16", uint16(3), KindInt},
		{"float32", float32(1.5), KindDouble},
		{"float64", 5.0, KindDouble},
		{"time", now, KindDateTime},
		{"bool", true, KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, ValueOf(tc.in).Kind())
		})
	}
}

func TestFieldValueTextRoundTrips(t *testing.T) {
	assert.Equal(t, "42", IntValue(42).Text())
	assert.Equal(t, "5", DoubleValue(5.0).Text())
	assert.Equal(t, "0.1", DoubleValue(0.1).Text())
	assert.Equal(t, "2024-03-01T09:30:00Z", DateTimeValue(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)).Text())
	assert.Equal(t, "", NullValue().Text())
	assert.Equal(t, "<null>", NullValue().String())
}

func TestFieldValueEqual(t *testing.T) {
	assert.True(t, IntValue(1).Equal(IntValue(1)))
	assert.False(t, IntValue(1).Equal(DoubleValue(1)))
	assert.True(t, NullValue().Equal(ValueOf(nil)))
	assert.True(t, OtherValue([]string{"a"}).Equal(OtherValue([]string{"a"})))
}

func TestWorkItemFieldLookup(t *testing.T) {
	item := NewWorkItem(7, "Bug", "Login fails", map[string]FieldValue{
		"State":    StringValue("Active"),
		"Priority": IntValue(2),
	})

	assert.Equal(t, "Active", item.Field("State").Text())
	assert.Equal(t, "Active", item.Field("state").Text(), "lookup falls back to case-insensitive match")
	assert.Equal(t, int64(7), item.Field("ID").Interface())
	assert.Equal(t, "Bug", item.Field("Type").Text())
	assert.True(t, item.Field("Missing").IsNull())
	assert.Equal(t, []string{"Priority", "State"}, item.FieldNames())
}

func TestWorkItemBuiltInsReachableByColumnName(t *testing.T) {
	item := NewWorkItem(7, "Bug", "Login fails", map[string]FieldValue{"State": StringValue("Active")})
	item.Description = "Users cannot sign in"
	item.Effort = 3.5
	item.AssignedTo = "Alice"

	assert.True(t, StringValue("Alice").Equal(item.Field("Assigned To")))
	assert.True(t, StringValue("Alice").Equal(item.Field("assignedto")))
	assert.True(t, StringValue("Login fails").Equal(item.Field("Title")))
	assert.True(t, StringValue("Users cannot sign in").Equal(item.Field("Description")))
	assert.True(t, DoubleValue(3.5).Equal(item.Field("Effort")))

	shadowed := item.WithField("Assigned To", StringValue("Bob"))
	assert.Equal(t, "Bob", shadowed.Field("Assigned To").Text(), "explicit fields win over built-ins")
}

func TestValueOfWidensLargeUnsigned(t *testing.T) {
	huge := ValueOf(uint64(math.MaxUint64))
	require.Equal(t, KindDouble, huge.Kind())
	f, _ := huge.Double()
	assert.Greater(t, f, float64(math.MaxInt64))

	assert.Equal(t, KindInt, ValueOf(uint64(math.MaxInt64)).Kind())
	assert.Equal(t, KindDouble, ValueOf(uint(math.MaxInt64)+1).Kind())
}

func TestWorkItemWithFieldDoesNotMutateOriginal(t *testing.T) {
	original := NewWorkItem(1, "Task", "Write docs", map[string]FieldValue{"State": StringValue("New")})
	updated := original.WithField("State", StringValue("Closed"))
	removed := original.WithoutField("State")

	require.NotSame(t, original, updated)
	assert.Equal(t, "New", original.Field("State").Text())
	assert.Equal(t, "Closed", updated.Field("State").Text())
	assert.True(t, removed.Field("State").IsNull())
}
