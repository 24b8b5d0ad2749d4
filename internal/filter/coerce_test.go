package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/workbench/internal/domain"
)

func TestCoerce(t *testing.T) {
	due := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		literal  string
		ref      domain.FieldValue
		ok       bool
		asString bool
		want     domain.FieldValue
	}{
		{"string keeps literal", " Active ", domain.StringValue("x"), true, true, domain.StringValue(" Active ")},
		{"int", " 3 ", domain.IntValue(1), true, false, domain.IntValue(3)},
		{"int rejects fraction", "2.5", domain.IntValue(1), false, false, domain.NullValue()},
		{"int rejects text", "abc", domain.IntValue(1), false, false, domain.NullValue()},
		{"double", "5", domain.DoubleValue(1), true, false, domain.DoubleValue(5)},
		{"double rejects text", "five", domain.DoubleValue(1), false, false, domain.NullValue()},
		{"date iso", "2024-05-17", domain.DateTimeValue(time.Now()), true, false, domain.DateTimeValue(due)},
		{"date slashes", "2024/05/17", domain.DateTimeValue(time.Now()), true, false, domain.DateTimeValue(due)},
		{"date rejects text", "soon", domain.DateTimeValue(time.Now()), false, false, domain.NullValue()},
		{"null never coerces", "x", domain.NullValue(), false, false, domain.NullValue()},
		{"other never coerces", "true", domain.OtherValue(true), false, false, domain.NullValue()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, asString, ok := Coerce(tc.literal, tc.ref)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.asString, asString)
			assert.True(t, tc.want.Equal(got), "want %v, got %v", tc.want, got)
		})
	}
}

func TestCoerceIsIdempotent(t *testing.T) {
	values := []domain.FieldValue{
		domain.StringValue("Login flow"),
		domain.IntValue(-12),
		domain.DoubleValue(0.1),
		domain.DoubleValue(5),
		domain.DateTimeValue(time.Date(2023, 11, 2, 14, 5, 9, 123000000, time.UTC)),
	}
	for _, value := range values {
		got, _, ok := Coerce(value.Text(), value)
		require.True(t, ok, "coerce %v", value)
		assert.True(t, value.Equal(got), "coercing %v yielded %v", value, got)
	}
}
