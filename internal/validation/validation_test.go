package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		value string
		valid bool
	}{
		{"ssn nine digits", RuleSSN, "123456789", true},
		{"ssn too short", RuleSSN, "12345678", false},
		{"ssn with dashes", RuleSSN, "123-45-6789", false},
		{"ssn letters", RuleSSN, "12345678a", false},
		{"email", RuleEmail, "ada@example.com", true},
		{"email missing domain", RuleEmail, "ada@", false},
		{"email empty", RuleEmail, "", false},
		{"phone", RulePhone, "(972) 555-0100", true},
		{"phone international", RulePhone, "+44 20 7946 0958", true},
		{"phone too few digits", RulePhone, "555-01", false},
		{"phone letters", RulePhone, "call me", false},
		{"query", RuleSearchQuery, "con", true},
		{"query too short", RuleSearchQuery, "al", false},
		{"query padded", RuleSearchQuery, "  al  ", false},
		{"query multibyte", RuleSearchQuery, "Łód", true},
		{"isbn10", RuleISBN, "0262033844", true},
		{"isbn13", RuleISBN, "9780262033848", true},
		{"isbn bad checksum", RuleISBN, "0262033845", false},
		{"isbn empty", RuleISBN, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := Check(tc.rule, tc.value)
			if tc.valid {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestCheck_UnknownRule(t *testing.T) {
	assert.Equal(t, "unknown rule rule(99)", Check(Rule(99), "x"))
}

func TestValidate(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		err := Validate(
			Field{Name: "ssn", Value: "123456789", Rule: RuleSSN},
			Field{Name: "email", Value: "", Rule: RuleEmail, Optional: true},
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		err := Validate(
			Field{Name: "ssn", Value: "12", Rule: RuleSSN},
			Field{Name: "email", Value: "nope", Rule: RuleEmail, Optional: true},
			Field{Name: "phone", Value: "", Rule: RulePhone, Optional: true},
		)
		require.Error(t, err)

		var verr *Error
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Fields, 2)
		assert.Contains(t, verr.Fields, "ssn")
		assert.Contains(t, verr.Fields, "email")
		assert.Equal(t, "invalid request: email must be a valid email address; ssn must be exactly 9 digits", err.Error())
	})
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "ssn", RuleSSN.String())
	assert.Equal(t, "search_query", RuleSearchQuery.String())
	assert.Equal(t, "isbn", RuleISBN.String())
}
