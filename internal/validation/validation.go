// Package validation checks request fields against a closed set of rules.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Rule identifies one field check.
type Rule int

const (
	RuleSSN Rule = iota + 1
	RuleEmail
	RulePhone
	RuleSearchQuery
	RuleISBN
)

// MinSearchQueryLength is the shortest accepted catalog search.
const MinSearchQueryLength = 3

var (
	ssnPattern   = regexp.MustCompile(`^[0-9]{9}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)

	validate = validator.New()
)

func (r Rule) String() string {
	switch r {
	case RuleSSN:
		return "ssn"
	case RuleEmail:
		return "email"
	case RulePhone:
		return "phone"
	case RuleSearchQuery:
		return "search_query"
	case RuleISBN:
		return "isbn"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Check returns a message describing why value fails rule, or "" if it passes.
func Check(rule Rule, value string) string {
	switch rule {
	case RuleSSN:
		if !ssnPattern.MatchString(value) {
			return "must be exactly 9 digits"
		}
	case RuleEmail:
		if validate.Var(value, "required,email") != nil {
			return "must be a valid email address"
		}
	case RulePhone:
		if !phonePattern.MatchString(value) || countDigits(value) < 7 {
			return "must be a phone number of at least 7 digits"
		}
	case RuleSearchQuery:
		if utf8.RuneCountInString(strings.TrimSpace(value)) < MinSearchQueryLength {
			return fmt.Sprintf("must be at least %d characters", MinSearchQueryLength)
		}
	case RuleISBN:
		if validate.Var(value, "required,isbn") != nil {
			return "must be a valid ISBN-10 or ISBN-13 without dashes"
		}
	default:
		return "unknown rule " + rule.String()
	}
	return ""
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Field pairs a named value with the rule it must satisfy.
type Field struct {
	Name     string
	Value    string
	Rule     Rule
	Optional bool // an empty optional value is not checked
}

// Error lists the fields that failed, keyed by field name.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate checks every field and returns an *Error naming each failure,
// or nil when all pass.
func Validate(fields ...Field) error {
	var failed map[string]string
	for _, f := range fields {
		if f.Optional && f.Value == "" {
			continue
		}
		if msg := Check(f.Rule, f.Value); msg != "" {
			if failed == nil {
				failed = make(map[string]string)
			}
			failed[f.Name] = msg
		}
	}
	if failed == nil {
		return nil
	}
	return &Error{Fields: failed}
}
