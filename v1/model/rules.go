package model

import (
	"context"
	"regexp"
	"time"
)

// Rules is the declarative constraint bag attached to a field. Rules are
// pure data: nothing here executes until the validation pipeline runs, and
// the only ordering guarantee across rule categories is that synchronous
// checks run before DB-backed ones.
type Rules struct {
	// When skips every rule on this field while it evaluates false against
	// the candidate record.
	When func(record map[string]any) bool

	// Groups restricts the rules to runs whose active groups intersect it.
	// Empty means always active.
	Groups []string

	Required bool

	// RequiredWhen makes the field required only while it evaluates true
	// against the candidate record. It composes with Required by OR.
	RequiredWhen func(record map[string]any) bool

	// Format names a built-in string format: "email", "uuid", "url",
	// "alpha", "alphanumeric", "numeric".
	Format string

	// Pattern constrains the string value to a custom regular expression,
	// checked alongside Format.
	Pattern *regexp.Regexp

	// Enum constrains the value to a closed set. A field-level enum wins
	// over any format/type interpretation of membership.
	Enum []any

	// String length bounds. Length pins the exact length.
	MinLength *int
	MaxLength *int
	Length    *int

	// Numeric bounds and shape.
	Min        *float64
	Max        *float64
	Integer    bool
	Positive   bool
	Negative   bool
	MultipleOf *float64

	// String shape. Trim and the case foldings rewrite the value in place
	// before the checks that follow them.
	Trim      bool
	Lowercase bool
	Uppercase bool
	Prefix    string
	Suffix    string
	Contains  string

	// Date comparisons.
	Before *time.Time
	After  *time.Time

	// Password enables the password-strength check.
	Password *PasswordRules

	// Cross-field checks against the candidate record.
	EqualsField    string
	NotEqualsField string
	CompareFields  func(value any, record map[string]any) error

	// ArrayOf recurses per element with an index-qualified field name.
	ArrayOf *Rules

	// Custom is the synchronous escape hatch, last in the fixed order.
	Custom func(value any, record map[string]any) error

	// DB-backed rules, collected during the field scan and run concurrently
	// afterwards. They only fire for non-empty values.

	// Unique fails when another record holds the same value, excluding the
	// record currently being updated.
	Unique bool

	// Exists fails when no record matches; NotExists fails when one does.
	Exists    *DBRule
	NotExists *DBRule

	// CompareValue compares the candidate value against a field of a looked
	// up record, possibly in another collection.
	CompareValue *CompareValueRule

	// AsyncCustom is the asynchronous escape hatch.
	AsyncCustom func(ctx context.Context, value any, record map[string]any) error
}

// DBRule points an existence check at a collection and field. Zero values
// mean "this model's collection" and "the validated field's name".
type DBRule struct {
	Collection string
	Field      string
}

// CompareValueRule fetches the record whose KeyField equals the candidate
// record's KeyFrom value (in Collection, defaulting to the model's own) and
// compares the validated value against its CompareField using Op.
type CompareValueRule struct {
	Collection   string
	KeyField     string
	KeyFrom      string
	CompareField string
	// Op is one of "eq", "ne", "gt", "gte", "lt", "lte". Empty means "eq".
	Op string
}

// activeFor reports whether the rules apply given the record and the active
// validation groups.
func (r *Rules) activeFor(record map[string]any, groups []string) bool {
	if r == nil {
		return false
	}
	if r.When != nil && !r.When(record) {
		return false
	}
	if len(r.Groups) == 0 {
		return true
	}
	for _, want := range r.Groups {
		for _, have := range groups {
			if want == have {
				return true
			}
		}
	}
	return false
}
