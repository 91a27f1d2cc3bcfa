package model

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polystore/polystore/v1/adapter"
)

// PasswordRules tunes the password-strength check. The zero value only
// enforces MinLength's default of 8.
type PasswordRules struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

var (
	emailPattern        = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	alphaPattern        = regexp.MustCompile(`^[a-zA-Z]+$`)
	alphanumericPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	numericPattern      = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
)

// validator runs the declarative rules of one definition against a candidate
// record. Synchronous checks run field by field in declaration order and the
// first violation wins; DB-backed checks are collected during that scan and
// run concurrently afterwards, only when the sync pass was clean.
type validator struct {
	db  adapter.Adapter
	def *Definition
}

// dbCheck is one deferred DB-backed check.
type dbCheck struct {
	run func(ctx context.Context) error
}

// validate checks record. fields restricts the scan to a subset of schema
// fields (nil means all), which is how partial updates validate only what
// they touch. When record carries a primary key, uniqueness exempts the
// record itself, so an update does not collide with its own row. Trim and
// case-fold rules rewrite record in place.
func (v *validator) validate(ctx context.Context, record map[string]any, fields map[string]struct{}, groups []string) error {
	var deferred []dbCheck

	for _, f := range v.def.Fields {
		if fields != nil {
			if _, wanted := fields[f.Name]; !wanted {
				continue
			}
		}
		if f.Rules == nil || !f.Rules.activeFor(record, groups) {
			continue
		}
		checks, err := v.checkField(f.Name, f.Type, f.Rules, record)
		if err != nil {
			return err
		}
		deferred = append(deferred, checks...)
	}

	if len(deferred) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, check := range deferred {
		check := check
		g.Go(func() error { return check.run(gctx) })
	}
	return g.Wait()
}

// checkField runs the synchronous rules for one field and collects its
// DB-backed checks. The caller decides whether to run them.
func (v *validator) checkField(field string, ftype FieldType, r *Rules, record map[string]any) ([]dbCheck, error) {
	value := record[field]

	required := r.Required || (r.RequiredWhen != nil && r.RequiredWhen(record))
	if required && isEmpty(value) {
		return nil, newValidationError(field, "required", "value is required")
	}
	if isEmpty(value) {
		// Every remaining rule only constrains present values.
		return nil, nil
	}

	if r.Format != "" {
		if err := checkFormat(field, r.Format, value); err != nil {
			return nil, err
		}
	}
	if r.Pattern != nil {
		s, ok := value.(string)
		if !ok {
			return nil, newValidationError(field, "pattern", "pattern needs a string, got %T", value)
		}
		if !r.Pattern.MatchString(s) {
			return nil, newValidationError(field, "pattern", "does not match %s", r.Pattern.String())
		}
	}
	if len(r.Enum) > 0 {
		if err := checkEnum(field, r.Enum, value); err != nil {
			return nil, err
		}
	}
	if err := checkType(field, ftype, value); err != nil {
		return nil, err
	}

	if s, ok := value.(string); ok {
		if r.Length != nil && len(s) != *r.Length {
			return nil, newValidationError(field, "length", "must be exactly %d characters, got %d", *r.Length, len(s))
		}
		if r.MinLength != nil && len(s) < *r.MinLength {
			return nil, newValidationError(field, "min_length", "must be at least %d characters, got %d", *r.MinLength, len(s))
		}
		if r.MaxLength != nil && len(s) > *r.MaxLength {
			return nil, newValidationError(field, "max_length", "must be at most %d characters, got %d", *r.MaxLength, len(s))
		}
	}

	if err := checkNumeric(field, r, value); err != nil {
		return nil, err
	}

	// Trim and case folds rewrite the record so later rules and the eventual
	// write see the normalized value.
	if s, ok := value.(string); ok {
		if r.Trim {
			s = strings.TrimSpace(s)
		}
		if r.Lowercase {
			s = strings.ToLower(s)
		}
		if r.Uppercase {
			s = strings.ToUpper(s)
		}
		record[field] = s
		value = s

		if r.Prefix != "" && !strings.HasPrefix(s, r.Prefix) {
			return nil, newValidationError(field, "prefix", "must start with %q", r.Prefix)
		}
		if r.Suffix != "" && !strings.HasSuffix(s, r.Suffix) {
			return nil, newValidationError(field, "suffix", "must end with %q", r.Suffix)
		}
		if r.Contains != "" && !strings.Contains(s, r.Contains) {
			return nil, newValidationError(field, "contains", "must contain %q", r.Contains)
		}
	}

	if r.Before != nil || r.After != nil {
		t, ok := toTime(value)
		if !ok {
			return nil, newValidationError(field, "date", "not a time value: %T", value)
		}
		if r.Before != nil && !t.Before(*r.Before) {
			return nil, newValidationError(field, "before", "must be before %s", r.Before.Format(time.RFC3339))
		}
		if r.After != nil && !t.After(*r.After) {
			return nil, newValidationError(field, "after", "must be after %s", r.After.Format(time.RFC3339))
		}
	}

	if r.Password != nil {
		if err := checkPassword(field, r.Password, value); err != nil {
			return nil, err
		}
	}

	if r.EqualsField != "" && !reflect.DeepEqual(value, record[r.EqualsField]) {
		return nil, newValidationError(field, "equals_field", "must equal %s", r.EqualsField)
	}
	if r.NotEqualsField != "" && reflect.DeepEqual(value, record[r.NotEqualsField]) {
		return nil, newValidationError(field, "not_equals_field", "must differ from %s", r.NotEqualsField)
	}
	if r.CompareFields != nil {
		if err := r.CompareFields(value, record); err != nil {
			return nil, wrapRuleErr(field, "compare_fields", err)
		}
	}

	var deferred []dbCheck

	if r.ArrayOf != nil {
		elems, ok := toAnySliceLoose(value)
		if !ok {
			return nil, newValidationError(field, "array_of", "not an array: %T", value)
		}
		for idx, elem := range elems {
			name := fmt.Sprintf("%s[%d]", field, idx)
			scoped := map[string]any{name: elem}
			checks, err := v.checkField(name, TypeAny, r.ArrayOf, scoped)
			if err != nil {
				return nil, err
			}
			deferred = append(deferred, checks...)
		}
	}

	if r.Custom != nil {
		if err := r.Custom(value, record); err != nil {
			return nil, wrapRuleErr(field, "custom", err)
		}
	}

	deferred = append(deferred, v.collectDBChecks(field, r, value, record)...)
	return deferred, nil
}

// collectDBChecks builds the deferred checks for one field value. They all
// close over the value seen during the sync scan, after any rewrites.
func (v *validator) collectDBChecks(field string, r *Rules, value any, record map[string]any) []dbCheck {
	var checks []dbCheck

	if r.Unique {
		pk := v.def.PrimaryKey
		excludePK := record[pk]
		checks = append(checks, dbCheck{run: func(ctx context.Context) error {
			var filter adapter.Expr = adapter.Eq{Field: field, Value: value}
			if excludePK != nil {
				filter = adapter.And{Exprs: []adapter.Expr{
					filter,
					adapter.Ne{Field: pk, Value: excludePK},
				}}
			}
			rows, err := v.db.Query(ctx, v.def.Collection, filter, &adapter.QueryOptions{Limit: 1})
			if err != nil {
				return fmt.Errorf("model: unique check on %s: %w", field, err)
			}
			if len(rows) > 0 {
				return newValidationError(field, "unique", "value already exists")
			}
			return nil
		}})
	}

	if r.Exists != nil {
		collection, target := v.dbRuleTarget(field, r.Exists)
		checks = append(checks, dbCheck{run: func(ctx context.Context) error {
			rows, err := v.db.Query(ctx, collection, adapter.Eq{Field: target, Value: value}, &adapter.QueryOptions{Limit: 1})
			if err != nil {
				return fmt.Errorf("model: exists check on %s: %w", field, err)
			}
			if len(rows) == 0 {
				return newValidationError(field, "exists", "no matching record in %s", collection)
			}
			return nil
		}})
	}

	if r.NotExists != nil {
		collection, target := v.dbRuleTarget(field, r.NotExists)
		checks = append(checks, dbCheck{run: func(ctx context.Context) error {
			rows, err := v.db.Query(ctx, collection, adapter.Eq{Field: target, Value: value}, &adapter.QueryOptions{Limit: 1})
			if err != nil {
				return fmt.Errorf("model: not-exists check on %s: %w", field, err)
			}
			if len(rows) > 0 {
				return newValidationError(field, "not_exists", "matching record already in %s", collection)
			}
			return nil
		}})
	}

	if r.CompareValue != nil {
		rule := r.CompareValue
		keyValue := record[rule.KeyFrom]
		checks = append(checks, dbCheck{run: func(ctx context.Context) error {
			collection := rule.Collection
			if collection == "" {
				collection = v.def.Collection
			}
			rows, err := v.db.Query(ctx, collection, adapter.Eq{Field: rule.KeyField, Value: keyValue}, &adapter.QueryOptions{Limit: 1})
			if err != nil {
				return fmt.Errorf("model: compare-value check on %s: %w", field, err)
			}
			if len(rows) == 0 {
				return newValidationError(field, "compare_value", "no record in %s with %s = %v", collection, rule.KeyField, keyValue)
			}
			return compareValues(field, value, rows[0][rule.CompareField], rule.Op)
		}})
	}

	if r.AsyncCustom != nil {
		custom := r.AsyncCustom
		checks = append(checks, dbCheck{run: func(ctx context.Context) error {
			if err := custom(ctx, value, record); err != nil {
				return wrapRuleErr(field, "async_custom", err)
			}
			return nil
		}})
	}

	return checks
}

func (v *validator) dbRuleTarget(field string, rule *DBRule) (collection, target string) {
	collection = rule.Collection
	if collection == "" {
		collection = v.def.Collection
	}
	target = rule.Field
	if target == "" {
		target = field
	}
	return collection, target
}

// wrapRuleErr keeps a custom check's own ValidationError intact and wraps
// anything else.
func wrapRuleErr(field, rule string, err error) error {
	if IsValidationError(err) {
		return err
	}
	return newValidationError(field, rule, "%s", err.Error())
}

func checkFormat(field, format string, value any) error {
	s, ok := value.(string)
	if !ok {
		return newValidationError(field, "format", "format %q needs a string, got %T", format, value)
	}
	switch format {
	case "email":
		if !emailPattern.MatchString(s) {
			return newValidationError(field, "format", "not a valid email address")
		}
	case "uuid":
		if _, err := uuid.Parse(s); err != nil {
			return newValidationError(field, "format", "not a valid UUID")
		}
	case "url":
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return newValidationError(field, "format", "not a valid URL")
		}
	case "alpha":
		if !alphaPattern.MatchString(s) {
			return newValidationError(field, "format", "must contain only letters")
		}
	case "alphanumeric":
		if !alphanumericPattern.MatchString(s) {
			return newValidationError(field, "format", "must contain only letters and digits")
		}
	case "numeric":
		if !numericPattern.MatchString(s) {
			return newValidationError(field, "format", "must be numeric")
		}
	default:
		return newValidationError(field, "format", "unknown format %q", format)
	}
	return nil
}

func checkEnum(field string, allowed []any, value any) error {
	for _, candidate := range allowed {
		if reflect.DeepEqual(value, candidate) {
			return nil
		}
	}
	return newValidationError(field, "enum", "%v is not one of the allowed values", value)
}

func checkType(field string, ftype FieldType, value any) error {
	switch ftype {
	case "", TypeAny:
		return nil
	case TypeString:
		if _, ok := value.(string); !ok {
			return newValidationError(field, "type", "wants string, got %T", value)
		}
	case TypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		case float64:
			// Decoded JSON numbers arrive as float64; accept integral ones.
			if f := value.(float64); f != math.Trunc(f) {
				return newValidationError(field, "type", "wants integer, got %v", f)
			}
		default:
			return newValidationError(field, "type", "wants integer, got %T", value)
		}
	case TypeFloat:
		if _, ok := toFloat(value); !ok {
			return newValidationError(field, "type", "wants number, got %T", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return newValidationError(field, "type", "wants bool, got %T", value)
		}
	case TypeTime:
		if _, ok := toTime(value); !ok {
			return newValidationError(field, "type", "wants time, got %T", value)
		}
	case TypeArray:
		if _, ok := toAnySliceLoose(value); !ok {
			return newValidationError(field, "type", "wants array, got %T", value)
		}
	case TypeMap:
		if _, ok := value.(map[string]any); !ok {
			return newValidationError(field, "type", "wants map, got %T", value)
		}
	}
	return nil
}

func checkNumeric(field string, r *Rules, value any) error {
	if r.Min == nil && r.Max == nil && !r.Integer && !r.Positive && !r.Negative && r.MultipleOf == nil {
		return nil
	}
	f, ok := toFloat(value)
	if !ok {
		return newValidationError(field, "numeric", "not a number: %T", value)
	}
	if r.Integer && f != math.Trunc(f) {
		return newValidationError(field, "integer", "must be an integer, got %v", f)
	}
	if r.Min != nil && f < *r.Min {
		return newValidationError(field, "min", "must be at least %v, got %v", *r.Min, f)
	}
	if r.Max != nil && f > *r.Max {
		return newValidationError(field, "max", "must be at most %v, got %v", *r.Max, f)
	}
	if r.Positive && f <= 0 {
		return newValidationError(field, "positive", "must be positive, got %v", f)
	}
	if r.Negative && f >= 0 {
		return newValidationError(field, "negative", "must be negative, got %v", f)
	}
	if r.MultipleOf != nil && *r.MultipleOf != 0 {
		if rem := math.Mod(f, *r.MultipleOf); math.Abs(rem) > 1e-9 {
			return newValidationError(field, "multiple_of", "must be a multiple of %v, got %v", *r.MultipleOf, f)
		}
	}
	return nil
}

func checkPassword(field string, rules *PasswordRules, value any) error {
	s, ok := value.(string)
	if !ok {
		return newValidationError(field, "password", "wants a string, got %T", value)
	}
	minLen := rules.MinLength
	if minLen == 0 {
		minLen = 8
	}
	if len(s) < minLen {
		return newValidationError(field, "password", "must be at least %d characters", minLen)
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if rules.RequireUpper && !hasUpper {
		return newValidationError(field, "password", "must contain an uppercase letter")
	}
	if rules.RequireLower && !hasLower {
		return newValidationError(field, "password", "must contain a lowercase letter")
	}
	if rules.RequireDigit && !hasDigit {
		return newValidationError(field, "password", "must contain a digit")
	}
	if rules.RequireSymbol && !hasSymbol {
		return newValidationError(field, "password", "must contain a symbol")
	}
	return nil
}

func compareValues(field string, got, want any, op string) error {
	if op == "" || op == "eq" {
		if !reflect.DeepEqual(got, want) {
			return newValidationError(field, "compare_value", "%v does not equal %v", got, want)
		}
		return nil
	}
	if op == "ne" {
		if reflect.DeepEqual(got, want) {
			return newValidationError(field, "compare_value", "%v must not equal %v", got, want)
		}
		return nil
	}
	gf, ok1 := toFloat(got)
	wf, ok2 := toFloat(want)
	if !ok1 || !ok2 {
		return newValidationError(field, "compare_value", "%q comparison needs numbers, got %T and %T", op, got, want)
	}
	var pass bool
	switch op {
	case "gt":
		pass = gf > wf
	case "gte":
		pass = gf >= wf
	case "lt":
		pass = gf < wf
	case "lte":
		pass = gf <= wf
	default:
		return newValidationError(field, "compare_value", "unknown comparison %q", op)
	}
	if !pass {
		return newValidationError(field, "compare_value", "%v is not %s %v", got, op, want)
	}
	return nil
}

// isEmpty treats nil, the empty string and zero-length collections as
// absent.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// toAnySliceLoose views any supported slice shape as []any without erroring.
func toAnySliceLoose(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}
