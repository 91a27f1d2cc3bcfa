package sqlgen

import (
	"fmt"
	"regexp"
	"strings"
)

const maxIdentifierLength = 128

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdent checks one identifier part against the safe-name pattern.
// Identifiers reach SQL text directly (quoted but not parameterized), so
// anything outside the pattern is rejected outright rather than escaped.
func ValidateIdent(part string) error {
	if part == "" {
		return fmt.Errorf("sqlgen: empty identifier")
	}
	if len(part) > maxIdentifierLength {
		return fmt.Errorf("sqlgen: identifier %q exceeds %d characters", part, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(part) {
		return fmt.Errorf("sqlgen: invalid identifier %q", part)
	}
	return nil
}

// QuoteQualified validates and quotes a possibly schema-qualified name such
// as "public.users", quoting each dot-separated part independently.
func QuoteQualified(d Dialect, name string) (string, error) {
	parts := strings.Split(name, ".")
	quoted := make([]string, len(parts))
	for i, part := range parts {
		if err := ValidateIdent(part); err != nil {
			return "", err
		}
		quoted[i] = d.QuoteIdent(part)
	}
	return strings.Join(quoted, "."), nil
}
