package security

import (
	"fmt"
	"regexp"
)

// Limits applied to evaluation requests.
const (
	MaxIdentifierLength = 128
	MaxSamples          = 10000
	MaxRequestSize      = 64 * 1024 * 1024 // 64MB
)

// ValidationError describes the field that failed and the constraint it broke.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// identifierRegex matches scan and request IDs. The first character excludes
// '.' so an identifier can never name a parent directory.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]*$`)

// ValidateIdentifier checks an ID that may end up in a file name, a redis key
// or a log line.
func ValidateIdentifier(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Constraint: "required"}
	}
	if len(id) > MaxIdentifierLength {
		return &ValidationError{
			Field:      field,
			Value:      len(id),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxIdentifierLength),
		}
	}
	if !identifierRegex.MatchString(id) {
		return &ValidationError{
			Field:      field,
			Value:      SanitizeForLog(id),
			Constraint: "must contain only alphanumerics, '.', '_', ':' and '-', and start with an alphanumeric",
		}
	}
	return nil
}

// ValidateSampleCount bounds the number of samples in one request.
func ValidateSampleCount(n int) error {
	if n < 1 {
		return &ValidationError{Field: "samples", Constraint: "required"}
	}
	if n > MaxSamples {
		return &ValidationError{
			Field:      "samples",
			Value:      n,
			Constraint: fmt.Sprintf("at most %d samples per request", MaxSamples),
		}
	}
	return nil
}
