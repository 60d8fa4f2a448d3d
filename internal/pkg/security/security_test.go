package security

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "scene-0001", "scene-0001"},
		{"newline", "a\nlevel=ERROR", `a\nlevel=ERROR`},
		{"carriage return", "a\rb", `a\rb`},
		{"tab", "a\tb", `a\tb`},
		{"control", "a\x00b\x1bc", "abc"},
		{"spaces kept", "close by", "close by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	got := SanitizeForLogWithLength(strings.Repeat("x", 50), 10)
	if got != strings.Repeat("x", 10)+"..." {
		t.Errorf("got %q", got)
	}
	if got := SanitizeForLog(strings.Repeat("y", 500)); len(got) != MaxLogLength+3 {
		t.Errorf("len = %d, want %d", len(got), MaxLogLength+3)
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"scene-0001", false},
		{"4acaebcc-6c10-2a2a-858b-29c7e4fb410d", false},
		{"scan_1.v2:a", false},
		{"", true},
		{"..", true},
		{".hidden", true},
		{"a/b", true},
		{"a b", true},
		{"a\nb", true},
		{strings.Repeat("a", MaxIdentifierLength), false},
		{strings.Repeat("a", MaxIdentifierLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateIdentifier("scan_id", tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != "scan_id" {
					t.Errorf("error = %#v, want *ValidationError for scan_id", err)
				}
			}
		})
	}
}

func TestValidateSampleCount(t *testing.T) {
	for _, tt := range []struct {
		n       int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{MaxSamples, false},
		{MaxSamples + 1, true},
	} {
		if err := ValidateSampleCount(tt.n); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSampleCount(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "samples", Value: 3, Constraint: "too many"}
	if got := err.Error(); got != "validation failed for samples: too many (got: 3)" {
		t.Errorf("Error() = %q", got)
	}
	err = &ValidationError{Field: "scan_id", Constraint: "required"}
	if got := err.Error(); got != "validation failed for scan_id: required" {
		t.Errorf("Error() = %q", got)
	}
}
