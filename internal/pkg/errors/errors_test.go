package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeConfiguration, "unknown split"),
			want: "CONFIGURATION_ERROR: unknown split",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInferenceFailure, "model failed", errors.New("oom")),
			want: "INFERENCE_FAILURE: model failed: oom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodePersistence, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeConfiguration, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInferenceFailure, http.StatusUnprocessableEntity},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{CodePersistence, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(CodeConfiguration, "unknown class").
		WithDetail("name", "chiar").
		WithDetail("file", "classes.txt")

	if err.Details["name"] != "chiar" {
		t.Errorf("Details[name] = %s, want chiar", err.Details["name"])
	}

	if err.Details["file"] != "classes.txt" {
		t.Errorf("Details[file] = %s, want classes.txt", err.Details["file"])
	}
}

func TestPredicatesFollowWrapChain(t *testing.T) {
	cfgErr := fmt.Errorf("loading table: %w", ConfigurationError("bad row"))
	infErr := fmt.Errorf("scan 7: %w", InferenceFailure("shape mismatch", nil))

	if !IsConfiguration(cfgErr) {
		t.Error("IsConfiguration(wrapped) = false, want true")
	}
	if IsConfiguration(infErr) {
		t.Error("IsConfiguration(inference failure) = true, want false")
	}
	if !IsInferenceFailure(infErr) {
		t.Error("IsInferenceFailure(wrapped) = false, want true")
	}
	if IsValidation(errors.New("standard error")) {
		t.Error("IsValidation(standard error) = true, want false")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"direct", PersistenceError("write report", errors.New("disk full")), CodePersistence},
		{"wrapped", fmt.Errorf("run: %w", ConfigurationError("K must be positive")), CodeConfiguration},
		{"outermost wins", Wrap(CodeInternal, "outer", ValidationError("inner")), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
			if tt.want != "" && !HasCode(tt.err, tt.want) {
				t.Errorf("HasCode(%q) = false", tt.want)
			}
		})
	}
	if HasCode(nil, "") {
		t.Error("HasCode(nil, \"\") = true, want false")
	}
}

func TestWithScanAndRateLimited(t *testing.T) {
	err := InferenceFailure("model returned no output", nil).WithScan("scene-0001")
	if err.Details["scan_id"] != "scene-0001" {
		t.Errorf("Details = %v", err.Details)
	}
	if got := RateLimitedError(3).Details["retry_after"]; got != "3" {
		t.Errorf("retry_after = %q, want 3", got)
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, InvalidRequestError("no samples"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeInvalidRequest || resp.Message != "no samples" {
			t.Errorf("resp = %+v, want %s: no samples", resp, CodeInvalidRequest)
		}
	})

	t.Run("plain error is sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("secret path /etc/x"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeInternal || resp.Message != "internal server error" {
			t.Errorf("resp = %+v, want sanitized internal error", resp)
		}
	})
}
