package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"pass started"`},
		{"JSON", `"msg":"pass started"`},
		{"text", `msg="pass started"`},
		{"", `msg="pass started"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf, "info", tt.format).Info("pass started")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestLogger_Tags(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.WithRun("run-1").WithDataset("ws", "validation_scans").WithScan("scan-a").Info("sample processed")

	output := buf.String()
	for _, want := range []string{
		`"run_id":"run-1"`,
		`"dataset":{"kind":"ws","split":"validation_scans"}`,
		`"scan_id":"scan-a"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %s, got: %s", want, output)
		}
	}
}

func TestLogger_WithScanSanitizes(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "text").WithScan("a\nlevel=ERROR").Info("x")

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("expected one record line, got %d: %q", got, buf.String())
	}
}

func TestLogger_EmptyTagsAreSkipped(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "text")

	log.WithRun("").WithError(nil).Info("x")
	if strings.Contains(buf.String(), "run_id") || strings.Contains(buf.String(), "error") {
		t.Errorf("empty tags should be skipped, got: %s", buf.String())
	}

	buf.Reset()
	log.WithError(errors.New("boom")).Error("pass aborted")
	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("output should contain error, got: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("info message should be filtered at warn level, got: %s", output)
	}
	if !strings.Contains(output, "shown") {
		t.Errorf("warn message should be written, got: %s", output)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard() should not enable any level")
	}
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
