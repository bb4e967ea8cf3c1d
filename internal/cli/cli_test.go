package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/me/worksizing/pkg/model"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

var resultLine = regexp.MustCompile(`^Smallest Multiple Found: (\d+) in [0-9.e+-]+s\n$`)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0.0"},
		{2, "2.0"},
		{1.23456, "1.23"},
		{0.5, "0.5"},
		{0.0123456, "0.0123"},
		{12.3456, "12.3"},
		{12, "12.0"},
		{123.456, "1.23e+02"},
		{100, "1e+02"},
		{999.7, "1e+03"},
		{0.0001, "0.0001"},
		{0.00001234, "1.23e-05"},
		{9.999, "10.0"},
	}
	for _, tc := range tests {
		if got := formatElapsed(tc.sec); got != tc.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tc.sec, got, tc.want)
		}
	}
}

func TestRoot_PrintsResult(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"1"}, "1"},
		{[]string{"2"}, "1"},
		{[]string{"10", "-w", "4"}, "2520"},
		{[]string{"10", "-b", "7", "-w", "3", "-j", "5", "-t", "0.01"}, "2520"},
		{[]string{"10", "--unordered", "--wait", "all", "-w", "2"}, "2520"},
		{[]string{"8", "--rule", "n % i === 0", "-w", "2"}, "420"},
	}

	for _, tc := range tests {
		stdout, stderr, err := execute(t, context.Background(), tc.args...)
		if err != nil {
			t.Fatalf("worksizing %v: %v\n%s", tc.args, err, stderr)
		}
		m := resultLine.FindStringSubmatch(stdout)
		if m == nil {
			t.Fatalf("worksizing %v: unexpected output %q", tc.args, stdout)
		}
		if m[1] != tc.want {
			t.Errorf("worksizing %v = %s, want %s", tc.args, m[1], tc.want)
		}
	}
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	stdout, stderr, err := execute(t, context.Background(), "10", "-v", "-w", "2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stderr, "Average number of workers available (optimally 0)") {
		t.Errorf("expected the worker average at DEBUG, got:\n%s", stderr)
	}
	if strings.Contains(stdout, "level=") {
		t.Errorf("logs leaked to stdout: %q", stdout)
	}
}

func TestRoot_MetricsSummary(t *testing.T) {
	_, stderr, err := execute(t, context.Background(), "10", "--metrics", "-w", "2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stderr, "=== Search Summary ===") || !strings.Contains(stderr, "Result: 2,520") {
		t.Errorf("missing summary in stderr:\n%s", stderr)
	}
}

func TestRoot_ConfigFileAndFlagOverride(t *testing.T) {
	// The file asks for a limit below the answer; the flag lifts it.
	path := writeConfig(t, "search.yaml", "search:\n  max_workers: 2\n  limit: 100\n")

	_, _, err := execute(t, context.Background(), "10", "-c", path)
	if !errors.Is(err, model.ErrSearchSpaceExhausted) {
		t.Fatalf("err = %v, want ErrSearchSpaceExhausted from the file's limit", err)
	}

	stdout, _, err := execute(t, context.Background(), "10", "-c", path, "--limit", "0")
	if err != nil {
		t.Fatalf("execute with override: %v", err)
	}
	if m := resultLine.FindStringSubmatch(stdout); m == nil || m[1] != "2520" {
		t.Errorf("output = %q, want 2520", stdout)
	}
}

func TestRoot_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", nil, "accepts 1 arg"},
		{"not a number", []string{"ten"}, "invalid n"},
		{"zero bound", []string{"0"}, "n must be at least 1"},
		{"bad block size", []string{"10", "-b", "0"}, "block_size must be positive"},
		{"bad wait", []string{"10", "--wait", "some"}, "wait must be"},
		{"bad rule", []string{"10", "--rule", "n %%% i"}, "rule"},
		{"missing config", []string{"10", "-c", "/nonexistent/search.yaml"}, "read config file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, context.Background(), tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestRoot_Deadline(t *testing.T) {
	_, _, err := execute(t, context.Background(), "24", "--deadline", "50ms", "-w", "2")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, stderr, err := execute(t, ctx, "serve", "--addr", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(stderr, "server stopped") {
		t.Errorf("expected a clean shutdown log, got:\n%s", stderr)
	}
}

func TestServe_InvalidSearchTimeout(t *testing.T) {
	_, _, err := execute(t, context.Background(), "serve", "--search-timeout", "never")
	if err == nil || !strings.Contains(err.Error(), "search_timeout") {
		t.Errorf("err = %v, want a search_timeout error", err)
	}
}
