package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeExecCommand routes the command to TestHelperProcess in the given mode.
func fakeExecCommand(mode string, seen *[]string) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if seen != nil {
			*seen = append([]string{name}, args...)
		}
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CAPTURE_HELPER_MODE="+mode)
		return cmd
	}
}

// TestHelperProcess impersonates the browser. It writes to the argument
// following "--screenshot=".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	var out string
	for _, a := range os.Args {
		if v, ok := strings.CutPrefix(a, "--screenshot="); ok {
			out = v
		}
	}
	switch os.Getenv("CAPTURE_HELPER_MODE") {
	case "ok":
		_ = os.WriteFile(out, []byte("\x89PNG\r\n\x1a\nfake"), 0o600)
		os.Exit(0)
	case "empty":
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "net::ERR_NAME_NOT_RESOLVED")
		fmt.Fprintln(os.Stderr, "second line")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func swapCommand(t *testing.T, fn func(context.Context, string, ...string) *exec.Cmd) {
	t.Helper()
	orig := commandContext
	commandContext = fn
	t.Cleanup(func() { commandContext = orig })
}

func TestCommand_Capture(t *testing.T) {
	var seen []string
	swapCommand(t, fakeExecCommand("ok", &seen))

	c, err := NewCommand(nil, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	out := filepath.Join(t.TempDir(), "screen.png")
	if err := c.Capture(t.Context(), "https://example.com/about", out); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Fatalf("screenshot not written: %v", err)
	}
	if seen[0] != "chromium-browser" {
		t.Errorf("binary = %q", seen[0])
	}
	if seen[len(seen)-1] != "https://example.com/about" {
		t.Errorf("url argument = %q", seen[len(seen)-1])
	}
	if !containsArg(seen, "--screenshot="+out) || !containsArg(seen, "--window-size=1440,900") {
		t.Errorf("args = %v", seen)
	}
}

func TestCommand_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		timeout time.Duration
		check   func(t *testing.T, err error)
	}{
		{"non-zero exit", "fail", time.Minute, func(t *testing.T, err error) {
			if !strings.Contains(err.Error(), "ERR_NAME_NOT_RESOLVED") || strings.Contains(err.Error(), "second line") {
				t.Errorf("error should carry the first stderr line: %v", err)
			}
		}},
		{"no output", "empty", time.Minute, func(t *testing.T, err error) {
			if !errors.Is(err, ErrNoOutput) {
				t.Errorf("expected ErrNoOutput, got %v", err)
			}
		}},
		{"timeout", "hang", 200 * time.Millisecond, func(t *testing.T, err error) {
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected deadline exceeded, got %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			swapCommand(t, fakeExecCommand(tt.mode, nil))
			c, err := NewCommand(nil, tt.timeout, nil)
			if err != nil {
				t.Fatalf("NewCommand: %v", err)
			}

			start := time.Now()
			err = c.Capture(t.Context(), "https://example.com", filepath.Join(t.TempDir(), "s.png"))
			if err == nil {
				t.Fatal("expected error")
			}
			if time.Since(start) > 10*time.Second {
				t.Errorf("capture took %v", time.Since(start))
			}
			tt.check(t, err)
		})
	}
}

func TestNewCommand_RequiresOutPlaceholder(t *testing.T) {
	if _, err := NewCommand([]string{"chromium", "{url}"}, 0, nil); err == nil {
		t.Error("expected error")
	}
	c, err := NewCommand([]string{"shot", "-o", "{out}", "{url}"}, 0, nil)
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v", c.timeout)
	}
	got := expand(c.argv, "https://a.b", "/tmp/x.png")
	if strings.Join(got, " ") != "shot -o /tmp/x.png https://a.b" {
		t.Errorf("expand = %v", got)
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
