package forensics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Runner invokes the external forensics binaries. The default implementation
// shells out; tests substitute a fake to avoid depending on tailspin,
// spindump, and log actually being installed.
type Runner interface {
	// Tailspin dumps a kernel trace for the running system to outPath.
	Tailspin(ctx context.Context, outPath string) error
	// Decode turns a tailspin trace file into its unprivileged text form.
	Decode(ctx context.Context, tracePath string) ([]byte, error)
	// LogShow dumps the system log for the last `window` as ndjson.
	LogShow(ctx context.Context, window time.Duration) ([]byte, error)
}

// execRunner is the production Runner, invoking the real macOS binaries.
type execRunner struct {
	timeout time.Duration
}

// NewExecRunner returns a Runner that shells out to tailspin, spindump,
// and log show, each bounded by timeout. The timeout is a backstop against
// a hung subprocess, not a normal-path budget; callers should set it
// generously so captures run to completion under stress.
func NewExecRunner(timeout time.Duration) Runner {
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Tailspin(ctx context.Context, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "tailspin", "save", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("forensics: tailspin: %w: %s", err, stderr.String())
	}
	return nil
}

func (r *execRunner) Decode(ctx context.Context, tracePath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "spindump", "-i", tracePath, "-stdout")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("forensics: spindump decode: %w: %s", err, stderr.String())
	}
	return out, nil
}

func (r *execRunner) LogShow(ctx context.Context, window time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	last := fmt.Sprintf("%ds", int(window.Seconds()))
	if window < time.Second {
		last = "1s"
	}
	cmd := exec.CommandContext(ctx, "log", "show", "--last", last, "--style", "ndjson")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("forensics: log show: %w: %s", err, stderr.String())
	}
	return out, nil
}

// tempTracePath returns a sudoers-allowed scratch path for one capture's
// kernel trace.
func tempTracePath(eventID string) string {
	return fmt.Sprintf("%s/roguehunterd-%s.trace", os.TempDir(), eventID)
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}
