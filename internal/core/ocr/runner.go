package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

const defaultStderrLimit = 8 << 10

// ExitError is returned when an OCR tool exits non-zero.
type ExitError struct {
	Tool string
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Tool, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExecRunner runs the poppler and tesseract binaries on the host.
type ExecRunner struct {
	// Env is appended to the process environment, e.g. OMP_THREAD_LIMIT=1 so
	// that parallel pages do not each spawn a full tesseract thread pool.
	Env []string
	// StderrLimit caps the stderr kept in logs. Default 8KB.
	StderrLimit int
}

func (r ExecRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(common.LogAttrs(ctx)...).With("tool", name)
	limit := r.StderrLimit
	if limit <= 0 {
		limit = defaultStderrLimit
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("ocr.exec.start", "args", strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = &ExitError{Tool: name, Code: exitErr.ExitCode(), Err: err}
		}
		logger.Error("ocr.exec.failed",
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
			"stderr", truncate(stderr.String(), limit),
		)
		return stdout.Bytes(), stderr.Bytes(), err
	}

	logger.Debug("ocr.exec.done",
		"duration_ms", elapsed.Milliseconds(),
		"stdout_bytes", stdout.Len(),
	)
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
