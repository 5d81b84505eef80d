package ocr

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerPassesEnv(t *testing.T) {
	requireShell(t)
	r := ExecRunner{Env: []string{"OMP_THREAD_LIMIT=1"}}
	out, _, err := r.Run(context.Background(), "sh", nil, "-c", "echo $OMP_THREAD_LIMIT")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(string(out)))
}

func TestExecRunnerExitError(t *testing.T) {
	requireShell(t)
	_, stderr, err := ExecRunner{StderrLimit: 4}.Run(context.Background(), "sh", nil, "-c", "echo broken raster >&2; exit 3")
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "sh", exitErr.Tool)
	assert.Equal(t, 3, exitErr.Code)
	// the limit only applies to logging
	assert.Equal(t, "broken raster", strings.TrimSpace(string(stderr)))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, _, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-tesseract-binary", nil)
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}
