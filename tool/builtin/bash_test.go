package builtin

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBash_OnlyResolvedWhenSandboxed(t *testing.T) {
	r, rc := newWorkspace(t)

	assert.NotContains(t, r.ResolveAll(rc).Names(), "bash")

	rc.Sandboxed = true
	assert.Contains(t, r.ResolveAll(rc).Names(), "bash")

	// A sandbox without a workspace root still omits it.
	assert.NotContains(t, r.ResolveAll(tool.ResolveContext{Sandboxed: true}).Names(), "bash")
}

func TestBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	r, rc := newWorkspace(t)
	rc.Sandboxed = true
	require.NoError(t, os.WriteFile(filepath.Join(rc.Root, "a.txt"), []byte("hi"), 0o600))

	t.Run("runs in workspace root", func(t *testing.T) {
		res, err := run(t, r, rc, "bash", map[string]any{"command": "cat a.txt"})
		require.NoError(t, err)
		assert.Equal(t, "hi", core.JoinText(res.Content))
		assert.Equal(t, 0, res.Details["exit_code"])
	})

	t.Run("non-zero exit is an error", func(t *testing.T) {
		_, err := run(t, r, rc, "bash", map[string]any{"command": "echo boom >&2; exit 3"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 3")
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := run(t, r, rc, "bash", map[string]any{"command": "sleep 5", "timeout": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})
}
