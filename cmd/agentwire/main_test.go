package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) { _ = f.Value.Set(f.DefValue) }
	rootCmd.PersistentFlags().VisitAll(reset)
	runCmd.Flags().VisitAll(reset)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRunCommand_Mock(t *testing.T) {
	out, _, err := execute(t, "", "run", "--provider", "mock", "--model", "mock-1", "--log-level", "error", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello\n", out)
}

func TestRunCommand_PromptFromStdin(t *testing.T) {
	out, _, err := execute(t, "from stdin\n", "run", "--provider", "mock", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock response to: from stdin")
}

func TestRunCommand_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: mock\nmodel: mock-1\nlog:\n  level: error\n"), 0o600))

	out, _, err := execute(t, "", "run", "--config", path, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock response to: ping")
}

func TestModelsCommand(t *testing.T) {
	out, _, err := execute(t, "", "models", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "CONNECTOR")
	assert.Contains(t, out, "mock-1")
	assert.Contains(t, out, "claude-sonnet-4-0")
}

func TestToolsCommand_Workspace(t *testing.T) {
	out, _, err := execute(t, "", "tools", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "echo")
	assert.NotContains(t, out, "write")

	out, _, err = execute(t, "", "tools", "--log-level", "error", "--workspace", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "write")
	assert.Contains(t, out, "ls")
}
