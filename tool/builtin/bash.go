package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/agentwire/tool"
)

const (
	defaultBashTimeout = 60 * time.Second
	maxBashTimeout     = 10 * time.Minute
	maxBashOutput      = 64 * 1024
)

// Bash runs a shell command in the workspace root. It requires a sandboxed
// context and is omitted everywhere else.
func Bash() *tool.Tool {
	return &tool.Tool{
		Name:        "bash",
		Label:       "Run command",
		Description: "Run a bash command in the workspace root and return its output.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "Command line passed to bash -c"},
				"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default 60)"},
			},
			"required": []string{"command"},
		},
		Requires: []tool.Capability{tool.CapSandbox, tool.CapWorkspace},
		Execute: func(ctx context.Context, rc tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			command, _ := args["command"].(string)
			if strings.TrimSpace(command) == "" {
				return tool.Result{}, errors.New("command is empty")
			}

			timeout := time.Duration(intArg(args, "timeout", 0)) * time.Second
			if timeout <= 0 {
				timeout = defaultBashTimeout
			}
			timeout = min(timeout, maxBashTimeout)

			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "bash", "-c", command)
			cmd.Dir = rc.Root
			cmd.WaitDelay = time.Second

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return tool.Result{}, fmt.Errorf("command timed out after %s: %s", timeout, clip(stderr.String()))
			}

			exitCode := 0
			if err != nil {
				var exitErr *exec.ExitError
				if !errors.As(err, &exitErr) {
					return tool.Result{}, fmt.Errorf("run command: %w", err)
				}
				exitCode = exitErr.ExitCode()
			}

			out := strings.TrimRight(stdout.String(), "\n")
			if errText := strings.TrimRight(stderr.String(), "\n"); errText != "" {
				if out != "" {
					out += "\n"
				}
				out += errText
			}
			if exitCode != 0 {
				return tool.Result{}, fmt.Errorf("exit status %d: %s", exitCode, clip(out))
			}

			res := tool.TextResult(clip(out))
			res.Details = map[string]any{"exit_code": exitCode, "truncated": len(out) > maxBashOutput}
			return res, nil
		},
	}
}

func clip(s string) string {
	if len(s) <= maxBashOutput {
		return s
	}
	return s[:maxBashOutput] + "\n[output truncated]"
}
