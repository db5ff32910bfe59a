// Package builtin provides the default workspace tools: read, write, edit and
// ls over the filesystem bridge, a bridge-free echo tool, and bash, which is
// only resolved for sandboxed workspaces.
package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/tool"
)

// All returns every builtin tool.
func All() []*tool.Tool {
	return []*tool.Tool{Echo(), Read(), Write(), Edit(), List(), Bash()}
}

// Register adds every builtin tool to r.
func Register(r *tool.Registry) {
	for _, t := range All() {
		r.Register(t)
	}
}

// Echo returns its message unchanged.
func Echo() *tool.Tool {
	return &tool.Tool{
		Name:        "echo",
		Label:       "Echo",
		Description: "Return the given message unchanged.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "Text to echo back"},
			},
			"required": []string{"message"},
		},
		Execute: func(_ context.Context, _ tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			msg, _ := args["message"].(string)
			res := tool.TextResult(msg)
			res.Details = map[string]any{"length": len(msg)}
			return res, nil
		},
	}
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Read returns a file's contents. Images are returned as image blocks, text
// optionally sliced by 1-based line offset and limit.
func Read() *tool.Tool {
	return &tool.Tool{
		Name:        "read",
		Label:       "Read file",
		Description: "Read a file from the workspace. Supports line offset and limit for large text files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":   map[string]any{"type": "string", "description": "Path relative to the workspace root"},
				"offset": map[string]any{"type": "integer", "description": "First line to return (1-based)"},
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines"},
			},
			"required": []string{"path"},
		},
		Requires: []tool.Capability{tool.CapFileSystem},
		Execute: func(_ context.Context, rc tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			p, _ := args["path"].(string)
			data, err := rc.FS.ReadFile(p)
			if err != nil {
				return tool.Result{}, fmt.Errorf("read %s: %w", p, err)
			}

			if mime, ok := imageTypes[strings.ToLower(path.Ext(p))]; ok {
				return tool.Result{
					Content: []core.Block{core.ImageBlock{Data: base64.StdEncoding.EncodeToString(data), MimeType: mime}},
					Details: map[string]any{"path": p, "bytes": len(data)},
				}, nil
			}

			lines := strings.Split(string(data), "\n")
			total := len(lines)
			start := intArg(args, "offset", 1) - 1
			if start < 0 {
				start = 0
			}
			if start > total {
				return tool.Result{}, fmt.Errorf("offset %d is beyond end of file (%d lines)", start+1, total)
			}
			end := total
			if limit := intArg(args, "limit", 0); limit > 0 && start+limit < total {
				end = start + limit
			}

			res := tool.TextResult(strings.Join(lines[start:end], "\n"))
			res.Details = map[string]any{"path": p, "lines": total, "truncated": end < total || start > 0}
			return res, nil
		},
	}
}

// Write creates or overwrites a file.
func Write() *tool.Tool {
	return &tool.Tool{
		Name:        "write",
		Label:       "Write file",
		Description: "Create or overwrite a file in the workspace. Parent directories are created.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the workspace root"},
				"content": map[string]any{"type": "string", "description": "Full file content"},
			},
			"required": []string{"path", "content"},
		},
		Requires: []tool.Capability{tool.CapFileSystem},
		Execute: func(_ context.Context, rc tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			p, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := rc.FS.WriteFile(p, []byte(content)); err != nil {
				return tool.Result{}, fmt.Errorf("write %s: %w", p, err)
			}
			return tool.TextResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), p)), nil
		},
	}
}

// Edit replaces one exact occurrence of old_text with new_text.
func Edit() *tool.Tool {
	return &tool.Tool{
		Name:        "edit",
		Label:       "Edit file",
		Description: "Replace exactly one occurrence of old_text with new_text in a workspace file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     map[string]any{"type": "string", "description": "Path relative to the workspace root"},
				"old_text": map[string]any{"type": "string", "description": "Exact text to replace"},
				"new_text": map[string]any{"type": "string", "description": "Replacement text"},
			},
			"required": []string{"path", "old_text", "new_text"},
		},
		Requires: []tool.Capability{tool.CapFileSystem},
		Execute: func(_ context.Context, rc tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			p, _ := args["path"].(string)
			oldText, _ := args["old_text"].(string)
			newText, _ := args["new_text"].(string)
			if oldText == "" {
				return tool.Result{}, fmt.Errorf("old_text must not be empty")
			}

			data, err := rc.FS.ReadFile(p)
			if err != nil {
				return tool.Result{}, fmt.Errorf("read %s: %w", p, err)
			}
			content := string(data)
			switch n := strings.Count(content, oldText); n {
			case 0:
				return tool.Result{}, fmt.Errorf("old_text not found in %s", p)
			case 1:
			default:
				return tool.Result{}, fmt.Errorf("old_text occurs %d times in %s; provide more context", n, p)
			}

			if err := rc.FS.WriteFile(p, []byte(strings.Replace(content, oldText, newText, 1))); err != nil {
				return tool.Result{}, fmt.Errorf("write %s: %w", p, err)
			}
			return tool.TextResult(fmt.Sprintf("Edited %s", p)), nil
		},
	}
}

// List lists a workspace directory; directories carry a trailing slash.
func List() *tool.Tool {
	return &tool.Tool{
		Name:        "ls",
		Label:       "List directory",
		Description: "List the entries of a workspace directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Directory relative to the workspace root (default: root)"},
			},
		},
		Requires: []tool.Capability{tool.CapFileSystem},
		Execute: func(_ context.Context, rc tool.ResolveContext, _ string, args map[string]any) (tool.Result, error) {
			p, _ := args["path"].(string)
			if p == "" {
				p = "."
			}
			entries, err := rc.FS.ReadDir(p)
			if err != nil {
				return tool.Result{}, fmt.Errorf("list %s: %w", p, err)
			}
			if len(entries) == 0 {
				return tool.TextResult("(empty directory)"), nil
			}

			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name()
				if e.IsDir() {
					names[i] += "/"
				}
			}
			res := tool.TextResult(strings.Join(names, "\n"))
			res.Details = map[string]any{"count": len(names)}
			return res, nil
		},
	}
}

// intArg reads a JSON number argument, which decodes as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
