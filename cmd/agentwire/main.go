package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/agentwire"
	"github.com/hupe1980/agentwire/config"
	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/credentials"
	"github.com/hupe1980/agentwire/flow"
	"github.com/hupe1980/agentwire/logging"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/tool"
	"github.com/hupe1980/agentwire/tool/localfs"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "agentwire",
	Short:         "Drive a tool-using LLM loop from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run the agentic loop for a prompt (reads stdin when no prompt is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLoop,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered connectors and their models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONNECTOR\tPROVIDER\tMODEL\tCONTEXT\tMAX OUTPUT")
		for _, c := range env.rt.Connectors().All() {
			info := c.Info()
			models := c.Models()
			if len(models) == 0 {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", info.ID, info.Provider)
				continue
			}
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", info.ID, info.Provider, m.ID, m.ContextWindow, m.MaxTokens)
			}
		}
		return w.Flush()
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools resolved for the configured workspace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}

		rc, closeFS, err := workspace(env.cfg)
		if err != nil {
			return err
		}
		defer closeFS()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tDESCRIPTION")
		for _, rtool := range env.rt.Tools().ResolveAll(rc).Tools() {
			fmt.Fprintf(w, "%s\t%s\n", rtool.Tool.Name, rtool.Tool.Description)
		}
		return w.Flush()
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API keys stored in the OS keyring",
}

var authSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Store a key (read from stdin) under NAME, e.g. OPENAI_API_KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read key: %w", err)
		}
		if err := credentials.NewResolver().SetSecret(args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove the key stored under NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.NewResolver().DeleteSecret(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "path to a YAML config file")
	pf.StringP("provider", "p", "", "provider id (overrides config)")
	pf.StringP("model", "m", "", "model id (overrides config)")
	pf.StringP("workspace", "w", "", "workspace root for file tools (overrides config)")
	pf.String("log-level", "", "log level: debug, info, warn, error (overrides config)")

	runCmd.Flags().Int("max-turns", 0, "maximum connector calls (overrides config)")
	runCmd.Flags().String("system", "", "system prompt template (overrides config)")
	runCmd.Flags().Bool("parallel", false, "execute tool calls of a turn concurrently")

	authCmd.AddCommand(authSetCmd, authDeleteCmd)
	rootCmd.AddCommand(runCmd, modelsCmd, toolsCmd, authCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliEnv struct {
	cfg    *config.Config
	rt     *agentwire.Runtime
	logger *logging.AgentLogger
}

// setup loads the config, applies flag overrides and builds the runtime.
func setup(cmd *cobra.Command) (*cliEnv, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		cfg.Provider = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("workspace"); v != "" {
		cfg.Workspace.Root = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewSlogLogger(level, cfg.Log.Format, false).WithComponent("cli")

	rt := agentwire.New(func(o *agentwire.Options) {
		o.Logger = logger
		o.Credentials = credentials.NewResolver()
	})

	loaders := []agentwire.Loader{agentwire.Builtins()}
	for _, ep := range cfg.Endpoints {
		loaders = append(loaders, agentwire.Endpoint(ep.ID, ep.Label, ep.BaseURL, ep.APIKey, ep.EnvVars, ep.Models...))
	}
	if len(cfg.Tools.Enabled) > 0 {
		loaders = append(loaders, enabledOnly(cfg.Tools.Enabled))
	}
	if err := rt.Use(cmd.Context(), loaders...); err != nil {
		return nil, err
	}

	return &cliEnv{cfg: cfg, rt: rt, logger: logger}, nil
}

// enabledOnly removes every registered tool not listed in names.
func enabledOnly(names []string) agentwire.Loader {
	return agentwire.LoaderFunc{
		LoaderName: "enabled-tools",
		Fn: func(_ context.Context, tools *tool.Registry, _ *model.Registry) error {
			for _, n := range names {
				if _, ok := tools.Get(n); !ok {
					return fmt.Errorf("unknown tool %q", n)
				}
			}
			for _, n := range tools.Names() {
				if !slices.Contains(names, n) {
					tools.Unregister(n)
				}
			}
			return nil
		},
	}
}

// workspace builds the tool resolve context. A configured root is opened as
// the filesystem bridge; without one, file tools are omitted.
func workspace(cfg *config.Config) (tool.ResolveContext, func(), error) {
	rc := tool.ResolveContext{
		Root:      cfg.Workspace.Root,
		Sandboxed: cfg.Workspace.Sandboxed,
		AgentID:   cfg.Workspace.AgentID,
		Owner:     cfg.Workspace.Owner,
	}
	if rc.Root == "" {
		return rc, func() {}, nil
	}
	fsys, err := localfs.Open(rc.Root)
	if err != nil {
		return rc, nil, err
	}
	rc.Root = fsys.Dir()
	rc.FS = fsys
	return rc, func() { _ = fsys.Close() }, nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg := env.cfg

	if v, _ := cmd.Flags().GetInt("max-turns"); v > 0 {
		cfg.MaxTurns = v
	}
	if v, _ := cmd.Flags().GetString("system"); v != "" {
		cfg.SystemPrompt = v
	}
	if v, _ := cmd.Flags().GetBool("parallel"); v {
		cfg.Tools.Dispatch = flow.DispatchParallel
	}

	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}

	rc, closeFS, err := workspace(cfg)
	if err != nil {
		return err
	}
	defer closeFS()

	dispatcher, err := flow.NewDispatcher(cfg.Tools.Dispatch, cfg.Tools.MaxParallel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	start := time.Now()
	res, err := env.rt.Run(ctx, agentwire.RunRequest{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		BaseURL:      cfg.BaseURL,
		Prompt:       prompt,
		SystemPrompt: cfg.SystemPrompt,
		Vars:         cfg.Vars,
		Workspace:    rc,
		MaxTurns:     cfg.MaxTurns,
		Dispatcher:   dispatcher,
		StreamOptions: model.StreamOptions{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		},
		OnEvent: func(ev core.Event) {
			switch ev.Type {
			case core.EventTextDelta:
				fmt.Fprint(out, ev.Delta)
			case core.EventTextEnd:
				fmt.Fprintln(out)
			case core.EventToolCallEnd:
				fmt.Fprintf(errOut, "→ %s %s\n", ev.ToolCall.Name, ev.ToolCall.ArgumentsJSON())
			}
		},
		OnMessage: func(msg core.Message) {
			if r, ok := msg.(core.ToolResultMessage); ok && r.IsError {
				fmt.Fprintf(errOut, "✗ %s: %s\n", r.ToolName, r.Text())
			}
		},
	})
	if err != nil {
		return err
	}
	env.logger.WithRun(res.RunID).LogLoopExecution(string(flow.StateFinished), res.Turns, time.Since(start), res.Err == nil, res.Err)

	switch {
	case res.Cancelled:
		return errors.New("cancelled")
	case res.Err != nil:
		return res.Err
	case res.TurnCapReached:
		fmt.Fprintf(errOut, "stopped after %d turns (turn cap)\n", res.Turns)
	}
	return nil
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}
