// Eckert is a conversational agent that reasons in think/act/observe
// steps, calls local tools, and remembers each session's conversation.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]). Commands that only
// need a model fall back to built-in defaults when no file exists.
//
// Usage:
//
//	eckert chat [-session id] [-plain]   Interactive session on stdin
//	eckert ask [-session id] <question>  Answer one question
//	eckert serve                         Start the HTTP and WebSocket API
//	eckert history [-session id]         Print a session transcript
//	eckert clear [-session id]           Delete a session transcript
//	eckert sessions                      List sessions
//	eckert init [dir]                    Write an example config and skills
//	eckert version                       Print version and build information
//	eckert -o json version               Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eckert-ai/eckert/internal/buildinfo"
	"github.com/eckert-ai/eckert/internal/config"
)

// main constructs the OS-level environment and delegates to [run] so the
// whole command can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// globalFlags are parsed before the command name.
type globalFlags struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package's global FlagSet would keep run from being called
// concurrently in tests.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var g globalFlags
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			g.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			g.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			g.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			g.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			g.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if g.outputFmt == "" {
		g.outputFmt = "text"
	}
	if g.outputFmt != "text" && g.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", g.outputFmt)
	}

	switch command {
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, g, cmdArgs)
	case "ask":
		return runAsk(ctx, stdout, stderr, g, cmdArgs)
	case "serve":
		return runServe(ctx, stdout, g)
	case "history":
		return runHistory(ctx, stdout, stderr, g, cmdArgs)
	case "clear":
		return runClear(ctx, stdout, stderr, g, cmdArgs)
	case "sessions":
		return runSessions(ctx, stdout, stderr, g)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, g.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Current()
	if outputFmt == "json" {
		return writeJSONOut(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	fmt.Fprintf(w, "  %-12s %s\n", "git_commit:", info.GitCommit)
	fmt.Fprintf(w, "  %-12s %s\n", "build_time:", info.BuildTime)
	fmt.Fprintf(w, "  %-12s %s\n", "go_version:", info.GoVersion)
	fmt.Fprintf(w, "  %-12s %s/%s\n", "platform:", info.OS, info.Arch)
	return nil
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Eckert - conversational agent with tools and session memory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: eckert [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat [-session id] [-plain]   Interactive session (type exit or 退出 to quit)")
	fmt.Fprintln(w, "  ask [-session id] <question>  Answer a single question")
	fmt.Fprintln(w, "  serve                         Start the HTTP and WebSocket API")
	fmt.Fprintln(w, "  history [-session id]         Print a session transcript")
	fmt.Fprintln(w, "  clear [-session id]           Delete a session transcript")
	fmt.Fprintln(w, "  sessions                      List sessions")
	fmt.Fprintln(w, "  init [dir]                    Write an example config and skills (default: .)")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/eckert/config.yaml, /etc/eckert/config.yaml")
	return nil
}

// loadConfig locates and parses the configuration. When no file exists
// and explicit is empty, the built-in defaults are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNoConfig) {
		cfg, err := config.Default()
		return cfg, "", err
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the logger for a command. Interactive commands stay
// quiet unless a level is configured.
func newLogger(w io.Writer, cfg *config.Config, interactive bool) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if interactive && strings.TrimSpace(cfg.LogLevel) == "" {
		level = slog.LevelWarn
	}
	return config.NewLogger(w, level, cfg.LogFormat), nil
}

// parseSessionFlag extracts "-session id" from args and returns the
// remaining arguments.
func parseSessionFlag(args []string, def string) (string, []string, error) {
	id := def
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case (args[i] == "-session" || args[i] == "-s") && i+1 < len(args):
			id = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-session="):
			id = strings.TrimPrefix(args[i], "-session=")
		case args[i] == "-session" || args[i] == "-s":
			return "", nil, fmt.Errorf("%s requires a value", args[i])
		default:
			rest = append(rest, args[i])
		}
	}
	if strings.TrimSpace(id) == "" {
		return "", nil, errors.New("session id must not be empty")
	}
	return id, rest, nil
}
