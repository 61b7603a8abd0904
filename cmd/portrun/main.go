package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/portrun/internal/app"
	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:], app.StdStreams()))
}

func runCLI(cliArgs []string, s app.Streams) int {
	if len(cliArgs) < 1 {
		printUsage(s.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "parse":
		return runParse(ctx, args, s)
	case "run":
		return runRun(ctx, args, s)
	case "watch":
		return runWatch(ctx, args, s)
	case "workers":
		return runWorkers(ctx, args, s)
	case "history":
		return runHistory(ctx, args, s)
	case "config":
		return runConfigNoun(args, s)
	case "doctor":
		return runDoctor(args, s)
	case "version", "--version":
		return runVersion(args, s)
	case "help", "--help", "-h":
		printUsage(s.Stdout)
		return 0
	default:
		fmt.Fprintf(s.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(s.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `portrun - pipe data to worker processes and render their output

Usage:
  portrun <command> [flags]

Commands:
  parse                          Read JSON from stdin and print the parse worker's messages
  run [--worker NAME] [--tui]    Render a worker's progress stream
  watch [--url URL] [--run ID]   Follow a run from a live mirror
  workers [--json]               List discovered workers
  history [--limit N] [--json]   List recorded runs
  history show RUN_ID [--json]   Show one recorded run with its messages
  config hash-update             Record the config file's BLAKE3 hash
  config show                    Print the effective configuration
  config get PATH                Print one value, e.g. run.worker
  config set PATH VALUE          Edit the config file in place
  doctor [--json]                Check the config against installed workers
  version [--json]               Show version information
  help                           Show this help message

Configuration is read from $PORTRUN_CONFIG, ~/.config/portrun/config.yaml
or ./portrun.yaml.
`)
}

func newFlagSet(name string, s app.Streams) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(s.Stderr)
	return fs
}

func runParse(ctx context.Context, args []string, s app.Streams) int {
	fs := newFlagSet("parse", s)
	workerName := fs.String("worker", "", "Worker to use instead of parse.worker")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(s.Stderr, "Usage: portrun parse [--worker NAME] < input.json")
		return 1
	}

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		return env.Parse(ctx, s, app.ParseOptions{Worker: *workerName})
	})
}

func runRun(ctx context.Context, args []string, s app.Streams) int {
	fs := newFlagSet("run", s)
	workerName := fs.String("worker", "", "Worker to use instead of run.worker")
	useTUI := fs.Bool("tui", false, "Render full-screen")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(s.Stderr, "Usage: portrun run [--worker NAME] [--tui]")
		return 1
	}

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		return env.Run(ctx, s, app.RunOptions{Worker: *workerName, TUI: *useTUI})
	})
}

func runWatch(ctx context.Context, args []string, s app.Streams) int {
	fs := newFlagSet("watch", s)
	apiURL := fs.String("url", "", "Live mirror URL (default: http:// + api.listen)")
	runID := fs.String("run", "", "Run ID to follow (default: the next run that starts)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	url := *apiURL
	if url == "" {
		cfg, err := app.LoadConfig(s.Stderr)
		if err != nil {
			fmt.Fprintf(s.Stderr, "config: %v\n", err)
			return 1
		}
		url = "http://" + cfg.API.Listen
	}

	theme := watch.NewPlainTheme()
	if app.IsTerminal(s.Stdout) {
		theme = watch.NewDefaultTheme()
	}
	final, err := watch.Attach(ctx, url, *runID, theme, s.Stdout)
	if err != nil {
		fmt.Fprintf(s.Stderr, "watch: %v\n", err)
		return 1
	}
	switch {
	case final.Quit() || ctx.Err() != nil:
		return app.ExitInterrupted
	case final.Err() != nil:
		fmt.Fprintf(s.Stderr, "watch: %v\n", final.Err())
		return 1
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string, s app.Streams) int {
	fs := newFlagSet("version", s)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(s.Stderr, "Usage: portrun version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(s.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Fprintln(s.Stdout, string(data))
		return 0
	}

	fmt.Fprintf(s.Stdout, "portrun %s\n", info.Version)
	fmt.Fprintf(s.Stdout, "commit: %s\n", info.Commit)
	fmt.Fprintf(s.Stdout, "built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func runConfigNoun(args []string, s app.Streams) int {
	if len(args) < 1 {
		fmt.Fprintln(s.Stderr, "Usage: portrun config <hash-update|show|get|set>")
		return 1
	}

	switch args[0] {
	case "hash-update", "lock":
		return runConfigHashUpdate(args[1:], s)
	case "show":
		return runConfigShow(args[1:], s)
	case "get":
		return runConfigGet(args[1:], s)
	case "set":
		return runConfigSet(args[1:], s)
	default:
		fmt.Fprintf(s.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigHashUpdate(args []string, s app.Streams) int {
	fs := newFlagSet("hash-update", s)
	configPath := fs.String("config", "", "Path to configuration (default: discovered)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(s.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
	}

	manifest, err := config.GenerateChecksums(path)
	if err != nil {
		fmt.Fprintf(s.Stderr, "Failed to update checksums: %v\n", err)
		return 1
	}
	fmt.Fprintf(s.Stdout, "Updated checksums for %d file(s) next to %s\n", len(manifest.Hashes), path)
	return 0
}

func runConfigShow(args []string, s app.Streams) int {
	fs := newFlagSet("show", s)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	_, _ = s.Stdout.Write(out)
	return 0
}

func runConfigGet(args []string, s app.Streams) int {
	fs := newFlagSet("get", s)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(s.Stderr, "Usage: portrun config get PATH")
		return 1
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}

	switch v := val.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(s.Stderr, "config: %v\n", err)
			return 1
		}
		_, _ = s.Stdout.Write(out)
	default:
		fmt.Fprintln(s.Stdout, v)
	}
	return 0
}

func runConfigSet(args []string, s app.Streams) int {
	fs := newFlagSet("set", s)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(s.Stderr, "Usage: portrun config set PATH VALUE")
		return 1
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	if err := cfg.SetPath(fs.Arg(0), fs.Arg(1)); err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	fmt.Fprintf(s.Stdout, "%s = %s (%s)\n", fs.Arg(0), fs.Arg(1), cfg.SourcePath)
	return 0
}
