package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/agora/pkg/a2a/agentcard"
	"github.com/jllopis/agora/pkg/config"
	"github.com/jllopis/agora/pkg/discovery"
	"github.com/jllopis/agora/pkg/runtime"
	"github.com/jllopis/agora/pkg/telemetry"
)

const defaultURL = "http://localhost:10000"

var version = "dev"

type globalFlags struct {
	URL     string
	Timeout time.Duration
	JSON    bool
	Help    bool
}

// cli carries the global flags and output streams of one invocation.
type cli struct {
	flags globalFlags
	out   io.Writer
	err   io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err, false)
	}
	c := &cli{flags: global, out: os.Stdout, err: os.Stderr}
	if global.Help || len(args) == 0 {
		c.printUsage()
		return
	}
	if err := c.run(ctx, args); err != nil {
		fatal(err, global.JSON)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return c.runServe(ctx, rest)
	case "send":
		return c.runSend(ctx, rest)
	case "stream":
		return c.runStream(ctx, rest)
	case "get":
		return c.runGet(ctx, rest)
	case "cancel":
		return c.runCancel(ctx, rest)
	case "card":
		return c.runCard(ctx, rest)
	case "agents":
		return c.runAgents(ctx, rest)
	case "help":
		c.printUsage()
		return nil
	case "version":
		fmt.Fprintln(c.out, version)
		return nil
	}
	return NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", cmd))
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		URL:     getenv("AGORA_URL", defaultURL),
		Timeout: 60 * time.Second,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--url":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --url")
			}
			flags.URL = args[i+1]
			i++
		case strings.HasPrefix(arg, "--url="):
			flags.URL = strings.TrimPrefix(arg, "--url=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func (c *cli) runServe(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(c.err)
	configPath := cmd.String("config", getenv("AGORA_CONFIG", ""), "YAML config file")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return NewConfigError(err, *configPath)
	}
	logger := telemetry.ConfigureSlog(c.err, cfg.Log.Level, cfg.Log.Format,
		slog.String("agent", cfg.Agent.Name),
	)
	app, err := runtime.New(ctx, cfg, runtime.WithLogger(logger))
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

func (c *cli) runCard(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("card", flag.ContinueOnError)
	cmd.SetOutput(c.err)
	if err := cmd.Parse(args); err != nil {
		return err
	}
	baseURL := c.flags.URL
	if cmd.NArg() > 0 {
		baseURL = cmd.Arg(0)
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()

	card, err := agentcard.Fetch(ctx, nil, baseURL)
	if err != nil {
		return WrapRemoteError(err, baseURL)
	}
	if c.flags.JSON {
		return c.printJSON(card)
	}
	fmt.Fprintf(c.out, "Name:        %s\n", card.Name)
	fmt.Fprintf(c.out, "Version:     %s\n", normalizeCell(card.Version))
	fmt.Fprintf(c.out, "URL:         %s\n", card.URL)
	fmt.Fprintf(c.out, "Streaming:   %t\n", card.Capabilities.Streaming)
	fmt.Fprintf(c.out, "Description: %s\n", normalizeCell(card.Description))
	if len(card.Skills) == 0 {
		return nil
	}
	fmt.Fprintln(c.out)
	writer := c.newTabWriter()
	writeRow(writer, "SKILL", "TAGS", "DESCRIPTION")
	for _, skill := range card.Skills {
		writeRow(writer, skill.Name, strings.Join(skill.Tags, ","), skill.Description)
	}
	return writer.Flush()
}

type agentResult struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// runAgents resolves every remote agent the configuration names, the way a
// node would at startup.
func (c *cli) runAgents(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("agents", flag.ContinueOnError)
	cmd.SetOutput(c.err)
	configPath := cmd.String("config", getenv("AGORA_CONFIG", ""), "YAML config file")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return NewConfigError(err, *configPath)
	}

	providers := []discovery.Provider{discovery.NewConfigProvider(cfg.Registry)}
	if cfg.Registry.File != "" {
		file, err := discovery.NewFileProvider(cfg.Registry.File)
		if err != nil {
			return NewConfigError(err, cfg.Registry.File)
		}
		providers = append(providers, file)
	}
	resolver, err := discovery.NewResolver(providers...)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()
	endpoints, err := resolver.Resolve(ctx)
	if err != nil {
		return NewConfigError(err, *configPath)
	}
	registry, err := agentcard.NewRegistry(nil, discovery.ToEntries(endpoints),
		agentcard.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return err
	}

	known, failed := registry.ListKnownDetailed(ctx)
	results := make([]agentResult, 0, len(endpoints))
	for _, k := range known {
		results = append(results, agentResult{Name: k.Entry.Name, URL: k.Card.URL, Description: k.Card.Description})
	}
	for _, entry := range registry.Entries() {
		key := entry.Name
		if key == "" {
			key = entry.URL
		}
		if ferr, ok := failed[key]; ok {
			results = append(results, agentResult{Name: entry.Name, URL: entry.URL, Error: ferr.Error()})
		}
	}

	if c.flags.JSON {
		return c.printJSON(results)
	}
	writer := c.newTabWriter()
	writeRow(writer, "NAME", "URL", "DESCRIPTION")
	for _, res := range results {
		if res.Error != "" {
			writeRow(writer, "ERROR", res.URL, res.Error)
			continue
		}
		writeRow(writer, res.Name, res.URL, res.Description)
	}
	return writer.Flush()
}

func (c *cli) printUsage() {
	fmt.Fprint(c.out, `agora: A2A agent runtime

Usage:
  agora [global flags] <command> [args]

Global flags:
  --url <url>          Agent base URL (default http://localhost:10000, env AGORA_URL)
  --timeout <dur>      Request timeout (default 60s)
  --json               JSON output

Commands:
  serve [-config <path>]
  send [-session <id>] [-task <id>] <text>
  stream [-session <id>] [-task <id>] <text>
  get [-history N] <task_id>
  cancel <task_id>
  card [url]
  agents [-config <path>]
  version
`)
}

func (c *cli) printJSON(value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(payload))
	return err
}

func (c *cli) newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func fatal(err error, asJSON bool) {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cliErr.PrintError(os.Stderr, asJSON)
	} else {
		PrintSimpleError(os.Stderr, err, asJSON)
	}
	os.Exit(1)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func writeJSONLine(w io.Writer, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}
