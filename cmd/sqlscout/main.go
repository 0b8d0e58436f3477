// ABOUTME: CLI entrypoint for sqlscout with one-shot, server, TUI, and schema-dump modes.
// ABOUTME: Wires together the schema graph, safety validator, rate limiter, reasoning client, and orchestrator.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/sqlscout/config"
	"github.com/2389-research/sqlscout/dbexec"
	"github.com/2389-research/sqlscout/llm"
	"github.com/2389-research/sqlscout/pipeline"
	"github.com/2389-research/sqlscout/ratelimit"
	"github.com/2389-research/sqlscout/safety"
	"github.com/2389-research/sqlscout/schema"
	"github.com/2389-research/sqlscout/server"
	"github.com/2389-research/sqlscout/tui"
)

var version = "dev"

// cliFlags holds command-line configuration before merging with the config file.
type cliFlags struct {
	serveMode   bool
	tuiMode     bool
	schemaMode  bool
	configPath  string
	dbPath      string
	model       string
	baseURL     string
	verbose     bool
	showVersion bool
	question    string
}

func main() {
	loadDotEnv(".env")

	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("sqlscout %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(flags))
}

func parseFlags() cliFlags {
	var flags cliFlags

	fs := flag.NewFlagSet("sqlscout", flag.ContinueOnError)
	fs.BoolVar(&flags.serveMode, "serve", false, "Start HTTP server mode")
	fs.BoolVar(&flags.tuiMode, "tui", false, "Run the interactive terminal UI")
	fs.BoolVar(&flags.schemaMode, "schema", false, "Print the introspected schema and exit")
	fs.StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&flags.dbPath, "db", "", "Path to the SQLite database")
	fs.StringVar(&flags.model, "model", "", "Reasoning model name")
	fs.StringVar(&flags.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	fs.BoolVar(&flags.verbose, "verbose", false, "Print the full audit trace")
	fs.BoolVar(&flags.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() { printHelp(os.Stderr) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		flags.question = fs.Arg(0)
	}
	return flags
}

func printHelp(w *os.File) {
	fmt.Fprintf(w, `sqlscout — ask a SQLite database questions in plain language

Usage:
  sqlscout [flags] "question"     one-shot query
  sqlscout -tui                   interactive terminal UI
  sqlscout -serve                 HTTP server (POST /api/query)
  sqlscout -schema                print the introspected schema

Flags:
  -db PATH        SQLite database (or SQLSCOUT_DB)
  -config PATH    YAML config file
  -model NAME     reasoning model (default gpt-4o-mini)
  -base-url URL   OpenAI-compatible endpoint
  -verbose        print the full audit trace
  -version        print version and exit

OPENAI_API_KEY must be set for any mode that reaches the reasoning backend.
`)
}

// run dispatches to the selected mode. Returns the process exit code.
func run(flags cliFlags) int {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if flags.dbPath != "" {
		cfg.DatabasePath = flags.dbPath
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}

	if cfg.DatabasePath == "" {
		fmt.Fprintln(os.Stderr, "error: no database; pass -db or set SQLSCOUT_DB")
		return 1
	}

	if flags.schemaMode {
		return runSchema(cfg)
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: OPENAI_API_KEY is not set")
		return 1
	}

	switch {
	case flags.serveMode:
		return runServe(cfg)
	case flags.tuiMode:
		return runTUI(cfg)
	case flags.question != "":
		return runOneShot(cfg, flags)
	default:
		printHelp(os.Stderr)
		return 0
	}
}

// openDatabase opens the configured SQLite file read-only and builds the
// schema graph. Introspection failure is fatal: the pipeline refuses to run
// without a live schema.
func openDatabase(cfg *config.Config) (*sql.DB, *schema.Graph, error) {
	db, err := sql.Open("sqlite3", "file:"+cfg.DatabasePath+"?mode=ro")
	if err != nil {
		return nil, nil, err
	}
	graph, err := schema.Build(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, graph, nil
}

// buildOrchestrator assembles the full pipeline from configuration.
func buildOrchestrator(cfg *config.Config, db *sql.DB, graph *schema.Graph, handler pipeline.EventHandler) *pipeline.Orchestrator {
	var providerOpts []llm.OpenAIOption
	if cfg.BaseURL != "" {
		providerOpts = append(providerOpts, llm.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		providerOpts = append(providerOpts, llm.WithModel(cfg.Model))
	}
	provider := llm.NewOpenAIAdapter(cfg.APIKey, providerOpts...)
	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitCount)

	return pipeline.New(pipeline.Config{
		Graph:          graph,
		Validator:      safety.New(graph, cfg.ForbiddenKeywords, cfg.RowLimitCap),
		Client:         llm.NewBatchClient(provider, limiter, cfg.ReasoningTimeout),
		Executor:       dbexec.New(db, cfg.StatementTimeout, cfg.RowLimitCap),
		MaxRetries:     cfg.MaxRetries,
		SampleRowCount: cfg.SampleRowCount,
		EventHandler:   handler,
	})
}

func runSchema(cfg *config.Config) int {
	db, graph, err := openDatabase(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer db.Close()
	fmt.Println(graph.Describe())
	return 0
}

func runOneShot(cfg *config.Config, flags cliFlags) int {
	var handler pipeline.EventHandler
	if flags.verbose {
		handler = func(evt pipeline.Event) {
			fmt.Fprintf(os.Stderr, "[%s] %s %s\n", evt.Timestamp.Format("15:04:05"), evt.Type, evt.Stage)
		}
	}

	db, graph, err := openDatabase(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer db.Close()

	orch := buildOrchestrator(cfg, db, graph, handler)
	resp := orch.Run(context.Background(), flags.question)

	fmt.Println(resp.Answer)
	if resp.Success && resp.SQLUsed != "" {
		fmt.Printf("\nSQL: %s\n", resp.SQLUsed)
		fmt.Printf("Rows: %d\n", resp.RowCount)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if flags.verbose {
		fmt.Fprintf(os.Stderr, "\n%s", resp.Trace.Render())
	}

	if resp.Trace.FinalStatus == pipeline.StatusSuccess {
		return 0
	}
	return 1
}

func runServe(cfg *config.Config) int {
	db, graph, err := openDatabase(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer db.Close()

	orch := buildOrchestrator(cfg, db, graph, func(evt pipeline.Event) {
		fmt.Fprintf(os.Stderr, "[%s] %s query=%s %s\n",
			evt.Timestamp.Format("15:04:05"), evt.Type, evt.QueryID, evt.Stage)
	})

	var opts []server.Option
	if cfg.AuthToken != "" {
		opts = append(opts, server.WithAuthToken(cfg.AuthToken))
	}
	srv := server.NewServer(orch, opts...)

	httpSrv := &http.Server{
		Addr:              cfg.Bind,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	fmt.Fprintf(os.Stderr, "sqlscout listening on %s (%d tables)\n", cfg.Bind, len(graph.Tables()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return 0
}

func runTUI(cfg *config.Config) int {
	db, graph, err := openDatabase(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer db.Close()

	fw := &tui.Forwarder{}
	orch := buildOrchestrator(cfg, db, graph, fw.HandleEvent)

	if err := tui.Run(context.Background(), orch, fw); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
