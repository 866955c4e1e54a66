package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/automark/internal/api"
	"github.com/pavelanni/automark/internal/fixture"
	"github.com/pavelanni/automark/internal/marker"
	"github.com/pavelanni/automark/internal/scheme"
	"github.com/pavelanni/automark/internal/store"
	"github.com/pavelanni/automark/internal/strategy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "automark",
		Short: "Automated marking for exams hosted on an exam service",
	}

	run := runCmd()
	root.AddCommand(run, auditCmd(), serveCmd())

	// Make "run" the default when no subcommand is given.
	root.RunE = run.RunE
	root.Args = run.Args

	// Register run flags on root so bare `automark <root-url>` still works.
	root.Flags().AddFlagSet(run.Flags())

	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <root-url>",
		Short: "Mark every unmarked section of an exam",
		Args:  cobra.ExactArgs(1),
		RunE:  runMark,
	}
	f := cmd.Flags()
	f.StringP("strategy", "s", strategy.NameNoAnswer, "Scoring strategy (no-answer, exact, choice, keyword, llm)")
	f.String("scheme", "", "Path to the mark scheme JSON file")
	f.String("on-error", string(marker.PolicyAbort), "Reaction to exam service errors (abort, continue)")
	f.Bool("dry-run", false, "Evaluate every section but do not post any marks")
	f.String("audit-db", "automark.db", "SQLite audit database path (empty disables auditing)")
	f.Duration("timeout", 30*time.Second, "Per-request HTTP timeout")
	f.String("api-username", "", "Exam service username (or set AUTOMARK_API_USERNAME)")
	f.String("api-password", "", "Exam service password (or set AUTOMARK_API_PASSWORD)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL (llm strategy)")
	f.String("llm-key", "ollama", "API key for the LLM endpoint")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Export recorded marking runs as JSON",
		RunE:  runAudit,
	}
	f := cmd.Flags()
	f.String("audit-db", "automark.db", "SQLite audit database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a stub exam service from a fixture file",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("fixture", "fixtures/exam.json", "Path to the exam fixture JSON file")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("automark")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/automark")
	v.AddConfigPath("/etc/automark")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runMark(cmd *cobra.Command, args []string) error {
	// Credentials commonly live in a .env next to the exam's scripts.
	_ = godotenv.Load()

	setupLogging(cmd)
	v := viperForCmd(cmd)

	rootURL := args[0]
	username := v.GetString("api-username")
	password := v.GetString("api-password")
	if username == "" || password == "" {
		return fmt.Errorf("exam service credentials are required: set --api-username/--api-password or AUTOMARK_API_USERNAME/AUTOMARK_API_PASSWORD")
	}

	policy := v.GetString("on-error")
	if !marker.ValidPolicy(policy) {
		return fmt.Errorf("invalid --on-error value %q (want abort or continue)", policy)
	}

	strategyName := v.GetString("strategy")
	var sch *scheme.Scheme
	if schemePath := v.GetString("scheme"); schemePath != "" {
		var err error
		sch, err = scheme.Load(schemePath)
		if err != nil {
			return fmt.Errorf("load mark scheme: %w", err)
		}
	}

	var grader *strategy.Grader
	if strategyName == strategy.NameLLM {
		grader = strategy.NewGrader(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
		)
	}

	strat, err := strategy.New(strategyName, sch, grader)
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	client, err := api.New(api.Config{
		RootURL:  rootURL,
		Username: username,
		Password: password,
		Timeout:  v.GetDuration("timeout"),
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	opts := marker.Options{
		Policy: marker.Policy(policy),
		DryRun: v.GetBool("dry-run"),
	}

	var runID int64
	var auditStore *store.Store
	if dbPath := v.GetString("audit-db"); dbPath != "" {
		auditStore, err = store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer auditStore.Close()

		runID, err = auditStore.BeginRun(rootURL, strategyName, opts.DryRun)
		if err != nil {
			return fmt.Errorf("record run start: %w", err)
		}
		opts.Recorder = auditStore.RunRecorder(runID)
	}

	runner := marker.NewRunner(client, strat, opts)
	summary, runErr := runner.Run(cmd.Context())

	if auditStore != nil {
		if err := auditStore.FinishRun(runID, summary); err != nil {
			slog.Warn("record run finish failed", "error", err)
		}
	}
	return runErr
}

func runAudit(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	auditStore, err := store.New(v.GetString("audit-db"))
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer auditStore.Close()

	export, err := auditStore.ExportAll()
	if err != nil {
		return fmt.Errorf("export runs: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	f, err := fixture.Load(v.GetString("fixture"))
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	srv := fixture.NewServer(f)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	srv.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting stub exam service",
		"addr", addr,
		"students", len(f.Students),
		"questions", len(f.Questions),
	)
	return http.ListenAndServe(addr, r)
}
