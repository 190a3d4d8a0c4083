// Command repospanner-client reads references and objects of a git
// repository whose storage is served by repoSpanner.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/wolfeidau/repospanner/client"
	"github.com/wolfeidau/repospanner/repository"
	"github.com/wolfeidau/repospanner/telemetry"
)

var version = "dev"

// CLI is the command line of repospanner-client.
type CLI struct {
	GitDir       string `name:"git-dir" help:"Path to the git directory." default:".git" env:"GIT_DIR" type:"path"`
	LogLevel     string `help:"Log level (debug, info, warn, error)." default:"warn" enum:"debug,info,warn,error"`
	LogFormat    string `help:"Log format (text, json)." default:"text" enum:"text,json"`
	MetricsAddr  string `help:"Serve Prometheus metrics on this address while the command runs."`
	OTLPEndpoint string `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics export."`

	ShowRef  ShowRefCmd  `cmd:"" help:"List references, optionally filtered by a glob."`
	RevParse RevParseCmd `cmd:"" help:"Print the object id a reference points at."`
	CatFile  CatFileCmd  `cmd:"" help:"Print the type, size or content of an object."`
	Exists   ExistsCmd   `cmd:"" help:"Exit 0 if the server has the object, 1 if not."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

// Globals is bound into every command's Run method.
type Globals struct {
	Ctx    context.Context
	Logger *slog.Logger
	Stdout io.Writer
	open   func() (*repository.Repository, error)
}

// Open opens the repository named by --git-dir.
func (g *Globals) Open() (*repository.Repository, error) {
	return g.open()
}

// exitError carries a process exit status without printing an error.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("repospanner-client"),
		kong.Description("Read references and objects from a repoSpanner-backed repository."),
		kong.UsageOnError(),
	)

	if err := run(kctx, &cli); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	logger, err := newLogger(os.Stderr, cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "repospanner-client",
		ServiceVersion:   version,
		OTLPEndpoint:     cli.OTLPEndpoint,
		EnablePrometheus: cli.MetricsAddr != "",
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	if cli.MetricsAddr != "" {
		srv, err := serveMetrics(cli.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
	}

	reg := client.NewRegistry(client.WithLogger(logger))
	g := &Globals{
		Ctx:    ctx,
		Logger: logger,
		Stdout: os.Stdout,
		open: func() (*repository.Repository, error) {
			return repository.Open(ctx, reg, cli.GitDir, repository.WithLogger(logger))
		},
	}

	return kctx.Run(g)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

func serveMetrics(addr string, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.PrometheusHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", ln.Addr().String())

	return srv, nil
}
