package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"github.com/vito/typhon/pkg/checker"
	"github.com/vito/typhon/pkg/ioctx"
	"github.com/vito/typhon/pkg/lsp"
)

// Config holds the application configuration
type Config struct {
	Debug      bool
	LSP        bool
	LSPLogFile string
	ConfigFile string
	Output     string
	DumpConfig bool
}

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "typhon [flags] [path...]",
		Short: "Static type checker for Python",
		Long: `Typhon evaluates the static types of Python programs and reports
type errors. Directories are searched for .py and .pyi files.`,
		Example: `  # Check a file
  typhon main.py

  # Check every file in a package
  typhon ./src

  # Emit diagnostics as JSON
  typhon --output json ./src

  # Run as a language server
  typhon --lsp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.LSP {
				return runLSP(cmd.Context(), cfg)
			}
			if len(args) == 0 && !cfg.DumpConfig {
				args = []string{"."}
			}
			return run(cmd.Context(), cfg, args)
		},
	}

	rootCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&cfg.LSP, "lsp", false, "Run in Language Server Protocol mode")
	rootCmd.Flags().StringVar(&cfg.LSPLogFile, "lsp-log-file", "", "Path to LSP log file (stderr if not specified)")
	rootCmd.Flags().StringVarP(&cfg.ConfigFile, "config", "c", "", "Path to typhon.toml or pyproject.toml (searched upward from the working directory if not specified)")
	rootCmd.Flags().StringVarP(&cfg.Output, "output", "o", "text", "Output format: text or json")
	rootCmd.Flags().BoolVar(&cfg.DumpConfig, "dump-config", false, "Print the effective configuration and exit")

	ctx := context.Background()
	ctx = ioctx.StdoutToContext(ctx, os.Stdout)
	ctx = ioctx.StderrToContext(ctx, os.Stderr)
	if err := fang.Execute(ctx, rootCmd,
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func setupLogging(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads the file named by --config, or searches upward from
// the working directory.
func loadConfig(cfg Config) (*checker.Config, error) {
	if cfg.ConfigFile != "" {
		return checker.LoadConfig(cfg.ConfigFile)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path, config, err := checker.FindConfig(cwd)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return checker.DefaultConfig(), nil
	}
	slog.Debug("found config", "path", path)
	return config, nil
}

func run(ctx context.Context, cfg Config, paths []string) error {
	setupLogging(ioctx.StderrFromContext(ctx), cfg.Debug)

	if cfg.Output != "text" && cfg.Output != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", cfg.Output)
	}

	config, err := loadConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	stdout := ioctx.StdoutFromContext(ctx)
	if cfg.DumpConfig {
		_, err := pretty.Fprintf(stdout, "%# v\n", config)
		return err
	}

	prog, err := checker.NewProgram(config)
	if err != nil {
		return err
	}
	if err := prog.AddFiles(ctx, paths); err != nil {
		return err
	}
	results, err := prog.CheckAll(ctx)
	if err != nil {
		return err
	}

	rep := newReport(prog, results)
	rep.color = useColor(stdout)
	if cfg.Output == "json" {
		if err := rep.WriteJSON(stdout); err != nil {
			return err
		}
	} else {
		rep.WriteText(stdout)
	}

	if n := rep.Count(checker.SeverityError); n > 0 {
		return fmt.Errorf("%d %s", n, plural(n, "error"))
	}
	return nil
}

// useColor reports whether w is a terminal that accepts ANSI styling.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func runLSP(ctx context.Context, cfg Config) error {
	var logDest io.Writer
	if cfg.LSPLogFile != "" {
		logFile, err := os.Create(cfg.LSPLogFile)
		if err != nil {
			return fmt.Errorf("open lsp log: %w", err)
		}
		defer logFile.Close() //nolint:errcheck
		logDest = logFile
	} else {
		logDest = ioctx.StderrFromContext(ctx)
	}

	logger := setupLogging(logDest, cfg.Debug)
	logger.InfoContext(ctx, "starting LSP server")

	handler := lsp.NewHandler(ctx)
	srv := jrpc2.NewServer(handler, &jrpc2.ServerOptions{
		AllowPush: true,
		Logger:    func(text string) { logger.Debug(text) },
	})

	// Store server reference in handler for callbacks
	handler.SetServer(srv)

	srv.Start(channel.LSP(stdrwc{}, stdrwc{}))

	logger.InfoContext(ctx, "LSP server closed", "error", srv.Wait())
	return nil
}

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
