// Package main contains the entrypoint for the IRC relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgard/ircrelay/internal/bot"
	"github.com/edgard/ircrelay/internal/bot/handlers"
	"github.com/edgard/ircrelay/internal/bot/tasks"
	"github.com/edgard/ircrelay/internal/completion"
	"github.com/edgard/ircrelay/internal/config"
	"github.com/edgard/ircrelay/internal/history"
	"github.com/edgard/ircrelay/internal/irc"
	"github.com/edgard/ircrelay/internal/logger"
	"github.com/edgard/ircrelay/internal/outbound"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := execute(ctx, os.Args[1:], os.Stdout)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, out io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "ircrelay",
		Short:         "IRC chat relay backed by a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults to ./config.yaml when present)")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to the network and relay messages (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	})
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, slog.Default())
			if err != nil {
				slog.Error("Configuration is invalid", "path", configPath, "error", err)
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %s:%d as %s, %d channel(s), backend %s (%s)\n",
				cfg.IRC.Server, cfg.IRC.Port, cfg.IRC.Nickname, len(cfg.IRC.Channels), cfg.Completion.Backend, cfg.Completion.Model)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	})

	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file holding every default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 && args[0] != "" {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists: %s", path)
			}

			body, err := yaml.Marshal(config.Template())
			if err != nil {
				return fmt.Errorf("encode config template: %w", err)
			}
			if err := os.WriteFile(path, body, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func versionString() string {
	return "ircrelay " + version
}

// run initializes all components (config, logger, history, completion,
// session, supervisor, scheduler), blocks until ctx is canceled or the
// supervisor gives up, and reports whether the relay stopped cleanly.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath, slog.Default())
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return err
	}

	out, closeOut, err := logger.OpenOutput(cfg.Log.File)
	if err != nil {
		slog.Error("Failed to open log file", "path", cfg.Log.File, "error", err)
		return err
	}
	defer func() { _ = closeOut() }()

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json", out)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format, "file", cfg.Log.File)

	store := history.New(cfg.Completion.ContextMessages)

	backend, err := completion.NewBackend(ctx, cfg.Completion, &http.Client{})
	if err != nil {
		log.Error("Failed to initialize completion backend", "backend", cfg.Completion.Backend, "error", err)
		return err
	}
	completer := completion.NewClient(cfg.Completion, backend, store, log)

	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Completion: completer,
		Outbound:   outbound.New(cfg.Bot.MessageRateLimitDelay, outbound.WithLogger(log)),
		Clock:      clockwork.NewRealClock(),
		Version:    versionString(),
	}
	session := handlers.NewSession(hDeps, logger.Middleware(log))
	supervisor := bot.NewSupervisor(cfg, irc.NetDialer{Logger: log}, session, log)

	tDeps := tasks.TaskDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Connection: supervisor,
		Breaker:    completer,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}

	app := bot.NewBot(log, supervisor, sched)

	log.Info("Starting relay...", "version", version, "backend", backend.Name(), "model", cfg.Completion.Model)
	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Relay stopped due to error", "error", runErr)
		return runErr
	}

	log.Info("Relay stopped gracefully.")
	return nil
}
