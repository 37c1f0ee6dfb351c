package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxclone/voxclone/internal/api"
	"github.com/voxclone/voxclone/internal/audio"
	"github.com/voxclone/voxclone/internal/config"
	"github.com/voxclone/voxclone/internal/objectstore"
	"github.com/voxclone/voxclone/internal/process"
	"github.com/voxclone/voxclone/internal/reference"
	"github.com/voxclone/voxclone/internal/synth"
	"github.com/voxclone/voxclone/internal/workspace"
)

const shutdownTimeout = 30 * time.Second

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("listen", cfg.Server.Listen).
		Str("references", cfg.Storage.ReferencesDir()).
		Str("outputs", cfg.Storage.OutputsDir()).
		Str("model", cfg.Model.Command).
		Str("log_level", cfg.Logging.Level).
		Msg("Starting voxclone server")

	checkExecutables(cfg, logger)

	handler, cleanup := newApp(cfg, logger)
	defer cleanup()

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Listen).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// newApp wires the core components behind the HTTP router. The returned
// cleanup closes the output mirror, if one was connected.
func newApp(cfg *config.Config, logger zerolog.Logger) (http.Handler, func()) {
	runner := process.NewExecRunner(logger)
	normalizer := audio.NewNormalizer(runner, cfg.Transcoder.Path, logger)
	references := reference.NewStore(cfg.Storage.ReferencesDir(), normalizer, logger)
	workspaces := workspace.NewManager(cfg.Storage.Workspace, logger)

	orchestrator := synth.New(synth.Config{
		OutputDir:       cfg.Storage.OutputsDir(),
		ModelCommand:    cfg.Model.Command,
		ModelArgs:       cfg.Model.Args,
		DefaultLanguage: cfg.Model.DefaultLanguage,
	}, references, normalizer, runner, workspaces, logger)

	cleanup := func() {}
	if cfg.Mirror.Enabled() {
		mirror, err := objectstore.Connect(cfg.Mirror.NATSURL, cfg.Mirror.Bucket)
		if err != nil {
			logger.Warn().Err(err).Str("nats_url", cfg.Mirror.NATSURL).Msg("Output mirror unavailable - artifacts stay local only")
		} else {
			logger.Info().Str("bucket", cfg.Mirror.Bucket).Msg("Mirroring outputs to NATS object store")
			orchestrator.SetMirror(mirror)
			cleanup = func() {
				if err := mirror.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close output mirror")
				}
			}
		}
	}

	return api.NewRouter(cfg, references, orchestrator, api.NewMetrics(), logger), cleanup
}

// checkExecutables warns about a missing transcoder or model; the server
// still starts so references can be listed.
func checkExecutables(cfg *config.Config, logger zerolog.Logger) {
	for _, bin := range []string{cfg.Transcoder.Path, cfg.Model.Command} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Err(err).Str("executable", bin).Msg("Executable not found - synthesis will fail")
		}
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Model args are whitespace separated in the environment, as in a shell.
	if env := os.Getenv("VOX_MODEL_ARGS"); env != "" && !flagChanged(cmd, "model-args") {
		cfg.Model.Args = strings.Fields(env)
	}

	defaults := config.Default()
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = defaults.Storage.Root
	}
	if cfg.Transcoder.Path == "" {
		cfg.Transcoder.Path = defaults.Transcoder.Path
	}
	if cfg.Model.Command == "" {
		cfg.Model.Command = defaults.Model.Command
	}
	if cfg.Model.DefaultLanguage == "" {
		cfg.Model.DefaultLanguage = defaults.Model.DefaultLanguage
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
