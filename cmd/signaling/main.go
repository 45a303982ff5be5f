package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mossy-p/classroom-signaling/config"
	"github.com/mossy-p/classroom-signaling/internal/handlers"
	"github.com/mossy-p/classroom-signaling/internal/hub"
	"github.com/mossy-p/classroom-signaling/internal/redis"
	"github.com/mossy-p/classroom-signaling/internal/signaling"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "signaling",
		Short:         "WebRTC signaling relay for teacher/student rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, v, configFile); err != nil {
				log.Error().Err(err).Msg("server failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	cmd.Flags().Int("port", 4000, "listening port")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))

	return cmd
}

// setupLogger installs the global logger: console output for development,
// JSON lines in production.
func setupLogger(w io.Writer, level string, production bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if production {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(ctx context.Context, v *viper.Viper, configFile string) error {
	setupLogger(os.Stderr, "info", false)

	cfg, loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg.LogLevel, cfg.IsProduction())
	if loaded != "" {
		log.Info().Str("file", loaded).Msg("loaded config")
	} else {
		log.Info().Msg("config file not found, using defaults and environment")
	}

	h := hub.New(hub.Options{
		ReadLimit:  cfg.WS.ReadLimit,
		WriteWait:  cfg.WS.WriteWait,
		PongWait:   cfg.WS.PongWait,
		PingPeriod: cfg.WS.PingPeriod,
		SendBuffer: cfg.WS.SendBuffer,
	})

	var opts []signaling.Option
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		log.Info().Str("host", cfg.Redis.Host).Msg("Redis connection established")

		presence := redis.NewPresence(client, cfg.Redis.TTL, 0)
		go presence.Run(ctx)
		opts = append(opts, signaling.WithPresence(presence))
	}

	coord := signaling.NewCoordinator(h, opts...)
	router := handlers.NewRouter(cfg, h, coord)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("environment", cfg.Environment).Msg("Signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
