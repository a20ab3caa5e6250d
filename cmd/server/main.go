package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"presenced/internal/adapter"
	"presenced/internal/codec"
	"presenced/internal/config"
	"presenced/internal/handler"
	"presenced/internal/hub"
	"presenced/internal/logger"
	"presenced/internal/publisher"
	"presenced/internal/repository"
	"presenced/internal/repository/postgres"
	"presenced/internal/repository/sqlite"
	"presenced/internal/scheduler"
	"presenced/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	fs := pflag.NewFlagSet("presenced", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, cfgPath, err := loadConfig(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presenced: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(logConfig(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "presenced: invalid log config: %v\n", err)
		os.Exit(2)
	}
	log := logger.WithComponent("main")

	if cfgPath != "" {
		log.Info().Str("path", cfgPath).Msg("Loaded config")
	} else {
		log.Info().Msg("No config file found, using defaults")
	}
	log.Debug().Msg(cfg.Summary())

	if err := run(cfg, flags, log); err != nil {
		log.Error().Err(err).Msg("presenced stopped with error")
		os.Exit(1)
	}
}

func loadConfig(fs *pflag.FlagSet, flags *config.Flags) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if flags.ConfigPath != "" {
		cfg, path, err = config.LoadFromPath(flags.ConfigPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	if err := flags.Apply(fs, cfg); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// logConfig layers the config file's log section over the LOG_* environment
func logConfig(cfg *config.Config) logger.Config {
	lc := logger.DefaultConfig()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Output != "" {
		lc.Output = cfg.Log.Output
	}
	if cfg.Log.Debug {
		lc.Debug = true
	}
	return lc
}

func run(cfg *config.Config, flags *config.Flags, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close repository")
		}
	}()

	eventBus := service.NewEventBus()
	devicesSvc := service.NewDeviceService(repo, eventBus, cfg.UnassignedWindow.Duration(), logger.WithComponent("devices"))

	if flags.Import != "" {
		if err := importSeed(ctx, devicesSvc, flags.Import); err != nil {
			return err
		}
	}

	source, err := adapter.NewRegistry().Build(cfg, logger.WithComponent("source"))
	if err != nil {
		return fmt.Errorf("build station source: %w", err)
	}

	nc, err := publisher.Connect(publisher.ConnectOptions{
		URL:           cfg.NATS.URL,
		ClientName:    cfg.NATS.ClientName,
		ReconnectWait: cfg.NATS.ReconnectWait.Duration(),
	}, logger.WithComponent("nats"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer drain(nc, log)

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	pub := publisher.New(js, cfg.NATS.Stream, publisher.Topics{
		SpaceStatus: cfg.Topics.SpaceStatus,
		DeviceCount: cfg.Topics.DeviceCount,
		MemberCount: cfg.Topics.MemberCount,
		MemberNames: cfg.Topics.MemberNames,
	}, cfg.NATS.PublishTimeout.Duration(), logger.WithComponent("publisher"))

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, cfg.NATS.PublishTimeout.Duration())
	if err := pub.EnsureStream(ensureCtx); err != nil {
		log.Warn().Err(err).Str("stream", cfg.NATS.Stream).Msg("Stream not ready, retrying on first publish")
	}
	cancelEnsure()

	history := publisher.NewHistoryWriter(repo, logger.WithComponent("history"))

	presenceSvc := service.NewPresenceService(source, repo, pub, history, eventBus,
		cfg.AnonymousName, logger.WithComponent("presence"))

	sched, err := scheduler.New(presenceSvc, cfg.Interval.Duration(), nil, logger.WithComponent("scheduler"))
	if err != nil {
		return err
	}

	if flags.Once {
		report, err := sched.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("presence cycle: %w", err)
		}
		log.Info().
			Str("cycle_id", report.CycleID).
			Bool("space_occupied", report.Result.SpaceOccupied).
			Uint64("device_count", report.Result.DeviceCount).
			Uint64("member_count", report.Result.MemberCount).
			Msg("Single cycle complete")
		return nil
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	sseHub := hub.New(logger.WithComponent("hub"))
	go sseHub.Run(hubCtx)
	sseHub.Attach(hubCtx, eventBus)

	api := handler.NewAPIHandler(devicesSvc, presenceSvc, logger.WithComponent("http"))
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler.NewRouter(api, sseHub, logger.WithComponent("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// The in-flight cycle finishes before anything it depends on is closed
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown error")
	}
	<-schedDone

	cancelHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Uint64("cycles", sched.Cycles()).Uint64("failed", sched.Failures()).Msg("presenced stopped")
	return runErr
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		repo, err := postgres.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns, logger.WithComponent("postgres"))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return repo, nil
	default:
		repo, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Database.Path, err)
		}
		logger.Info().Str("path", cfg.Database.Path).Msg("Database opened")
		return repo, nil
	}
}

func importSeed(ctx context.Context, devices *service.DeviceService, path string) error {
	importer, err := codec.ForPath(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	parsed, err := importer.Parse(f)
	if err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}

	if _, err := devices.ImportDevices(ctx, parsed); err != nil {
		return fmt.Errorf("import seed %s: %w", path, err)
	}
	return nil
}

func drain(nc *nats.Conn, log zerolog.Logger) {
	if err := nc.Drain(); err != nil {
		log.Error().Err(err).Msg("NATS drain failed")
		nc.Close()
	}
}
