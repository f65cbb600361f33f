package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/rendezvous/internal/events"
	"github.com/Sh00ty/rendezvous/internal/metrics"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/resolver"
	"github.com/Sh00ty/rendezvous/internal/session"
	"github.com/Sh00ty/rendezvous/internal/transport/tcp"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	appCfg := Config{}
	err = envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	err = run(ctx, appCfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("group formation failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	identity := models.WorkerIdentity{
		ID:           models.WorkerID(cfg.WorkerID),
		TotalWorkers: cfg.TotalWorkers,
	}
	if err := identity.Validate(); err != nil {
		return err
	}
	logger := log.Logger.With().Int("worker", cfg.WorkerID).Logger()
	logger.Info().Msgf("hello from worker %s, backend %s", identity, cfg.DiscoveryBackend)

	backend, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	var m metrics.Metrics = metrics.Nop{}
	if cfg.StatsdAddr != "" {
		statsd := metrics.NewStatsd(identity.ID, "", cfg.StatsdAddr)
		defer func() {
			_ = statsd.Close()
		}()
		m = statsd
	}

	notifier := events.NewNotifier(64)
	var sink events.Sink = events.NewLogSink(logger)
	if cfg.EventsKafkaAddr != "" {
		kafkaSink := events.NewKafkaSink(cfg.EventsKafkaAddr, cfg.EventsKafkaTopic)
		defer func() {
			_ = kafkaSink.Close()
		}()
		sink = kafkaSink
	}
	sender := events.NewSender(notifier, sink, cfg.EventsRetry, logger)
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		sender.Run(context.WithoutCancel(ctx))
	}()
	defer func() {
		notifier.Close()
		<-senderDone
	}()

	sess, err := session.New(
		identity,
		cfg.Session,
		backend,
		tcp.New(cfg.Transport, logger),
		resolver.New(backend, cfg.Resolver, logger),
		session.WithMetrics(m),
		session.WithNotifier(notifier),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	group, err := sess.Run(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err := group.Close()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to close group")
		}
	}()

	if cfg.HoldAfterComplete > 0 {
		logger.Info().Msgf("holding the group for %s", cfg.HoldAfterComplete)
		select {
		case <-ctx.Done():
		case <-time.After(cfg.HoldAfterComplete):
		}
	}
	logger.Info().Msgf("bye from rank %d of %d", group.Rank(), group.Size())
	return nil
}
