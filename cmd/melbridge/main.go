package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melbridge/melbridge/internal/config"
	"github.com/melbridge/melbridge/internal/credstore"
	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/hub"
	"github.com/melbridge/melbridge/internal/logging"
	"github.com/melbridge/melbridge/internal/melcloud"
	"github.com/melbridge/melbridge/internal/server"
)

// notReadyRetryDelay spaces out bootstrap retries while the cloud service is
// unreachable or still warming up.
const notReadyRetryDelay = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("melbridge exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	f, err := connectFleet(ctx, cfg, store, log)
	if err != nil {
		if errors.Is(err, fleet.ErrAuthFailed) {
			return fmt.Errorf("melcloud rejected the configured credentials, check melcloud.email and melcloud.password: %w", err)
		}
		return err
	}
	log.Info("fleet connected", "devices", len(f.Devices()))

	willTopic := hub.BridgeAvailabilityTopic(cfg.MQTT.TopicPrefix)
	mqtt, err := hub.ConnectMQTT(cfg.MQTT, willTopic, log)
	if err != nil {
		return err
	}
	defer mqtt.Close(willTopic)

	bridge := hub.New(mqtt, f, hub.Options{
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		PollInterval:    cfg.PollInterval(),
	}, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(bridge.Collectors()...)
	registry.MustRegister(server.NewFleetCollector(f))

	srv := server.New(cfg.HTTP.Addr, registry, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx) }()
	go func() { errCh <- bridge.Run(ctx) }()

	err = <-errCh
	cancel()
	<-errCh

	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

// connectFleet resolves a session token and bootstraps the device fleet. A
// stored token that the cloud no longer accepts triggers one fresh login;
// transient unavailability is retried until the context is cancelled.
func connectFleet(ctx context.Context, cfg *config.Config, store credstore.Store, log *slog.Logger) (fleet.Fleet, error) {
	for {
		f, err := setupOnce(ctx, cfg, store, log)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fleet.ErrNotReady) {
			return nil, err
		}

		log.Warn("melcloud not ready, retrying", "delay", notReadyRetryDelay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(notReadyRetryDelay):
		}
	}
}

func setupOnce(ctx context.Context, cfg *config.Config, store credstore.Store, log *slog.Logger) (fleet.Fleet, error) {
	token, err := fleet.ResolveToken(ctx, store, cfg.MELCloud.Email, cfg.MELCloud.Password, nil)
	if err != nil {
		return nil, err
	}

	f, err := fleet.Setup(ctx, token, nil, log)
	if errors.Is(err, fleet.ErrAuthFailed) {
		// The stored session may simply have expired; one fresh login
		// separates that from genuinely bad credentials.
		log.Info("stored melcloud session rejected, logging in again")
		token, err = melcloud.Login(ctx, cfg.MELCloud.Email, cfg.MELCloud.Password, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fleet.ErrAuthFailed, err)
		}
		if err := persistToken(ctx, store, token); err != nil {
			return nil, err
		}
		f, err = fleet.Setup(ctx, token, nil, log)
	}
	return f, err
}

func persistToken(ctx context.Context, store credstore.Store, token string) error {
	data, err := credstore.EncodeState(credstore.State{Token: token})
	if err != nil {
		return err
	}
	return store.Save(ctx, data)
}

func newStore(cfg *config.Config) (credstore.Store, error) {
	if cfg.Blob != nil {
		return credstore.NewS3Store(credstore.S3Config{
			Endpoint:      cfg.Blob.Endpoint,
			Bucket:        cfg.Blob.Bucket,
			Prefix:        cfg.Blob.Prefix,
			Region:        cfg.Blob.Region,
			AccessKeyFile: cfg.Blob.AccessKeyFile,
			SecretKeyFile: cfg.Blob.SecretKeyFile,
		})
	}
	return &credstore.FileStore{Path: cfg.MELCloud.StatePath}, nil
}
