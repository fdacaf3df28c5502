package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/api"
	"github.com/hmflow/gprs-puller/internal/auth"
	"github.com/hmflow/gprs-puller/internal/command"
	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/internal/integration"
	"github.com/hmflow/gprs-puller/internal/server"
	"github.com/hmflow/gprs-puller/internal/session"
	"github.com/hmflow/gprs-puller/internal/storage"
	"github.com/hmflow/gprs-puller/pkg/crypto"
)

func main() {
	// Command line flags
	var (
		configFile   string
		validateOnly bool
		showConfig   bool
		issueToken   string
		hashPassword string
	)
	flag.StringVar(&configFile, "config", "config/puller.yml", "Configuration file path")
	flag.BoolVar(&validateOnly, "validate", false, "Validate the configuration and exit")
	flag.BoolVar(&showConfig, "show-config", false, "Print the effective configuration and exit")
	flag.StringVar(&issueToken, "issue-token", "", "Print an API token pair for the given operator and exit")
	flag.StringVar(&hashPassword, "hash-password", "", "Print a bcrypt hash for api.operators and exit")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if hashPassword != "" {
		hash, err := crypto.HashPassword(hashPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if validateOnly {
		fmt.Println("Configuration is valid")
		return
	}
	if showConfig {
		cfg.PrintConfigSummary()
		return
	}
	if issueToken != "" {
		access, refresh, err := auth.NewJWTManager(&cfg.JWT).GenerateTokenPair(issueToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Printf("access_token:  %s\nrefresh_token: %s\n", access, refresh)
		return
	}

	setupLogging(cfg.Log)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	store, err := storage.Open(ctx, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	log.Info().Msg("Connected to database")

	registry := session.NewRegistry()
	queue := command.NewQueue(command.DefaultQueueLimit)
	dispatcher := command.NewDispatcher(queue, registry)
	publishers := integration.NewMulti()
	defer publishers.Close()

	// WaitGroup for services
	var wg sync.WaitGroup

	// Optional: NATS for telemetry, status and commands
	if cfg.NATS.Enabled {
		nc, err := connectNATS(cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("Connected to NATS")

			publishers.Add("nats", integration.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))

			subscriber := command.NewNATSSubscriber(nc, dispatcher, cfg.NATS.SubjectPrefix)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("NATS subscriber stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Optional: MQTT forwarder
	if cfg.MQTT.Enabled {
		fwd, err := integration.NewMQTTForwarder(&cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MQTT broker, continuing without MQTT")
		} else {
			publishers.Add("mqtt", fwd)
		}
	}

	// Optional: Redis pub/sub
	if cfg.Redis.Enabled {
		rp, err := integration.NewRedisPublisher(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, continuing without Redis")
		} else {
			publishers.Add("redis", rp)
		}
	}

	var publisher session.Publisher
	if publishers.Len() > 0 {
		publisher = publishers
	}

	// Device listener
	listener, err := server.NewListener(cfg, store, registry, queue, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start device listener")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Device listener stopped")
		}
	}()

	// Optional: REST API
	var apiServer *api.RESTServer
	if cfg.API.Enabled {
		apiServer = api.NewRESTServer(cfg, store, registry, dispatcher)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.ListenAndServe(cfg.API.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("REST API server failed")
				cancel()
			}
		}()
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case <-ctx.Done():
	}

	// Cancel context
	cancel()

	// Shutdown API server
	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
		}
		done()
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Puller stopped")
}

// setupLogging applies log.level and log.format
func setupLogging(cfg config.LogConfig) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.Format == "json" {
		out = os.Stderr
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func connectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	log.Info().Str("url", cfg.URL).Msg("Connecting to NATS...")

	return nats.Connect(cfg.URL,
		nats.Name(cfg.ClientID),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	)
}
