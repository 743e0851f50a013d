package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"example.com/tweetgraph/cmd/server"
	appkafka "example.com/tweetgraph/internal/broker"
	config "example.com/tweetgraph/internal/init"
	"example.com/tweetgraph/internal/logger"
	"example.com/tweetgraph/internal/social"
	"example.com/tweetgraph/internal/store"
	"example.com/tweetgraph/internal/validation"
)

var logg = logger.New()

// openStore is replaced in tests.
var openStore = store.New

func main() {
	// Initialize application configuration
	cfg := config.Init()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx, cfg)
	stop()
	if err != nil {
		logg.Error("main", "Exiting with error", err)
		os.Exit(1)
	}
	logg.Info("main", "Shutdown completed")
}

// run executes the configured mode. Everything it opens is closed before it
// returns, on failure too.
func run(ctx context.Context, cfg *config.Config) error {
	switch cfg.Mode {
	case "migrate":
		// Apply the store schema and exit
		if err := store.Migrate(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logg.Info("main", "Migration completed for store driver "+cfg.StoreDriver)
		return nil
	case "server":
	default:
		return fmt.Errorf("unknown mode %q: must be server or migrate", cfg.Mode)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("store connection failed: %w", err)
	}
	defer st.Close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("kafka writer init failed: %w", err)
	}
	defer publisher.Close()

	svc := social.New(st,
		social.WithPublisher(publisher),
		social.WithValidator(validation.New(cfg.Locale)),
	)

	return server.Run(ctx, svc, server.Options{
		Addr:        cfg.ServerAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenTTL:    cfg.TokenTTL,
	})
}

// newPublisher sends domain events to Kafka when a broker is configured and
// drops them otherwise.
func newPublisher(cfg *config.Config) (appkafka.Publisher, error) {
	if cfg.KafkaBroker == "" {
		logg.Info("main", "KAFKA_BROKER not set, domain events are not published")
		return appkafka.NopPublisher{}, nil
	}

	var brokers []string
	for _, b := range strings.Split(cfg.KafkaBroker, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	writer, err := appkafka.NewKafkaWriter(appkafka.KafkaConfig{
		Brokers:      brokers,
		Topic:        cfg.KafkaTopic,
		WriteTimeout: cfg.KafkaWriteTO,
	})
	if err != nil {
		return nil, err
	}
	return appkafka.NewKafkaPublisher(writer), nil
}
