package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"educenter-server/internal/audience"
	"educenter-server/internal/channels"
	kafkaClient "educenter-server/internal/clients/kafka"
	"educenter-server/internal/clients/mail"
	redisClient "educenter-server/internal/clients/redis"
	"educenter-server/internal/config"
	"educenter-server/internal/engagement"
	"educenter-server/internal/events"
	"educenter-server/internal/observability"
	"educenter-server/internal/store"
	"educenter-server/internal/workers"
	"educenter-server/internal/workers/dispatch"

	"github.com/joho/godotenv"
)

func main() {
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			log.Printf("Warning: env.local file not found: %v", err)
		}
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	logger.Info(ctx, "Starting campaign worker...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(ctx, "failed to load configuration", err)
	}

	dataStore, err := store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize store", err)
	}

	redisCli, err := redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize redis client", err)
	}
	defer redisCli.Close()

	registry, err := buildChannelRegistry(ctx, cfg, &dataStore, logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize channel senders", err)
	}

	resolver := audience.NewResolver(&dataStore, logger)
	dispatchProc := dispatch.NewProcessor(&dataStore, resolver, registry, redisCli, cfg.Dispatch, logger)
	engagementProc := engagement.NewProcessor(&dataStore, logger)

	brokerList := strings.Split(cfg.Kafka.Brokers, ",")

	dispatchConsumer := workers.NewConsumer(workers.ConsumerConfig{
		Brokers:       brokerList,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		Topic:         cfg.Kafka.DispatchTopic,
		NumWorkers:    cfg.WorkerPool.DispatchWorkers,
	}, dispatchProc, logger)

	engagementConsumer := workers.NewConsumer(workers.ConsumerConfig{
		Brokers:       brokerList,
		ConsumerGroup: cfg.Kafka.ConsumerGroup + "-engagement",
		Topic:         cfg.Kafka.EngagementTopic,
		NumWorkers:    cfg.WorkerPool.EngagementWorkers,
	}, engagementProc, logger)

	// Scheduler publishes dispatch triggers for due scheduled campaigns
	producer := kafkaClient.NewProducer(kafkaClient.ProducerConfig{
		Brokers: brokerList,
		Topic:   cfg.Kafka.DispatchTopic,
	}, logger)
	defer producer.Close()

	scheduler := dispatch.NewScheduler(&dataStore, events.NewPublisher(producer, logger), logger, cfg.Dispatch.SchedulerInterval)

	logger.Info(ctx, fmt.Sprintf(`Campaign worker configuration:
  - dispatch workers: %d
  - engagement workers: %d
  - Kafka brokers: %v
  - dispatch topic: %s
  - engagement topic: %s
  - scheduler interval: %v`,
		cfg.WorkerPool.DispatchWorkers, cfg.WorkerPool.EngagementWorkers,
		brokerList, cfg.Kafka.DispatchTopic, cfg.Kafka.EngagementTopic,
		cfg.Dispatch.SchedulerInterval))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := dispatchConsumer.Start(runCtx); err != nil && err != context.Canceled {
			logger.Error(runCtx, "dispatch consumer stopped with error", err)
			cancel()
		}
	}()
	go func() {
		if err := engagementConsumer.Start(runCtx); err != nil && err != context.Canceled {
			logger.Error(runCtx, "engagement consumer stopped with error", err)
			cancel()
		}
	}()
	go scheduler.Start(runCtx)

	logger.Info(ctx, "Campaign worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Received shutdown signal, stopping workers...")
	cancel()

	scheduler.Stop()
	dispatchConsumer.Stop()
	engagementConsumer.Stop()

	logger.Info(ctx, "Campaign worker stopped")
}

// buildChannelRegistry wires a sender per configured channel. Email and the
// in-app system channel are always available; SMS and push need provider
// credentials.
func buildChannelRegistry(ctx context.Context, cfg *config.Config, dataStore *store.Store, logger *observability.Logger) (*channels.Registry, error) {
	mailClient, err := mail.NewResendClient(cfg.Channels.ResendAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}

	senders := []channels.Sender{
		channels.NewEmailSender(mailClient, cfg.Channels.DefaultEmailSender),
		channels.NewSystemSender(dataStore),
	}

	if cfg.Channels.TwilioAccountSID != "" {
		senders = append(senders, channels.NewSMSSender(
			cfg.Channels.TwilioAccountSID,
			cfg.Channels.TwilioAuthToken,
			cfg.Channels.TwilioFromNumber,
			logger,
		))
	} else {
		logger.Warn(ctx, "Twilio credentials not set, SMS channel disabled")
	}

	if cfg.Channels.FirebaseCredsFile != "" {
		pushSender, err := channels.NewPushSender(ctx, cfg.Channels.FirebaseCredsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create push sender: %w", err)
		}
		senders = append(senders, pushSender)
	} else {
		logger.Warn(ctx, "Firebase credentials not set, push channel disabled")
	}

	return channels.NewRegistry(senders...), nil
}
