package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"educenter-server/internal/config"
	"educenter-server/internal/observability"
	"educenter-server/internal/store"

	campaignHandler "educenter-server/internal/campaigns/handler"
	campaignProcessor "educenter-server/internal/campaigns/processor"
	kafkaClient "educenter-server/internal/clients/kafka"
	"educenter-server/internal/events"
	templateHandler "educenter-server/internal/templates/handler"
	templateProcessor "educenter-server/internal/templates/processor"
)

// Dependencies holds all initialized API server dependencies. The dispatch
// and engagement consumers live in the worker binary, not here.
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Handlers
	TemplateHandler templateHandler.Handler
	CampaignHandler campaignHandler.Handler

	// Kafka clients (for cleanup)
	KafkaProducer *kafkaClient.Producer
}

// Initialize sets up all API server dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Kafka producer for dispatch triggers
	brokerList := strings.Split(cfg.Kafka.Brokers, ",")
	deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
		Brokers: brokerList,
		Topic:   cfg.Kafka.DispatchTopic,
	}, logger)

	publisher := events.NewPublisher(deps.KafkaProducer, logger)

	// Initialize template processor and handler
	templateProc := templateProcessor.New(&deps.Store, logger)
	deps.TemplateHandler = templateHandler.New(templateProc, logger)

	// Initialize campaign processor and handler
	campaignProc := campaignProcessor.New(&deps.Store, publisher, logger)
	deps.CampaignHandler = campaignHandler.New(campaignProc, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.KafkaProducer != nil {
		d.KafkaProducer.Close()
	}
}
