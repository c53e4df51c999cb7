package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/whereis-agent/internal/service_registry"
	"github.com/benmeehan/whereis-agent/internal/utils"
	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/benmeehan/whereis-agent/pkg/mqtt"
	"github.com/benmeehan/whereis-agent/pkg/notify"
	"github.com/benmeehan/whereis-agent/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		logger.Fatal().Err(err).Str("level", config.Log.Level).Msg("Invalid log level")
	}
	logger = logger.Level(level)

	// Remote data store
	var (
		dataStore  store.Store
		mqttClient *mqtt.MqttService
	)
	switch config.Store.Backend {
	case utils.StoreBackendMQTT:
		// Generate a unique MQTT Client ID by appending a UUID
		config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

		mqttClient = mqtt.NewMqttService(fileClient)
		mqttStore := store.NewMQTTStore(mqttClient, config.Store.TopicPrefix, *config.Store.QOS, logger)
		err = mqttClient.Initialize(mqtt.Options{
			Broker:           config.MQTT.Broker,
			ClientID:         config.MQTT.ClientID,
			Username:         config.MQTT.Username,
			Password:         config.MQTT.Password,
			CACertificate:    config.MQTT.CACertificate,
			ConnectTimeout:   config.MQTT.ConnectTimeout,
			OnConnectionLost: mqttStore.ConnectionLost,
			OnConnect:        mqttStore.Resubscribe,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		dataStore = mqttStore

	case utils.StoreBackendDynamoDB:
		client, err := store.NewDynamoDBClient(context.Background(), config.Store.DynamoDB.Region, config.Store.DynamoDB.Endpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create DynamoDB client")
		}
		dataStore = store.NewDynamoDBStore(client, config.Store.DynamoDB.Table, config.Store.DynamoDB.PollInterval, logger)

	case utils.StoreBackendMemory:
		logger.Warn().Msg("Using in-memory store, nothing leaves this process")
		dataStore = store.NewMemoryStore()
	}

	// Notification surface
	var notifier notify.Notifier
	switch config.Notification.Backend {
	case utils.NotificationBackendFile:
		notifier = notify.NewFileNotifier(config.Notification.StatusFile, fileClient, logger)
	default:
		notifier = notify.NewLogNotifier(logger)
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(dataStore, notifier, notify.NewLogToaster(logger), fileClient, logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop")
	}
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
