package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/whereis-agent/internal/constants"
	"github.com/benmeehan/whereis-agent/internal/registry"
	"github.com/benmeehan/whereis-agent/internal/services"
	"github.com/benmeehan/whereis-agent/internal/utils"
	"github.com/benmeehan/whereis-agent/pkg/bridge"
	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/benmeehan/whereis-agent/pkg/identity"
	"github.com/benmeehan/whereis-agent/pkg/location"
	"github.com/benmeehan/whereis-agent/pkg/notify"
	"github.com/benmeehan/whereis-agent/pkg/store"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	closers     []func() error              // Released after all services stopped
	store       store.Store
	notifier    notify.Notifier
	toaster     notify.Toaster
	fileClient  file.FileOperations
	Logger      zerolog.Logger

	// Overridable for tests
	newProvider func(config *utils.Config) (location.Provider, error)
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(st store.Store, notifier notify.Notifier, toaster notify.Toaster,
	fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	sr := &ServiceRegistry{
		services:   make(map[string]registry.Service),
		store:      st,
		notifier:   notifier,
		toaster:    toaster,
		fileClient: fileClient,
		Logger:     logger,
	}
	sr.newProvider = func(config *utils.Config) (location.Provider, error) {
		return newLocationProvider(config, sr.Logger)
	}
	return sr
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Service returns the registered service called name.
func (sr *ServiceRegistry) Service(name string) (registry.Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	for _, closeFn := range sr.closers {
		if err := closeFn(); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}
	sr.closers = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	zone, err := config.TimeLocation()
	if err != nil {
		return fmt.Errorf("invalid notification time zone: %w", err)
	}

	var publisher *services.LocationService
	var bridgeServer *bridge.Server

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "location",
			enabled: config.Services.Location.Enabled,
			constructor: func() (registry.Service, error) {
				provider, err := sr.newProvider(config)
				if err != nil {
					sr.Logger.Error().Err(err).Msg("failed to create location provider")
					return nil, err
				}
				client := location.NewClient(provider, sr.Logger)
				sr.closers = append(sr.closers, client.Close)

				publisher = services.NewLocationService(
					services.LocationServiceOptions{
						Channel: notify.Channel{
							ID:          constants.NotificationChannelID,
							Name:        config.Notification.ChannelName,
							Description: config.Notification.ChannelDescription,
							Importance:  notify.ImportanceDefault,
						},
						TimeFormat:     config.Notification.TimeFormat,
						TimeZone:       zone,
						PublishWorkers: config.Services.Location.PublishWorkers,
						PublishQueue:   config.Services.Location.PublishQueue,
					},
					client,
					sr.store,
					sr.notifier,
					sr.Logger,
				)
				return publisher, nil
			},
		},
		{
			name:    "bridge",
			enabled: config.Services.Shell.Enabled,
			constructor: func() (registry.Service, error) {
				bridgeServer = bridge.NewServer(
					config.Services.Shell.ListenAddr,
					config.Services.Shell.AllowedOrigins,
					sr.Logger,
				)
				return bridgeServer, nil
			},
		},
		{
			name:    "shell",
			enabled: config.Services.Shell.Enabled,
			constructor: func() (registry.Service, error) {
				if publisher == nil {
					return nil, errors.New("shell service requires the location service")
				}
				devicePath := ""
				if config.Services.Location.SensorBased {
					devicePath = config.Services.Location.GPSDevicePort
				}
				shell := services.NewShellService(
					bridgeServer,
					bridge.NewExternalOpener(config.Services.Shell.ExternalOpener, sr.Logger),
					location.NewDevicePermission(devicePath, sr.Logger),
					publisher,
					sr.toaster,
					identity.NewTokenFileProvider(
						config.Identity.Provider,
						config.Identity.TokenFile,
						config.Identity.Audience,
						sr.fileClient,
					),
					config.Services.Shell.MessageDuration,
					sr.Logger,
				)
				bridgeServer.SetHandler(shell)
				return shell, nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// newLocationProvider picks the GPS sensor or the geolocation API.
func newLocationProvider(config *utils.Config, logger zerolog.Logger) (location.Provider, error) {
	loc := config.Services.Location
	if loc.SensorBased {
		return location.NewDeviceSensorProvider(loc.GPSDevicePort, loc.GPSDeviceBaudRate, loc.GPSReadTimeout), nil
	}
	return location.NewGoogleGeolocationProvider(loc.MapsAPIKey, loc.ModemIndex, loc.GeolocationTimeout, logger)
}
