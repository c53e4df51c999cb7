package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/whereis-agent/internal/constants"
	"github.com/benmeehan/whereis-agent/pkg/file"
)

// Store backends
const (
	StoreBackendMQTT     = "mqtt"
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendMemory   = "memory"
)

// Notification backends
const (
	NotificationBackendLog  = "log"
	NotificationBackendFile = "file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level string `yaml:"level"` // zerolog level name
	} `yaml:"log"`

	MQTT struct {
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix
		Username       string        `yaml:"username"`        // Optional broker username
		Password       string        `yaml:"password"`        // Optional broker password
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate, enables TLS
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the initial connection
	} `yaml:"mqtt"`

	Store struct {
		Backend     string `yaml:"backend"`      // mqtt, dynamodb or memory
		TopicPrefix string `yaml:"topic_prefix"` // MQTT topic prefix for store keys
		QOS         *int   `yaml:"qos"`          // MQTT QoS level for store messages, default 1

		DynamoDB struct {
			Region       string        `yaml:"region"`
			Endpoint     string        `yaml:"endpoint"` // Optional endpoint override
			Table        string        `yaml:"table"`
			PollInterval time.Duration `yaml:"poll_interval"` // How often subscriptions re-read an item
		} `yaml:"dynamodb"`
	} `yaml:"store"`

	Notification struct {
		Backend            string `yaml:"backend"`             // log or file
		StatusFile         string `yaml:"status_file"`         // Path of the JSON status file
		ChannelName        string `yaml:"channel_name"`        // Display name of the persistent channel
		ChannelDescription string `yaml:"channel_description"` // Description of the persistent channel
		TimeFormat         string `yaml:"time_format"`         // Go layout of the short time in the indicator
		TimeZone           string `yaml:"time_zone"`           // IANA zone for the indicator, default Local
	} `yaml:"notification"`

	Identity struct {
		Provider  string `yaml:"provider"`   // Display name of the single sign-in provider
		TokenFile string `yaml:"token_file"` // File the login helper writes the ID token to
		Audience  string `yaml:"audience"`   // Expected aud claim, optional
	} `yaml:"identity"`

	Services struct {
		Location struct {
			Enabled            bool          `yaml:"enabled"`             // Enable/disable location publisher
			SensorBased        bool          `yaml:"sensor_based"`        // Use a GPS sensor instead of the geolocation API
			MapsAPIKey         string        `yaml:"maps_api_key"`        // Google maps API Key
			ModemIndex         int           `yaml:"modem_index"`         // ModemManager index for cell data
			GeolocationTimeout time.Duration `yaml:"geolocation_timeout"` // Timeout per geolocation request
			GPSDevicePort      string        `yaml:"gps_device_port"`     // UNIX Port where the GPS sensor is mounted
			GPSDeviceBaudRate  int           `yaml:"gps_baud_rate"`       // The Baud rate for GPS sensor
			GPSReadTimeout     time.Duration `yaml:"gps_read_timeout"`    // Serial read timeout
			PublishWorkers     int           `yaml:"publish_workers"`     // Concurrent store writes
			PublishQueue       int           `yaml:"publish_queue"`       // Pending store writes before fixes are dropped
		} `yaml:"location_service"`

		Shell struct {
			Enabled         bool          `yaml:"enabled"`          // Enable/disable the web shell
			ListenAddr      string        `yaml:"listen_addr"`      // Bridge websocket address
			AllowedOrigins  []string      `yaml:"allowed_origins"`  // Origins allowed to open the bridge
			ExternalOpener  string        `yaml:"external_opener"`  // Command that opens delegated URLs
			MessageDuration time.Duration `yaml:"message_duration"` // How long transient messages stay up
		} `yaml:"shell"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "whereis-agent"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 30 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendMQTT
	}
	if c.Store.TopicPrefix == "" {
		c.Store.TopicPrefix = "whereis"
	}
	if c.Store.QOS == nil {
		qos := 1
		c.Store.QOS = &qos
	}
	if c.Store.DynamoDB.PollInterval == 0 {
		c.Store.DynamoDB.PollInterval = 15 * time.Second
	}
	if c.Notification.Backend == "" {
		c.Notification.Backend = NotificationBackendLog
	}
	if c.Notification.ChannelName == "" {
		c.Notification.ChannelName = "Location sharing"
	}
	if c.Notification.ChannelDescription == "" {
		c.Notification.ChannelDescription = "Shows the shared location while the agent runs"
	}
	if c.Notification.TimeFormat == "" {
		c.Notification.TimeFormat = constants.DefaultTimeFormat
	}
	if c.Identity.Provider == "" {
		c.Identity.Provider = "google"
	}

	loc := &c.Services.Location
	if loc.GeolocationTimeout == 0 {
		loc.GeolocationTimeout = 10 * time.Second
	}
	if loc.GPSDeviceBaudRate == 0 {
		loc.GPSDeviceBaudRate = 9600
	}
	if loc.GPSReadTimeout == 0 {
		loc.GPSReadTimeout = 5 * time.Second
	}
	if loc.PublishWorkers == 0 {
		loc.PublishWorkers = 1
	}
	if loc.PublishQueue == 0 {
		loc.PublishQueue = 8
	}

	shell := &c.Services.Shell
	if shell.ListenAddr == "" {
		shell.ListenAddr = "127.0.0.1:8765"
	}
	if shell.ExternalOpener == "" {
		shell.ExternalOpener = "xdg-open"
	}
	if shell.MessageDuration == 0 {
		shell.MessageDuration = 2 * time.Second
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreBackendMQTT:
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required for the mqtt store"))
		}
		if c.Store.QOS == nil || *c.Store.QOS < 0 || *c.Store.QOS > 2 {
			errs = append(errs, errors.New("store.qos must be 0, 1 or 2"))
		}
	case StoreBackendDynamoDB:
		if c.Store.DynamoDB.Table == "" {
			errs = append(errs, errors.New("store.dynamodb.table is required for the dynamodb store"))
		}
		if c.Store.DynamoDB.PollInterval <= 0 {
			errs = append(errs, errors.New("store.dynamodb.poll_interval must be positive"))
		}
	case StoreBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Notification.Backend {
	case NotificationBackendLog:
	case NotificationBackendFile:
		if c.Notification.StatusFile == "" {
			errs = append(errs, errors.New("notification.status_file is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notification.backend %q", c.Notification.Backend))
	}
	if _, err := c.TimeLocation(); err != nil {
		errs = append(errs, fmt.Errorf("notification.time_zone: %w", err))
	}

	loc := c.Services.Location
	if loc.Enabled {
		if loc.SensorBased && loc.GPSDevicePort == "" {
			errs = append(errs, errors.New("services.location_service.gps_device_port is required when sensor_based"))
		}
		if !loc.SensorBased && loc.MapsAPIKey == "" {
			errs = append(errs, errors.New("services.location_service.maps_api_key is required without a sensor"))
		}
		if loc.PublishWorkers < 1 || loc.PublishQueue < 1 {
			errs = append(errs, errors.New("services.location_service publish_workers and publish_queue must be positive"))
		}
	}

	shell := c.Services.Shell
	if shell.Enabled {
		if !loc.Enabled {
			errs = append(errs, errors.New("services.shell requires services.location_service"))
		}
		if c.Identity.TokenFile == "" {
			errs = append(errs, errors.New("identity.token_file is required for the shell"))
		}
	}

	return errors.Join(errs...)
}

// TimeLocation returns the zone used to render indicator times.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Notification.TimeZone == "" || c.Notification.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Notification.TimeZone)
}
