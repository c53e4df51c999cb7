package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, `
mqtt:
  broker: tcp://localhost:1883
services:
  location_service:
    enabled: true
    sensor_based: true
    gps_device_port: /dev/ttyUSB0
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StoreBackendMQTT, cfg.Store.Backend)
	assert.Equal(t, "whereis", cfg.Store.TopicPrefix)
	require.NotNil(t, cfg.Store.QOS)
	assert.Equal(t, 1, *cfg.Store.QOS)
	assert.Equal(t, NotificationBackendLog, cfg.Notification.Backend)
	assert.Equal(t, "15:04", cfg.Notification.TimeFormat)
	assert.Equal(t, 9600, cfg.Services.Location.GPSDeviceBaudRate)
	assert.Equal(t, 5*time.Second, cfg.Services.Location.GPSReadTimeout)
	assert.Equal(t, "127.0.0.1:8765", cfg.Services.Shell.ListenAddr)
}

func TestLoadConfig_ParsesDurationsAndLists(t *testing.T) {
	path := writeTempConfig(t, `
store:
  backend: dynamodb
  dynamodb:
    region: eu-west-1
    table: whereis
    poll_interval: 30s
notification:
  backend: file
  status_file: /tmp/whereis/status.json
  time_zone: Europe/Oslo
identity:
  token_file: /tmp/whereis/id_token
services:
  location_service:
    enabled: true
    maps_api_key: key
  shell:
    enabled: true
    allowed_origins: ["https://whereis.akp.tools"]
    message_duration: 3500ms
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Store.DynamoDB.PollInterval)
	assert.Equal(t, []string{"https://whereis.akp.tools"}, cfg.Services.Shell.AllowedOrigins)
	assert.Equal(t, 3500*time.Millisecond, cfg.Services.Shell.MessageDuration)

	loc, err := cfg.TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Oslo", loc.String())
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing broker", "store:\n  backend: mqtt\n", "mqtt.broker is required"},
		{"unknown backend", "store:\n  backend: redis\n", `unknown store.backend "redis"`},
		{"missing table", "store:\n  backend: dynamodb\n", "store.dynamodb.table is required"},
		{"missing status file", "store:\n  backend: memory\nnotification:\n  backend: file\n", "notification.status_file is required"},
		{"shell without location", "store:\n  backend: memory\nidentity:\n  token_file: t\nservices:\n  shell:\n    enabled: true\n", "services.shell requires services.location_service"},
		{"sensor without port", "store:\n  backend: memory\nservices:\n  location_service:\n    enabled: true\n    sensor_based: true\n", "gps_device_port is required"},
		{"negative poll interval", "store:\n  backend: dynamodb\n  dynamodb:\n    table: whereis\n    poll_interval: -5s\n", "store.dynamodb.poll_interval must be positive"},
		{"qos out of range", "mqtt:\n  broker: tcp://localhost:1883\nstore:\n  qos: 3\n", "store.qos must be 0, 1 or 2"},
		{"bad zone", "store:\n  backend: memory\nnotification:\n  time_zone: Mars/Olympus\n", "notification.time_zone"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, tc.yaml), file.NewFileService())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfig_ExplicitQoSZeroKept(t *testing.T) {
	path := writeTempConfig(t, `
mqtt:
  broker: tcp://localhost:1883
store:
  backend: mqtt
  qos: 0
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)
	require.NotNil(t, cfg.Store.QOS)
	assert.Equal(t, 0, *cfg.Store.QOS)
}

func TestLoadConfig_UnknownFieldRejected(t *testing.T) {
	_, err := LoadConfig(writeTempConfig(t, "store:\n  backend: memory\n  bogus: 1\n"), file.NewFileService())
	assert.Error(t, err)
}
