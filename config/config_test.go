package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultSerialDevice, cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, BrokerTypeMQTT, cfg.Broker.Type)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, 60*time.Second, cfg.Broker.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.Broker.KeepAlive)
	assert.Equal(t, "lab/3pm25b/microbit/luz", cfg.Bridge.Topic)
	assert.Equal(t, 2*time.Second, cfg.Bridge.SettleDelay)
	assert.Equal(t, 10*time.Millisecond, cfg.Bridge.PollInterval)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "Partial file keeps defaults",
			content: `
serial:
  device: /dev/ttyACM0
broker:
  host: broker.example.com
`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "/dev/ttyACM0", c.Serial.Device)
				assert.Equal(t, 115200, c.Serial.BaudRate)
				assert.Equal(t, "broker.example.com", c.Broker.Host)
				assert.Equal(t, 1883, c.Broker.Port)
				assert.Equal(t, DefaultTopic, c.Bridge.Topic)
			},
		},
		{
			name: "Durations and nats defaults",
			content: `
broker:
  type: nats
  publishTimeout: 250ms
bridge:
  topic: sensors/light
  settleDelay: 500ms
  pollInterval: 20ms
`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, BrokerTypeNATS, c.Broker.Type)
				assert.Equal(t, 4222, c.Broker.Port)
				assert.Equal(t, 250*time.Millisecond, c.Broker.PublishTimeout)
				assert.Equal(t, "sensors/light", c.Bridge.Topic)
				assert.Equal(t, 500*time.Millisecond, c.Bridge.SettleDelay)
				assert.Equal(t, 20*time.Millisecond, c.Bridge.PollInterval)
			},
		},
		{
			name: "Invalid broker type",
			content: `
broker:
  type: amqp
`,
			wantErr: true,
		},
		{
			name: "Invalid log level",
			content: `
logging:
  level: verbose
`,
			wantErr: true,
		},
		{
			name: "Invalid port",
			content: `
broker:
  port: 70000
`,
			wantErr: true,
		},
		{
			name:    "Malformed yaml",
			content: "serial: [",
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, "config"+string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides("tcp://127.0.0.1:4000", "10.0.0.5", "", "debug")

	assert.Equal(t, "tcp://127.0.0.1:4000", cfg.Serial.Device)
	assert.Equal(t, "10.0.0.5", cfg.Broker.Host)
	assert.Equal(t, DefaultTopic, cfg.Bridge.Topic)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())

	cfg.ApplyOverrides("", "", "", "loud")
	assert.Error(t, cfg.Validate())
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  BrokerConfig
		want string
	}{
		{"mqtt", BrokerConfig{Type: BrokerTypeMQTT, Host: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{"nats", BrokerConfig{Type: BrokerTypeNATS, Host: "10.1.2.3", Port: 4222}, "nats://10.1.2.3:4222"},
		{"ipv6", BrokerConfig{Type: BrokerTypeMQTT, Host: "::1", Port: 1883}, "tcp://[::1]:1883"},
		{"mqtt tls", BrokerConfig{Type: BrokerTypeMQTT, Host: "broker", Port: 8883, TLS: TLSConfig{Enable: true}}, "ssl://broker:8883"},
		{"nats tls", BrokerConfig{Type: BrokerTypeNATS, Host: "broker", Port: 4222, TLS: TLSConfig{Enable: true}}, "tls://broker:4222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.BrokerURL())
		})
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"lab/3pm25b/microbit/luz", false},
		{"sensors/light", false},
		{"sensors/+/light", true},
		{"sensors/#", true},
		{"lab#1", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			cfg := Default()
			cfg.Bridge.Topic = tt.topic
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsWildcardTopic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  topic: lab/+/luz\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wildcards")
}

func TestValidateTLS(t *testing.T) {
	cfg := Default()
	cfg.Broker.TLS = TLSConfig{Enable: true, CertFile: "client.crt", KeyFile: "client.key"}
	assert.ErrorContains(t, cfg.Validate(), "ca file")

	cfg.Broker.TLS.CAFile = "ca.crt"
	assert.NoError(t, cfg.Validate())

	cfg.Broker.TLS.CertFile = ""
	assert.ErrorContains(t, cfg.Validate(), "cert file")
}
