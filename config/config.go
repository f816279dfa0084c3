package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Broker types
const (
	BrokerTypeMQTT = "mqtt"
	BrokerTypeNATS = "nats"
)

// Defaults for the light sensor deployment
const (
	DefaultSerialDevice   = "/dev/ttyUSB0"
	DefaultBaudRate       = 115200
	DefaultReadTimeout    = time.Second
	DefaultBrokerHost     = "localhost"
	DefaultMQTTPort       = 1883
	DefaultNATSPort       = 4222
	DefaultConnectTimeout = 60 * time.Second
	DefaultKeepAlive      = 60 * time.Second
	DefaultPublishTimeout = 5 * time.Second
	DefaultTopic          = "lab/3pm25b/microbit/luz"
	DefaultSettleDelay    = 2 * time.Second
	DefaultPollInterval   = 10 * time.Millisecond
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Broker  BrokerConfig  `yaml:"broker"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LogConfig     `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SerialConfig struct {
	Device      string        `yaml:"device"` // path, COM name or tcp://host:port
	BaudRate    int           `yaml:"baudRate"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

type BrokerConfig struct {
	Type           string        `yaml:"type"` // mqtt or nats
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ClientID       string        `yaml:"clientId"` // generated when empty
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	KeepAlive      time.Duration `yaml:"keepAlive"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig enables mutual TLS towards the broker
type TLSConfig struct {
	Enable   bool   `yaml:"enable"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

type BridgeConfig struct {
	Topic        string        `yaml:"topic"`
	SettleDelay  time.Duration `yaml:"settleDelay"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json or console
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads a YAML configuration file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) setDefaults() {
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultSerialDevice
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = DefaultReadTimeout
	}

	if c.Broker.Type == "" {
		c.Broker.Type = BrokerTypeMQTT
	}
	if c.Broker.Host == "" {
		c.Broker.Host = DefaultBrokerHost
	}
	if c.Broker.Port == 0 {
		switch c.Broker.Type {
		case BrokerTypeNATS:
			c.Broker.Port = DefaultNATSPort
		default:
			c.Broker.Port = DefaultMQTTPort
		}
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Broker.KeepAlive == 0 {
		c.Broker.KeepAlive = DefaultKeepAlive
	}
	if c.Broker.PublishTimeout == 0 {
		c.Broker.PublishTimeout = DefaultPublishTimeout
	}

	if c.Bridge.Topic == "" {
		c.Bridge.Topic = DefaultTopic
	}
	if c.Bridge.SettleDelay == 0 {
		c.Bridge.SettleDelay = DefaultSettleDelay
	}
	if c.Bridge.PollInterval == 0 {
		c.Bridge.PollInterval = DefaultPollInterval
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "console"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.Serial.BaudRate < 1 {
		return fmt.Errorf("serial baud rate must be greater than 0")
	}
	if cfg.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial read timeout must not be negative")
	}

	switch cfg.Broker.Type {
	case BrokerTypeMQTT, BrokerTypeNATS:
	default:
		return fmt.Errorf("invalid broker type: %s", cfg.Broker.Type)
	}
	if cfg.Broker.Port < 1 || cfg.Broker.Port > 65535 {
		return fmt.Errorf("invalid broker port: %d", cfg.Broker.Port)
	}
	if cfg.Broker.ConnectTimeout < 0 || cfg.Broker.KeepAlive < 0 || cfg.Broker.PublishTimeout < 0 {
		return fmt.Errorf("broker timeouts must not be negative")
	}

	// Validate TLS config if enabled
	if cfg.Broker.TLS.Enable {
		if cfg.Broker.TLS.CertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if cfg.Broker.TLS.KeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
		if cfg.Broker.TLS.CAFile == "" {
			return fmt.Errorf("tls ca file is required when tls is enabled")
		}
	}

	if cfg.Bridge.Topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	// Wildcards are only valid in subscriptions
	if strings.ContainsAny(cfg.Bridge.Topic, "+#") {
		return fmt.Errorf("topic must not contain wildcards: %s", cfg.Bridge.Topic)
	}
	if cfg.Bridge.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative")
	}
	if cfg.Bridge.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(device, brokerHost, topic, logLevel string) {
	if device != "" {
		c.Serial.Device = device
	}
	if brokerHost != "" {
		c.Broker.Host = brokerHost
	}
	if topic != "" {
		c.Bridge.Topic = topic
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate re-checks the configuration, typically after ApplyOverrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// BrokerURL returns the server URL for the configured broker type
func (b BrokerConfig) BrokerURL() string {
	var scheme string
	switch {
	case b.Type == BrokerTypeNATS && b.TLS.Enable:
		scheme = "tls"
	case b.Type == BrokerTypeNATS:
		scheme = "nats"
	case b.TLS.Enable:
		scheme = "ssl"
	default:
		scheme = "tcp"
	}
	return scheme + "://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}
