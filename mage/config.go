package mage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

var ErrConfig = errors.New("invalid config")

// Command transports.
const (
	TransportHTTP    = "http"
	TransportJSONRPC = "jsonrpc"
)

// Message stream transports.
const (
	StreamLongPolling  = "longpolling"
	StreamShortPolling = "shortpolling"
	StreamWebSocket    = "websocket"
	StreamNone         = "none"
)

// Config is the client configuration file.
type Config struct {
	// BaseURL is the server root, such as https://game.example.com.
	BaseURL  string `yaml:"baseUrl"`
	App      string `yaml:"app"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// Headers are added to every command request.
	Headers map[string]string `yaml:"headers,omitempty"`

	Command CommandConfig `yaml:"command"`
	Stream  StreamConfig  `yaml:"stream"`
}

type CommandConfig struct {
	// Transport is http (the native batch format) or jsonrpc.
	Transport string        `yaml:"transport"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

type StreamConfig struct {
	// Transport is longpolling, shortpolling, websocket or none.
	Transport string `yaml:"transport"`
	// Interval is the delay between short polls.
	Interval time.Duration `yaml:"interval,omitempty"`
	// ErrorInterval is the delay after a failed request.
	ErrorInterval time.Duration `yaml:"errorInterval,omitempty"`
}

// LoadConfig loads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a Config with the transports MAGE servers offer by
// default. BaseURL and App have no default.
func DefaultConfig() *Config {
	return &Config{
		Command: CommandConfig{
			Transport: TransportHTTP,
			Timeout:   30 * time.Second,
		},
		Stream: StreamConfig{
			Transport:     StreamLongPolling,
			Interval:      5 * time.Second,
			ErrorInterval: 5 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: baseUrl is required", ErrConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: baseUrl: %w", ErrConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: baseUrl must be http or https, got %q", ErrConfig, c.BaseURL)
	}
	if c.App == "" {
		return fmt.Errorf("%w: app is required", ErrConfig)
	}
	switch c.Command.Transport {
	case TransportHTTP, TransportJSONRPC:
	default:
		return fmt.Errorf("%w: unknown command transport %q", ErrConfig, c.Command.Transport)
	}
	switch c.Stream.Transport {
	case StreamLongPolling, StreamWebSocket, StreamNone:
	case StreamShortPolling:
		if c.Stream.Interval <= 0 {
			return fmt.Errorf("%w: shortpolling needs a positive interval", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown stream transport %q", ErrConfig, c.Stream.Transport)
	}
	return nil
}

// Marshal returns c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
