package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"parallelyou/models"
	"parallelyou/providers"
	"parallelyou/routing"
)

// EnvConfigPath names the YAML file to load
const EnvConfigPath = "PARALLELYOU_CONFIG"

// DefaultPath is used when EnvConfigPath is unset
const DefaultPath = "config.yaml"

// DefaultModels is the free-tier fallback order used when the file names none
var DefaultModels = []string{
	"deepseek/deepseek-r1:free",
	"z-ai/glm-4.5-air:free",
	"qwen/qwen3-coder:free",
	"mistralai/mistral-7b-instruct:free",
	"google/gemma-7b-it:free",
}

// Config represents the complete configuration
type Config struct {
	Server   ServerConfig     `yaml:"server"`
	Provider ProviderConfig   `yaml:"provider"`
	Fallback FallbackConfig   `yaml:"fallback"`
	Personas []models.Persona `yaml:"personas"`
	DNS      DNSConfig        `yaml:"dns"`
	SSH      SSHConfig        `yaml:"ssh"`
	Audit    AuditConfig      `yaml:"audit"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ServerConfig from YAML. A zero port disables that listener; the HTTP port
// always has a value.
type ServerConfig struct {
	HTTPPort       int             `yaml:"http_port"`
	HTTPSPort      int             `yaml:"https_port"`
	DNSPort        int             `yaml:"dns_port"`
	SSHPort        int             `yaml:"ssh_port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxBodyBytes   int64           `yaml:"max_body_bytes"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	TLS            TLSConfig       `yaml:"tls"`
}

// RateLimitConfig from YAML
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 disables limiting
	Burst             int `yaml:"burst"`
}

// TLSConfig from YAML. Empty paths trigger certificate discovery.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderConfig from YAML
type ProviderConfig struct {
	BaseURL        string             `yaml:"base_url"`
	APIKey         string             `yaml:"api_key"`
	Referer        string             `yaml:"referer"`
	Title          string             `yaml:"title"`
	AttemptTimeout string             `yaml:"attempt_timeout"`
	CatalogTimeout string             `yaml:"catalog_timeout"`
	Sampling       providers.Sampling `yaml:"sampling"`
}

// FallbackConfig from YAML
type FallbackConfig struct {
	Models   []string `yaml:"models"`
	Deadline string   `yaml:"deadline"` // "0" or empty disables the cap
}

// DNSConfig from YAML
type DNSConfig struct {
	Zone     string `yaml:"zone"`
	MaxChars int    `yaml:"max_chars"`
	Deadline string `yaml:"deadline"`
	Persona  string `yaml:"persona"`
}

// SSHConfig from YAML
type SSHConfig struct {
	HostKey     string `yaml:"host_key"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// AuditConfig from YAML
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig from YAML
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 3001,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
			MaxBodyBytes: 10 << 20,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 100,
				Burst:             10,
			},
		},
		Provider: ProviderConfig{
			BaseURL:        providers.DefaultBaseURL,
			APIKey:         "${OPENROUTER_API_KEY}",
			Referer:        "http://localhost:3000",
			Title:          "Parallel You Multiverse Chat",
			AttemptTimeout: "30s",
			CatalogTimeout: "10s",
			Sampling:       providers.DefaultSampling(),
		},
		Fallback: FallbackConfig{
			Models:   append([]string(nil), DefaultModels...),
			Deadline: "0",
		},
		Personas: DefaultPersonas(),
		DNS: DNSConfig{
			Zone:     "ai.",
			MaxChars: 500,
			Deadline: "4s",
			Persona:  "DVK-X",
		},
		SSH: SSHConfig{
			IdleTimeout: "10m",
		},
		Audit: AuditConfig{
			Path: "parallelyou.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file named by PARALLELYOU_CONFIG, or config.yaml
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a YAML file on top of the defaults. A
// missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	config := Default()

	if err := loadYAMLFile(path, config); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	expandEnvVars(config)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadYAMLFile loads a YAML file into a structure
func loadYAMLFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// expandEnvVars expands environment variables in configuration
func expandEnvVars(config *Config) {
	config.Provider.BaseURL = expandEnv(config.Provider.BaseURL)
	config.Provider.APIKey = expandEnv(config.Provider.APIKey)
	config.Provider.Referer = expandEnv(config.Provider.Referer)
	config.Server.TLS.CertFile = expandEnv(config.Server.TLS.CertFile)
	config.Server.TLS.KeyFile = expandEnv(config.Server.TLS.KeyFile)
	config.SSH.HostKey = expandEnv(config.SSH.HostKey)
	config.Audit.Path = expandEnv(config.Audit.Path)
	for i, m := range config.Fallback.Models {
		config.Fallback.Models[i] = strings.TrimSpace(expandEnv(m))
	}
}

// expandEnv expands environment variables in a string
func expandEnv(s string) string {
	if strings.Contains(s, "${") {
		return os.Expand(s, func(key string) string {
			// Handle default values like ${VAR:-default}
			parts := strings.SplitN(key, ":-", 2)
			value := os.Getenv(parts[0])
			if value == "" && len(parts) > 1 {
				return parts[1]
			}
			return value
		})
	}
	return s
}

// applyEnvOverrides lets the conventional variables win over the file
func applyEnvOverrides(config *Config) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		config.Provider.APIKey = key
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.HTTPPort = p
		}
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if len(c.Fallback.Models) == 0 {
		return errors.New("config: fallback.models must list at least one model")
	}
	seen := make(map[string]bool, len(c.Fallback.Models))
	for _, m := range c.Fallback.Models {
		if m == "" {
			return errors.New("config: fallback.models contains an empty entry")
		}
		if seen[m] {
			return fmt.Errorf("config: fallback.models lists %q twice", m)
		}
		seen[m] = true
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid http_port %d", c.Server.HTTPPort)
	}
	for name, port := range map[string]int{
		"https_port": c.Server.HTTPSPort,
		"dns_port":   c.Server.DNSPort,
		"ssh_port":   c.Server.SSHPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("config: invalid %s %d", name, port)
		}
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit values must not be negative")
	}
	if c.DNS.MaxChars <= 0 {
		return fmt.Errorf("config: dns.max_chars must be positive, got %d", c.DNS.MaxChars)
	}

	for field, value := range map[string]string{
		"provider.attempt_timeout": c.Provider.AttemptTimeout,
		"provider.catalog_timeout": c.Provider.CatalogTimeout,
		"dns.deadline":             c.DNS.Deadline,
		"ssh.idle_timeout":         c.SSH.IdleTimeout,
	} {
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", field)
		}
	}
	if d, err := parseDuration(c.Fallback.Deadline); err != nil {
		return fmt.Errorf("config: fallback.deadline: %w", err)
	} else if d < 0 {
		return errors.New("config: fallback.deadline must not be negative")
	}

	return nil
}

// parseDuration accepts Go durations plus "" and "0" for zero
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// mustDuration is for fields Validate has already checked
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// AttemptTimeout returns the per-candidate timeout
func (c *Config) AttemptTimeout() time.Duration { return mustDuration(c.Provider.AttemptTimeout) }

// FallbackDeadline returns the cap across all candidates, 0 when disabled
func (c *Config) FallbackDeadline() time.Duration { return mustDuration(c.Fallback.Deadline) }

// DNSDeadline returns the hard limit for one DNS lookup
func (c *Config) DNSDeadline() time.Duration { return mustDuration(c.DNS.Deadline) }

// SSHIdleTimeout returns how long an SSH session may sit idle
func (c *Config) SSHIdleTimeout() time.Duration { return mustDuration(c.SSH.IdleTimeout) }

// BuildProvider creates the completion client from configuration
func BuildProvider(config *Config) *providers.OpenRouter {
	return providers.NewOpenRouter(providers.Config{
		BaseURL:        config.Provider.BaseURL,
		APIKey:         config.Provider.APIKey,
		Referer:        config.Provider.Referer,
		Title:          config.Provider.Title,
		Sampling:       config.Provider.Sampling,
		CatalogTimeout: mustDuration(config.Provider.CatalogTimeout),
	})
}

// BuildRouter creates the fallback router around a completion client
func BuildRouter(config *Config, client routing.Completer, sink routing.EventSink) *routing.Router {
	return routing.NewRouter(client, routing.Options{
		DefaultModels:  config.Fallback.Models,
		AttemptTimeout: config.AttemptTimeout(),
		Deadline:       config.FallbackDeadline(),
		Sink:           sink,
	})
}

// BuildPersonas creates the preset persona registry
func BuildPersonas(config *Config) *models.PersonaRegistry {
	return models.NewPersonaRegistry(config.Personas...)
}
