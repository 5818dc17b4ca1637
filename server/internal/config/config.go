package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8000
	DefaultInterval          = 60 * time.Second
	DefaultMinInterval       = 10 * time.Second
	DefaultMaxInterval       = 300 * time.Second
	DefaultIdleDelay         = time.Second
	DefaultFetchBackoff      = 60 * time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultEvaluateTimeout   = 60 * time.Second
	DefaultParseTimeout      = 60 * time.Second
	DefaultReconcileSchedule = "@every 1m"
	DefaultProviderBaseURL   = "https://www.cricbuzz.com/api/mcenter/comm"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultInterpreterURL    = "https://generativelanguage.googleapis.com/"
	DefaultModel             = "gemini-2.5-flash"

	DefaultInterpreterAPIVersion = "v1beta"
	DefaultNATSPrefix        = "cricalert"
)

// Dedup policies for repeated alerts on the same monitor.
const (
	DedupOff     = "off"
	DedupMessage = "message"
)

// Config is the full process configuration parsed from config.yaml.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Storage     StorageConfig     `yaml:"storage"`
	Provider    ProviderConfig    `yaml:"provider"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8000).
	HTTPPort int `yaml:"http_port"`

	// AllowedOrigins is the CORS allow list. "*" allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Auth guards the /api/v1 routes.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication on the REST API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// LogConfig controls the slog handler installed by main.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// MonitorConfig holds the engine tunables. These are the only settings
// re-applied on a hot reload.
type MonitorConfig struct {
	DefaultInterval time.Duration `yaml:"default_interval"`
	MinInterval     time.Duration `yaml:"min_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`

	// IdleDelay is how long a cycle sleeps when it is not yet time to poll.
	IdleDelay time.Duration `yaml:"idle_delay"`

	// FetchBackoff is the fixed wait after a failed provider fetch.
	FetchBackoff time.Duration `yaml:"fetch_backoff"`

	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	EvaluateTimeout time.Duration `yaml:"evaluate_timeout"`
	ParseTimeout    time.Duration `yaml:"parse_timeout"`

	// Dedup is one of: off | message. "message" suppresses an alert whose
	// kind and message were already recorded for the monitor.
	Dedup string `yaml:"dedup"`

	// VerifyTarget makes Create fetch the target once before accepting it.
	VerifyTarget *bool `yaml:"verify_target"`

	// ReconcileSchedule is a cron spec for the housekeeping job.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// ShouldVerifyTarget reports whether Create verifies the target (default true).
func (m MonitorConfig) ShouldVerifyTarget() bool {
	return m.VerifyTarget == nil || *m.VerifyTarget
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of: memory | file | redis | postgres.
	Backend string `yaml:"backend"`

	// Path is the JSON file used by the file backend.
	Path string `yaml:"path"`

	// URLEnv names the environment variable holding the redis or postgres URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the backend URL resolved from the environment.
func (s StorageConfig) URL() string {
	if s.URLEnv == "" {
		return ""
	}
	return os.Getenv(s.URLEnv)
}

// ProviderConfig configures the match data client.
type ProviderConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// InterpreterConfig configures the rule interpreter client.
type InterpreterConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
	Model      string `yaml:"model"`

	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// SystemPromptPath and UserPromptPath override the embedded prompts.
	SystemPromptPath string `yaml:"system_prompt_path"`
	UserPromptPath   string `yaml:"user_prompt_path"`
}

// Key returns the API key resolved from the environment.
func (i InterpreterConfig) Key() string {
	if i.KeyEnv == "" {
		return ""
	}
	return os.Getenv(i.KeyEnv)
}

// NotifyConfig holds the outbound notification sinks. All are optional.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
	NATS     NATSConfig      `yaml:"nats"`
	Email    EmailConfig     `yaml:"email"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// NATSConfig mirrors every engine event onto a NATS subject.
type NATSConfig struct {
	URLEnv string `yaml:"url_env"`

	// Prefix is the first subject token (default "cricalert").
	Prefix string `yaml:"prefix"`
}

// URL returns the NATS server URL resolved from the environment.
func (n NATSConfig) URL() string {
	if n.URLEnv == "" {
		return ""
	}
	return os.Getenv(n.URLEnv)
}

// EmailConfig sends a mail for TRIGGER and ABORTED alerts.
type EmailConfig struct {
	KeyEnv string   `yaml:"key_env"`
	From   string   `yaml:"from"`
	To     []string `yaml:"to"`
}

// Key returns the SendGrid API key resolved from the environment.
func (e EmailConfig) Key() string {
	if e.KeyEnv == "" {
		return ""
	}
	return os.Getenv(e.KeyEnv)
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse applies defaults, unmarshals data over them and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			AllowedOrigins: []string{"*"},
			Auth:           AuthConfig{Mode: "none", KeyEnv: "CRIC_ALERT_API_KEY"},
		},
		Log: LogConfig{Level: "info"},
		Monitor: MonitorConfig{
			DefaultInterval:   DefaultInterval,
			MinInterval:       DefaultMinInterval,
			MaxInterval:       DefaultMaxInterval,
			IdleDelay:         DefaultIdleDelay,
			FetchBackoff:      DefaultFetchBackoff,
			FetchTimeout:      DefaultFetchTimeout,
			EvaluateTimeout:   DefaultEvaluateTimeout,
			ParseTimeout:      DefaultParseTimeout,
			Dedup:             DedupMessage,
			ReconcileSchedule: DefaultReconcileSchedule,
		},
		Storage: StorageConfig{Backend: "memory"},
		Provider: ProviderConfig{
			BaseURL:   DefaultProviderBaseURL,
			UserAgent: DefaultUserAgent,
			Timeout:   DefaultFetchTimeout,
		},
		Interpreter: InterpreterConfig{
			BaseURL:    DefaultInterpreterURL,
			APIVersion: DefaultInterpreterAPIVersion,
			Model:      DefaultModel,
			KeyEnv:     "GEMINI_API_KEY",
		},
		Notify: NotifyConfig{
			NATS: NATSConfig{Prefix: DefaultNATSPrefix},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}

	m := cfg.Monitor
	if m.MinInterval <= 0 {
		return fmt.Errorf("monitor.min_interval must be positive")
	}
	if m.MaxInterval < m.MinInterval {
		return fmt.Errorf("monitor.max_interval %v is below min_interval %v", m.MaxInterval, m.MinInterval)
	}
	if m.DefaultInterval < m.MinInterval || m.DefaultInterval > m.MaxInterval {
		return fmt.Errorf("monitor.default_interval %v is outside [%v, %v]", m.DefaultInterval, m.MinInterval, m.MaxInterval)
	}
	if m.IdleDelay <= 0 || m.FetchBackoff <= 0 {
		return fmt.Errorf("monitor.idle_delay and monitor.fetch_backoff must be positive")
	}
	if m.FetchTimeout <= 0 || m.EvaluateTimeout <= 0 || m.ParseTimeout <= 0 {
		return fmt.Errorf("monitor timeouts must be positive")
	}
	switch m.Dedup {
	case DedupOff, DedupMessage:
	default:
		return fmt.Errorf("monitor.dedup %q unknown: want off|message", m.Dedup)
	}

	switch cfg.Storage.Backend {
	case "memory", "":
	case "file":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case "redis", "postgres":
		if cfg.Storage.URLEnv == "" {
			return fmt.Errorf("storage.url_env is required for the %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend %q unknown: want memory|file|redis|postgres", cfg.Storage.Backend)
	}

	for i, w := range cfg.Notify.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d].type %q unknown: want teams|slack|http", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("notify.webhooks[%d].url_env is required", i)
		}
	}
	if cfg.Notify.Email.KeyEnv != "" && (cfg.Notify.Email.From == "" || len(cfg.Notify.Email.To) == 0) {
		return fmt.Errorf("notify.email needs from and at least one to address")
	}
	return nil
}
