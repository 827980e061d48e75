package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Engine   EngineConfig   `yaml:"engine"`
	Channels ChannelsConfig `yaml:"channels"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminConfig    `yaml:"admin"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// EngineConfig matching engine configuration
type EngineConfig struct {
	// EpochInterval is the fixed matching tick period in milliseconds.
	EpochInterval int `yaml:"epochIntervalMs"`
	// CommitWindow is the deadline, in seconds from the commit timestamp,
	// for revealing or cancelling that commitment. Clients may know this
	// as the reveal deadline; the knob is named for the phase it starts in.
	CommitWindow int `yaml:"commitWindowSec"`
	// RevealWindow is how long a revealed order may rest in the book,
	// in seconds from its reveal, before it is swept unmatched.
	RevealWindow int `yaml:"revealWindowSec"`
	// PrivateKey is the engine's ECIES private key (hex, no 0x prefix).
	// Supplied by the key provider; the engine never generates keys itself.
	PrivateKey string `yaml:"privateKey"`
	KeyFile    string `yaml:"keyFile"`
}

// ChannelsConfig channel ledger configuration
type ChannelsConfig struct {
	MinBalance      string `yaml:"minBalance"`
	MaxBalance      string `yaml:"maxBalance"`
	WithdrawalDelay int    `yaml:"withdrawalDelaySec"` // emergency timelock
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // IP addresses or CIDR ranges
	TOTPSecret string   `yaml:"totpSecret"` // base32 TOTP secret for admin ops
}

// AuthConfig JWT authentication configuration
type AuthConfig struct {
	JWTSecret   string `yaml:"jwtSecret"`
	TokenExpiry int    `yaml:"tokenExpirySec"`
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies env-var overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	overrideFromEnv(&config)

	fmt.Printf("✅ [%s] Loaded configuration from %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	fmt.Printf("📋 [Config] Engine: epoch=%dms, commitWindow=%ds, revealWindow=%ds\n",
		config.Engine.EpochInterval, config.Engine.CommitWindow, config.Engine.RevealWindow)
	fmt.Printf("📋 [Config] Channels: balance bounds [%s, %s], withdrawal delay %ds\n",
		config.Channels.MinBalance, config.Channels.MaxBalance, config.Channels.WithdrawalDelay)

	AppConfig = &config
	return nil
}

// applyDefaults fills zero-valued fields with operational defaults.
func applyDefaults(config *Config) {
	if config.Engine.EpochInterval <= 0 {
		config.Engine.EpochInterval = 1000
	}
	if config.Engine.CommitWindow <= 0 {
		config.Engine.CommitWindow = 300
	}
	if config.Engine.RevealWindow <= 0 {
		config.Engine.RevealWindow = 600
	}
	if config.Channels.WithdrawalDelay <= 0 {
		config.Channels.WithdrawalDelay = 86400
	}
	if config.Channels.MinBalance == "" {
		config.Channels.MinBalance = "0"
	}
	if config.Channels.MaxBalance == "" {
		config.Channels.MaxBalance = "1000000"
	}
	if config.Auth.TokenExpiry <= 0 {
		config.Auth.TokenExpiry = 86400
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "darkpool"
	}
}

// overrideFromEnv applies environment variable overrides.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if key := os.Getenv("ENGINE_PRIVATE_KEY"); key != "" {
		config.Engine.PrivateKey = key
	}
	if keyFile := os.Getenv("ENGINE_KEY_FILE"); keyFile != "" {
		config.Engine.KeyFile = keyFile
	}
	if interval := os.Getenv("ENGINE_EPOCH_INTERVAL_MS"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			config.Engine.EpochInterval = v
		}
	}
	if window := os.Getenv("ENGINE_COMMIT_WINDOW_SEC"); window != "" {
		if v, err := strconv.Atoi(window); err == nil {
			config.Engine.CommitWindow = v
		}
	}
	if window := os.Getenv("ENGINE_REVEAL_WINDOW_SEC"); window != "" {
		if v, err := strconv.Atoi(window); err == nil {
			config.Engine.RevealWindow = v
		}
	}

	if delay := os.Getenv("CHANNEL_WITHDRAWAL_DELAY_SEC"); delay != "" {
		if v, err := strconv.Atoi(delay); err == nil {
			config.Channels.WithdrawalDelay = v
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}
}

// EpochIntervalDuration returns the matching tick period as a time.Duration.
func (c *EngineConfig) EpochIntervalDuration() time.Duration {
	return time.Duration(c.EpochInterval) * time.Millisecond
}

// CommitWindowDuration returns the commitment window as a time.Duration.
func (c *EngineConfig) CommitWindowDuration() time.Duration {
	return time.Duration(c.CommitWindow) * time.Second
}

// RevealWindowDuration returns the reveal window as a time.Duration.
func (c *EngineConfig) RevealWindowDuration() time.Duration {
	return time.Duration(c.RevealWindow) * time.Second
}

// WithdrawalDelayDuration returns the emergency timelock as a time.Duration.
func (c *ChannelsConfig) WithdrawalDelayDuration() time.Duration {
	return time.Duration(c.WithdrawalDelay) * time.Second
}
