package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrUnknownRatelimitStore = errors.New("unknown automod rate limit backend")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Rate limit bucket backends.
const (
	RatelimitBackendMemory = "memory"
	RatelimitBackendRedis  = "redis"
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
}

// CommonConfig contains configuration shared between the bot and the tooling.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Discord configuration.
	Discord Discord `koanf:"discord"`
	// Perspective API configuration.
	Perspective Perspective `koanf:"perspective"`
	// Auto-moderation configuration.
	Automod Automod `koanf:"automod"`
	// Moderation action configuration.
	Moderation Moderation `koanf:"moderation"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	DBName       string `koanf:"db_name"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported with spans.
	ServiceName string `koanf:"service_name"`
	// Deployment environment reported with spans.
	Environment string `koanf:"environment"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Discord bot token for authentication.
	Token string `koanf:"token"`
	// Maximum number of message events processed concurrently.
	EventWorkers int `koanf:"event_workers"`
}

// Perspective contains toxicity classifier configuration.
type Perspective struct {
	// API key for the Perspective comment analyzer. Toxicity checks are skipped when empty.
	APIKey string `koanf:"api_key"`
	// Languages hinted to the analyzer.
	Languages []string `koanf:"languages"`
	// Request timeout in milliseconds.
	Timeout int `koanf:"timeout"`
}

// Automod contains auto-moderation configuration.
type Automod struct {
	// Bucket store used by the rate limiters ("memory" or "redis").
	RatelimitBackend string `koanf:"ratelimit_backend"`
	// How long resolved guild policies are cached, in seconds.
	PolicyCacheTTL int `koanf:"policy_cache_ttl"`
	// Maximum number of guild policies kept in the cache.
	PolicyCacheSize int `koanf:"policy_cache_size"`
}

// Moderation contains configuration for moderation actions.
type Moderation struct {
	// How often expired tempbans are lifted, in seconds.
	TempbanSweepInterval int `koanf:"tempban_sweep_interval"`
	// How often timeouts longer than 28 days are re-applied, in seconds.
	TimeoutSweepInterval int `koanf:"timeout_sweep_interval"`
}

// LoadConfig loads the configuration from the config search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".snedbot",
		homeDir + "/.snedbot/config",
		"/etc/snedbot/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads the configuration from the first search path that
// contains each config file.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	configFiles := []string{"common", "bot"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	switch config.Bot.Automod.RatelimitBackend {
	case RatelimitBackendMemory, RatelimitBackendRedis:
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownRatelimitStore, config.Bot.Automod.RatelimitBackend)
	}

	return &config, usedConfigPath, nil
}

// applyDefaults fills settings that were left out of the config files.
func (c *Config) applyDefaults() {
	if c.Common.Debug.LogLevel == "" {
		c.Common.Debug.LogLevel = "info"
	}

	if c.Common.Debug.MaxLogsToKeep <= 0 {
		c.Common.Debug.MaxLogsToKeep = 10
	}

	if c.Common.Debug.MaxLogLines <= 0 {
		c.Common.Debug.MaxLogLines = 10000
	}

	if c.Common.Telemetry.ServiceName == "" {
		c.Common.Telemetry.ServiceName = "snedbot"
	}

	if c.Bot.RequestTimeout <= 0 {
		c.Bot.RequestTimeout = 10000
	}

	if c.Bot.Discord.EventWorkers <= 0 {
		c.Bot.Discord.EventWorkers = 32
	}

	if c.Bot.Perspective.Timeout <= 0 {
		c.Bot.Perspective.Timeout = 5000
	}

	if len(c.Bot.Perspective.Languages) == 0 {
		c.Bot.Perspective.Languages = []string{"en"}
	}

	if c.Bot.Automod.RatelimitBackend == "" {
		c.Bot.Automod.RatelimitBackend = RatelimitBackendMemory
	}

	if c.Bot.Automod.PolicyCacheTTL <= 0 {
		c.Bot.Automod.PolicyCacheTTL = 30
	}

	if c.Bot.Automod.PolicyCacheSize <= 0 {
		c.Bot.Automod.PolicyCacheSize = 4096
	}

	if c.Bot.Moderation.TempbanSweepInterval <= 0 {
		c.Bot.Moderation.TempbanSweepInterval = 60
	}

	if c.Bot.Moderation.TimeoutSweepInterval <= 0 {
		c.Bot.Moderation.TimeoutSweepInterval = 600
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/obviouslynottop1/snedbot/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
