package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP/WebSocket server settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
	Session SessionConfig `toml:"session"` // Play-session timer settings
	Games   GamesConfig   `toml:"games"`   // Game catalog and launcher settings
	RFID    RFIDConfig    `toml:"rfid"`    // RFID reader settings
	Monitor MonitorConfig `toml:"monitor"` // Hardware telemetry settings
	Storage StorageConfig `toml:"storage"` // Data persistence settings
	Client  ClientConfig  `toml:"client"`  // Command-center client defaults
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int      `toml:"port"`                  // Primary port for the agent (default 8081)
	Host             string   `toml:"host"`                  // Host address to bind to
	CORSAllowed      []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests
	ReadTimeoutSecs  int      `toml:"read_timeout_seconds"`  // Maximum duration for reading a request
	WriteTimeoutSecs int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int      `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// SessionConfig contains play-session timer and broadcast settings
type SessionConfig struct {
	TickSeconds           int `toml:"tick_seconds"`             // Countdown granularity (default 1)
	BroadcastEverySeconds int `toml:"broadcast_every_seconds"`  // Periodic status cadence while running (default 10)
	GreetingDelayMs       int `toml:"greeting_delay_ms"`        // Delay before the initial snapshot is pushed to a new client
	DefaultDurationSecs   int `toml:"default_duration_seconds"` // Session duration used when a launch omits one
}

// GamesConfig contains the game catalog and launcher settings
type GamesConfig struct {
	Catalog            []GameConfig `toml:"catalog"`              // List of installed games
	LaunchDelayMs      int          `toml:"launch_delay_ms"`      // Startup delay before a launch reports success
	TerminateGraceSecs int          `toml:"terminate_grace_secs"` // Seconds to wait for a game process to exit before killing it
}

// GameConfig contains configuration for a single installed game
type GameConfig struct {
	ID               string `toml:"id"`                   // Unique identifier for this game
	Title            string `toml:"title"`                // Human-readable title (e.g., "Beat Saber")
	ExecutablePath   string `toml:"executable_path"`      // Path to the game executable
	WorkingDirectory string `toml:"working_directory"`    // Working directory for the game process
	Arguments        string `toml:"arguments"`            // Extra command-line arguments
	Description      string `toml:"description"`          // Short description shown in the kiosk UI
	ImageURL         string `toml:"image_url"`            // Cover image path
	MinDurationSecs  int    `toml:"min_duration_seconds"` // Minimum allowed session duration
	MaxDurationSecs  int    `toml:"max_duration_seconds"` // Maximum allowed session duration
}

// RFIDConfig contains RFID reader settings
type RFIDConfig struct {
	Simulated       bool `toml:"simulated"`            // Use the simulated reader instead of real hardware
	ScanTimeoutSecs int  `toml:"scan_timeout_seconds"` // Default scan timeout when the caller supplies none
	HistoryLimit    int  `toml:"history_limit"`        // Default number of history rows returned per card
}

// MonitorConfig contains hardware telemetry settings
type MonitorConfig struct {
	UpdateIntervalSecs int     `toml:"update_interval_seconds"` // How often to sample cpu/mem/disk
	CPUAlertThreshold  float64 `toml:"cpu_alert_threshold"`     // CPU percent above which an alert is raised
	MemAlertThreshold  float64 `toml:"mem_alert_threshold"`     // Memory percent above which an alert is raised
	DiskAlertMinFreeMB float64 `toml:"disk_alert_min_free_mb"`  // Free disk MB below which an alert is raised
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the agent's SQLite database file
}

// ClientConfig contains command-center client defaults
type ClientConfig struct {
	URL                   string `toml:"url"`                        // Agent websocket endpoint (e.g., ws://localhost:8081/ws)
	MaxReconnectAttempts  int    `toml:"max_reconnect_attempts"`     // Bounded reconnect attempts before giving up
	ReconnectDelayMs      int    `toml:"reconnect_delay_ms"`         // Initial reconnect delay (grows exponentially)
	MaxReconnectDelayMs   int    `toml:"max_reconnect_delay_ms"`     // Cap on the reconnect delay
	CommandTimeoutSecs    int    `toml:"command_timeout_seconds"`    // Generic per-command response timeout
	HeartbeatIntervalSecs int    `toml:"heartbeat_interval_seconds"` // Keepalive heartbeat cadence (0 disables)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Default returns a configuration populated with the same defaults
// Validate applies, useful for tests and the embedded client.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Session.TickSeconds <= 0 {
		return fmt.Errorf("invalid session tick_seconds: %d", c.Session.TickSeconds)
	}
	if c.Session.BroadcastEverySeconds <= 0 {
		return fmt.Errorf("invalid session broadcast_every_seconds: %d", c.Session.BroadcastEverySeconds)
	}

	seenGames := make(map[string]bool)
	for _, g := range c.Games.Catalog {
		if g.ID == "" {
			return fmt.Errorf("game catalog entry missing id (title: %q)", g.Title)
		}
		if g.Title == "" {
			return fmt.Errorf("game %s missing title", g.ID)
		}
		if seenGames[g.ID] {
			return fmt.Errorf("duplicate game id in catalog: %s", g.ID)
		}
		seenGames[g.ID] = true
		if g.MinDurationSecs > 0 && g.MaxDurationSecs > 0 && g.MinDurationSecs > g.MaxDurationSecs {
			return fmt.Errorf("game %s: min_duration_seconds exceeds max_duration_seconds", g.ID)
		}
	}

	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path is required")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8081
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Session.TickSeconds == 0 {
		c.Session.TickSeconds = 1
	}
	if c.Session.BroadcastEverySeconds == 0 {
		c.Session.BroadcastEverySeconds = 10
	}
	if c.Session.GreetingDelayMs == 0 {
		c.Session.GreetingDelayMs = 500
	}
	if c.Session.DefaultDurationSecs == 0 {
		c.Session.DefaultDurationSecs = 600
	}
	if c.Games.LaunchDelayMs == 0 {
		c.Games.LaunchDelayMs = 1000
	}
	if c.Games.TerminateGraceSecs == 0 {
		c.Games.TerminateGraceSecs = 5
	}
	if c.RFID.ScanTimeoutSecs == 0 {
		c.RFID.ScanTimeoutSecs = 30
	}
	if c.RFID.HistoryLimit == 0 {
		c.RFID.HistoryLimit = 10
	}
	if c.Monitor.UpdateIntervalSecs == 0 {
		c.Monitor.UpdateIntervalSecs = 5
	}
	if c.Monitor.CPUAlertThreshold == 0 {
		c.Monitor.CPUAlertThreshold = 90
	}
	if c.Monitor.MemAlertThreshold == 0 {
		c.Monitor.MemAlertThreshold = 90
	}
	if c.Monitor.DiskAlertMinFreeMB == 0 {
		c.Monitor.DiskAlertMinFreeMB = 1024
	}
	if c.Client.MaxReconnectAttempts == 0 {
		c.Client.MaxReconnectAttempts = 5
	}
	if c.Client.ReconnectDelayMs == 0 {
		c.Client.ReconnectDelayMs = 2000
	}
	if c.Client.MaxReconnectDelayMs == 0 {
		c.Client.MaxReconnectDelayMs = 30000
	}
	if c.Client.CommandTimeoutSecs == 0 {
		c.Client.CommandTimeoutSecs = 10
	}
	if c.Client.HeartbeatIntervalSecs == 0 {
		c.Client.HeartbeatIntervalSecs = 30
	}
}
