package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Port bounds accepted for the listening socket
const (
	MinPort = 1
	MaxPort = 49151
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	MimeTypes map[string]string `yaml:"mime_types"`
	Retry     RetryConfig       `yaml:"retry"`
	Logging   LogConfig         `yaml:"logging"`
}

// ServerConfig contains settings for the listener, the worker pool and request handling
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	DocRoot         string `yaml:"docroot"`
	Workers         int    `yaml:"workers"`
	QueueMultiplier int    `yaml:"queue_multiplier"`
	Index           string `yaml:"index"`
	NotFoundPage    string `yaml:"not_found_page"`   // relative to DocRoot, empty disables
	MaxRequestBytes int    `yaml:"max_request_bytes"`
	ReadTimeout     int    `yaml:"read_timeout"`   // in seconds, 0 disables
	WriteTimeout    int    `yaml:"write_timeout"`  // in seconds, 0 disables
	ShutdownGrace   int    `yaml:"shutdown_grace"` // in seconds
	StrictMime      bool   `yaml:"strict_mime"`
	ReplyMalformed  bool   `yaml:"reply_malformed"`
}

// RetryConfig contains settings for retrying transient transport errors
type RetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxRetries    int     `yaml:"max_retries"`
	InitialDelay  int     `yaml:"initial_delay"` // in milliseconds
	MaxDelay      int     `yaml:"max_delay"`     // in milliseconds
	BackoffFactor float64 `yaml:"backoff_factor"`
	JitterFactor  float64 `yaml:"jitter_factor"`
}

// LogConfig contains settings for logging
type LogConfig struct {
	LogToFile   bool   `yaml:"log_to_file"`
	LogFilePath string `yaml:"log_file_path"`
	MaxSize     int    `yaml:"max_size"`    // maximum size in megabytes
	MaxBackups  int    `yaml:"max_backups"` // maximum number of old log files to retain
	MaxAge      int    `yaml:"max_age"`     // maximum number of days to retain old log files
	Compress    bool   `yaml:"compress"`    // compress determines if the rotated log files should be compressed
	AccessLog   bool   `yaml:"access_log"`  // print one coloured line per served connection
}

// LoadDefault returns a configuration with default values
func LoadDefault() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			DocRoot:         "docroot",
			Workers:         10,
			QueueMultiplier: 10,
			Index:           "index.html",
			MaxRequestBytes: 8192,
			ShutdownGrace:   5,
		},
		MimeTypes: map[string]string{},
		Retry: RetryConfig{
			Enabled:       true,
			MaxRetries:    5,
			InitialDelay:  5,
			MaxDelay:      1000,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
		Logging: LogConfig{
			LogToFile:   false,
			LogFilePath: "nweb.log",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
			Compress:    true,
		},
	}
}

// Default returns a configuration with default values
// This is an alias for LoadDefault
func Default() *Config {
	return LoadDefault()
}

// Load reads configuration from a file and merges it with default values
func Load(configPath string) (*Config, error) {
	cfg := LoadDefault()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	var set switches
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Merge server configuration
	if fileCfg.Server.Host != "" {
		cfg.Server.Host = fileCfg.Server.Host
	}
	if fileCfg.Server.Port != 0 {
		cfg.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Server.DocRoot != "" {
		cfg.Server.DocRoot = fileCfg.Server.DocRoot
	}
	if fileCfg.Server.Workers != 0 {
		cfg.Server.Workers = fileCfg.Server.Workers
	}
	if fileCfg.Server.QueueMultiplier > 0 {
		cfg.Server.QueueMultiplier = fileCfg.Server.QueueMultiplier
	}
	if fileCfg.Server.Index != "" {
		cfg.Server.Index = fileCfg.Server.Index
	}
	if fileCfg.Server.NotFoundPage != "" {
		cfg.Server.NotFoundPage = fileCfg.Server.NotFoundPage
	}
	if fileCfg.Server.MaxRequestBytes > 0 {
		cfg.Server.MaxRequestBytes = fileCfg.Server.MaxRequestBytes
	}
	if fileCfg.Server.ReadTimeout > 0 {
		cfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if fileCfg.Server.WriteTimeout > 0 {
		cfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if fileCfg.Server.ShutdownGrace > 0 {
		cfg.Server.ShutdownGrace = fileCfg.Server.ShutdownGrace
	}
	mergeBool(&cfg.Server.StrictMime, set.Server.StrictMime)
	mergeBool(&cfg.Server.ReplyMalformed, set.Server.ReplyMalformed)

	for ext, mimeType := range fileCfg.MimeTypes {
		cfg.MimeTypes[ext] = mimeType
	}

	// Merge retry configuration
	mergeBool(&cfg.Retry.Enabled, set.Retry.Enabled)
	if fileCfg.Retry.MaxRetries > 0 {
		cfg.Retry.MaxRetries = fileCfg.Retry.MaxRetries
	}
	if fileCfg.Retry.InitialDelay > 0 {
		cfg.Retry.InitialDelay = fileCfg.Retry.InitialDelay
	}
	if fileCfg.Retry.MaxDelay > 0 {
		cfg.Retry.MaxDelay = fileCfg.Retry.MaxDelay
	}
	if fileCfg.Retry.BackoffFactor > 0 {
		cfg.Retry.BackoffFactor = fileCfg.Retry.BackoffFactor
	}
	if fileCfg.Retry.JitterFactor > 0 {
		cfg.Retry.JitterFactor = fileCfg.Retry.JitterFactor
	}

	// Merge logging configuration
	mergeBool(&cfg.Logging.LogToFile, set.Logging.LogToFile)
	if fileCfg.Logging.LogFilePath != "" {
		cfg.Logging.LogFilePath = fileCfg.Logging.LogFilePath
	}
	if fileCfg.Logging.MaxSize > 0 {
		cfg.Logging.MaxSize = fileCfg.Logging.MaxSize
	}
	if fileCfg.Logging.MaxBackups > 0 {
		cfg.Logging.MaxBackups = fileCfg.Logging.MaxBackups
	}
	if fileCfg.Logging.MaxAge > 0 {
		cfg.Logging.MaxAge = fileCfg.Logging.MaxAge
	}
	mergeBool(&cfg.Logging.Compress, set.Logging.Compress)
	mergeBool(&cfg.Logging.AccessLog, set.Logging.AccessLog)

	ApplyEnv(cfg)

	return cfg, nil
}

// switches records which boolean keys a config file sets, so that an explicit
// false can override a true default and an absent key leaves it alone.
type switches struct {
	Server struct {
		StrictMime     *bool `yaml:"strict_mime"`
		ReplyMalformed *bool `yaml:"reply_malformed"`
	} `yaml:"server"`
	Retry struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"retry"`
	Logging struct {
		LogToFile *bool `yaml:"log_to_file"`
		Compress  *bool `yaml:"compress"`
		AccessLog *bool `yaml:"access_log"`
	} `yaml:"logging"`
}

func mergeBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// LoadOrDefault attempts to load configuration from a file
// If the file doesn't exist or can't be parsed, it returns default configuration
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", configPath, err)
		fmt.Fprintf(os.Stderr, "Using default configuration\n")
		cfg = LoadDefault()
		ApplyEnv(cfg)
	}
	return cfg
}

// ApplyEnv overrides the document root and port from NWEB_DOCROOT and NWEB_PORT
func ApplyEnv(cfg *Config) {
	if docroot := os.Getenv("NWEB_DOCROOT"); docroot != "" {
		cfg.Server.DocRoot = docroot
	}
	if port := os.Getenv("NWEB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

// Validate checks the values the server cannot start without and makes
// DocRoot absolute.
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid port number %d: must be between %d and %d", c.Server.Port, MinPort, MaxPort)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d: must be positive", c.Server.Workers)
	}
	if c.Server.QueueMultiplier <= 0 {
		return fmt.Errorf("invalid queue multiplier %d: must be positive", c.Server.QueueMultiplier)
	}
	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("invalid max request size %d: must be positive", c.Server.MaxRequestBytes)
	}
	if c.Server.Index == "" {
		return fmt.Errorf("index document name must not be empty")
	}

	docroot, err := filepath.Abs(c.Server.DocRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve document root %s: %w", c.Server.DocRoot, err)
	}
	info, err := os.Stat(docroot)
	if err != nil {
		return fmt.Errorf("document root %s: %w", docroot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root %s is not a directory", docroot)
	}
	c.Server.DocRoot = docroot

	return nil
}

// Address returns the listen address in host:port form
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// QueueCapacity returns the connection queue capacity, workers times the multiplier
func (c *Config) QueueCapacity() int {
	return c.Server.Workers * c.Server.QueueMultiplier
}

// ReadTimeoutDuration returns the per-connection read deadline, zero when disabled
func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the per-connection write deadline, zero when disabled
func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

// ShutdownGraceDuration returns how long queued connections may drain on shutdown
func (c *Config) ShutdownGraceDuration() time.Duration {
	return time.Duration(c.Server.ShutdownGrace) * time.Second
}
