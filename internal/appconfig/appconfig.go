// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is the root-level location older checkouts used.
	legacyConfigPath = "config.json"
	// defaultRequestTimeout is the default timeout for provider HTTP requests.
	defaultRequestTimeout = 120 * time.Second
	// defaultLogFile is where logs go when the config leaves logFile empty.
	defaultLogFile = "logs/examrag.log"
)

// Supported provider backends.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Supported search strategies.
const (
	SearchMMR        = "mmr"
	SearchSimilarity = "similarity"
)

// Config represents the top-level application configuration.
type Config struct {
	Provider           string  `json:"provider" mapstructure:"provider" yaml:"provider"`
	BaseURL            string  `json:"baseURL" mapstructure:"baseURL" yaml:"baseURL"`
	ChatModel          string  `json:"chatModel" mapstructure:"chatModel" yaml:"chatModel"`
	EmbeddingModel     string  `json:"embeddingModel" mapstructure:"embeddingModel" yaml:"embeddingModel"`
	Temperature        float64 `json:"temperature" mapstructure:"temperature" yaml:"temperature"`
	DisableStreaming   bool    `json:"disableStreaming" mapstructure:"disableStreaming" yaml:"disableStreaming"`
	TimeoutSeconds     int     `json:"timeout,omitempty" mapstructure:"timeout" yaml:"timeout,omitempty"`
	RequestsPerSecond  float64 `json:"requestsPerSecond,omitempty" mapstructure:"requestsPerSecond" yaml:"requestsPerSecond,omitempty"`
	DBPath             string  `json:"dbPath" mapstructure:"dbPath" yaml:"dbPath"`
	SearchType         string  `json:"searchType" mapstructure:"searchType" yaml:"searchType"`
	TopK               int     `json:"k" mapstructure:"k" yaml:"k"`
	FetchK             int     `json:"fetchK" mapstructure:"fetchK" yaml:"fetchK"`
	LambdaMult         float64 `json:"lambdaMult" mapstructure:"lambdaMult" yaml:"lambdaMult"`
	MemoryWindow       int     `json:"memoryWindow" mapstructure:"memoryWindow" yaml:"memoryWindow"`
	ReformulationTurns int     `json:"reformulationTurns" mapstructure:"reformulationTurns" yaml:"reformulationTurns"`
	ChunkSize          int     `json:"chunkSize" mapstructure:"chunkSize" yaml:"chunkSize"`
	ChunkOverlap       int     `json:"chunkOverlap" mapstructure:"chunkOverlap" yaml:"chunkOverlap"`
	ChatHistoryFile    string  `json:"chatHistoryFile" mapstructure:"chatHistoryFile" yaml:"chatHistoryFile"`
	LogFile            string  `json:"logFile,omitempty" mapstructure:"logFile" yaml:"logFile,omitempty"`
	MetricsFile        string  `json:"metricsFile,omitempty" mapstructure:"metricsFile" yaml:"metricsFile,omitempty"`
	ServerAddr         string  `json:"serverAddr" mapstructure:"serverAddr" yaml:"serverAddr"`
	OTLPEndpoint       string  `json:"otlpEndpoint,omitempty" mapstructure:"otlpEndpoint" yaml:"otlpEndpoint,omitempty"`
	OTLPInsecure       bool    `json:"otlpInsecure,omitempty" mapstructure:"otlpInsecure" yaml:"otlpInsecure,omitempty"`
	SystemPrompt       string  `json:"systemPrompt,omitempty" mapstructure:"systemPrompt" yaml:"systemPrompt,omitempty"`
	Debug              bool    `json:"debug" mapstructure:"debug" yaml:"debug"`
	APIKey             string  `json:"-" mapstructure:"-" yaml:"-"`
	ConfigPath         string  `json:"-" mapstructure:"-" yaml:"-"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Provider:           ProviderOpenAI,
		BaseURL:            "https://api.openai.com/v1",
		ChatModel:          "gpt-4o-mini-2024-07-18",
		EmbeddingModel:     "text-embedding-3-small",
		Temperature:        0.2,
		TimeoutSeconds:     int(defaultRequestTimeout.Seconds()),
		DBPath:             "data/vectordb",
		SearchType:         SearchMMR,
		TopK:               5,
		FetchK:             10,
		LambdaMult:         0.8,
		MemoryWindow:       6,
		ReformulationTurns: 2,
		ChunkSize:          1200,
		ChunkOverlap:       400,
		ChatHistoryFile:    "data/chat_history.json",
		LogFile:            defaultLogFile,
		MetricsFile:        "data/metrics.json",
		ServerAddr:         ":8080",
	}
}

// SetDefaults registers every default value on v so that keys absent from
// the config file and flags still resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("baseURL", d.BaseURL)
	v.SetDefault("chatModel", d.ChatModel)
	v.SetDefault("embeddingModel", d.EmbeddingModel)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("disableStreaming", d.DisableStreaming)
	v.SetDefault("timeout", d.TimeoutSeconds)
	v.SetDefault("requestsPerSecond", d.RequestsPerSecond)
	v.SetDefault("dbPath", d.DBPath)
	v.SetDefault("searchType", d.SearchType)
	v.SetDefault("k", d.TopK)
	v.SetDefault("fetchK", d.FetchK)
	v.SetDefault("lambdaMult", d.LambdaMult)
	v.SetDefault("memoryWindow", d.MemoryWindow)
	v.SetDefault("reformulationTurns", d.ReformulationTurns)
	v.SetDefault("chunkSize", d.ChunkSize)
	v.SetDefault("chunkOverlap", d.ChunkOverlap)
	v.SetDefault("chatHistoryFile", d.ChatHistoryFile)
	v.SetDefault("logFile", d.LogFile)
	v.SetDefault("metricsFile", d.MetricsFile)
	v.SetDefault("serverAddr", d.ServerAddr)
	v.SetDefault("otlpEndpoint", d.OTLPEndpoint)
	v.SetDefault("otlpInsecure", d.OTLPInsecure)
	v.SetDefault("debug", d.Debug)
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// Streaming reports whether answers are generated as a token stream.
func (c Config) Streaming() bool {
	return !c.DisableStreaming
}

// Tracing describes where chain spans are exported.
func (c Config) Tracing() string {
	switch {
	case strings.TrimSpace(c.OTLPEndpoint) != "":
		return "otlp " + c.OTLPEndpoint
	case c.Debug:
		return "log file"
	default:
		return "off"
	}
}

// Validate reports configuration errors that would make the pipeline
// misbehave rather than fail loudly.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case ProviderOpenAI, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	switch strings.ToLower(strings.TrimSpace(c.SearchType)) {
	case SearchMMR, SearchSimilarity:
	default:
		errs = append(errs, fmt.Errorf("unknown searchType %q", c.SearchType))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("k must be greater than zero, got %d", c.TopK))
	}
	if c.FetchK < c.TopK {
		errs = append(errs, fmt.Errorf("fetchK (%d) must be >= k (%d)", c.FetchK, c.TopK))
	}
	if c.LambdaMult < 0 || c.LambdaMult > 1 {
		errs = append(errs, fmt.Errorf("lambdaMult must be within [0,1], got %v", c.LambdaMult))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunkSize must be greater than zero"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunkOverlap must be within [0,chunkSize)"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, fmt.Errorf("dbPath is required"))
	}
	return errors.Join(errs...)
}

// Load reads the application configuration from the specified path, with fallback to a legacy path.
// Values absent from the file take their defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err == nil {
		config.ConfigPath = path
		return config, config.Validate()
	}

	if errors.Is(err, os.ErrNotExist) {
		if path == DefaultConfigPath {
			config, legacyErr := loadFromPath(legacyConfigPath)
			if legacyErr == nil {
				config.ConfigPath = legacyConfigPath
				return config, config.Validate()
			}
			if errors.Is(legacyErr, os.ErrNotExist) {
				return Config{}, fmt.Errorf("no configuration file found (searched %q and %q)", DefaultConfigPath, legacyConfigPath)
			}
			return Config{}, fmt.Errorf("could not read config file %q: %w", legacyConfigPath, legacyErr)
		}
		return Config{}, fmt.Errorf("no configuration file found at %q", path)
	}

	return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, err
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
