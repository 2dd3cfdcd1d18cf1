// Package config provides configuration management for the math-text editor.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "latex-mathedit-config.json"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// EnvPreviewAddr overrides the preview service listen address
	EnvPreviewAddr = "MATHEDIT_PREVIEW_ADDR"
	// EnvTypingWindowMs overrides the typing window in milliseconds
	EnvTypingWindowMs = "MATHEDIT_TYPING_WINDOW_MS"
	// EnvLogLevel overrides the log level
	EnvLogLevel = "MATHEDIT_LOG_LEVEL"

	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the model used for LaTeX repair suggestions
	DefaultModel = "gpt-4o-mini"
	// DefaultTypingWindowMs is how long a field stays "typing" after the last input event
	DefaultTypingWindowMs = 300
	// DefaultBlurSettleMs is how long a blur waits before checking where focus went
	DefaultBlurSettleMs = 50
	// DefaultEchoFrameMs approximates one animation frame
	DefaultEchoFrameMs = 16
	// DefaultWidgetLoadRetry is the number of retries after the first failed widget load
	DefaultWidgetLoadRetry = 2
	// DefaultWidgetBackoffMs is the wait before the first retry; it doubles per retry
	DefaultWidgetBackoffMs = 250
	// DefaultPreviewAddr is the preview service listen address
	DefaultPreviewAddr = "127.0.0.1:8787"
	// DefaultLogLevel is the default log level
	DefaultLogLevel = "info"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "latex-mathedit", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		OpenAIBaseURL:   DefaultBaseURL,
		OpenAIModel:     DefaultModel,
		TypingWindowMs:  DefaultTypingWindowMs,
		BlurSettleMs:    DefaultBlurSettleMs,
		EchoFrameMs:     DefaultEchoFrameMs,
		WidgetLoadRetry: DefaultWidgetLoadRetry,
		WidgetBackoffMs: DefaultWidgetBackoffMs,
		PreviewAddr:     DefaultPreviewAddr,
		LogLevel:        DefaultLogLevel,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist or is not valid JSON, it uses default values.
// A .env file in the working directory is loaded first when present, and
// environment overrides are applied after the file.
func (m *ConfigManager) Load() error {
	// Optional: local .env for development. Missing file is fine.
	_ = godotenv.Load()

	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig()
		} else {
			logger.Info("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.Int("apiKeyLength", len(config.OpenAIAPIKey)),
				logger.String("model", config.OpenAIModel))
			m.config = config
		}
	}

	m.applyEnv()
	m.applyDefaults()
	return nil
}

// applyEnv applies environment overrides on top of the file values.
func (m *ConfigManager) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvPreviewAddr)); v != "" {
		m.config.PreviewAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		m.config.LogLevel = v
	}
	if v := getenvIntDefault(EnvTypingWindowMs, 0); v > 0 {
		m.config.TypingWindowMs = v
	}
}

// applyDefaults fills empty fields and clamps out-of-range values.
func (m *ConfigManager) applyDefaults() {
	c := m.config
	if c.OpenAIModel == "" {
		c.OpenAIModel = DefaultModel
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = DefaultBaseURL
	}
	if c.TypingWindowMs <= 0 {
		c.TypingWindowMs = DefaultTypingWindowMs
	}
	if c.TypingWindowMs > 5000 {
		c.TypingWindowMs = 5000
	}
	if c.BlurSettleMs <= 0 {
		c.BlurSettleMs = DefaultBlurSettleMs
	}
	if c.EchoFrameMs <= 0 {
		c.EchoFrameMs = DefaultEchoFrameMs
	}
	if c.WidgetLoadRetry < 0 {
		c.WidgetLoadRetry = 0
	}
	if c.WidgetLoadRetry > 10 {
		c.WidgetLoadRetry = 10
	}
	if c.WidgetBackoffMs <= 0 {
		c.WidgetBackoffMs = DefaultWidgetBackoffMs
	}
	if c.PreviewAddr == "" {
		c.PreviewAddr = DefaultPreviewAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("ignoring non-integer environment value", logger.String("key", key), logger.String("value", v))
		return def
	}
	return n
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// SetAPIKey sets the OpenAI API key and saves the configuration.
func (m *ConfigManager) SetAPIKey(key string) error {
	logger.Info("setting API key")
	if m.config == nil {
		m.config = defaultConfig()
	}
	m.config.OpenAIAPIKey = key
	return m.Save()
}

// GetBaseURL returns the OpenAI API base URL.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" && m.config.OpenAIBaseURL != DefaultBaseURL {
		return m.config.OpenAIBaseURL
	}
	if envURL := os.Getenv(EnvOpenAIBaseURL); envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

// GetModel returns the OpenAI model to use.
func (m *ConfigManager) GetModel() string {
	if m.config != nil && m.config.OpenAIModel != "" {
		return m.config.OpenAIModel
	}
	return DefaultModel
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// TypingWindow returns how long a field stays in the typing substate.
func (m *ConfigManager) TypingWindow() time.Duration {
	return millis(m.GetConfig().TypingWindowMs, DefaultTypingWindowMs)
}

// BlurSettle returns the delay before a blur is confirmed.
func (m *ConfigManager) BlurSettle() time.Duration {
	return millis(m.GetConfig().BlurSettleMs, DefaultBlurSettleMs)
}

// EchoFrame returns how long the write guard waits for the echo of a programmatic write.
func (m *ConfigManager) EchoFrame() time.Duration {
	return millis(m.GetConfig().EchoFrameMs, DefaultEchoFrameMs)
}

// WidgetBackoff returns the wait before the first widget load retry.
func (m *ConfigManager) WidgetBackoff() time.Duration {
	return millis(m.GetConfig().WidgetBackoffMs, DefaultWidgetBackoffMs)
}

// GetPreviewAddr returns the preview service listen address.
func (m *ConfigManager) GetPreviewAddr() string {
	if addr := m.GetConfig().PreviewAddr; addr != "" {
		return addr
	}
	return DefaultPreviewAddr
}

// GetLogLevel returns the configured log level.
func (m *ConfigManager) GetLogLevel() logger.Level {
	return logger.ParseLevel(m.GetConfig().LogLevel)
}

func millis(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}
