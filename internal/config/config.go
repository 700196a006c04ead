// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
	// ErrNoConfigFile is returned by WatchConfig when there is no file to watch
	ErrNoConfigFile = errors.New("no configuration file found")
)

const envPrefix = "HELPDESK"

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Translation TranslationConfig `mapstructure:"translation"`
	ServiceNow  ServiceNowConfig  `mapstructure:"servicenow"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Feedback    FeedbackConfig    `mapstructure:"feedback"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                   string  `mapstructure:"host"`
	Port                   int     `mapstructure:"port"`
	ReadTimeoutSeconds     int     `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int     `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int     `mapstructure:"shutdown_timeout_seconds"`
	RateLimitRPS           float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst         int     `mapstructure:"rate_limit_burst"`
	// AdminToken guards the /admin endpoints; empty disables them
	AdminToken string `mapstructure:"admin_token"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// KnowledgeConfig locates the fix record directory
type KnowledgeConfig struct {
	DocsDir          string `mapstructure:"docs_dir"`
	Watch            bool   `mapstructure:"watch"`
	ReloadDebounceMS int    `mapstructure:"reload_debounce_ms"`
}

// ReloadDebounce returns the watcher debounce as a duration
func (k KnowledgeConfig) ReloadDebounce() time.Duration {
	return time.Duration(k.ReloadDebounceMS) * time.Millisecond
}

// ResolverConfig selects the matching strategy
type ResolverConfig struct {
	Strategy            string  `mapstructure:"strategy"`
	Extractor           string  `mapstructure:"extractor"`
	KeywordLimit        int     `mapstructure:"keyword_limit"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	PersistDir          string  `mapstructure:"persist_dir"`
	Compress            bool    `mapstructure:"compress"`
}

// TranslationConfig contains translation settings
type TranslationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	TargetLanguage  string  `mapstructure:"target_language"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	Temperature     float64 `mapstructure:"temperature"`
	AlwaysTranslate bool    `mapstructure:"always_translate"`
	CacheTTLMinutes int     `mapstructure:"cache_ttl_minutes"`
}

// Timeout returns the per-translation timeout
func (t TranslationConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long translations are cached
func (t TranslationConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLMinutes) * time.Minute
}

// ServiceNowConfig contains ticketing settings
type ServiceNowConfig struct {
	Instance       string `mapstructure:"instance"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Category       string `mapstructure:"category"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	MaxWaitSeconds int    `mapstructure:"max_wait_seconds"`
}

// Configured reports whether tickets can be created
func (s ServiceNowConfig) Configured() bool {
	return s.Instance != "" && s.Username != "" && s.Password != ""
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey         string `mapstructure:"apikey"`
	Endpoint       string `mapstructure:"endpoint"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// CacheConfig selects the shared cache backend
type CacheConfig struct {
	StorageType string `mapstructure:"storage_type"`
	RedisURL    string `mapstructure:"redis_url"`
	KeyPrefix   string `mapstructure:"key_prefix"`
	TTLMinutes  int    `mapstructure:"ttl_minutes"`
	MaxEntries  int    `mapstructure:"max_entries"`
}

// FeedbackConfig contains feedback storage configuration
type FeedbackConfig struct {
	StorageType string `mapstructure:"storage_type"`
	FilePath    string `mapstructure:"file_path"`
	DBPath      string `mapstructure:"db_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	ValidateRequired bool
}

// Load loads configuration from an optional file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// running from environment variables alone is fine
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.rate_limit_rps", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("knowledge.docs_dir", "./docs")
	v.SetDefault("knowledge.watch", true)
	v.SetDefault("knowledge.reload_debounce_ms", 500)

	v.SetDefault("resolver.strategy", "keyword")
	v.SetDefault("resolver.extractor", "stopword")
	v.SetDefault("resolver.keyword_limit", 4)
	v.SetDefault("resolver.similarity_threshold", 0.75)
	v.SetDefault("resolver.persist_dir", "")
	v.SetDefault("resolver.compress", false)

	v.SetDefault("translation.enabled", true)
	v.SetDefault("translation.target_language", "en")
	v.SetDefault("translation.timeout_seconds", 10)
	v.SetDefault("translation.temperature", 0.3)
	v.SetDefault("translation.always_translate", false)
	v.SetDefault("translation.cache_ttl_minutes", 1440)

	v.SetDefault("servicenow.instance", "")
	v.SetDefault("servicenow.username", "")
	v.SetDefault("servicenow.password", "")
	v.SetDefault("servicenow.category", "inquiry")
	v.SetDefault("servicenow.timeout_seconds", 10)
	v.SetDefault("servicenow.max_retries", 2)
	v.SetDefault("servicenow.max_wait_seconds", 15)

	v.SetDefault("openai.apikey", "")
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.timeout_seconds", 10)
	v.SetDefault("openai.max_retries", 2)

	v.SetDefault("cache.storage_type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "helpdesk:")
	v.SetDefault("cache.ttl_minutes", 1440)
	v.SetDefault("cache.max_entries", 1000)

	v.SetDefault("feedback.storage_type", "file")
	v.SetDefault("feedback.file_path", "./data/feedback.jsonl")
	v.SetDefault("feedback.db_path", "./data/feedback.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile picks CONFIG_PATH, then configPath, then the default
// locations. Only an explicitly named file is required to exist.
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return nil
}

// setEnvironmentMappings maps the conventional unprefixed variables
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"PORT":                 "server.port",
		"ADMIN_TOKEN":          "server.admin_token",
		"DOCS_DIR":             "knowledge.docs_dir",
		"RESOLVER_STRATEGY":    "resolver.strategy",
		"KEYWORD_EXTRACTOR":    "resolver.extractor",
		"SIMILARITY_THRESHOLD": "resolver.similarity_threshold",
		"SERVICENOW_INSTANCE":  "servicenow.instance",
		"SERVICENOW_USERNAME":  "servicenow.username",
		"SERVICENOW_PASSWORD":  "servicenow.password",
		"OPENAI_API_KEY":       "openai.apikey",
		"OPENAI_ENDPOINT":      "openai.endpoint",
		"REDIS_URL":            "cache.redis_url",
		"LOG_LEVEL":            "logging.level",
		"LOG_FORMAT":           "logging.format",
		"LOG_OUTPUT":           "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}
	if c.Server.RateLimitRPS < 0 {
		add("server.rate_limit_rps", "rate_limit_rps must be greater than or equal to 0")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		add("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled")
	}

	if strings.TrimSpace(c.Knowledge.DocsDir) == "" {
		add("knowledge.docs_dir", "knowledge base directory is required. Set via config file or DOCS_DIR environment variable")
	}
	if c.Knowledge.ReloadDebounceMS < 0 {
		add("knowledge.reload_debounce_ms", "reload_debounce_ms must be greater than or equal to 0")
	}

	validStrategies := []string{"keyword", "semantic"}
	if !contains(validStrategies, c.Resolver.Strategy) {
		add("resolver.strategy", fmt.Sprintf("strategy must be one of: %s", strings.Join(validStrategies, ", ")))
	}
	validExtractors := []string{"stopword", "statistical", "llm"}
	if !contains(validExtractors, c.Resolver.Extractor) {
		add("resolver.extractor", fmt.Sprintf("extractor must be one of: %s", strings.Join(validExtractors, ", ")))
	}
	if c.Resolver.KeywordLimit <= 0 {
		add("resolver.keyword_limit", "keyword_limit must be greater than 0")
	}
	if c.Resolver.SimilarityThreshold < 0 || c.Resolver.SimilarityThreshold > 1 {
		add("resolver.similarity_threshold", "similarity_threshold must be between 0 and 1")
	}
	if c.OpenAI.APIKey == "" {
		if c.Resolver.Strategy == "semantic" {
			add("openai.apikey", "OpenAI API key is required for the semantic strategy. Set via config file or OPENAI_API_KEY environment variable")
		}
		if c.Resolver.Extractor == "llm" {
			add("openai.apikey", "OpenAI API key is required for the llm keyword extractor. Set via config file or OPENAI_API_KEY environment variable")
		}
	}

	if c.Translation.Enabled && strings.TrimSpace(c.Translation.TargetLanguage) == "" {
		add("translation.target_language", "target_language is required when translation is enabled")
	}
	if c.Translation.TimeoutSeconds <= 0 {
		add("translation.timeout_seconds", "timeout_seconds must be greater than 0")
	}
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 2 {
		add("translation.temperature", "temperature must be between 0 and 2")
	}

	if c.ServiceNow.Instance != "" {
		if u, err := url.Parse(c.ServiceNow.Instance); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("servicenow.instance", "instance must be an http(s) URL such as https://example.service-now.com")
		}
	}
	if c.ServiceNow.TimeoutSeconds <= 0 {
		add("servicenow.timeout_seconds", "timeout_seconds must be greater than 0")
	}
	if c.ServiceNow.MaxRetries < 0 {
		add("servicenow.max_retries", "max_retries must be greater than or equal to 0")
	}
	if c.ServiceNow.MaxWaitSeconds < 0 {
		add("servicenow.max_wait_seconds", "max_wait_seconds must be greater than or equal to 0")
	}

	if c.OpenAI.TimeoutSeconds <= 0 {
		add("openai.timeout_seconds", "timeout_seconds must be greater than 0")
	}
	if c.OpenAI.MaxRetries < 0 {
		add("openai.max_retries", "max_retries must be greater than or equal to 0")
	}

	validCacheTypes := []string{"memory", "redis", "none"}
	if !contains(validCacheTypes, c.Cache.StorageType) {
		add("cache.storage_type", fmt.Sprintf("storage type must be one of: %s", strings.Join(validCacheTypes, ", ")))
	}
	if c.Cache.StorageType == "redis" && c.Cache.RedisURL == "" {
		add("cache.redis_url", "redis_url is required for the redis cache. Set via config file or REDIS_URL environment variable")
	}

	validStorageTypes := []string{"file", "sqlite", "none"}
	if !contains(validStorageTypes, c.Feedback.StorageType) {
		add("feedback.storage_type", fmt.Sprintf("storage type must be one of: %s", strings.Join(validStorageTypes, ", ")))
	}
	if c.Feedback.StorageType == "file" && c.Feedback.FilePath == "" {
		add("feedback.file_path", "file_path is required for file storage")
	}
	if c.Feedback.StorageType == "sqlite" && c.Feedback.DBPath == "" {
		add("feedback.db_path", "db_path is required for sqlite storage")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logging.Level) {
		add("logging.level", fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logging.Format) {
		add("logging.format", fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(messages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	if masked.ServiceNow.Password != "" {
		masked.ServiceNow.Password = strings.Repeat("*", len(masked.ServiceNow.Password))
	}
	if masked.Server.AdminToken != "" {
		masked.Server.AdminToken = maskValue(masked.Server.AdminToken)
	}
	if masked.Cache.RedisURL != "" {
		masked.Cache.RedisURL = maskURLPassword(masked.Cache.RedisURL)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig reloads the configuration whenever the file changes. Invalid
// edits are logged and ignored; callback only ever sees validated configs.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrNoConfigFile
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	file := v.ConfigFileUsed()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       file,
			ValidateRequired: true,
		})
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return
		}

		callback(config)
	})
	v.WatchConfig()

	return nil
}
