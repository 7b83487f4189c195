package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"vermithor/logger"
)

const (
	DefaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	DefaultAPIKeyName  = "OPENROUTER_API_KEY"
	DefaultSecretsFile = "secrets.toml"
	envPrefix          = "VERMITHOR"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Completion CompletionConfig `mapstructure:"completion"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	CookieName      string        `mapstructure:"cookie_name" validate:"required"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"` // requests per second per session, 0 disables
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Pprof           bool          `mapstructure:"pprof"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

type OpenRouterConfig struct {
	Endpoint              string        `mapstructure:"endpoint" validate:"required,url"`
	APIKeyName            string        `mapstructure:"api_key_name" validate:"required"`
	SecretsFile           string        `mapstructure:"secrets_file"`
	Referer               string        `mapstructure:"referer"`
	Title                 string        `mapstructure:"title"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

type ModelOption struct {
	Name string `mapstructure:"name" json:"name" validate:"required"`
	ID   string `mapstructure:"id" json:"id" validate:"required"`
}

type ChatConfig struct {
	Title        string        `mapstructure:"title"`
	Icon         string        `mapstructure:"icon"`
	Greeting     string        `mapstructure:"greeting"`
	DefaultModel string        `mapstructure:"default_model"`
	Models       []ModelOption `mapstructure:"models" validate:"required,min=1,dive"`
}

type TranscriptConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// CompletionConfig selects how the web front-end reaches the completion service.
// An empty Address means the OpenRouter client runs in-process.
type CompletionConfig struct {
	Address   string `mapstructure:"address"`
	ServePort int    `mapstructure:"serve_port" validate:"min=1,max=65535"`
}

// DefaultModels is the model catalog offered when none is configured
func DefaultModels() []ModelOption {
	return []ModelOption{
		{Name: "Mistral 7B (Free)", ID: "mistralai/mistral-7b-instruct:free"},
		{Name: "Llama 3.1 8B (Free)", ID: "meta-llama/llama-3.1-8b-instruct:free"},
		{Name: "DeepSeek V3 (Free)", ID: "deepseek/deepseek-chat-v3-0324:free"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cookie_name", "vermithor_session")
	v.SetDefault("server.rate_limit", 0.5)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.pprof", false)

	v.SetDefault("log.level", "")

	v.SetDefault("openrouter.endpoint", DefaultEndpoint)
	v.SetDefault("openrouter.api_key_name", DefaultAPIKeyName)
	v.SetDefault("openrouter.secrets_file", DefaultSecretsFile)
	v.SetDefault("openrouter.referer", "http://localhost:8080")
	v.SetDefault("openrouter.title", "Vermithor Chatbot")
	v.SetDefault("openrouter.response_header_timeout", 30*time.Second)

	v.SetDefault("chat.title", "AI Chatbot Vermithor")
	v.SetDefault("chat.icon", "🐣")
	v.SetDefault("chat.greeting", "Hello! I'm Vermithor. How can I help you today?")
	v.SetDefault("chat.default_model", "")
	models := make([]map[string]any, 0, 3)
	for _, m := range DefaultModels() {
		models = append(models, map[string]any{"name": m.Name, "id": m.ID})
	}
	v.SetDefault("chat.models", models)

	v.SetDefault("transcript.backend", "memory")
	v.SetDefault("transcript.redis_addr", "")
	v.SetDefault("transcript.redis_password", "")
	v.SetDefault("transcript.redis_db", 0)
	v.SetDefault("transcript.ttl", 24*time.Hour)

	v.SetDefault("completion.address", "")
	v.SetDefault("completion.serve_port", 50053)
}

// Load reads configuration from configPath (or ./configs/config.yaml, ./config.yaml
// when empty), then applies VERMITHOR_* environment overrides. A missing default
// config file is not an error: every key has a default.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Chat.DefaultModel != "" {
		found := false
		for _, m := range c.Chat.Models {
			if m.ID == c.Chat.DefaultModel || m.Name == c.Chat.DefaultModel {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("chat.default_model %q is not in chat.models", c.Chat.DefaultModel)
		}
	}

	return nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Credential builds the API key lookup used at request time:
// the environment variable first, then the secrets file.
func (c *Config) Credential() SecretChain {
	chain := SecretChain{EnvSecret{Name: c.OpenRouter.APIKeyName}}
	if c.OpenRouter.SecretsFile != "" {
		chain = append(chain, SecretsFile{Path: c.OpenRouter.SecretsFile, Key: c.OpenRouter.APIKeyName})
	}
	return chain
}

// ApplyLogLevel sets the logger level from log.level. An empty level keeps
// the one chosen by LOG_LEVEL at startup.
func (c *Config) ApplyLogLevel() error {
	if c.Log.Level == "" {
		return nil
	}
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}
