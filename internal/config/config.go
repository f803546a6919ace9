package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	GitHub    GitHubConfig
	LLM       LLMConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GitHubConfig struct {
	Token   string
	BaseURL string
	Timeout int // seconds
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds, per analyzer call
}

// ArchiveConfig configures the S3-compatible store that completed
// review reports are copied to. All fields empty disables archiving.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RateLimitConfig struct {
	SubmitPerHour int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GITHUB_TOKEN")
	readSecret("LLM_API_KEY")
	readSecret("ARCHIVE_ACCOUNT_ID")
	readSecret("ARCHIVE_ACCESS_KEY_ID")
	readSecret("ARCHIVE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("github.token", "GITHUB_TOKEN")
	_ = viper.BindEnv("github.base_url", "GITHUB_BASE_URL")
	_ = viper.BindEnv("github.timeout", "GITHUB_TIMEOUT")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = viper.BindEnv("archive.account_id", "ARCHIVE_ACCOUNT_ID")
	_ = viper.BindEnv("archive.access_key_id", "ARCHIVE_ACCESS_KEY_ID")
	_ = viper.BindEnv("archive.secret_access_key", "ARCHIVE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("archive.bucket_name", "ARCHIVE_BUCKET_NAME")
	_ = viper.BindEnv("archive.public_url", "ARCHIVE_PUBLIC_URL")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.submit_per_hour", 30)

	// GitHub defaults
	viper.SetDefault("github.base_url", "https://api.github.com")
	viper.SetDefault("github.timeout", 15)

	// LLM defaults — any OpenAI-compatible chat completion endpoint works;
	// a local Ollama instance is the development default.
	viper.SetDefault("llm.base_url", "http://localhost:11434/v1")
	viper.SetDefault("llm.model", "mistral")
	viper.SetDefault("llm.timeout", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		GitHub: GitHubConfig{
			Token:   viper.GetString("github.token"),
			BaseURL: viper.GetString("github.base_url"),
			Timeout: viper.GetInt("github.timeout"),
		},
		LLM: LLMConfig{
			APIKey:  viper.GetString("llm.api_key"),
			BaseURL: viper.GetString("llm.base_url"),
			Model:   viper.GetString("llm.model"),
			Timeout: viper.GetInt("llm.timeout"),
		},
		Archive: ArchiveConfig{
			AccountID:       viper.GetString("archive.account_id"),
			AccessKeyID:     viper.GetString("archive.access_key_id"),
			SecretAccessKey: viper.GetString("archive.secret_access_key"),
			BucketName:      viper.GetString("archive.bucket_name"),
			PublicURL:       viper.GetString("archive.public_url"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
		},
	}

	return cfg, nil
}
