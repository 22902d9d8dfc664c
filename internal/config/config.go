package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Printify  PrintifyConfig
	Shopify   ShopifyConfig
	Publish   PublishConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	// DataDir holds one JSON file per collection
	DataDir string
}

type PrintifyConfig struct {
	BaseURL string
	Token   string
	ShopID  string
	Timeout time.Duration
}

type ShopifyConfig struct {
	StoreDomain string
	AdminToken  string
	APIVersion  string
	Timeout     time.Duration
}

type PublishConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// LockTTL bounds how long a crashed process can hold a Redis slug lock
	LockTTL time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5020")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("STORE_DATA_DIR", "data")
	viper.SetDefault("PRINTIFY_TIMEOUT", 60)
	viper.SetDefault("SHOPIFY_API_VERSION", "2024-10")
	viper.SetDefault("SHOPIFY_TIMEOUT", 60)
	viper.SetDefault("PUBLISH_MAX_ATTEMPTS", 3)
	viper.SetDefault("PUBLISH_BACKOFF_BASE_MS", 1000)
	viper.SetDefault("PUBLISH_BACKOFF_CAP_MS", 30000)
	viper.SetDefault("PUBLISH_LOCK_TTL_SECONDS", 120)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			DataDir: viper.GetString("STORE_DATA_DIR"),
		},
		Printify: PrintifyConfig{
			BaseURL: viper.GetString("PRINTIFY_BASE_URL"),
			Token:   viper.GetString("PRINTIFY_API_TOKEN"),
			ShopID:  viper.GetString("PRINTIFY_SHOP_ID"),
			Timeout: time.Duration(viper.GetInt("PRINTIFY_TIMEOUT")) * time.Second,
		},
		Shopify: ShopifyConfig{
			StoreDomain: viper.GetString("SHOPIFY_STORE_DOMAIN"),
			AdminToken:  viper.GetString("SHOPIFY_ADMIN_TOKEN"),
			APIVersion:  viper.GetString("SHOPIFY_API_VERSION"),
			Timeout:     time.Duration(viper.GetInt("SHOPIFY_TIMEOUT")) * time.Second,
		},
		Publish: PublishConfig{
			MaxAttempts: viper.GetInt("PUBLISH_MAX_ATTEMPTS"),
			BackoffBase: time.Duration(viper.GetInt("PUBLISH_BACKOFF_BASE_MS")) * time.Millisecond,
			BackoffCap:  time.Duration(viper.GetInt("PUBLISH_BACKOFF_CAP_MS")) * time.Millisecond,
			LockTTL:     time.Duration(viper.GetInt("PUBLISH_LOCK_TTL_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       0,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}
