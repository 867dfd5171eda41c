// Package config loads application configuration from environment variables
// and an optional .env file.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OAuth    OAuthConfig
	Pushover PushoverConfig
	Stripe   StripeConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Host        string
	Port        string
	StateSecret string // signs OAuth state cookies
	AppURL      string // public URL, used as the notification title
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type OAuthConfig struct {
	CatalogPath string
	Google      ProviderCredentials
	GitHub      ProviderCredentials
	Notion      ProviderCredentials
}

type PushoverConfig struct {
	APIToken string
	UserKey  string
	Device   string
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads configuration from the environment and .env, applying defaults.
// JWT_SECRET and STATE_SECRET are required; everything else degrades to a
// disabled integration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("HOST", "127.0.0.1")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "notebase.db")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("STORAGE_BUCKET", "notebase")
	viper.SetDefault("PUSHOVER_DEVICE", "iphone")
	viper.SetDefault("PROVIDER_CATALOG_PATH", "providers.yaml")

	cfg := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("HOST"),
			Port:        viper.GetString("PORT"),
			StateSecret: viper.GetString("STATE_SECRET"),
			AppURL:      viper.GetString("APP_URL"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("DATABASE_PATH"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		OAuth: OAuthConfig{
			CatalogPath: viper.GetString("PROVIDER_CATALOG_PATH"),
			Google: ProviderCredentials{
				ClientID:     viper.GetString("GOOGLE_CLIENT_ID"),
				ClientSecret: viper.GetString("GOOGLE_CLIENT_SECRET"),
				RedirectURL:  viper.GetString("GOOGLE_AUTH_CALLBACK"),
			},
			GitHub: ProviderCredentials{
				ClientID:     viper.GetString("GITHUB_CLIENT_ID"),
				ClientSecret: viper.GetString("GITHUB_CLIENT_SECRET"),
				RedirectURL:  viper.GetString("GITHUB_AUTH_CALLBACK"),
			},
			Notion: ProviderCredentials{
				ClientID:     viper.GetString("NOTION_CLIENT_ID"),
				ClientSecret: viper.GetString("NOTION_CLIENT_SECRET"),
				RedirectURL:  viper.GetString("NOTION_AUTH_CALLBACK"),
			},
		},
		Pushover: PushoverConfig{
			APIToken: viper.GetString("PUSHOVER_API_TOKEN"),
			UserKey:  viper.GetString("PUSHOVER_USER_KEY"),
			Device:   viper.GetString("PUSHOVER_DEVICE"),
		},
		Stripe: StripeConfig{
			APIKey:        viper.GetString("STRIPE_API_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("S3_ENDPOINT"),
			AccessKey: viper.GetString("S3_ACCESS_KEY_ID"),
			SecretKey: viper.GetString("S3_SECRET_ACCESS_KEY"),
			Bucket:    viper.GetString("STORAGE_BUCKET"),
			UseSSL:    viper.GetBool("S3_USE_SSL"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.Server.StateSecret == "" {
		return nil, fmt.Errorf("config: STATE_SECRET is required")
	}
	return cfg, nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
