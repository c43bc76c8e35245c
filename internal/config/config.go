// Package config содержит логику чтения конфигурации сервиса заказов школьной формы.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"vestetec"`
	JWTAudience string        `env:"JWT_AUDIENCE" envDefault:"vestetec-clients"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"8h"`

	MailjetBaseURL   string `env:"MAILJET_BASE_URL" envDefault:"https://api.mailjet.com"`
	MailjetAPIKey    string `env:"MAILJET_API_KEY"`
	MailjetSecretKey string `env:"MAILJET_SECRET_KEY"`
	MailSenderEmail  string `env:"MAIL_SENDER_EMAIL"`
	MailSenderName   string `env:"MAIL_SENDER_NAME" envDefault:"Vestetec"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminName     string `env:"ADMIN_NAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`
	DeliveryLeadDays  int           `env:"DELIVERY_LEAD_DAYS" envDefault:"7"`
	CodeSweepInterval time.Duration `env:"CODE_SWEEP_INTERVAL" envDefault:"1m"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения важнее флагов.
func Parse() (*Config, error) {
	// .env необязателен.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisURL := cfg.RedisURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for token revocation")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisURL != "" {
		cfg.RedisURL = envRedisURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeliveryLead возвращает срок доставки по умолчанию.
func (c *Config) DeliveryLead() time.Duration {
	return time.Duration(c.DeliveryLeadDays) * 24 * time.Hour
}

// MailjetEnabled сообщает, заданы ли ключи Mailjet.
func (c *Config) MailjetEnabled() bool {
	return c.MailjetAPIKey != "" && c.MailjetSecretKey != ""
}

func (c *Config) validate() error {
	switch {
	case c.TokenTTL <= 0:
		return errors.New("TOKEN_TTL must be positive")
	case c.DeliveryLeadDays <= 0:
		return errors.New("DELIVERY_LEAD_DAYS must be positive")
	case c.CodeSweepInterval <= 0:
		return errors.New("CODE_SWEEP_INTERVAL must be positive")
	case c.MailjetEnabled() && c.MailSenderEmail == "":
		return errors.New("MAIL_SENDER_EMAIL is required when Mailjet is configured")
	}
	return nil
}
