package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"patient-registration/pkg/validator"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Mail         MailConfig
	Notification NotificationConfig
	CORS         CORSConfig
}

type AppConfig struct {
	Port     string `env:"APP_PORT" validate:"required"`
	Env      string `env:"APP_ENV"`
	LogLevel string `env:"APP_LOG_LEVEL"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" validate:"required"`
	Port     string `env:"DB_PORT" validate:"required"`
	User     string `env:"DB_USER" validate:"required"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" validate:"required"`
	SSLMode  string `env:"DB_SSLMODE"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" validate:"required"`
	Port     string `env:"REDIS_PORT" validate:"required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

// StorageConfig describes where uploaded documents live on disk and the
// public mount point they are served from.
type StorageConfig struct {
	Root           string `env:"STORAGE_ROOT" validate:"required"`
	PublicPrefix   string `env:"STORAGE_PUBLIC_PREFIX" validate:"required"`
	MaxUploadBytes int64  `env:"STORAGE_MAX_UPLOAD_BYTES" validate:"gt=0"`
}

type MailConfig struct {
	Host        string `env:"MAIL_HOST"`
	Port        int    `env:"MAIL_PORT"`
	Username    string `env:"MAIL_USERNAME"`
	Password    string `env:"MAIL_PASSWORD"`
	FromAddress string `env:"MAIL_FROM_ADDRESS"`
	FromName    string `env:"MAIL_FROM_NAME"`
}

type NotificationConfig struct {
	QueueKey    string        `env:"NOTIFICATION_QUEUE_KEY" validate:"required"`
	MaxAttempts int           `env:"NOTIFICATION_MAX_ATTEMPTS" validate:"gte=1"`
	PollTimeout time.Duration `env:"NOTIFICATION_POLL_TIMEOUT" validate:"gt=0"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "patients")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STORAGE_ROOT", "storage/app/public")
	v.SetDefault("STORAGE_PUBLIC_PREFIX", "/storage/")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 1025)
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("MAIL_FROM_NAME", "Patient Registry")
	v.SetDefault("NOTIFICATION_QUEUE_KEY", "notifications:patient_registered")
	v.SetDefault("NOTIFICATION_MAX_ATTEMPTS", 3)
	v.SetDefault("NOTIFICATION_POLL_TIMEOUT", "5s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// The .env file is optional; the process environment wins either way.
	_ = v.ReadInConfig()

	pollTimeout, err := time.ParseDuration(v.GetString("NOTIFICATION_POLL_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: NOTIFICATION_POLL_TIMEOUT: %w", err)
	}

	config := &Config{
		App: AppConfig{
			Port:     v.GetString("APP_PORT"),
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("APP_LOG_LEVEL"),
		},
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Storage: StorageConfig{
			Root:           v.GetString("STORAGE_ROOT"),
			PublicPrefix:   v.GetString("STORAGE_PUBLIC_PREFIX"),
			MaxUploadBytes: v.GetInt64("STORAGE_MAX_UPLOAD_BYTES"),
		},
		Mail: MailConfig{
			Host:        v.GetString("MAIL_HOST"),
			Port:        v.GetInt("MAIL_PORT"),
			Username:    v.GetString("MAIL_USERNAME"),
			Password:    v.GetString("MAIL_PASSWORD"),
			FromAddress: v.GetString("MAIL_FROM_ADDRESS"),
			FromName:    v.GetString("MAIL_FROM_NAME"),
		},
		Notification: NotificationConfig{
			QueueKey:    v.GetString("NOTIFICATION_QUEUE_KEY"),
			MaxAttempts: v.GetInt("NOTIFICATION_MAX_ATTEMPTS"),
			PollTimeout: pollTimeout,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks every setting against its validate tag. Failures are
// reported by environment variable name.
func (c *Config) Validate() error {
	cv := validator.NewValidator()
	cv.UseTagNames("env")

	err := cv.Validate(c)
	if err == nil {
		return nil
	}

	fieldErrors := cv.FormatValidationErrors(err)
	if len(fieldErrors) == 0 {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, msg := range fieldErrors {
		messages = append(messages, msg)
	}
	sort.Strings(messages)
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

// DSN returns the libpq-style connection string used by gorm.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

// MigrationURL returns the pgx5:// URL understood by golang-migrate.
func (c DBConfig) MigrationURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
