package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Provider  ProviderConfig  `yaml:"provider"`
	Sweeps    SweepConfig     `yaml:"sweeps"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type HTTPConfig struct {
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ProviderConfig struct {
	Name            string        `yaml:"name"`
	BaseURL         string        `yaml:"base_url"`
	AccessToken     string        `yaml:"access_token"`
	Timeout         time.Duration `yaml:"timeout"`
	NotificationURL string        `yaml:"notification_url"`
	PixExpiration   time.Duration `yaml:"pix_expiration"`
}

type SweepConfig struct {
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
	HealthInterval       time.Duration `yaml:"health_interval"`
	NotifyInterval       time.Duration `yaml:"notify_interval"`
	StaleRunThreshold    time.Duration `yaml:"stale_run_threshold"`
	FailureRateWindow    time.Duration `yaml:"failure_rate_window"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	FailureMinSample     int           `yaml:"failure_min_sample"`
	AlertDedupWindow     time.Duration `yaml:"alert_dedup_window"`
	NotifyMaxAttempts    int           `yaml:"notify_max_attempts"`
}

type RateLimitConfig struct {
	PerIPPerMinute   int `yaml:"per_ip_per_minute"`
	PerTenantPerHour int `yaml:"per_tenant_per_hour"`
}

// LoadFile reads a YAML config; values not present fall back to env defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := LoadEnv()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadEnv() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:       getEnvInt("HTTP_PORT", 3000),
			CronSecret: getEnv("CRON_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "admin"),
			Password: getEnv("POSTGRES_PASSWORD", "admin"),
			Database: getEnv("POSTGRES_DBNAME", "oxe_delivery"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
		},
		Provider: ProviderConfig{
			Name:            getEnv("PAYMENT_PROVIDER", "mercadopago"),
			BaseURL:         getEnv("PAYMENT_PROVIDER_URL", "https://api.mercadopago.com"),
			AccessToken:     getEnv("PAYMENT_PROVIDER_TOKEN", ""),
			Timeout:         getEnvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
			NotificationURL: getEnv("PAYMENT_NOTIFICATION_URL", ""),
			PixExpiration:   getEnvDuration("PIX_EXPIRATION", 30*time.Minute),
		},
		Sweeps: SweepConfig{
			ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			HealthInterval:       getEnvDuration("HEALTH_INTERVAL", 5*time.Minute),
			NotifyInterval:       getEnvDuration("NOTIFY_INTERVAL", time.Minute),
			StaleRunThreshold:    getEnvDuration("STALE_RUN_THRESHOLD", 15*time.Minute),
			FailureRateWindow:    getEnvDuration("FAILURE_RATE_WINDOW", 30*time.Minute),
			FailureRateThreshold: 0.30,
			FailureMinSample:     getEnvInt("FAILURE_MIN_SAMPLE", 5),
			AlertDedupWindow:     getEnvDuration("ALERT_DEDUP_WINDOW", time.Hour),
			NotifyMaxAttempts:    getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			PerIPPerMinute:   getEnvInt("RATE_LIMIT_PER_IP", 10),
			PerTenantPerHour: getEnvInt("RATE_LIMIT_PER_TENANT", 300),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
