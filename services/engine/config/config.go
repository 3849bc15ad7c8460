package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the engine service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	OTelEndpoint string

	NavigationWindow  time.Duration
	MovementWindow    time.Duration
	LiveSessionTTL    time.Duration
	LocationRateLimit int
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		NavigationWindow:  v.GetDuration("navigation_window"),
		MovementWindow:    v.GetDuration("movement_window"),
		LiveSessionTTL:    v.GetDuration("live_session_ttl"),
		LocationRateLimit: v.GetInt("location_rate_limit"),
	}
}
