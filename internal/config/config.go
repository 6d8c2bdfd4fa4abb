package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// AutoMigrate brings the schema up on start. Disable when migrations
	// are managed outside the process.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AdmissionConfig struct {
	// FailOpen admits requests when the tier cannot be resolved or the
	// counter backend is unreachable. Availability over revenue protection.
	FailOpen bool `mapstructure:"fail_open"`

	BypassPaths []string `mapstructure:"bypass_paths"`

	// QuotaCounterTTL must outlive a calendar month.
	QuotaCounterTTL time.Duration `mapstructure:"quota_counter_ttl"`
	RateCounterTTL  time.Duration `mapstructure:"rate_counter_ttl"`

	TierCacheTTL time.Duration `mapstructure:"tier_cache_ttl"`
}

type UsageConfig struct {
	Stream           string `mapstructure:"stream"`
	DeadLetterStream string `mapstructure:"dead_letter_stream"`
	Group            string `mapstructure:"group"`
	Consumer         string `mapstructure:"consumer"`
	BufferSize       int    `mapstructure:"buffer_size"`
}

type BillingConfig struct {
	// OverageRate is the per-request fee beyond the monthly quota.
	OverageRate string `mapstructure:"overage_rate"`

	// RunHourUTC is the hour of day, on the first of each month, at which
	// the batch billing job fires.
	RunHourUTC int `mapstructure:"run_hour_utc"`
}

type GatewayConfig struct {
	UpstreamURL string `mapstructure:"upstream_url"`
}

type Config struct {
	Env       string          `mapstructure:"env"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

func Load() (Config, error) {
	// Best effort; production deployments inject real env vars.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("METERGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("admission.fail_open", true)
	v.SetDefault("admission.bypass_paths", []string{"/api/auth", "/swagger", "/healthz", "/metrics"})
	v.SetDefault("admission.quota_counter_ttl", 35*24*time.Hour)
	v.SetDefault("admission.rate_counter_ttl", 2*time.Second)
	v.SetDefault("admission.tier_cache_ttl", 24*time.Hour)
	v.SetDefault("usage.stream", "usage:events")
	v.SetDefault("usage.dead_letter_stream", "usage:events:dead")
	v.SetDefault("usage.group", "usage-trackers")
	v.SetDefault("usage.consumer", "worker-1")
	v.SetDefault("usage.buffer_size", 1024)
	v.SetDefault("billing.overage_rate", "0.01")
	v.SetDefault("billing.run_hour_utc", 2)
	v.SetDefault("gateway.upstream_url", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
