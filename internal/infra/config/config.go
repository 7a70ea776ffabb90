package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Session   SessionSettings   `mapstructure:"session"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Throttle  ThrottleSettings  `mapstructure:"throttle"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	OAuth     OAuthSettings     `mapstructure:"oauth"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisSettings configures the cache connection and key namespace.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the producer backing the email capability.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// SessionSettings governs session lifetime and the password-change policy.
type SessionSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
	// PermanentTTL applies when the client asked to be remembered.
	PermanentTTL time.Duration `mapstructure:"permanent_ttl"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	// ReissueOnPasswordChange controls whether change_password establishes a
	// fresh session after purging the old ones.
	ReissueOnPasswordChange bool `mapstructure:"reissue_on_password_change"`
}

// TokenSettings holds the codec secrets and TTLs for single-use tokens.
type TokenSettings struct {
	RegistrationSecret  string        `mapstructure:"registration_secret"`
	RegistrationTTL     time.Duration `mapstructure:"registration_ttl"`
	PasswordResetSecret string        `mapstructure:"password_reset_secret"`
	PasswordResetTTL    time.Duration `mapstructure:"password_reset_ttl"`
	OTPChallengeSecret  string        `mapstructure:"otp_challenge_secret"`
	OTPChallengeTTL     time.Duration `mapstructure:"otp_challenge_ttl"`
}

// ThrottleSettings configures per-action attempt limits and windows.
type ThrottleSettings struct {
	LoginMaxAttempts int `mapstructure:"login_max_attempts"`
	// LoginFreezeAttempts is the higher threshold past which the account is
	// frozen until administrative unfreeze.
	LoginFreezeAttempts int           `mapstructure:"login_freeze_attempts"`
	LoginWindow         time.Duration `mapstructure:"login_window"`
	OTPMaxAttempts      int           `mapstructure:"otp_max_attempts"`
	OTPWindow           time.Duration `mapstructure:"otp_window"`
	EmailCooldown       time.Duration `mapstructure:"email_cooldown"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// OAuthSettings carries per-provider client credentials.
type OAuthSettings struct {
	GitHub OAuthProviderSettings `mapstructure:"github"`
	Google OAuthProviderSettings `mapstructure:"google"`
}

type OAuthProviderSettings struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTHGATE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"session.ttl",
		"session.permanent_ttl",
		"session.cache_ttl",
		"session.reissue_on_password_change",
		"tokens.registration_secret",
		"tokens.registration_ttl",
		"tokens.password_reset_secret",
		"tokens.password_reset_ttl",
		"tokens.otp_challenge_secret",
		"tokens.otp_challenge_ttl",
		"throttle.login_max_attempts",
		"throttle.login_freeze_attempts",
		"throttle.login_window",
		"throttle.otp_max_attempts",
		"throttle.otp_window",
		"throttle.email_cooldown",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"oauth.github.client_id",
		"oauth.github.client_secret",
		"oauth.github.redirect_uri",
		"oauth.google.client_id",
		"oauth.google.client_secret",
		"oauth.google.redirect_uri",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "authgate")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "authgate")
	v.SetDefault("postgres.password", "authgate_password")
	v.SetDefault("postgres.database", "authgate")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "authgate")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "authgate")

	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.permanent_ttl", "720h")
	v.SetDefault("session.cache_ttl", "30m")
	v.SetDefault("session.reissue_on_password_change", false)

	v.SetDefault("tokens.registration_secret", "")
	v.SetDefault("tokens.registration_ttl", "24h")
	v.SetDefault("tokens.password_reset_secret", "")
	v.SetDefault("tokens.password_reset_ttl", "1h")
	v.SetDefault("tokens.otp_challenge_secret", "")
	v.SetDefault("tokens.otp_challenge_ttl", "5m")

	v.SetDefault("throttle.login_max_attempts", 5)
	v.SetDefault("throttle.login_freeze_attempts", 10)
	v.SetDefault("throttle.login_window", "5m")
	v.SetDefault("throttle.otp_max_attempts", 5)
	v.SetDefault("throttle.otp_window", "5m")
	v.SetDefault("throttle.email_cooldown", "1m")

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "authgate")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTHGATE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
