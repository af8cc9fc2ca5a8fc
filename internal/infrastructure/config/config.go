package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Services      ServicesConfig      `mapstructure:"services"`
	Events        EventsConfig        `mapstructure:"events"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	PoolSize          int           `mapstructure:"pool_size"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PaymentConfig holds the lifecycle timing and the frontend used in notification links.
type PaymentConfig struct {
	ExpiryTimeout  time.Duration `mapstructure:"expiry_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
	SweepLockTTL   time.Duration `mapstructure:"sweep_lock_ttl"`
	FrontendURL    string        `mapstructure:"frontend_url"`
}

type GatewayConfig struct {
	Driver          string        `mapstructure:"driver"` // mock | stripe
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
	MockFailureRate float64       `mapstructure:"mock_failure_rate"`
	MockLatency     time.Duration `mapstructure:"mock_latency"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// ServicesConfig locates the order, inventory and notification peers.
type ServicesConfig struct {
	OrderURL              string        `mapstructure:"order_url"`
	InventoryURL          string        `mapstructure:"inventory_url"`
	NotificationURL       string        `mapstructure:"notification_url"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	RetryAttempts         uint          `mapstructure:"retry_attempts"`
	RetryDelay            time.Duration `mapstructure:"retry_delay"`
	NotificationTransport string        `mapstructure:"notification_transport"` // http | nats
	NATSURL               string        `mapstructure:"nats_url"`
	NATSSubject           string        `mapstructure:"nats_subject"`
	NotifyTimeout         time.Duration `mapstructure:"notify_timeout"`
}

type EventsConfig struct {
	Driver         string   `mapstructure:"driver"` // none | redis | kafka
	RedisStream    string   `mapstructure:"redis_stream"`
	RedisStreamMax int64    `mapstructure:"redis_stream_max_len"`
	KafkaBrokers   []string `mapstructure:"kafka_brokers"`
	KafkaTopic     string   `mapstructure:"kafka_topic"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	ServiceName    string `mapstructure:"service_name"`
	MetricsPort    int    `mapstructure:"metrics_port"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// ORDERPAY_DATABASE_HOST overrides database.host
	v.SetEnvPrefix("ORDERPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/orderpay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	if c.Payment.ExpiryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payment.expiry_timeout must be positive"))
	}
	if c.Payment.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("payment.sweep_interval must be positive"))
	}
	if c.Payment.SweepBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("payment.sweep_batch_size must be positive"))
	}
	if c.Payment.SweepLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.sweep_lock_ttl must be positive"))
	}

	switch c.Gateway.Driver {
	case "mock":
		if c.Gateway.MockFailureRate < 0 || c.Gateway.MockFailureRate > 1 {
			errs = append(errs, fmt.Errorf("gateway.mock_failure_rate must be between 0 and 1"))
		}
	case "stripe":
		if c.Gateway.StripeSecretKey == "" {
			errs = append(errs, fmt.Errorf("gateway.stripe_secret_key is required for the stripe driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.driver must be mock or stripe, got %q", c.Gateway.Driver))
	}

	if c.Services.OrderURL == "" {
		errs = append(errs, fmt.Errorf("services.order_url is required"))
	}
	if c.Services.InventoryURL == "" {
		errs = append(errs, fmt.Errorf("services.inventory_url is required"))
	}
	switch c.Services.NotificationTransport {
	case "http":
		if c.Services.NotificationURL == "" {
			errs = append(errs, fmt.Errorf("services.notification_url is required for the http transport"))
		}
	case "nats":
		if c.Services.NATSURL == "" {
			errs = append(errs, fmt.Errorf("services.nats_url is required for the nats transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("services.notification_transport must be http or nats, got %q", c.Services.NotificationTransport))
	}

	switch c.Events.Driver {
	case "none":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Errorf("events.driver redis requires redis.enabled"))
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("events.kafka_brokers is required for the kafka driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.driver must be none, redis or kafka, got %q", c.Events.Driver))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Gateway.Driver == "mock" {
			errs = append(errs, fmt.Errorf("gateway.driver mock is not allowed in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orderpay")
	v.SetDefault("database.database", "orderpay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Payment defaults
	v.SetDefault("payment.expiry_timeout", "15m")
	v.SetDefault("payment.sweep_interval", "60s")
	v.SetDefault("payment.sweep_batch_size", 100)
	v.SetDefault("payment.sweep_lock_ttl", "50s")
	v.SetDefault("payment.frontend_url", "http://localhost:3000")

	// Gateway defaults
	v.SetDefault("gateway.driver", "mock")
	v.SetDefault("gateway.call_timeout", "10s")
	v.SetDefault("gateway.breaker.max_requests", 10)
	v.SetDefault("gateway.breaker.interval", "60s")
	v.SetDefault("gateway.breaker.timeout", "30s")
	v.SetDefault("gateway.breaker.min_requests", 10)
	v.SetDefault("gateway.breaker.failure_ratio", 0.6)
	v.SetDefault("gateway.mock_failure_rate", 0.0)
	v.SetDefault("gateway.mock_latency", "0s")

	// Peer services defaults
	v.SetDefault("services.order_url", "http://localhost:8081")
	v.SetDefault("services.inventory_url", "http://localhost:8082")
	v.SetDefault("services.notification_url", "http://localhost:8083")
	v.SetDefault("services.request_timeout", "5s")
	v.SetDefault("services.retry_attempts", 3)
	v.SetDefault("services.retry_delay", "200ms")
	v.SetDefault("services.notification_transport", "http")
	v.SetDefault("services.nats_url", "nats://localhost:4222")
	v.SetDefault("services.nats_subject", "notifications.send")
	v.SetDefault("services.notify_timeout", "5s")

	// Event defaults
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.redis_stream", "payments:events")
	v.SetDefault("events.redis_stream_max_len", 100000)
	v.SetDefault("events.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka_topic", "payment-events")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.service_name", "orderpay")
	v.SetDefault("observability.metrics_port", 9090)
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "orderpay-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form used by golang-migrate.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
