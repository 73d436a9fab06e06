package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
}

type APIConfig struct {
	Addr       string
	PresignTTL time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	MetricsAddr    string
	DefaultQuality int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type TelemetryConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type WebhookConfig struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type RateLimitConfig struct {
	Enabled      bool
	Requests     int
	Window       time.Duration
	UserIDHeader string
}

// envBindings maps config keys to the environment variables that may set
// them, first match wins.
var envBindings = map[string][]string{
	"api.addr":                 {"PIXELCONVERT_API_ADDR"},
	"api.presign_ttl":          {"PIXELCONVERT_PRESIGN_TTL"},
	"queue.redis_addr":         {"REDIS_ADDR"},
	"queue.redis_password":     {"REDIS_PASSWORD"},
	"queue.redis_db":           {"REDIS_DB"},
	"queue.name":               {"ASYNC_QUEUE"},
	"worker.concurrency":       {"WORKER_CONCURRENCY"},
	"worker.max_active_jobs":   {"WORKER_MAX_ACTIVE_JOBS"},
	"worker.local_output_dir":  {"WORKER_LOCAL_OUTPUT_DIR"},
	"worker.metrics_addr":      {"WORKER_METRICS_ADDR"},
	"worker.default_quality":   {"PIXELCONVERT_DEFAULT_QUALITY"},
	"storage.endpoint":         {"MINIO_ENDPOINT"},
	"storage.access_key":       {"MINIO_ACCESS_KEY"},
	"storage.secret_key":       {"MINIO_SECRET_KEY"},
	"storage.bucket":           {"MINIO_BUCKET"},
	"storage.region":           {"MINIO_REGION"},
	"storage.use_ssl":          {"MINIO_USE_SSL"},
	"database.dsn":             {"PIXELCONVERT_DATABASE_DSN", "POSTGRES_DSN"},
	"telemetry.exporter":       {"OTEL_TRACES_EXPORTER"},
	"telemetry.otlp_endpoint":  {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"telemetry.otlp_insecure":  {"OTEL_EXPORTER_OTLP_INSECURE"},
	"webhook.signing_secret":   {"WEBHOOK_SIGNING_SECRET"},
	"webhook.timeout":          {"WEBHOOK_TIMEOUT"},
	"webhook.max_attempts":     {"WEBHOOK_MAX_ATTEMPTS"},
	"webhook.initial_backoff":  {"WEBHOOK_INITIAL_BACKOFF"},
	"webhook.max_backoff":      {"WEBHOOK_MAX_BACKOFF"},
	"ratelimit.enabled":        {"RATE_LIMIT_ENABLED"},
	"ratelimit.requests":       {"RATE_LIMIT_REQUESTS"},
	"ratelimit.window":         {"RATE_LIMIT_WINDOW"},
	"ratelimit.user_id_header": {"RATE_LIMIT_USER_ID_HEADER"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.presign_ttl", 15*time.Minute)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", max(1, runtime.NumCPU()/2))
	v.SetDefault("worker.local_output_dir", "./.pixelconvert-output")
	v.SetDefault("worker.metrics_addr", ":9091")
	v.SetDefault("worker.default_quality", 90)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "pixelconvert-jobs")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("database.dsn", "memory://")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.initial_backoff", time.Second)
	v.SetDefault("webhook.max_backoff", 10*time.Second)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.user_id_header", "X-User-ID")
}

// New returns a viper instance with defaults and environment bindings. When
// path is empty, ./pixelconvert.yaml is read if it exists.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PIXELCONVERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pixelconvert")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from path (optional), the environment and defaults.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v), nil
}

func FromViper(v *viper.Viper) Config {
	return Config{
		API: APIConfig{
			Addr:       v.GetString("api.addr"),
			PresignTTL: v.GetDuration("api.presign_ttl"),
		},
		Queue: QueueConfig{
			RedisAddr:     v.GetString("queue.redis_addr"),
			RedisPassword: v.GetString("queue.redis_password"),
			RedisDB:       v.GetInt("queue.redis_db"),
			Name:          v.GetString("queue.name"),
		},
		Worker: WorkerConfig{
			Concurrency:    v.GetInt("worker.concurrency"),
			MaxActiveJobs:  v.GetInt("worker.max_active_jobs"),
			LocalOutputDir: v.GetString("worker.local_output_dir"),
			MetricsAddr:    v.GetString("worker.metrics_addr"),
			DefaultQuality: v.GetInt("worker.default_quality"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		Telemetry: TelemetryConfig{
			Exporter:     v.GetString("telemetry.exporter"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			OTLPInsecure: v.GetBool("telemetry.otlp_insecure"),
		},
		Webhook: WebhookConfig{
			SigningSecret:  v.GetString("webhook.signing_secret"),
			Timeout:        v.GetDuration("webhook.timeout"),
			MaxAttempts:    v.GetInt("webhook.max_attempts"),
			InitialBackoff: v.GetDuration("webhook.initial_backoff"),
			MaxBackoff:     v.GetDuration("webhook.max_backoff"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      v.GetBool("ratelimit.enabled"),
			Requests:     v.GetInt("ratelimit.requests"),
			Window:       v.GetDuration("ratelimit.window"),
			UserIDHeader: v.GetString("ratelimit.user_id_header"),
		},
	}
}
