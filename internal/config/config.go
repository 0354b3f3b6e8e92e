package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the runtime configuration of the verification service.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Detector DetectorConfig
	Storage  StorageConfig
	Registry RegistryConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"certverify"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MaxUploadBytes  int64         `env:"UPLOAD_MAX_SIZE_BYTES" envDefault:"10485760"`
}

type AuthConfig struct {
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret"`
	JWTAudience string `env:"JWT_AUDIENCE"`
}

type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_DSN" envDefault:"host=postgres user=postgres password=postgres dbname=certverify port=5432 sslmode=disable"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"1h"`
}

type RedisConfig struct {
	Addr             string        `env:"REDIS_ADDR" envDefault:"redis:6379"`
	ResultCacheTTL   time.Duration `env:"RESULT_CACHE_TTL" envDefault:"5m"`
	RegistryCacheTTL time.Duration `env:"REGISTRY_CACHE_TTL" envDefault:"10m"`
}

type GatewayConfig struct {
	BaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"http://verification-backend:8000"`
	APIKey        string        `env:"GATEWAY_API_KEY"`
	UploadBackend string        `env:"UPLOAD_BACKEND" envDefault:"http"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"15s"`
	OCRTimeout    time.Duration `env:"OCR_TIMEOUT" envDefault:"20s"`
	DetectTimeout time.Duration `env:"DETECT_TIMEOUT" envDefault:"20s"`
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT" envDefault:"10s"`
}

type DetectorConfig struct {
	Transport               string  `env:"DETECTOR_TRANSPORT" envDefault:"http"`
	GRPCAddr                string  `env:"DETECTOR_GRPC_ADDR" envDefault:"forgery-model:50051"`
	FakeConfidenceThreshold float64 `env:"FAKE_CONFIDENCE_THRESHOLD" envDefault:"0.8"`
}

type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"minio:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"STORAGE_BUCKET" envDefault:"certificates"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type RegistryConfig struct {
	Source string `env:"REGISTRY_SOURCE" envDefault:"static"`
	File   string `env:"REGISTRY_FILE"`
}

type KafkaConfig struct {
	Enabled           bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"kafka:9092"`
	VerificationTopic string        `env:"KAFKA_VERIFICATION_TOPIC" envDefault:"certverify.verifications"`
	BatchTimeout      time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	MaxAttempts       int           `env:"KAFKA_MAX_ATTEMPTS" envDefault:"3"`
}

type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Gateway.UploadBackend {
	case "http", "minio":
	default:
		return fmt.Errorf("UPLOAD_BACKEND must be http or minio, got %q", c.Gateway.UploadBackend)
	}
	switch c.Detector.Transport {
	case "http", "grpc":
	default:
		return fmt.Errorf("DETECTOR_TRANSPORT must be http or grpc, got %q", c.Detector.Transport)
	}
	switch c.Registry.Source {
	case "static", "postgres":
	case "file":
		if c.Registry.File == "" {
			return fmt.Errorf("REGISTRY_FILE is required when REGISTRY_SOURCE=file")
		}
	default:
		return fmt.Errorf("REGISTRY_SOURCE must be static, file or postgres, got %q", c.Registry.Source)
	}
	if c.Detector.FakeConfidenceThreshold <= 0 || c.Detector.FakeConfidenceThreshold > 1 {
		return fmt.Errorf("FAKE_CONFIDENCE_THRESHOLD must be in (0, 1], got %v", c.Detector.FakeConfidenceThreshold)
	}
	return nil
}
