package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Store     Store     `envPrefix:"STORE_"`
		Ledger    Ledger    `envPrefix:"LEDGER_"`
		Progress  Progress  `envPrefix:"PROGRESS_"`
		Fetch     Fetch     `envPrefix:"FETCH_"`
		Scheduler Scheduler `envPrefix:"SCHEDULER_"`
		RunLog    RunLog    `envPrefix:"RUNLOG_"`
		Metrics   Metrics   `envPrefix:"METRICS_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-prefetch"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Redis struct {
		Enabled  bool          `env:"ENABLED" envDefault:"false"`
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Store struct {
		Root string `env:"ROOT" envDefault:"tiles"`
	}

	Ledger struct {
		Path string `env:"PATH" envDefault:"failed_tiles.txt"`
	}

	Progress struct {
		Dir      string `env:"DIR" envDefault:"logs"`
		MaxLines int    `env:"MAX_LINES" envDefault:"10000"`
	}

	Fetch struct {
		UserAgent string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer   string        `env:"REFERER" envDefault:""`
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
	}

	Scheduler struct {
		// batch or window
		Mode string `env:"MODE" envDefault:"batch"`
	}

	RunLog struct {
		Enabled bool   `env:"ENABLED" envDefault:"false"`
		Path    string `env:"PATH" envDefault:"runs.db"`
	}

	Metrics struct {
		// Empty disables the metrics listener of the prefetch tool.
		Addr string `env:"ADDR" envDefault:""`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
