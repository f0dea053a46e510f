package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		App    App
		Log    Log
		PG     PG
		Redis  Redis
		RMQ    RMQ
		Bus    Bus
		Cursor Cursor
		Ops    Ops
	}

	App struct {
		Name string `env:"APP_NAME" envDefault:"choreo"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax int    `env:"PG_POOL_MAX,required"`
		URL     string `env:"PG_URL,required"`
	}

	Redis struct {
		Addr     string        `env:"REDIS_ADDR,required"`
		Password string        `env:"REDIS_PASSWORD" envDefault:""`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"24h"`
	}

	RMQ struct {
		URL           string        `env:"RMQ_URL,required"`
		Exchange      string        `env:"RMQ_EXCHANGE" envDefault:"events"`
		DLExchange    string        `env:"RMQ_DL_EXCHANGE" envDefault:"events.dead-letter"`
		DLQueue       string        `env:"RMQ_DL_QUEUE" envDefault:"events.dead-letter.queue"`
		Prefetch      int           `env:"RMQ_PREFETCH" envDefault:"10"`
		ConnRetries   int           `env:"RMQ_CONN_RETRIES" envDefault:"5"`
		ConnBaseDelay time.Duration `env:"RMQ_CONN_BASE_DELAY" envDefault:"1s"`
		ConnMaxDelay  time.Duration `env:"RMQ_CONN_MAX_DELAY" envDefault:"30s"`
	}

	Bus struct {
		HandlerMaxRetries int           `env:"BUS_HANDLER_MAX_RETRIES" envDefault:"3"`
		HandlerBaseDelay  time.Duration `env:"BUS_HANDLER_BASE_DELAY" envDefault:"1s"`
		HandlerMaxDelay   time.Duration `env:"BUS_HANDLER_MAX_DELAY" envDefault:"30s"`
		QueueTTL          time.Duration `env:"BUS_QUEUE_TTL" envDefault:"24h"`
		ShutdownTimeout   time.Duration `env:"BUS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Cursor struct {
		EntityTypes     []string      `env:"CURSOR_ENTITY_TYPES" envDefault:"Order,Customer"`
		PollInterval    time.Duration `env:"CURSOR_POLL_INTERVAL" envDefault:"5s"`
		CycleTimeout    time.Duration `env:"CURSOR_CYCLE_TIMEOUT" envDefault:"30s"`
		BatchSize       int           `env:"CURSOR_BATCH_SIZE" envDefault:"100"`
		ShutdownTimeout time.Duration `env:"CURSOR_SHUTDOWN_TIMEOUT" envDefault:"35s"`
	}

	Ops struct {
		Port string `env:"OPS_PORT" envDefault:"8080"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
