package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string   `yml:"env" default:"local"`
	Postgres Postgres `yml:"postgres"`
	Server   Server   `yml:"server" env-required:"true"`
	Engine   Engine   `yml:"engine"`
	External External `yml:"external"`
}

type Postgres struct {
	Username        string        `env:"POSTGRES_USER" env-required:"true"`
	Password        string        `env:"POSTGRES_PASSWORD" env-required:"true"`
	Host            string        `yml:"host" env-required:"true"`
	Port            string        `env:"POSTGRES_PORT" env-required:"true"`
	Database        string        `env:"POSTGRES_DB" env-required:"true"`
	MaxOpenConns    int           `yml:"max_open_conns" default:"50"`
	MaxIdleConns    int           `yml:"max_idle_conns" default:"10"`
	ConnMaxLifetime time.Duration `yml:"conn_max_lifetime" default:"5m"`
	ConnMaxIdleTime time.Duration `yml:"conn_max_idle_time" default:"1m"`
}

type Server struct {
	Host    string        `yml:"host" default:"localhost"`
	Port    string        `yml:"port" default:"8080"`
	Timeout time.Duration `yml:"timeout" default:"5s"`
}

// Engine controls routing deadlines and the durable timer worker.
type Engine struct {
	AcceptTimeout      time.Duration `yml:"accept_timeout" default:"48h"`
	AnsweredIdleClose  time.Duration `yml:"answered_idle_close" default:"336h"`
	QuestionIdleClose  time.Duration `yml:"question_idle_close" default:"720h"`
	TimerPollInterval  time.Duration `yml:"timer_poll_interval" default:"30s"`
	RetryBackoff       time.Duration `yml:"retry_backoff" default:"5m"`
	TimerBatchSize     int           `yml:"timer_batch_size" default:"100"`
	TriageModeratorID  string        `env:"TRIAGE_MODERATOR_ID"`
}

// External configures the collaborator services the engine consumes.
type External struct {
	DirectoryURL    string        `env:"DIRECTORY_URL" env-required:"true"`
	ContentStoreURL string        `env:"CONTENT_STORE_URL" env-required:"true"`
	NotifierURL     string        `env:"NOTIFIER_URL" env-required:"true"`
	RequestTimeout  time.Duration `yml:"request_timeout" default:"3s"`
	DirectoryCache  int           `yml:"directory_cache" default:"1024"`
	DirectoryTTL    time.Duration `yml:"directory_ttl" default:"1m"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return nil, errors.New("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}

	return cfg
}
