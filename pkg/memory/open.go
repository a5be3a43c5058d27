package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/germanamz/tabletalk/pkg/database"
)

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendInMemory = "inprocess"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a session store.
type Config struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	DSN     string        `yaml:"dsn"`
	Redis   RedisConfig   `yaml:"redis"`
	TTL     time.Duration `yaml:"ttl"`
	Summary SummaryConfig `yaml:"summary"`
}

// SummaryConfig enables a SummaryStore over the selected backend. It is
// applied by the caller that owns a completer.
type SummaryConfig struct {
	// Keep is the number of recent messages hydrated verbatim; older ones are
	// condensed into a summary. Zero disables summarizing.
	Keep int `yaml:"keep"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	if c.Summary.Keep < 0 {
		return fmt.Errorf("memory: summary.keep must not be negative")
	}

	switch strings.ToLower(c.Backend) {
	case BackendNone:
		if c.Summary.Keep > 0 {
			return fmt.Errorf("memory: summary needs a backend other than none")
		}
	case "", BackendInMemory, "memory":
		return nil
	case BackendFile:
		if c.Dir == "" {
			return fmt.Errorf("memory: file backend requires dir")
		}
	case BackendSQLite, BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("memory: %s backend requires dsn", c.Backend)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("memory: redis backend requires redis.addr")
		}
	default:
		return fmt.Errorf("memory: unknown backend %q", c.Backend)
	}
	return nil
}

// Open builds the configured store. An empty backend means inprocess, so
// turns of one process share history; "none" returns a nil Store. Stores
// that hold connections implement io.Closer.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendNone:
		return nil, nil
	case "", BackendInMemory, "memory":
		return NewInProcess(), nil
	case BackendFile:
		store, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite, BackendPostgres:
		store, err := openSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("memory: unknown backend %q", cfg.Backend)
}

func openSQL(ctx context.Context, cfg Config) (*SQLStore, error) {
	backend := strings.ToLower(cfg.Backend)

	db, err := database.Open(ctx, database.Config{Driver: backend, DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	var store *SQLStore
	if backend == BackendPostgres {
		store, err = NewPostgresStore(ctx, db)
	} else {
		store, err = NewSQLiteStore(ctx, db)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store.owned = true
	return store, nil
}

func openRedis(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("memory: ping redis: %w", err)
	}

	slog.Info("session store ready", "backend", BackendRedis, "addr", cfg.Redis.Addr)

	store := NewRedisStore(client, cfg.Redis.Prefix, cfg.TTL)
	store.owned = true
	return store, nil
}
