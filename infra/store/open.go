// Package store selects a persistence backend from configuration.
package store

import (
	"context"
	"errors"

	"github.com/kilianp07/jobroute/core/factory"
	corestore "github.com/kilianp07/jobroute/core/store"
	"github.com/kilianp07/jobroute/infra/store/memory"
	"github.com/kilianp07/jobroute/infra/store/postgres"
	"github.com/kilianp07/jobroute/infra/store/sqlite"
)

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

var registry = factory.NewRegistry[corestore.Store]()

func init() {
	registry.MustRegister("memory", func(map[string]any) (corestore.Store, error) {
		return memory.New(), nil
	})
	registry.MustRegister("sqlite", func(conf map[string]any) (corestore.Store, error) {
		var c SQLiteConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "jobroute.db"
		}
		return sqlite.Open(c.Path)
	})
	registry.MustRegister("postgres", func(conf map[string]any) (corestore.Store, error) {
		var c PostgresConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, errors.New("postgres store requires dsn")
		}
		return postgres.Open(context.Background(), c.DSN)
	})
}

// Types lists the supported backends.
func Types() []string { return registry.Names() }

// Open builds the backend described by cfg. An empty type selects sqlite.
func Open(cfg factory.ModuleConfig) (corestore.Store, error) {
	if cfg.Type == "" {
		cfg.Type = "sqlite"
	}
	return registry.Create(cfg)
}
