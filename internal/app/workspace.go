// Package app wires config, store and engine together for one invocation.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/migrate"
)

type Options struct {
	Dir    string
	Actor  string
	Logger *slog.Logger
	// RequireConfig fails when the workspace has no config file.
	RequireConfig bool
}

// Workspace is an opened, migrated store with its engine.
type Workspace struct {
	Dir    string
	Conn   *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open loads the workspace config, opens and migrates the store and makes
// sure every catalog persona exists.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.RequireConfig {
		cfg, err = config.Load(opts.Dir)
	} else {
		cfg, err = config.LoadOptional(opts.Dir)
	}
	if err != nil {
		return nil, err
	}
	return open(ctx, opts, cfg)
}

func open(ctx context.Context, opts Options, cfg *config.Config) (*Workspace, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Dir, BusyTimeout: cfg.BusyTimeout()})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg).WithActor(opts.Actor)
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	for _, m := range applied {
		e.Logger.Info("applied migration", "version", m.Version, "name", m.Name)
	}
	if _, err := e.SeedPersonas(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed personas: %w", err)
	}
	return &Workspace{Dir: opts.Dir, Conn: conn, Config: cfg, Engine: e}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.Conn == nil {
		return nil
	}
	return w.Conn.Close()
}

// InitResult reports what Init changed.
type InitResult struct {
	ConfigPath    string `json:"config_path"`
	DatabasePath  string `json:"database_path"`
	ConfigCreated bool   `json:"config_created"`
}

// Init writes a default config unless one exists (or force is set) and
// creates the store. Running it again on an initialised workspace is safe.
func Init(ctx context.Context, opts Options, projectName string, force bool) (*Workspace, InitResult, error) {
	res := InitResult{ConfigPath: config.Path(opts.Dir), DatabasePath: db.Path(opts.Dir)}
	if projectName == "" {
		abs, err := filepath.Abs(opts.Dir)
		if err != nil {
			return nil, res, err
		}
		projectName = filepath.Base(abs)
	}
	var cfg *config.Config
	_, statErr := os.Stat(res.ConfigPath)
	switch {
	case force || os.IsNotExist(statErr):
		cfg = config.Default(projectName)
		if err := config.Write(opts.Dir, cfg); err != nil {
			return nil, res, err
		}
		res.ConfigCreated = true
	case statErr != nil:
		return nil, res, statErr
	default:
		var err error
		if cfg, err = config.Load(opts.Dir); err != nil {
			return nil, res, err
		}
	}
	ws, err := open(ctx, opts, cfg)
	if err != nil {
		return nil, res, err
	}
	return ws, res, nil
}
