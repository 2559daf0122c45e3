package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// Engine runs every workflow operation as one store transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
	// Actor is recorded on audit events written by this engine.
	Actor string
	// BusyRetries bounds how many times a transaction that hit a locked store
	// is re-run before ErrBusy is returned. Zero disables retrying.
	BusyRetries int
}

func New(conn *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default("site-nine")
	}
	return Engine{
		DB:          conn,
		Repo:        repo.Repo{DB: conn},
		Events:      events.Writer{},
		Config:      cfg,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         time.Now,
		Actor:       "local-user",
		BusyRetries: cfg.BusyRetries(),
	}
}

// WithActor returns a copy of e that attributes events to actor.
func (e Engine) WithActor(actor string) Engine {
	if actor != "" {
		e.Actor = actor
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) event(ctx context.Context, tx *sql.Tx, evtType, kind, id string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, kind, id, e.Actor, payload)
}

// withTx runs fn inside a transaction and commits. Lock contention re-runs
// the whole transaction with exponential backoff, up to BusyRetries times.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempt := func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return retryable(err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return retryable(err)
		}
		return retryable(tx.Commit())
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	retries := e.BusyRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		e.log().Warn("store busy, retrying", "wait", wait, "error", err)
	})
	if err != nil && db.IsBusy(err) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

// retryable marks everything except lock contention as permanent.
func retryable(err error) error {
	if err == nil || db.IsBusy(err) {
		return err
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return err
	}
	return backoff.Permanent(err)
}
