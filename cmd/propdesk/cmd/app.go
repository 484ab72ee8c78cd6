package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/config"
	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/kvstore"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/pkg/logging"
	"github.com/rustyeddy/propdesk/replicate"
)

// drainTimeout bounds how long a one-shot command waits for replication.
const drainTimeout = 30 * time.Second

// app is the wired set of collaborators every command works with.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	kv     *kvstore.SQLite
	remote docstore.Store
	outbox *replicate.Outbox
	ledger *ledger.Container
}

// openApp opens local storage, the optional remote store and the ledger for
// the configured user. An unreachable remote leaves the app local-only.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.InitGlobalLogger(cfg.Logging)

	kv, err := kvstore.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	a := &app{cfg: cfg, log: log, kv: kv}
	opts := ledger.Options{
		Store:          kv,
		Logger:         log,
		DefaultBalance: &cfg.Account.Balance,
		DefaultMode:    ledger.AccountMode(cfg.Account.Mode),
	}

	if cfg.Remote.Driver == "postgres" {
		pg, err := docstore.OpenPostgres(ctx, cfg.Remote.DSN)
		if err != nil {
			log.Warn("remote store unavailable, running local-only", zap.Error(err))
		} else {
			rc, err := replicationConfig(cfg.Replication)
			if err != nil {
				_ = pg.Close()
				_ = kv.Close()
				return nil, err
			}
			a.remote = pg
			a.outbox = replicate.New(pg, rc, log)
			opts.Replicator = a.outbox
		}
	}

	a.ledger = ledger.New(opts)
	a.ledger.Open(ctx, cfg.User.ID)
	return a, nil
}

func replicationConfig(r config.ReplicationConfig) (replicate.Config, error) {
	initial, maxBackoff, timeout, err := r.Durations()
	if err != nil {
		return replicate.Config{}, err
	}
	return replicate.Config{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
		AttemptTimeout: timeout,
		QueueSize:      r.QueueSize,
	}, nil
}

// flush pushes queued replication ops, giving up after drainTimeout.
func (a *app) flush(ctx context.Context) {
	if a.outbox == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := a.outbox.Drain(dctx); err != nil {
		a.log.Warn("replication incomplete", zap.Error(err), zap.Int("pending", len(a.outbox.Pending())))
	}
	if st := a.outbox.Status(); st.Failed > 0 {
		a.log.Warn("replication ops dead-lettered", zap.Int("failed", st.Failed), zap.String("last_error", st.LastError))
	}
}

func (a *app) Close() error {
	var firstErr error
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.kv.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = a.log.Sync()
	return firstErr
}

// withApp runs fn against an opened app, then flushes replication and
// closes storage.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		return err
	}
	a.flush(ctx)
	return nil
}
