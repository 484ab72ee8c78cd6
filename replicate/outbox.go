// Package replicate ships ledger documents to the remote document store
// through an in-memory outbox with retries.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/pkg/id"
	"github.com/rustyeddy/propdesk/pkg/logging"
)

type Kind string

const (
	KindUpsert Kind = "upsert"
	KindDelete Kind = "delete"
)

// ErrQueueFull is returned by Enqueue once QueueSize ops are pending.
var ErrQueueFull = errors.New("replication queue full")

// Op is one pending write. For deletes only Collection, ID, UserID and Mode
// of Doc are used.
type Op struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Doc        docstore.Document `json:"doc"`
	Attempts   int               `json:"attempts"`
	LastErr    string            `json:"lastError,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`

	seq uint64 // enqueue order across all documents
}

type docKey struct {
	collection docstore.Collection
	id         string
}

func keyOf(op *Op) docKey { return docKey{op.Doc.Collection, op.Doc.ID} }

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	QueueSize      int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		AttemptTimeout: 10 * time.Second,
		QueueSize:      4096,
	}
}

// Status is a point-in-time view of the outbox.
type Status struct {
	Pending     int       `json:"pending"`
	Failed      int       `json:"failed"`
	Replicated  uint64    `json:"replicated"`
	NotFound    uint64    `json:"notFound"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitempty"`
}

type Outbox struct {
	store docstore.Store
	cfg   Config
	log   *logging.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	queue  []*Op
	dead   []*Op
	status Status
	seq    uint64
	latest map[docKey]uint64 // newest queued or dead-lettered op per document

	wake  chan struct{}
	runMu sync.Mutex
}

func New(store docstore.Store, cfg Config, log *logging.Logger) *Outbox {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Outbox{
		store:  store,
		cfg:    cfg,
		log:    log.WithComponent("replicate"),
		now:    time.Now,
		sleep:  sleepCtx,
		wake:   make(chan struct{}, 1),
		latest: make(map[docKey]uint64),
	}
}

// Upsert queues a create-or-update of doc.
func (o *Outbox) Upsert(doc docstore.Document) error {
	return o.Enqueue(Op{Kind: KindUpsert, Doc: doc})
}

// Delete queues removal of a document.
func (o *Outbox) Delete(c docstore.Collection, docID, userID, mode string) error {
	return o.Enqueue(Op{Kind: KindDelete, Doc: docstore.Document{Collection: c, ID: docID, UserID: userID, Mode: mode}})
}

func (o *Outbox) Enqueue(op Op) error {
	o.mu.Lock()
	if o.cfg.QueueSize > 0 && len(o.queue) >= o.cfg.QueueSize {
		o.mu.Unlock()
		OpsTotal.WithLabelValues(string(op.Doc.Collection), string(op.Kind), "rejected").Inc()
		return ErrQueueFull
	}
	if op.ID == "" {
		op.ID = id.New()
	}
	o.seq++
	op.seq = o.seq
	o.latest[keyOf(&op)] = op.seq
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = o.now()
	}
	o.queue = append(o.queue, &op)
	QueueDepth.Set(float64(len(o.queue)))
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run replicates queued ops until ctx is done.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		if err := o.Drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
		}
	}
}

// Drain replicates ops in FIFO order until the queue is empty. An op that
// fails is retried with backoff before later ops are attempted, so writes to
// one document land in the order they were made.
func (o *Outbox) Drain(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return nil
		}
		op := o.queue[0]
		o.mu.Unlock()

		err := o.attempt(ctx, op)
		switch {
		case err == nil:
			o.finish(op, "replicated")
		case errors.Is(err, docstore.ErrNotFound):
			o.log.Info("remote document not found, dropping op",
				logging.Collection(string(op.Doc.Collection)),
				zap.String("doc_id", op.Doc.ID),
				zap.String("kind", string(op.Kind)))
			o.finish(op, "not_found")
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if o.fail(op, err) {
				continue
			}
			if err := o.sleep(ctx, o.backoff(op.Attempts)); err != nil {
				return err
			}
		}
	}
}

func (o *Outbox) attempt(ctx context.Context, op *Op) error {
	actx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	var err error
	switch op.Kind {
	case KindUpsert:
		err = o.store.Put(actx, op.Doc)
	case KindDelete:
		err = o.store.Delete(actx, op.Doc.Collection, op.Doc.ID, op.Doc.UserID)
	default:
		err = fmt.Errorf("unknown op kind %q", op.Kind)
	}
	AttemptLatency.WithLabelValues(string(op.Kind)).Observe(float64(time.Since(start).Microseconds()) / 1000)
	return err
}

func (o *Outbox) finish(op *Op, result string) {
	o.mu.Lock()
	o.popLocked(op)
	if o.latest[keyOf(op)] == op.seq {
		delete(o.latest, keyOf(op))
	}
	if result == "replicated" {
		o.status.Replicated++
	} else {
		o.status.NotFound++
	}
	o.mu.Unlock()
	OpsTotal.WithLabelValues(string(op.Doc.Collection), string(op.Kind), result).Inc()
}

// fail records a failed attempt and reports whether op was moved to the
// dead letters.
func (o *Outbox) fail(op *Op, err error) bool {
	AttemptErrors.WithLabelValues(string(op.Doc.Collection), string(op.Kind)).Inc()

	o.mu.Lock()
	op.Attempts++
	op.LastErr = err.Error()
	o.status.LastError = op.LastErr
	o.status.LastErrorAt = o.now()
	dead := op.Attempts >= o.cfg.MaxAttempts
	if dead {
		o.popLocked(op)
		o.dead = append(o.dead, op)
		DeadLetters.Set(float64(len(o.dead)))
	}
	o.mu.Unlock()

	fields := []zap.Field{
		logging.Collection(string(op.Doc.Collection)),
		zap.String("doc_id", op.Doc.ID),
		zap.String("kind", string(op.Kind)),
		logging.Attempt(op.Attempts),
		zap.Error(err),
	}
	if dead {
		o.log.Error("replication gave up", fields...)
		OpsTotal.WithLabelValues(string(op.Doc.Collection), string(op.Kind), "dead").Inc()
	} else {
		o.log.Warn("replication attempt failed", fields...)
	}
	return dead
}

func (o *Outbox) popLocked(op *Op) {
	for i, q := range o.queue {
		if q == op {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
	QueueDepth.Set(float64(len(o.queue)))
}

func (o *Outbox) backoff(attempts int) time.Duration {
	d := o.cfg.InitialBackoff
	for i := 1; i < attempts && d < o.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > o.cfg.MaxBackoff {
		d = o.cfg.MaxBackoff
	}
	return d
}

func (o *Outbox) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.Pending = len(o.queue)
	s.Failed = len(o.dead)
	return s
}

// Pending returns copies of the queued ops.
func (o *Outbox) Pending() []Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyOps(o.queue)
}

// Failed returns copies of the dead letters.
func (o *Outbox) Failed() []Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyOps(o.dead)
}

// Retry moves dead letters back to the front of the queue with their
// attempt count reset and returns how many were moved. A dead op is
// discarded instead when a later op for the same document was enqueued
// after it, so a retry never replays a stale write over a newer one.
func (o *Outbox) Retry() int {
	o.mu.Lock()
	if len(o.dead) == 0 {
		o.mu.Unlock()
		return 0
	}
	requeue := make([]*Op, 0, len(o.dead))
	var superseded int
	for _, op := range o.dead {
		if o.latest[keyOf(op)] != op.seq {
			superseded++
			OpsTotal.WithLabelValues(string(op.Doc.Collection), string(op.Kind), "superseded").Inc()
			continue
		}
		op.Attempts = 0
		requeue = append(requeue, op)
	}
	o.queue = append(requeue, o.queue...)
	o.dead = nil
	QueueDepth.Set(float64(len(o.queue)))
	DeadLetters.Set(0)
	o.mu.Unlock()

	if superseded > 0 {
		o.log.Info("discarded superseded dead letters", zap.Int("count", superseded))
	}
	if len(requeue) > 0 {
		select {
		case o.wake <- struct{}{}:
		default:
		}
	}
	return len(requeue)
}

func copyOps(ops []*Op) []Op {
	out := make([]Op, len(ops))
	for i, op := range ops {
		out[i] = *op
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
