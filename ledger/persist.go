package ledger

import (
	"context"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/kvstore"
	"github.com/rustyeddy/propdesk/pkg/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Local storage datasets.
const (
	dsPositions = "positions"
	dsOrders    = "orders"
	dsBalance   = "balance"
	dsMode      = "accountMode"
)

// The load/save helpers below are called with c.mu held.

func (c *Container) loadBookLocked(ctx context.Context, mode AccountMode) *Book {
	b := newBook(c.defaultBalance)

	if raw, ok := c.getLocked(ctx, kvstore.Key(dsPositions, string(mode), c.user)); ok {
		var ps []Position
		if err := json.Unmarshal([]byte(raw), &ps); err != nil {
			c.log.Warn("discarding unreadable positions", logging.Mode(string(mode)), zap.Error(err))
		} else if ps != nil {
			b.Positions = ps
		}
	}

	if raw, ok := c.getLocked(ctx, kvstore.Key(dsOrders, string(mode), c.user)); ok {
		var ords []Order
		if err := json.Unmarshal([]byte(raw), &ords); err != nil {
			c.log.Warn("discarding unreadable orders", logging.Mode(string(mode)), zap.Error(err))
		} else if ords != nil {
			b.Orders = ords
		}
	}

	if raw, ok := c.getLocked(ctx, kvstore.Key(dsBalance, string(mode), c.user)); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.log.Warn("discarding unreadable balance", logging.Mode(string(mode)), zap.Error(err))
		} else {
			b.Balance = v
		}
	}
	return b
}

func (c *Container) loadModeLocked(ctx context.Context) AccountMode {
	raw, ok := c.getLocked(ctx, kvstore.Key(dsMode, "", c.user))
	if !ok {
		return c.defaultMode
	}
	mode, err := ParseAccountMode(raw)
	if err != nil {
		c.log.Warn("discarding unreadable account mode", zap.Error(err))
		return c.defaultMode
	}
	return mode
}

func (c *Container) getLocked(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.recordPersistErrLocked(key, err)
		return "", false
	}
	return v, ok
}

func (c *Container) savePositionsLocked(ctx context.Context) {
	c.saveJSONLocked(ctx, dsPositions, c.books[c.mode].Positions)
}

func (c *Container) saveOrdersLocked(ctx context.Context) {
	c.saveJSONLocked(ctx, dsOrders, c.books[c.mode].Orders)
}

func (c *Container) saveBalanceLocked(ctx context.Context) {
	b := c.books[c.mode].Balance
	BalanceGauge.WithLabelValues(string(c.mode)).Set(b)
	c.setLocked(ctx, kvstore.Key(dsBalance, string(c.mode), c.user), strconv.FormatFloat(b, 'f', -1, 64))
}

func (c *Container) saveModeLocked(ctx context.Context) {
	c.setLocked(ctx, kvstore.Key(dsMode, "", c.user), string(c.mode))
}

func (c *Container) saveJSONLocked(ctx context.Context, dataset string, v any) {
	key := kvstore.Key(dataset, string(c.mode), c.user)
	data, err := json.Marshal(v)
	if err != nil {
		c.recordPersistErrLocked(key, err)
		return
	}
	c.setLocked(ctx, key, string(data))
}

func (c *Container) setLocked(ctx context.Context, key, value string) {
	if err := c.store.Set(ctx, key, value); err != nil {
		c.recordPersistErrLocked(key, err)
	}
}

func (c *Container) recordPersistErrLocked(key string, err error) {
	c.lastPersistErr = fmt.Errorf("local store %s: %w", key, err)
	c.lastPersistErrAt = c.now()
	PersistErrors.WithLabelValues(datasetOf(key)).Inc()
	c.log.Warn("local storage failed", logging.Key(key), zap.Error(err))
}

func datasetOf(key string) string {
	for _, ds := range []string{dsPositions, dsOrders, dsBalance, dsMode} {
		if len(key) >= len(ds) && key[:len(ds)] == ds {
			return ds
		}
	}
	return "unknown"
}

// Remote replication. Failures are logged and never reach the caller.

func (c *Container) replicateLocked(coll docstore.Collection, docID string, v any) {
	if c.repl == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode remote document", logging.Collection(string(coll)), zap.Error(err))
		return
	}
	doc := docstore.Document{
		Collection: coll,
		ID:         docID,
		UserID:     c.user,
		Mode:       string(c.mode),
		Body:       body,
		UpdatedAt:  c.now().UTC(),
	}
	if err := c.repl.Upsert(doc); err != nil {
		c.log.Warn("remote write not queued", logging.Collection(string(coll)), zap.String("doc_id", docID), zap.Error(err))
	}
}

func (c *Container) replicateDeleteLocked(coll docstore.Collection, docID string) {
	if c.repl == nil {
		return
	}
	if err := c.repl.Delete(coll, docID, c.user, string(c.mode)); err != nil {
		c.log.Warn("remote delete not queued", logging.Collection(string(coll)), zap.String("doc_id", docID), zap.Error(err))
	}
}
