package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/shared"
)

// BestEffort wraps a [KV] so reads and writes never fail the caller.
//
// Failures are logged at debug level and the engine keeps working from memory.
// A nil underlying store behaves as an always-empty store.
type BestEffort struct {
	kv     KV
	logger *log.Logger
}

// NewBestEffort wraps kv.
func NewBestEffort(kv KV, logger *log.Logger) *BestEffort {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &BestEffort{kv: kv, logger: logger}
}

// LoadJSON decodes the value at key into v and reports whether it succeeded.
func (b *BestEffort) LoadJSON(ctx context.Context, key string, v any) bool {
	if b == nil || b.kv == nil {
		return false
	}

	raw, err := b.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrKeyNotFound) {
			b.logger.Debug("kv read failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		b.logger.Debug("kv value is not valid json", "key", key, "error", err)
		return false
	}
	return true
}

// StoreJSON encodes v and writes it at key.
func (b *BestEffort) StoreJSON(ctx context.Context, key string, v any) {
	if b == nil || b.kv == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Debug("kv value encode failed", "key", key, "error", err)
		return
	}
	if err := b.kv.Set(ctx, key, string(data)); err != nil {
		b.logger.Debug("kv write failed", "key", key, "error", err)
	}
}

// Delete removes key.
func (b *BestEffort) Delete(ctx context.Context, key string) {
	if b == nil || b.kv == nil {
		return
	}
	if err := b.kv.Delete(ctx, key); err != nil {
		b.logger.Debug("kv delete failed", "key", key, "error", err)
	}
}
