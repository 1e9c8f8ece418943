package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
)

// IntentHash derives the deterministic idempotency key for an intent:
// SHA-256 over its identifying content with the timestamp truncated to the
// second, so a re-sent intent hashes identically while a genuinely new one
// (even for the same market) does not.
func IntentHash(it *types.TradeIntent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", it.MarketID, it.TokenID, it.Outcome, it.Side)
	h.Write([]byte(strconv.FormatFloat(it.Price, 'f', -1, 64)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatFloat(it.Size, 'f', -1, 64)))
	h.Write([]byte{'|'})
	h.Write([]byte(it.Strategy))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(it.CreatedAt.Truncate(time.Second).Unix(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Index is the in-process fast path of the dedup window: hashes of
// successful executions with their completion time. The persisted trade
// history backs it across restarts.
type Index struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewIndex creates an idempotency index with the given dedup window.
func NewIndex(window time.Duration) *Index {
	return &Index{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Executed reports whether the hash completed successfully inside the
// window. Expired entries are pruned as a side effect.
func (x *Index) Executed(hash string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	cutoff := x.now().Add(-x.window)
	for h, at := range x.seen {
		if at.Before(cutoff) {
			delete(x.seen, h)
		}
	}

	_, ok := x.seen[hash]
	return ok
}

// MarkExecuted records a successful execution. Only called on success;
// failed attempts stay eligible for retry by a fresh intent.
func (x *Index) MarkExecuted(hash string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seen[hash] = x.now()
}
