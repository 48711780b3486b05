package jobs

import (
	"context"
	"time"

	"github.com/tbourn/go-mod-mirror/internal/kv"
)

// Deduper marks job keys as pending in a shared store so identical submits
// collapse across processes. A marker expires after the window even if the
// job never reports back.
type Deduper struct {
	store  kv.Store
	window time.Duration
}

// NewDeduper returns a Deduper over store.
func NewDeduper(store kv.Store, window time.Duration) *Deduper {
	return &Deduper{store: store, window: window}
}

// Acquire marks key pending and reports whether the caller owns it.
func (d *Deduper) Acquire(ctx context.Context, key string) (bool, error) {
	return d.store.SetNX(ctx, "dedup:"+key, []byte("1"), d.window)
}

// Release clears the pending marker.
func (d *Deduper) Release(ctx context.Context, key string) error {
	return d.store.Del(ctx, "dedup:"+key)
}
