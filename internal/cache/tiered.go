package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/velora/internal/ir"
)

// Tiered composes a local tier with an optional remote tier.
//
// Remote failures are not returned to callers: the first one marks the
// remote tier degraded, is kept for RemoteErr, and every later operation
// skips the remote tier.
type Tiered struct {
	local  Tier
	remote Tier
	now    func() time.Time
	logger *zap.Logger

	mu         sync.Mutex
	remoteErr  error
	onDegraded func(error)
}

// NewTiered composes local and remote. remote may be nil.
func NewTiered(local, remote Tier, now func() time.Time, logger *zap.Logger) *Tiered {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{local: local, remote: remote, now: now, logger: logger}
}

// OnDegraded registers a callback run once when the remote tier is dropped.
func (t *Tiered) OnDegraded(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDegraded = fn
}

// Name implements Tier.
func (t *Tiered) Name() string {
	if t.remote == nil {
		return t.local.Name()
	}
	return t.local.Name() + "+" + t.remote.Name()
}

// Get implements Tier.
func (t *Tiered) Get(ctx context.Context, key string) (ir.CacheRecord, bool, error) {
	rec, _, ok := t.Resolve(ctx, key)
	return rec, ok, nil
}

// Put implements Tier.
func (t *Tiered) Put(ctx context.Context, rec ir.CacheRecord) error {
	t.Store(ctx, rec)
	return nil
}

// Resolve looks key up locally, then remotely. Expired records are misses.
// A remote hit is copied into the local tier.
func (t *Tiered) Resolve(ctx context.Context, key string) (ir.CacheRecord, Source, bool) {
	now := t.now()

	rec, ok, err := t.local.Get(ctx, key)
	if err != nil {
		t.logger.Warn("local cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok && !rec.Expired(now) {
		return rec, SourceLocal, true
	}

	remote := t.activeRemote()
	if remote == nil {
		return ir.CacheRecord{}, "", false
	}
	rec, ok, err = remote.Get(ctx, key)
	if err != nil {
		t.degrade(ctx, err)
		return ir.CacheRecord{}, "", false
	}
	if !ok || rec.Expired(now) {
		return ir.CacheRecord{}, "", false
	}
	if err := t.local.Put(ctx, rec); err != nil {
		t.logger.Warn("local cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rec, SourceRemote, true
}

// Store writes rec through to both tiers.
func (t *Tiered) Store(ctx context.Context, rec ir.CacheRecord) {
	if err := t.local.Put(ctx, rec); err != nil {
		t.logger.Warn("local cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
	if remote := t.activeRemote(); remote != nil {
		if err := remote.Put(ctx, rec); err != nil {
			t.degrade(ctx, err)
		}
	}
}

// Degraded reports whether the remote tier has been dropped.
func (t *Tiered) Degraded() bool {
	return t.RemoteErr() != nil
}

// RemoteErr returns the error that degraded the remote tier, if any.
func (t *Tiered) RemoteErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteErr
}

func (t *Tiered) activeRemote() Tier {
	if t.remote == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remoteErr != nil {
		return nil
	}
	return t.remote
}

func (t *Tiered) degrade(ctx context.Context, err error) {
	// A cancelled run is not a backend outage.
	if ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	if t.remoteErr != nil {
		t.mu.Unlock()
		return
	}
	t.remoteErr = err
	fn := t.onDegraded
	t.mu.Unlock()

	t.logger.Warn("remote cache unavailable, continuing with local cache only",
		zap.String("tier", t.remote.Name()),
		zap.Error(err))
	if fn != nil {
		fn(err)
	}
}
