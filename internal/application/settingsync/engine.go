// Package settingsync runs the device side of settings synchronization.
//
// Local changes are pushed as a full-document replace after a debounce.
// The remote document is pulled and merged at most once per signed-in
// session. Writes caused by a pull are fenced off with the applyingRemote
// guard so they never echo back as a push.
package settingsync

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rosterlink/backend/internal/domain/settings"
	"go.uber.org/zap"
)

// Default timings
const (
	DefaultDebounceDelay = 2 * time.Second
	DefaultSettleDelay   = 100 * time.Millisecond
	DefaultPushTimeout   = 30 * time.Second
)

// Config holds engine timing
type Config struct {
	// DebounceDelay is the quiet period after the last local change before a push
	DebounceDelay time.Duration
	// SettleDelay is how long the guard stays up after a pull write returns.
	// It must exceed one observer tick of the local store.
	SettleDelay time.Duration
	// PushTimeout bounds each timer-driven push
	PushTimeout time.Duration
}

// Validate fills defaults
func (c *Config) Validate() {
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = DefaultPushTimeout
	}
}

// TokenSetter is implemented by remote stores that authenticate per session
type TokenSetter interface {
	SetToken(token string)
}

// Engine synchronizes a local StateStore with a RemoteStore
type Engine struct {
	store  settings.StateStore
	remote settings.RemoteStore
	policy settings.Policy
	config Config
	logger *zap.Logger

	applyingRemote atomic.Bool

	mu     sync.Mutex
	pushMu sync.Mutex
	// applyMu spans a pull's session check and its local write so SignOut
	// cannot land in between. Lock order: applyMu, then mu.
	applyMu sync.Mutex

	baseCtx     context.Context
	unsubscribe func()
	debounce    *time.Timer
	settle      *time.Timer
	generation  uint64
	signedIn    bool
	pulled      bool
	dirty       bool
	lastPulled  []byte
	lastPushed  []byte
}

// NewEngine creates a new sync Engine
func NewEngine(store settings.StateStore, remote settings.RemoteStore, policy settings.Policy, config Config, logger *zap.Logger) *Engine {
	config.Validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		remote:  remote,
		policy:  policy,
		config:  config,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Mount subscribes to local changes. When a session is already signed in and
// has not pulled yet, the pull is retried.
func (e *Engine) Mount(ctx context.Context) {
	e.mu.Lock()
	if e.unsubscribe == nil {
		e.baseCtx = context.WithoutCancel(ctx)
		e.unsubscribe = e.store.Subscribe(e.onChange)
	}
	retry := e.signedIn && !e.pulled
	e.mu.Unlock()

	if retry {
		_ = e.pullOnce(ctx)
	}
}

// Unmount stops observing the store and cancels any pending push
func (e *Engine) Unmount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.stopTimersLocked()
}

// SignIn starts an authenticated session and pulls the remote document once.
// Failures are logged; the next SignIn or Mount retries the pull.
func (e *Engine) SignIn(ctx context.Context, token string) {
	if ts, ok := e.remote.(TokenSetter); ok {
		ts.SetToken(token)
	}
	e.mu.Lock()
	e.signedIn = true
	dirty := e.dirty
	e.mu.Unlock()

	if err := e.pullOnce(ctx); err != nil {
		return
	}
	if dirty {
		e.schedulePush()
	}
}

// SignOut ends the session: the pulled flag and the guard reset and any
// pending push is dropped.
func (e *Engine) SignOut() {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signedIn = false
	e.pulled = false
	e.dirty = false
	e.lastPulled = nil
	e.lastPushed = nil
	e.generation++
	e.stopTimersLocked()
	e.applyingRemote.Store(false)
	if ts, ok := e.remote.(TokenSetter); ok {
		ts.SetToken("")
	}
}

// ApplyingRemote reports whether a pull write is in progress or settling
func (e *Engine) ApplyingRemote() bool {
	return e.applyingRemote.Load()
}

// Pulled reports whether this session has pulled successfully
func (e *Engine) Pulled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pulled
}

// Dirty reports whether local changes are waiting to be pushed
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// SyncNow pulls if this session has not pulled yet, then pushes immediately.
// Unlike the background loop it returns the first failure.
func (e *Engine) SyncNow(ctx context.Context) error {
	if err := e.pullOnce(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	gen := e.generation
	e.mu.Unlock()
	return e.push(ctx, gen)
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

func (e *Engine) onChange(change settings.Change) {
	if e.applyingRemote.Load() || change.Remote {
		return
	}
	if !e.touchesSynced(change.Fields) {
		return
	}
	e.mu.Lock()
	e.dirty = true
	signedIn := e.signedIn
	e.mu.Unlock()
	if signedIn {
		e.schedulePush()
	}
}

func (e *Engine) touchesSynced(fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if class, ok := e.policy.Class(f); ok && class.Synced() {
			return true
		}
	}
	return false
}

// schedulePush cancels any pending push and re-arms the debounce timer
func (e *Engine) schedulePush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.debounce != nil {
		e.debounce.Stop()
	}
	gen := e.generation
	base := e.baseCtx
	e.debounce = time.AfterFunc(e.config.DebounceDelay, func() {
		ctx, cancel := context.WithTimeout(base, e.config.PushTimeout)
		defer cancel()
		_ = e.push(ctx, gen)
	})
}

// push sends the outbound snapshot unless it matches what was last pulled
// or pushed. gen ties the push to the session that scheduled it.
func (e *Engine) push(ctx context.Context, gen uint64) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	if gen != e.generation || !e.signedIn {
		e.mu.Unlock()
		return nil
	}
	lastPulled, lastPushed := e.lastPulled, e.lastPushed
	e.mu.Unlock()

	outbound, err := e.policy.Outbound(e.store.Snapshot())
	if err != nil {
		e.logger.Warn("Settings push skipped: local state is not valid JSON", zap.Error(err))
		return err
	}
	payload, err := outbound.Canonical()
	if err != nil {
		e.logger.Warn("Settings push skipped: cannot encode local state", zap.Error(err))
		return err
	}
	if bytes.Equal(payload, lastPulled) || bytes.Equal(payload, lastPushed) {
		e.mu.Lock()
		e.dirty = false
		e.mu.Unlock()
		e.logger.Debug("Settings push skipped: payload unchanged")
		return nil
	}

	if err := e.remote.Replace(ctx, outbound); err != nil {
		e.logger.Warn("Settings push failed", zap.Error(err))
		e.mu.Lock()
		e.dirty = true
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if gen == e.generation {
		e.lastPushed = payload
		e.dirty = false
	}
	e.mu.Unlock()
	e.logger.Debug("Settings pushed", zap.Int("fields", len(outbound)))
	return nil
}

// ---------------------------------------------------------------------------
// Pull
// ---------------------------------------------------------------------------

func (e *Engine) pullOnce(ctx context.Context) error {
	e.mu.Lock()
	if e.pulled || !e.signedIn {
		e.mu.Unlock()
		return nil
	}
	gen := e.generation
	e.mu.Unlock()

	remote, err := e.remote.Fetch(ctx)
	if err != nil {
		e.logger.Warn("Settings pull failed", zap.Error(err))
		return err
	}
	if remote == nil {
		e.mu.Lock()
		if gen == e.generation {
			e.pulled = true
		}
		e.mu.Unlock()
		return nil
	}

	inbound, err := e.policy.Outbound(remote)
	if err != nil {
		e.logger.Warn("Settings pull rejected: remote document is not valid JSON", zap.Error(err))
		return err
	}
	payload, err := inbound.Canonical()
	if err != nil {
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if !e.sessionCurrent(gen) {
		e.logger.Debug("Settings pull discarded: session changed while fetching")
		return nil
	}

	local := e.store.Snapshot()
	merged, err := e.policy.Merge(local, inbound)
	if err != nil {
		e.logger.Warn("Settings merge failed", zap.Error(err))
		return err
	}

	// The guard goes up before the write so that observers notified inside
	// Update see it.
	changed := changedFields(local, merged)
	if len(changed) > 0 {
		e.applyingRemote.Store(true)
		if err := e.store.Update(ctx, changed, true); err != nil {
			e.applyingRemote.Store(false)
			e.logger.Warn("Settings pull write failed", zap.Error(err))
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(changed) > 0 {
		e.scheduleSettleLocked()
	}
	e.pulled = true
	e.lastPulled = payload
	e.logger.Debug("Settings pulled", zap.Int("fields_changed", len(changed)))
	return nil
}

// sessionCurrent reports whether the session that started a pull is still
// signed in and has not pulled in the meantime
func (e *Engine) sessionCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation && e.signedIn && !e.pulled
}

// scheduleSettleLocked clears the guard once observers have settled
func (e *Engine) scheduleSettleLocked() {
	if e.settle != nil {
		e.settle.Stop()
	}
	gen := e.generation
	e.settle = time.AfterFunc(e.config.SettleDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen == e.generation {
			e.applyingRemote.Store(false)
		}
	})
}

func (e *Engine) stopTimersLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	if e.settle != nil {
		e.settle.Stop()
		e.settle = nil
	}
}

// changedFields returns the merged fields whose encoding differs from local
func changedFields(local, merged settings.SyncDocument) settings.SyncDocument {
	out := make(settings.SyncDocument)
	for name, value := range merged {
		if prev, ok := local[name]; ok && settings.Equal(settings.SyncDocument{name: prev}, settings.SyncDocument{name: value}) {
			continue
		}
		out[name] = value
	}
	return out
}
