package settingsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memStore is an in-memory StateStore that notifies observers inside Update
type memStore struct {
	mu        sync.Mutex
	doc       settings.SyncDocument
	observers map[int]func(settings.Change)
	nextID    int
}

func newMemStore(doc settings.SyncDocument) *memStore {
	if doc == nil {
		doc = settings.SyncDocument{}
	}
	return &memStore{doc: doc, observers: map[int]func(settings.Change){}}
}

func (s *memStore) Snapshot() settings.SyncDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *memStore) Update(_ context.Context, fields settings.SyncDocument, remote bool) error {
	s.mu.Lock()
	for k, v := range fields {
		s.doc[k] = v
	}
	observers := make([]func(settings.Change), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	change := settings.Change{Fields: fields.Keys(), Remote: remote}
	for _, fn := range observers {
		fn(change)
	}
	return nil
}

func (s *memStore) Subscribe(fn func(settings.Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *memStore) set(t *testing.T, name string, v any) {
	t.Helper()
	doc := settings.SyncDocument{}
	require.NoError(t, doc.Set(name, v))
	require.NoError(t, s.Update(context.Background(), doc, false))
}

// fakeRemote records every call made by the engine
type fakeRemote struct {
	mu        sync.Mutex
	doc       settings.SyncDocument
	fetchErr  error
	putErr    error
	fetches   int
	puts      []settings.SyncDocument
	lastToken string
}

func (r *fakeRemote) Fetch(context.Context) (settings.SyncDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.doc.Clone(), nil
}

func (r *fakeRemote) Replace(_ context.Context, doc settings.SyncDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.puts = append(r.puts, doc.Clone())
	r.doc = doc.Clone()
	return nil
}

func (r *fakeRemote) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastToken = token
}

func (r *fakeRemote) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.puts)
}

func (r *fakeRemote) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *fakeRemote) lastPut() settings.SyncDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.puts) == 0 {
		return nil
	}
	return r.puts[len(r.puts)-1]
}

func (r *fakeRemote) setErrors(fetchErr, putErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErr = fetchErr
	r.putErr = putErr
}

const (
	testDebounce = 30 * time.Millisecond
	testSettle   = 15 * time.Millisecond
	// quiet is comfortably longer than debounce plus settle
	quiet = 150 * time.Millisecond
)

func newTestEngine(t *testing.T, store *memStore, remote *fakeRemote) *Engine {
	t.Helper()
	e := NewEngine(store, remote, settings.DefaultPolicy(), Config{
		DebounceDelay: testDebounce,
		SettleDelay:   testSettle,
	}, zaptest.NewLogger(t))
	e.Mount(context.Background())
	t.Cleanup(e.Unmount)
	return e
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestConfig_Validate(t *testing.T) {
	var c Config
	c.Validate()
	assert.Equal(t, DefaultDebounceDelay, c.DebounceDelay)
	assert.Equal(t, DefaultSettleDelay, c.SettleDelay)
	assert.Equal(t, DefaultPushTimeout, c.PushTimeout)
}

func TestEngine_PullDoesNotEchoAsPush(t *testing.T) {
	store := newMemStore(settings.SyncDocument{"favorites": raw(`["a"]`)})
	remote := &fakeRemote{doc: settings.SyncDocument{
		"favorites": raw(`["b"]`),
		"theme":     raw(`"dark"`),
	}}
	e := newTestEngine(t, store, remote)

	e.SignIn(context.Background(), "jwt-1")

	assert.True(t, e.Pulled())
	assert.Equal(t, "jwt-1", remote.lastToken)
	snap := store.Snapshot()
	assert.JSONEq(t, `["a","b"]`, string(snap["favorites"]))
	assert.JSONEq(t, `"dark"`, string(snap["theme"]))

	time.Sleep(quiet)
	assert.Equal(t, 0, remote.putCount(), "a pull must not trigger a push")
	assert.False(t, e.ApplyingRemote())
}

func TestEngine_GuardIsSetDuringRemoteWrite(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{doc: settings.SyncDocument{"theme": raw(`"dark"`)}}
	e := newTestEngine(t, store, remote)

	var mu sync.Mutex
	var observed []bool
	unsubscribe := store.Subscribe(func(c settings.Change) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, e.ApplyingRemote())
	})
	defer unsubscribe()

	e.SignIn(context.Background(), "jwt")

	mu.Lock()
	assert.Equal(t, []bool{true}, observed)
	mu.Unlock()
	assert.Eventually(t, func() bool { return !e.ApplyingRemote() }, time.Second, 5*time.Millisecond)
}

func TestEngine_DebouncesLocalChanges(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")

	store.set(t, "theme", "light")
	store.set(t, "favorites", []string{"c1"})
	store.set(t, "deviceId", "ios-1")
	store.set(t, "facilityCredentials", map[string]any{
		"RESOURCE_API:northside": map[string]any{
			"platform":         "RESOURCE_API",
			"principalEmail":   "p@example.com",
			"sessionToken":     "sid=abc",
			"secretCredential": "hunter2",
		},
	})
	assert.True(t, e.Dirty())

	require.Eventually(t, func() bool { return remote.putCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(quiet)
	assert.Equal(t, 1, remote.putCount(), "rapid changes collapse into one push")

	pushed := remote.lastPut()
	assert.ElementsMatch(t, []string{"facilityCredentials", "favorites", "theme"}, pushed.Keys())
	assert.NotContains(t, string(pushed["facilityCredentials"]), "sid=abc")
	assert.NotContains(t, string(pushed["facilityCredentials"]), "hunter2")
	assert.False(t, e.Dirty())
}

func TestEngine_SkipsPushOfPulledPayload(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{doc: settings.SyncDocument{"theme": raw(`"dark"`)}}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")
	time.Sleep(quiet)

	// Rewriting the pulled value changes nothing remotely
	store.set(t, "theme", "dark")
	time.Sleep(quiet)
	assert.Equal(t, 0, remote.putCount())

	store.set(t, "theme", "light")
	require.Eventually(t, func() bool { return remote.putCount() == 1 }, time.Second, 5*time.Millisecond)

	// Same payload as the last push
	store.set(t, "theme", "light")
	time.Sleep(quiet)
	assert.Equal(t, 1, remote.putCount())
}

func TestEngine_PullsOncePerSession(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{doc: settings.SyncDocument{"theme": raw(`"dark"`)}}
	e := newTestEngine(t, store, remote)

	e.SignIn(context.Background(), "jwt")
	e.SignIn(context.Background(), "jwt")
	e.Mount(context.Background())
	assert.Equal(t, 1, remote.fetchCount())

	e.SignOut()
	assert.False(t, e.Pulled())
	assert.Equal(t, "", remote.lastToken)

	e.SignIn(context.Background(), "jwt-2")
	assert.Equal(t, 2, remote.fetchCount())
}

func TestEngine_AbsentRemoteLeavesLocal(t *testing.T) {
	store := newMemStore(settings.SyncDocument{"theme": raw(`"light"`)})
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)

	e.SignIn(context.Background(), "jwt")

	assert.True(t, e.Pulled())
	assert.JSONEq(t, `"light"`, string(store.Snapshot()["theme"]))
}

func TestEngine_PullFailureRetriesOnMount(t *testing.T) {
	store := newMemStore(settings.SyncDocument{"theme": raw(`"light"`)})
	remote := &fakeRemote{doc: settings.SyncDocument{"theme": raw(`"dark"`)}}
	remote.setErrors(errors.New("connection refused"), nil)
	e := newTestEngine(t, store, remote)

	e.SignIn(context.Background(), "jwt")

	assert.False(t, e.Pulled())
	assert.JSONEq(t, `"light"`, string(store.Snapshot()["theme"]), "failed pull leaves local untouched")

	remote.setErrors(nil, nil)
	e.Mount(context.Background())

	assert.True(t, e.Pulled())
	assert.JSONEq(t, `"dark"`, string(store.Snapshot()["theme"]))
	assert.Equal(t, 2, remote.fetchCount())
}

func TestEngine_PushFailureRearmsOnNextChange(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")

	remote.setErrors(nil, errors.New("503"))
	store.set(t, "theme", "light")
	time.Sleep(quiet)
	assert.Equal(t, 0, remote.putCount())
	assert.True(t, e.Dirty())

	remote.setErrors(nil, nil)
	store.set(t, "locale", "en-US")
	require.Eventually(t, func() bool { return remote.putCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"locale", "theme"}, remote.lastPut().Keys())
}

func TestEngine_SignOutCancelsPendingPush(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")

	store.set(t, "theme", "light")
	e.SignOut()
	time.Sleep(quiet)

	assert.Equal(t, 0, remote.putCount())
	assert.False(t, e.ApplyingRemote())
}

func TestEngine_EphemeralChangesDoNotPush(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")

	store.set(t, "lastImportAt", "2026-03-15T09:00:00Z")
	store.set(t, "unknownField", 1)
	time.Sleep(quiet)

	assert.Equal(t, 0, remote.putCount())
	assert.False(t, e.Dirty())
}

func TestEngine_ChangesBeforeSignInPushAfterPull(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)

	store.set(t, "theme", "light")
	time.Sleep(quiet)
	assert.Equal(t, 0, remote.putCount(), "no push while signed out")

	e.SignIn(context.Background(), "jwt")
	require.Eventually(t, func() bool { return remote.putCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngine_SyncNow(t *testing.T) {
	store := newMemStore(settings.SyncDocument{"favorites": raw(`["a"]`)})
	remote := &fakeRemote{doc: settings.SyncDocument{"favorites": raw(`["b"]`)}}
	e := newTestEngine(t, store, remote)
	e.mu.Lock()
	e.signedIn = true
	e.mu.Unlock()

	require.NoError(t, e.SyncNow(context.Background()))

	assert.Equal(t, 1, remote.fetchCount())
	require.Equal(t, 1, remote.putCount())
	assert.JSONEq(t, `["a","b"]`, string(remote.lastPut()["favorites"]))

	remote.setErrors(nil, errors.New("503"))
	store.set(t, "theme", "dark")
	assert.Error(t, e.SyncNow(context.Background()))
}

// gatedRemote holds Fetch until released
type gatedRemote struct {
	*fakeRemote
	started chan struct{}
	release chan struct{}
}

func (r *gatedRemote) Fetch(ctx context.Context) (settings.SyncDocument, error) {
	close(r.started)
	<-r.release
	return r.fakeRemote.Fetch(ctx)
}

func TestEngine_SignOutDuringFetchDiscardsPull(t *testing.T) {
	store := newMemStore(nil)
	remote := &gatedRemote{
		fakeRemote: &fakeRemote{doc: settings.SyncDocument{"theme": raw(`"previous-user-dark"`)}},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	e := NewEngine(store, remote, settings.DefaultPolicy(), Config{
		DebounceDelay: testDebounce,
		SettleDelay:   testSettle,
	}, zaptest.NewLogger(t))
	e.Mount(context.Background())
	t.Cleanup(e.Unmount)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.SignIn(context.Background(), "jwt-previous")
	}()

	<-remote.started
	e.SignOut()
	close(remote.release)
	<-done

	assert.NotContains(t, store.Snapshot(), "theme")
	assert.False(t, e.Pulled())
	assert.False(t, e.ApplyingRemote())

	time.Sleep(quiet)
	assert.Equal(t, 0, remote.putCount())
}

func TestEngine_RemountWhilePushesAreScheduled(t *testing.T) {
	store := newMemStore(nil)
	remote := &fakeRemote{}
	e := newTestEngine(t, store, remote)
	e.SignIn(context.Background(), "jwt")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = store.Update(context.Background(), settings.SyncDocument{"theme": raw(`"t"`)}, false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			e.Unmount()
			e.Mount(context.Background())
		}
	}()
	wg.Wait()

	store.set(t, "theme", "final")
	require.Eventually(t, func() bool {
		last := remote.lastPut()
		return last != nil && string(last["theme"]) == `"final"`
	}, time.Second, 5*time.Millisecond)
}
