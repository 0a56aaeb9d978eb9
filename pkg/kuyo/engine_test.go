package kuyo_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/kuyotest"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/transports/async"
)

const waitTimeout = 2 * time.Second

// lifecycleLog records adapter lifecycle calls in order.
type lifecycleLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *lifecycleLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *lifecycleLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeAdapter struct {
	name string
	c    kuyo.Capturer
	log  *lifecycleLog
	ctx  func() map[string]any
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Setup()       { a.log.add(a.name + ".setup") }
func (a *fakeAdapter) Teardown()    { a.log.add(a.name + ".teardown") }

func (a *fakeAdapter) Context() map[string]any {
	if a.ctx != nil {
		return a.ctx()
	}
	return map[string]any{"runtime": a.name}
}

func (a *fakeAdapter) CaptureException(err error, extra map[string]any) {
	a.c.CaptureException(err, kuyo.TagExtra(extra, a.name))
}

func (a *fakeAdapter) CaptureMessage(message string, level kuyo.Level, extra map[string]any) {
	a.c.CaptureMessage(message, level, kuyo.TagExtra(extra, a.name))
}

func newTestEngine(t *testing.T, cfg kuyo.Config, opts ...kuyo.Option) (*kuyo.Engine, *kuyotest.Recorder) {
	t.Helper()
	rec := kuyotest.NewRecorder()
	opts = append([]kuyo.Option{
		kuyo.WithTransport(rec),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
		kuyo.WithLogger(log.New(&bytes.Buffer{}, "", 0)),
	}, opts...)
	e := kuyo.New(cfg, opts...)
	t.Cleanup(e.Destroy)
	return e, rec
}

func TestEngine_CaptureMessage(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{APIKey: "k1", Environment: kuyo.EnvironmentTest})
	e.UseAdapter(&fakeAdapter{name: "fake", c: e, log: &lifecycleLog{}})

	e.CaptureMessage("hello", kuyo.LevelInfo, map[string]any{"k": "v"})

	events := rec.WaitFor(t, 1, waitTimeout)
	event := events[0]
	assert.Equal(t, "hello", event.Message)
	assert.Equal(t, kuyo.LevelInfo, event.Level)
	assert.Equal(t, "fake", event.Platform)
	assert.Equal(t, "fake", event.Context["runtime"])
	assert.Equal(t, "v", event.Extra["k"])
	assert.Empty(t, event.Stack)
	assert.Equal(t, kuyo.EnvironmentTest, event.Session.Environment)

	session, ok := e.Session()
	require.True(t, ok)
	assert.Equal(t, session, event.Session)
}

func TestEngine_CaptureMessage_InvalidLevelBecomesInfo(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{})

	e.CaptureMessage("odd", kuyo.Level("fatal"), nil)
	e.CaptureMessage("empty", "", nil)

	for _, event := range rec.WaitFor(t, 2, waitTimeout) {
		assert.Equal(t, kuyo.LevelInfo, event.Level, event.Message)
	}
}

func TestEngine_CaptureException(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{})

	e.CaptureException(errors.New("db down"), nil)

	event := rec.WaitFor(t, 1, waitTimeout)[0]
	assert.Equal(t, "db down", event.Message)
	assert.Equal(t, kuyo.LevelError, event.Level)
	assert.Equal(t, kuyo.PlatformUnknown, event.Platform)
	assert.Contains(t, event.Stack, "goroutine")
	assert.NotNil(t, event.Context)
}

func TestEngine_CaptureException_UsesPanicStack(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{})

	var pe *kuyo.PanicError
	func() {
		defer func() { pe = kuyo.NewPanicError(recover()) }()
		panic("kaboom")
	}()
	e.CaptureException(pe, nil)

	event := rec.WaitFor(t, 1, waitTimeout)[0]
	assert.Equal(t, "kaboom", event.Message)
	assert.Equal(t, pe.Stack(), event.Stack)
}

func TestEngine_CaptureException_NilError(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{})

	e.CaptureException(nil, nil)

	assert.Equal(t, "unknown error (nil)", rec.WaitFor(t, 1, waitTimeout)[0].Message)
}

func TestEngine_CreateEvent_UniqueIDsAndMonotonicTimestamps(t *testing.T) {
	var mu sync.Mutex
	times := []time.Time{
		time.UnixMilli(2000), // session creation
		time.UnixMilli(5000),
		time.UnixMilli(3000), // clock steps backwards
		time.UnixMilli(7000),
	}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return now
	}
	e, _ := newTestEngine(t, kuyo.Config{}, kuyo.WithClock(clock))

	a := e.CreateEvent(kuyo.Event{})
	b := e.CreateEvent(kuyo.Event{})
	c := e.CreateEvent(kuyo.Event{})

	assert.Equal(t, int64(5000), a.Timestamp)
	assert.Equal(t, int64(5000), b.Timestamp, "timestamps never go backwards")
	assert.Equal(t, int64(7000), c.Timestamp)

	ids := map[string]bool{a.ID: true, b.ID: true, c.ID: true}
	assert.Len(t, ids, 3)
}

func TestEngine_CreateEvent_Defaults(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{})

	event := e.CreateEvent(kuyo.Event{})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, kuyo.LevelError, event.Level)
	assert.Equal(t, kuyo.PlatformUnknown, event.Platform)
	assert.NotNil(t, event.Context)
	assert.Empty(t, event.Message)
	assert.Zero(t, rec.Len(), "CreateEvent performs no delivery")
}

func TestEngine_CreateEvent_Overrides(t *testing.T) {
	e, _ := newTestEngine(t, kuyo.Config{})
	e.UseAdapter(&fakeAdapter{name: "fake", c: e, log: &lifecycleLog{}})

	partial := kuyo.Event{
		ID:        "fixed",
		Timestamp: 42,
		Message:   "m",
		Stack:     "s",
		Level:     kuyo.LevelWarning,
		Platform:  "custom",
		Context:   map[string]any{"own": true},
		Extra:     map[string]any{"x": 1},
	}
	event := e.CreateEvent(partial)

	assert.Equal(t, "fixed", event.ID)
	assert.Equal(t, int64(42), event.Timestamp)
	assert.Equal(t, "custom", event.Platform)
	assert.Equal(t, map[string]any{"own": true}, event.Context)
	assert.Equal(t, kuyo.LevelWarning, event.Level)

	partial.Extra["x"] = 2
	assert.Equal(t, 1, event.Extra["x"], "event extra is a copy")
}

func TestEngine_CreateEvent_AdapterContextFailures(t *testing.T) {
	e, _ := newTestEngine(t, kuyo.Config{})

	e.UseAdapter(&fakeAdapter{name: "nilctx", c: e, log: &lifecycleLog{}, ctx: func() map[string]any { return nil }})
	assert.NotNil(t, e.CreateEvent(kuyo.Event{}).Context)

	e.UseAdapter(&fakeAdapter{name: "panicky", c: e, log: &lifecycleLog{}, ctx: func() map[string]any { panic("no context") }})
	event := e.CreateEvent(kuyo.Event{})
	assert.Equal(t, "panicky", event.Platform)
	assert.Empty(t, event.Context)
}

func TestEngine_SessionSnapshotIsolated(t *testing.T) {
	e, _ := newTestEngine(t, kuyo.Config{})

	event := e.CreateEvent(kuyo.Event{})
	event.Session.ID = "tampered"

	session, _ := e.Session()
	assert.NotEqual(t, "tampered", session.ID)
	assert.Equal(t, session, e.CreateEvent(kuyo.Event{}).Session)
}

func TestEngine_UseAdapter_TearsDownBeforeSetup(t *testing.T) {
	e, _ := newTestEngine(t, kuyo.Config{})
	calls := &lifecycleLog{}

	e.UseAdapter(&fakeAdapter{name: "a", c: e, log: calls})
	e.UseAdapter(&fakeAdapter{name: "b", c: e, log: calls})
	e.Destroy()

	assert.Equal(t, []string{"a.setup", "a.teardown", "b.setup", "b.teardown"}, calls.list())
	assert.Nil(t, e.Adapter())
}

func TestEngine_UseAdapter_Nil(t *testing.T) {
	e, _ := newTestEngine(t, kuyo.Config{})
	calls := &lifecycleLog{}

	e.UseAdapter(&fakeAdapter{name: "a", c: e, log: calls})
	e.UseAdapter(nil)

	assert.Nil(t, e.Adapter())
	assert.Equal(t, []string{"a.setup", "a.teardown"}, calls.list())
	assert.Equal(t, kuyo.PlatformUnknown, e.CreateEvent(kuyo.Event{}).Platform)
}

func TestEngine_UpdateConfig_RebuildsTransportOnKeyChange(t *testing.T) {
	factory := &kuyotest.Factory{}
	e := kuyo.New(kuyo.Config{APIKey: "k1"},
		kuyo.WithTransportFactory(factory.Build),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
	)
	defer e.Destroy()

	e.CaptureMessage("before", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))

	debug := true
	e.UpdateConfig(kuyo.ConfigPatch{Debug: &debug})
	assert.Len(t, factory.Recorders(), 1, "only a key change rebuilds the transport")

	k2 := "k2"
	e.UpdateConfig(kuyo.ConfigPatch{APIKey: &k2})
	e.UpdateConfig(kuyo.ConfigPatch{APIKey: &k2})
	require.Len(t, factory.Recorders(), 2, "an unchanged key does not rebuild")

	e.CaptureMessage("after", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))

	recorders := factory.Recorders()
	assert.Equal(t, "k1", recorders[0].APIKey())
	assert.Equal(t, "before", recorders[0].Events()[0].Message)
	assert.Equal(t, "k2", recorders[1].APIKey())
	assert.Equal(t, "after", recorders[1].Events()[0].Message)
	assert.Equal(t, "k2", e.Config().APIKey)
}

func TestEngine_UpdateConfig_FixedTransportReplacedOnKeyChange(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("x-api-key"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := kuyo.Config{APIKey: "k1", Endpoint: srv.URL + "/api/events"}
	e := kuyo.New(cfg,
		kuyo.WithTransport(kuyo.NewHTTPTransport(cfg)),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
	)
	defer e.Destroy()

	e.CaptureMessage("before", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))

	k2 := "k2"
	e.UpdateConfig(kuyo.ConfigPatch{APIKey: &k2})
	e.CaptureMessage("after", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestEngine_UpdateConfig_RetiresReplacedTransport(t *testing.T) {
	var built []*slowTransport
	inner := func(kuyo.Config) kuyo.Transport {
		st := &slowTransport{Recorder: kuyotest.NewRecorder(), delay: 20 * time.Millisecond}
		built = append(built, st)
		return st
	}
	e := kuyo.New(kuyo.Config{APIKey: "k1"},
		kuyo.WithTransportFactory(async.Factory(inner)),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
	)

	e.CaptureMessage("queued", kuyo.LevelInfo, nil)
	for _, key := range []string{"k2", "k3"} {
		k := key
		e.UpdateConfig(kuyo.ConfigPatch{APIKey: &k})
	}

	require.Len(t, built, 3)
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 1, built[0].Len()+built[1].Len()+built[2].Len(), "queued event is not lost")
	assert.Equal(t, 1, built[0].closed)
	assert.Equal(t, 1, built[1].closed)
	assert.Equal(t, 0, built[2].closed)

	e.Destroy()
	assert.Equal(t, 1, built[2].closed)
	assert.Equal(t, 1, built[0].closed, "retired transport is not closed twice")
}

func TestEngine_TransportFailuresSwallowed(t *testing.T) {
	var logs bytes.Buffer
	rec := kuyotest.NewRecorder()
	rec.FailWith(errors.New("collector down"))
	e := kuyo.New(kuyo.Config{Debug: true},
		kuyo.WithTransport(rec),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
		kuyo.WithLogger(log.New(&syncWriter{w: &logs}, "", 0)),
	)
	defer e.Destroy()

	assert.NotPanics(t, func() {
		e.CaptureException(errors.New("boom"), nil)
	})
	require.NoError(t, e.Flush(context.Background()))

	assert.Equal(t, 1, rec.Len())
	assert.Contains(t, logs.String(), "Failed to send event: collector down")
}

type panickingTransport struct{}

func (panickingTransport) Send(context.Context, kuyo.Event) error { panic("transport bug") }

func TestEngine_TransportPanicContained(t *testing.T) {
	e := kuyo.New(kuyo.Config{},
		kuyo.WithTransport(panickingTransport{}),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
	)
	defer e.Destroy()

	e.CaptureMessage("hi", kuyo.LevelInfo, nil)
	assert.NoError(t, e.Flush(context.Background()))
}

// slowTransport delays delivery and counts flushes and closes.
type slowTransport struct {
	*kuyotest.Recorder
	delay   time.Duration
	mu      sync.Mutex
	flushed int
	closed  int
}

func (s *slowTransport) Send(ctx context.Context, event kuyo.Event) error {
	time.Sleep(s.delay)
	return s.Recorder.Send(ctx, event)
}

func (s *slowTransport) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *slowTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func TestEngine_Flush_WaitsForInflight(t *testing.T) {
	st := &slowTransport{Recorder: kuyotest.NewRecorder(), delay: 50 * time.Millisecond}
	e := kuyo.New(kuyo.Config{}, kuyo.WithTransport(st), kuyo.WithSessionStore(kuyo.NewMemoryStore()))
	defer e.Destroy()

	for i := 0; i < 5; i++ {
		e.CaptureMessage("m", kuyo.LevelInfo, nil)
	}
	require.NoError(t, e.Flush(context.Background()))

	assert.Equal(t, 5, st.Len())
	assert.Equal(t, 1, st.flushed)
}

func TestEngine_Flush_RespectsContext(t *testing.T) {
	st := &slowTransport{Recorder: kuyotest.NewRecorder(), delay: 500 * time.Millisecond}
	e := kuyo.New(kuyo.Config{}, kuyo.WithTransport(st), kuyo.WithSessionStore(kuyo.NewMemoryStore()))
	defer e.Destroy()

	e.CaptureMessage("m", kuyo.LevelInfo, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, e.Flush(ctx), context.DeadlineExceeded)
}

func TestEngine_Destroy(t *testing.T) {
	st := &slowTransport{Recorder: kuyotest.NewRecorder()}
	var logs bytes.Buffer
	e := kuyo.New(kuyo.Config{},
		kuyo.WithTransport(st),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
		kuyo.WithLogger(log.New(&syncWriter{w: &logs}, "", 0)),
	)
	calls := &lifecycleLog{}
	e.UseAdapter(&fakeAdapter{name: "a", c: e, log: calls})

	e.Destroy()
	e.Destroy()

	assert.Equal(t, []string{"a.setup", "a.teardown"}, calls.list())
	assert.Equal(t, 1, st.closed)
	_, ok := e.Session()
	assert.False(t, ok)

	e.CaptureMessage("late", kuyo.LevelInfo, nil)
	e.CaptureException(errors.New("late"), nil)
	require.NoError(t, e.Flush(context.Background()))
	assert.Zero(t, st.Len(), "captures after Destroy are ignored")
	assert.Contains(t, logs.String(), "Capture after Destroy ignored")

	e.UseAdapter(&fakeAdapter{name: "b", c: e, log: calls})
	assert.Nil(t, e.Adapter())
}

func TestEngine_Scrubbing(t *testing.T) {
	e, rec := newTestEngine(t, kuyo.Config{}, kuyo.WithDefaultScrubbing())

	e.CaptureMessage("login failed for user@example.com", kuyo.LevelWarning, map[string]any{"api_key": "sk-123"})

	event := rec.WaitFor(t, 1, waitTimeout)[0]
	assert.NotContains(t, event.Message, "user@example.com")
	assert.Equal(t, "[REDACTED]", event.Extra["api_key"])
}

func TestEngine_DebugLogging(t *testing.T) {
	var logs bytes.Buffer
	e := kuyo.New(kuyo.Config{Debug: true},
		kuyo.WithTransport(kuyotest.NewRecorder()),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
		kuyo.WithLogger(log.New(&syncWriter{w: &logs}, "", 0)),
	)
	e.UseAdapter(&fakeAdapter{name: "fake", c: e, log: &lifecycleLog{}})
	e.CaptureMessage("hello", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))
	e.Destroy()

	out := logs.String()
	for _, want := range []string{
		"[Kuyo:Core] Kuyo Core initialized",
		"[Kuyo:Core] Adapter registered: fake",
		"[Kuyo:Core] Sending event: hello",
		"[Kuyo:Core] Kuyo Core destroyed",
	} {
		assert.Contains(t, out, want)
	}
}

func TestEngine_QuietWithoutDebug(t *testing.T) {
	var logs bytes.Buffer
	e := kuyo.New(kuyo.Config{},
		kuyo.WithTransport(kuyotest.NewRecorder()),
		kuyo.WithSessionStore(kuyo.NewMemoryStore()),
		kuyo.WithLogger(log.New(&syncWriter{w: &logs}, "", 0)),
	)
	e.CaptureMessage("hello", kuyo.LevelInfo, nil)
	require.NoError(t, e.Flush(context.Background()))
	e.Destroy()

	assert.Empty(t, strings.TrimSpace(logs.String()))
}

// syncWriter serializes writes from delivery goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
