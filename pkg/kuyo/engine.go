// engine.go implements the capture engine: session, adapter, event construction and dispatch.

package kuyo

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	transport Transport
	factory   TransportFactory
	logger    *log.Logger
	store     SessionStore
	scrubber  *Scrubber
	clock     func() time.Time
}

// WithTransport binds a fixed transport instance. The instance serves only
// the initial API key: a key change replaces it with one built by
// DefaultTransportFactory. Use WithTransportFactory to keep a custom
// transport across rotations.
func WithTransport(t Transport) Option {
	return func(o *engineOptions) {
		o.transport = t
	}
}

// WithTransportFactory sets the constructor used to build the transport at
// startup and after every API key rotation.
func WithTransportFactory(f TransportFactory) Option {
	return func(o *engineOptions) {
		o.factory = f
	}
}

// WithLogger sets the logger for engine and adapter output.
func WithLogger(logger *log.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSessionStore sets where the session handle is persisted
// (default: ProcessStore()).
func WithSessionStore(store SessionStore) Option {
	return func(o *engineOptions) {
		if store != nil {
			o.store = store
		}
	}
}

// WithScrubber redacts events with the given configuration before delivery.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(o *engineOptions) {
		o.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return WithScrubber(DefaultScrubberConfig())
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Engine owns the configuration, the current session, the active adapter
// and the transport. It is safe for concurrent use; lifecycle calls
// (UseAdapter, Destroy) are serialized.
type Engine struct {
	lifecycleMu sync.Mutex

	mu        sync.RWMutex
	cfg       Config
	transport Transport
	factory   TransportFactory
	adapter   Adapter
	session   *Session
	destroyed bool

	store    SessionStore
	scrubber *Scrubber
	logger   *log.Logger
	clock    func() time.Time

	tsMu   sync.Mutex
	lastTS int64

	inflight atomic.Int64
}

var _ Capturer = (*Engine)(nil)

// New creates an engine. cfg is merged over DefaultConfig; missing
// environment variables never cause an error.
func New(cfg Config, opts ...Option) *Engine {
	o := engineOptions{
		logger: log.New(os.Stderr, "", log.LstdFlags),
		store:  ProcessStore(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:      mergeConfig(cfg),
		store:    o.store,
		scrubber: o.scrubber,
		logger:   o.logger,
		clock:    o.clock,
	}

	session, restored, err := restoreSession(e.store, e.cfg.Environment, e.clock())
	e.session = &session
	if err != nil {
		e.logf(true, "Session store unavailable: %v", err)
	}
	if restored {
		e.logf(false, "Session restored: %s", session.ID)
	}

	switch {
	case o.transport != nil:
		e.transport = o.transport
	case o.factory != nil:
		e.factory = o.factory
		e.transport = o.factory(e.cfg)
	default:
		e.factory = DefaultTransportFactory
		e.transport = DefaultTransportFactory(e.cfg)
	}

	e.logf(false, "Kuyo Core initialized")
	return e
}

// UseAdapter tears down the active adapter, then installs and sets up a.
func (e *Engine) UseAdapter(a Adapter) {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		e.warnf("[Kuyo:Core] UseAdapter called on a destroyed engine")
		return
	}
	prev := e.adapter
	e.adapter = nil
	e.mu.Unlock()

	teardown(prev)
	if a == nil {
		return
	}

	e.mu.Lock()
	e.adapter = a
	e.mu.Unlock()

	a.Setup()
	e.logf(false, "Adapter registered: %s", a.Name())
}

// Adapter returns the active adapter, or nil.
func (e *Engine) Adapter() Adapter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adapter
}

// Session returns a copy of the current session.
func (e *Engine) Session() (Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// CreateEvent builds a complete event. Non-zero fields of partial override
// the generated defaults. It performs no I/O.
func (e *Engine) CreateEvent(partial Event) Event {
	e.mu.RLock()
	adapter := e.adapter
	var session Session
	if e.session != nil {
		session = *e.session
	}
	e.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Timestamp: e.nextTimestamp(),
		Level:     LevelError,
		Platform:  PlatformUnknown,
		Context:   map[string]any{},
		Session:   session,
	}
	if adapter != nil {
		event.Platform = adapter.Name()
		event.Context = adapterContext(adapter)
	}

	if partial.ID != "" {
		event.ID = partial.ID
	}
	if partial.Timestamp != 0 {
		event.Timestamp = partial.Timestamp
	}
	if partial.Message != "" {
		event.Message = partial.Message
	}
	if partial.Stack != "" {
		event.Stack = partial.Stack
	}
	if partial.Level != "" {
		event.Level = partial.Level
	}
	if partial.Platform != "" {
		event.Platform = partial.Platform
	}
	if partial.Context != nil {
		event.Context = copyMap(partial.Context)
	}
	if partial.Extra != nil {
		event.Extra = copyMap(partial.Extra)
	}
	if partial.Session.ID != "" {
		event.Session = partial.Session
	}
	return event
}

// SendEvent delivers event through the current transport. Delivery failures
// are logged in debug mode and never returned or panicked to the caller.
func (e *Engine) SendEvent(ctx context.Context, event Event) {
	e.mu.RLock()
	t := e.transport
	scrubber := e.scrubber
	e.mu.RUnlock()

	if t == nil {
		return
	}
	if scrubber != nil {
		event = scrubber.ScrubEvent(event)
	}

	e.logf(false, "Sending event: %s", event.Message)
	if err := deliver(ctx, t, event); err != nil {
		e.logf(true, "Failed to send event: %v", err)
		return
	}
	e.logf(false, "Event sent: %s", event.ID)
}

// CaptureException builds an error-level event from err and dispatches it
// in the background. It returns before delivery completes.
func (e *Engine) CaptureException(err error, extra map[string]any) {
	if e.isDestroyed() {
		e.warnf("[Kuyo:Core] Capture after Destroy ignored")
		return
	}
	if err == nil {
		err = NormalizeError(nil)
	}
	stack, ok := stackOf(err)
	if !ok {
		stack = string(debug.Stack())
	}

	e.dispatch(e.CreateEvent(Event{
		Message: err.Error(),
		Stack:   stack,
		Level:   LevelError,
		Extra:   extra,
	}))
}

// CaptureMessage builds an event for a textual occurrence. An empty or
// unknown level becomes LevelInfo.
func (e *Engine) CaptureMessage(message string, level Level, extra map[string]any) {
	if e.isDestroyed() {
		e.warnf("[Kuyo:Core] Capture after Destroy ignored")
		return
	}
	if !level.Valid() {
		level = LevelInfo
	}

	e.dispatch(e.CreateEvent(Event{
		Message: message,
		Level:   level,
		Extra:   extra,
	}))
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig merges p into the configuration. When the API key changes
// the transport is rebuilt, so later deliveries use the new credential.
// The replaced transport is drained and closed before UpdateConfig returns.
func (e *Engine) UpdateConfig(p ConfigPatch) {
	e.mu.Lock()
	changed := p.apply(&e.cfg)
	var old Transport
	if changed && !e.destroyed {
		if e.factory == nil {
			e.factory = DefaultTransportFactory
		}
		old = e.transport
		e.transport = e.factory(e.cfg)
	}
	e.mu.Unlock()

	if old == nil {
		return
	}
	e.logf(false, "Transport rebuilt after API key change")
	e.retire(old)
}

// retireTimeout bounds how long a replaced transport may drain.
const retireTimeout = 5 * time.Second

// retire waits for deliveries that may still hold t, flushes it and
// closes it.
func (e *Engine) retire(t Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
	defer cancel()

	if err := e.waitIdle(ctx); err != nil {
		e.logf(true, "Replaced transport still busy: %v", err)
	} else if f, ok := t.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			e.logf(true, "Failed to flush replaced transport: %v", err)
		}
	}
	if c, ok := t.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logf(true, "Failed to close replaced transport: %v", err)
		}
	}
}

// Flush waits for in-flight deliveries, then flushes a buffering transport.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.waitIdle(ctx); err != nil {
		return err
	}

	e.mu.RLock()
	t := e.transport
	e.mu.RUnlock()
	if f, ok := t.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// waitIdle blocks until no delivery goroutine is running.
func (e *Engine) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for e.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Logger returns the engine logger.
func (e *Engine) Logger() *log.Logger {
	return e.logger
}

// Destroy tears down the adapter, clears the session and closes the
// transport. The engine must not be used for capture afterward.
func (e *Engine) Destroy() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	adapter := e.adapter
	e.adapter = nil
	e.mu.Unlock()

	teardown(adapter)

	e.mu.Lock()
	e.session = nil
	e.destroyed = true
	t := e.transport
	e.mu.Unlock()

	if err := e.store.Delete(SessionKey); err != nil {
		e.logf(true, "Failed to clear session: %v", err)
	}
	if c, ok := t.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logf(true, "Failed to close transport: %v", err)
		}
	}
	e.logf(false, "Kuyo Core destroyed")
}

func (e *Engine) isDestroyed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.destroyed
}

// dispatch schedules delivery on a background goroutine tracked for Flush.
func (e *Engine) dispatch(event Event) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Add(-1)
		e.SendEvent(context.Background(), event)
	}()
}

// nextTimestamp returns the current unix millisecond time, never earlier
// than a previously issued timestamp.
func (e *Engine) nextTimestamp() int64 {
	e.tsMu.Lock()
	defer e.tsMu.Unlock()
	now := e.clock().UnixMilli()
	if now < e.lastTS {
		now = e.lastTS
	}
	e.lastTS = now
	return now
}

// logf writes a debug message when debug is enabled.
func (e *Engine) logf(isError bool, format string, args ...any) {
	if !e.Config().Debug {
		return
	}
	prefix := "[Kuyo:Core] "
	if isError {
		prefix = "[Kuyo:Core] ERROR "
	}
	e.logger.Printf(prefix+format, args...)
}

// warnf always writes, regardless of debug.
func (e *Engine) warnf(format string, args ...any) {
	e.logger.Printf(format, args...)
}

// deliver calls t.Send, converting a transport panic into an error.
func deliver(ctx context.Context, t Transport, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.Send(ctx, event)
}

// adapterContext queries a.Context, tolerating panics and nil maps.
func adapterContext(a Adapter) (ctx map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			ctx = map[string]any{}
		}
	}()
	ctx = a.Context()
	if ctx == nil {
		return map[string]any{}
	}
	return copyMap(ctx)
}

// teardown calls a's Teardown hook when it has one.
func teardown(a Adapter) {
	if a == nil {
		return
	}
	if td, ok := a.(Teardowner); ok {
		td.Teardown()
	}
}
