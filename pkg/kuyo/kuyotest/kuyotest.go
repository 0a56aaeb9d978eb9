// Package kuyotest provides recording transports for tests of code that
// captures through kuyo.
package kuyotest

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

// Recorder is a transport that keeps every event it is sent.
type Recorder struct {
	mu      sync.Mutex
	events  []kuyo.Event
	apiKey  string
	sendErr error
}

var _ kuyo.Transport = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records event and returns the configured error, if any.
func (r *Recorder) Send(ctx context.Context, event kuyo.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.sendErr
}

// FailWith makes later Sends return err after recording the event.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

// APIKey returns the key of the config this recorder was built for by a
// Factory, or "".
func (r *Recorder) APIKey() string {
	return r.apiKey
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []kuyo.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kuyo.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitFor blocks until at least n events are recorded or timeout elapses,
// failing the test on timeout.
func (r *Recorder) WaitFor(t testing.TB, n int, timeout time.Duration) []kuyo.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if events := r.Events(); len(events) >= n {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d events, got %d", n, r.Len())
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Factory is a kuyo.TransportFactory that builds one Recorder per call,
// remembering the API key each was built with.
type Factory struct {
	mu        sync.Mutex
	recorders []*Recorder
}

// Build implements kuyo.TransportFactory.
func (f *Factory) Build(cfg kuyo.Config) kuyo.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &Recorder{apiKey: cfg.APIKey}
	f.recorders = append(f.recorders, r)
	return r
}

// Recorders returns every recorder built so far, oldest first.
func (f *Factory) Recorders() []*Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Recorder, len(f.recorders))
	copy(out, f.recorders)
	return out
}

// Last returns the most recently built recorder, or nil.
func (f *Factory) Last() *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorders) == 0 {
		return nil
	}
	return f.recorders[len(f.recorders)-1]
}

// Capturer records adapter calls without an engine.
type Capturer struct {
	mu      sync.Mutex
	cfg     kuyo.Config
	errs    []error
	extras  []map[string]any
	msgs    []Message
	flushes int
}

// Message is one recorded CaptureMessage call.
type Message struct {
	Text  string
	Level kuyo.Level
	Extra map[string]any
}

var _ kuyo.Capturer = (*Capturer)(nil)

// NewCapturer creates a Capturer reporting cfg.
func NewCapturer(cfg kuyo.Config) *Capturer {
	return &Capturer{cfg: cfg}
}

func (c *Capturer) CaptureException(err error, extra map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	c.extras = append(c.extras, extra)
}

func (c *Capturer) CaptureMessage(message string, level kuyo.Level, extra map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, Message{Text: message, Level: level, Extra: extra})
}

func (c *Capturer) Config() kuyo.Config {
	return c.cfg
}

func (c *Capturer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return nil
}

func (c *Capturer) Logger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Errors returns the captured errors in order.
func (c *Capturer) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// ErrorExtras returns the extra maps passed with each captured error.
func (c *Capturer) ErrorExtras() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.extras...)
}

// Messages returns the captured messages in order.
func (c *Capturer) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

// Flushes returns how many times Flush was called.
func (c *Capturer) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Snapshot returns the captured errors and messages.
func (c *Capturer) Snapshot() ([]error, []Message) {
	return c.Errors(), c.Messages()
}
