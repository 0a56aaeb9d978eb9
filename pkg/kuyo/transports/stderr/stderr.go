// Package stderr provides a transport that prints events in human-readable
// form. Useful for development and for the local dev collector.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

// Option configures the stderr transport.
type Option func(*Transport)

// WithVerbose prints stack traces and extra data.
func WithVerbose() Option {
	return func(t *Transport) {
		t.verbose = true
	}
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(t *Transport) {
		if w != nil {
			t.out = w
		}
	}
}

// Transport writes events to a writer, one block per event.
type Transport struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

var _ kuyo.Transport = (*Transport)(nil)

// New creates a transport that writes to stderr.
func New(opts ...Option) *Transport {
	t := &Transport{out: os.Stderr}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send formats the event and writes it.
// Format: [Kuyo] <timestamp> <LEVEL> <platform> <message> (session: <id>)
func (t *Transport) Send(ctx context.Context, event kuyo.Event) error {
	var b strings.Builder

	ts := time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339)
	fmt.Fprintf(&b, "[Kuyo] %s %s %s", ts, strings.ToUpper(string(event.Level)), event.Platform)
	if event.Message != "" {
		fmt.Fprintf(&b, " %s", event.Message)
	}
	if event.Session.ID != "" {
		fmt.Fprintf(&b, " (session: %s)", event.Session.ID)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "        Event: %s\n", event.ID)
	fmt.Fprintf(&b, "        Fingerprint: %s\n", kuyo.Fingerprint(event))

	if t.verbose {
		if len(event.Extra) > 0 {
			fmt.Fprintf(&b, "        Extra: %v\n", event.Extra)
		}
		if event.Stack != "" {
			b.WriteString("        Stack trace:\n")
			for _, line := range strings.Split(event.Stack, "\n") {
				fmt.Fprintf(&b, "          %s\n", line)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, b.String())
	return err
}
