// Package multi provides a transport that fans out to multiple transports.
// All transports receive all events; errors are aggregated.
package multi

import (
	"context"
	"errors"
	"io"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

// Transport fans out to multiple transports.
type Transport struct {
	transports []kuyo.Transport
}

var (
	_ kuyo.Transport = (*Transport)(nil)
	_ kuyo.Flusher   = (*Transport)(nil)
	_ io.Closer      = (*Transport)(nil)
)

// New creates a transport that sends to every t in order.
// Errors are aggregated via errors.Join.
func New(transports ...kuyo.Transport) *Transport {
	return &Transport{transports: transports}
}

// Send delivers the event to all transports, collecting any errors.
// All transports are called even if some fail.
func (m *Transport) Send(ctx context.Context, event kuyo.Event) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every transport that buffers.
func (m *Transport) Flush(ctx context.Context) error {
	var errs []error
	for _, t := range m.transports {
		if f, ok := t.(kuyo.Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport that holds resources.
func (m *Transport) Close() error {
	var errs []error
	for _, t := range m.transports {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
