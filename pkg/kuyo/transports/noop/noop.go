// Package noop provides a transport that discards all events.
// Useful for testing and for disabling delivery.
package noop

import (
	"context"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

type transport struct{}

// New creates a transport that discards all events.
func New() kuyo.Transport {
	return transport{}
}

// Factory ignores the config and returns a discarding transport.
func Factory(kuyo.Config) kuyo.Transport {
	return transport{}
}

func (transport) Send(ctx context.Context, event kuyo.Event) error {
	return nil
}
