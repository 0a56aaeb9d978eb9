// transport.go defines the Transport capability and the default HTTP transport.

package kuyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Transport delivers one event to the collector.
// Implementations must be safe for concurrent use. Send performs a single
// attempt: no retry, batching or queuing.
type Transport interface {
	Send(ctx context.Context, event Event) error
}

// Flusher is implemented by transports that buffer events.
type Flusher interface {
	Flush(ctx context.Context) error
}

// TransportFactory builds a transport bound to cfg. The engine calls it at
// construction and again whenever the API key changes.
type TransportFactory func(cfg Config) Transport

// HTTPError is returned when the collector answers with a non-2xx status.
type HTTPError struct {
	Status     int
	StatusText string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.StatusText)
}

// HTTPTransport posts events as JSON to the collector endpoint.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient sets the client used for delivery (default: http.DefaultClient).
func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// NewHTTPTransport creates a transport bound to cfg's endpoint and API key.
func NewHTTPTransport(cfg Config, opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:   http.DefaultClient,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
	if t.endpoint == "" {
		t.endpoint = DefaultEndpoint
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// APIKey returns the credential this transport was built with.
func (t *HTTPTransport) APIKey() string {
	return t.apiKey
}

// Send serializes event and performs one POST round trip.
func (t *HTTPTransport) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("User-Agent", "Kuyo-SDK/"+event.Platform)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// DefaultTransportFactory builds an HTTPTransport for cfg.
func DefaultTransportFactory(cfg Config) Transport {
	return NewHTTPTransport(cfg)
}
