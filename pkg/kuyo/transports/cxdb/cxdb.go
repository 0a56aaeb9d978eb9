// Package cxdb provides a transport that persists events to cxdb as
// SystemMessage conversation items, one cxdb context per Kuyo session.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
)

// Client is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type Client interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the cxdb transport.
type Option func(*Transport)

// WithLabels sets the labels attached to each new session context.
func WithLabels(labels []string) Option {
	return func(t *Transport) {
		t.labels = labels
	}
}

// WithClientTag sets the client tag attached to each new session context.
func WithClientTag(tag string) Option {
	return func(t *Transport) {
		t.clientTag = tag
	}
}

// Transport appends events to cxdb.
type Transport struct {
	client    Client
	labels    []string
	clientTag string

	mu       sync.Mutex
	contexts map[string]uint64 // kuyo session id -> cxdb context id
}

var _ kuyo.Transport = (*Transport)(nil)

// New creates a transport that writes to cxdb through client.
func New(client Client, opts ...Option) *Transport {
	t := &Transport{
		client:    client,
		labels:    []string{"kuyo"},
		clientTag: "kuyo",
		contexts:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send appends event to the context of its session, creating the context on
// the first event of a session. Events without a session share one context.
func (t *Transport) Send(ctx context.Context, event kuyo.Event) error {
	contextID, created, err := t.contextFor(ctx, event.Session.ID)
	if err != nil {
		return err
	}

	payload, err := cxdbclient.EncodeMsgpack(t.buildConversationItem(event, created))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: event.ID,
	}
	if _, err := t.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// contextFor returns the cxdb context for a session, creating it once.
func (t *Transport) contextFor(ctx context.Context, sessionID string) (uint64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.contexts[sessionID]; ok {
		return id, false, nil
	}
	head, err := t.client.CreateContext(ctx, 0)
	if err != nil {
		return 0, false, fmt.Errorf("create session context: %w", err)
	}
	t.contexts[sessionID] = head.ContextID
	return head.ContextID, true, nil
}

// buildConversationItem creates a canonical ConversationItem from an event.
func (t *Transport) buildConversationItem(event kuyo.Event, first bool) *cxdtypes.ConversationItem {
	// Title: "level: truncated_message"
	title := string(event.Level)
	if event.Message != "" {
		title += ": " + truncate(event.Message, 80)
	}
	if len(title) > 100 {
		title = truncate(title, 97)
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: event.Timestamp,
		ID:        event.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title,
			Content: buildDetails(event),
		},
	}

	// cxdb expects context metadata on the first turn.
	if first {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    t.labels,
			ClientTag: t.clientTag,
		}
	}
	return item
}

// buildDetails encodes the event as JSON for SystemMessage.Content.
func buildDetails(event kuyo.Event) string {
	details := map[string]any{
		"event_id":    event.ID,
		"level":       string(event.Level),
		"message":     event.Message,
		"platform":    event.Platform,
		"fingerprint": kuyo.Fingerprint(event),
		"session":     event.Session,
	}
	if event.Stack != "" {
		details["stack"] = event.Stack
	}
	if len(event.Context) > 0 {
		details["context"] = event.Context
	}
	if len(event.Extra) > 0 {
		details["extra"] = event.Extra
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, err)
	}
	return string(jsonBytes)
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
