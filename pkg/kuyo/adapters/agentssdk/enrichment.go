// enrichment.go stores per-run data captured by hooks until the run ends.

package agentssdk

import "sync"

// Enrichment contains per-run context captured from hooks.
type Enrichment struct {
	AgentName string
	Model     string
	ToolName  string

	// Operation is the kind of work in progress: "llm", "tool" or "handoff".
	Operation   string
	OperationID string

	// History holds the most recent operations, oldest first.
	History []OperationRecord
}

// EnrichmentStore provides thread-safe storage for per-run enrichment data.
type EnrichmentStore interface {
	// Update applies fn to the enrichment for runID, creating it if needed.
	// fn runs under the store lock and must not call the store.
	Update(runID string, fn func(e *Enrichment))

	// Get returns a copy of the enrichment for runID.
	Get(runID string) (Enrichment, bool)

	// Delete removes the enrichment for runID.
	Delete(runID string)
}

type memoryEnrichmentStore struct {
	mu   sync.RWMutex
	data map[string]*Enrichment
}

// NewEnrichmentStore creates an in-memory enrichment store.
func NewEnrichmentStore() EnrichmentStore {
	return &memoryEnrichmentStore{data: make(map[string]*Enrichment)}
}

func (s *memoryEnrichmentStore) Update(runID string, fn func(e *Enrichment)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[runID]
	if !ok {
		e = &Enrichment{}
		s.data[runID] = e
	}
	fn(e)
}

func (s *memoryEnrichmentStore) Get(runID string) (Enrichment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[runID]
	if !ok {
		return Enrichment{}, false
	}
	out := *e
	out.History = append([]OperationRecord(nil), e.History...)
	return out, true
}

func (s *memoryEnrichmentStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
}

// appendHistory adds rec, keeping at most max records.
func (e *Enrichment) appendHistory(rec OperationRecord, max int) {
	if max <= 0 {
		return
	}
	e.History = append(e.History, rec)
	if over := len(e.History) - max; over > 0 {
		e.History = append(e.History[:0], e.History[over:]...)
	}
}

// updateLast applies fn to the newest record of the given kind.
func (e *Enrichment) updateLast(kind string, fn func(*OperationRecord)) bool {
	for i := len(e.History) - 1; i >= 0; i-- {
		if e.History[i].Kind == kind {
			fn(&e.History[i])
			return true
		}
	}
	return false
}
