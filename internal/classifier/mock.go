package classifier

import (
	"context"
	"sync"
)

// Mock is a test implementation of the Client interface. Outcomes and
// errors are scripted per transaction id; unscripted transactions fall back
// to needsReview.
type Mock struct {
	outcomes map[string]*Outcome
	errs     map[string][]error
	calls    []Request
	mu       sync.Mutex
}

// NewMock creates a new mock classifier.
func NewMock() *Mock {
	return &Mock{
		outcomes: make(map[string]*Outcome),
		errs:     make(map[string][]error),
	}
}

// Script sets the outcome returned for a transaction id.
func (m *Mock) Script(transactionID string, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[transactionID] = &outcome
}

// ScriptErrors queues errors returned for a transaction id, one per call,
// before any scripted outcome is served.
func (m *Mock) ScriptErrors(transactionID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[transactionID] = append(m.errs[transactionID], errs...)
}

// Classify returns the scripted result for the request's transaction.
func (m *Mock) Classify(_ context.Context, req Request) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	id := req.Transaction.ID
	if queued := m.errs[id]; len(queued) > 0 {
		err := queued[0]
		m.errs[id] = queued[1:]
		return nil, err
	}

	if outcome, ok := m.outcomes[id]; ok {
		copied := *outcome
		if outcome.ProposedNode != nil {
			plan := *outcome.ProposedNode
			copied.ProposedNode = &plan
		}
		return &copied, nil
	}

	return &Outcome{
		Action:    ActionNeedsReview,
		Reasoning: "no scripted outcome",
	}, nil
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns how many times a transaction was classified.
func (m *Mock) CallCount(transactionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, call := range m.calls {
		if call.Transaction.ID == transactionID {
			count++
		}
	}
	return count
}

var _ Client = (*Mock)(nil)
