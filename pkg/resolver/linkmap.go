package resolver

import (
	"sync"

	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// LinkMap is the per-worker in-memory fingerprint -> InstructionResult
// table. Reads are concurrent; a single writer inserts each completed
// result. Insertion is insert-if-absent: duplicate inserts of the same
// fingerprint are accepted and silently dropped, since content
// addressing guarantees they'd carry the same value anyway.
type LinkMap struct {
	mu      sync.RWMutex
	results map[string]workflow.InstructionResult
}

// NewLinkMap builds an empty LinkMap.
func NewLinkMap() *LinkMap {
	return &LinkMap{results: make(map[string]workflow.InstructionResult)}
}

// Get looks up the result for fingerprint.
func (m *LinkMap) Get(fingerprint string) (workflow.InstructionResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[fingerprint]
	return r, ok
}

// Insert records result for fingerprint if no result is already present.
func (m *LinkMap) Insert(fingerprint string, result workflow.InstructionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[fingerprint]; exists {
		return
	}
	m.results[fingerprint] = result
}

// Len reports how many results are currently recorded.
func (m *LinkMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
