package pipeline

import "sync"

// SearchBudget caps how many external search calls a session may spend. It
// replaces counting prior tool calls out of the conversation history with an
// explicit counter owned by the orchestrator.
type SearchBudget struct {
	mu        sync.Mutex
	limit     int
	spent     int
	perSearch int
}

// NewSearchBudget creates a budget of limit calls, each Spend consuming
// perSearch units (minimum 1).
func NewSearchBudget(limit, perSearch int) *SearchBudget {
	if perSearch < 1 {
		perSearch = 1
	}
	return &SearchBudget{limit: limit, perSearch: perSearch}
}

// Spend consumes one search's worth of budget. Returns false, without
// consuming, when the budget cannot cover it.
func (b *SearchBudget) Spend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spent+b.perSearch > b.limit {
		return false
	}
	b.spent += b.perSearch
	return true
}

// Remaining reports the unspent budget.
func (b *SearchBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.spent
}

// Reset restores the full budget for a new session turn.
func (b *SearchBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent = 0
}
