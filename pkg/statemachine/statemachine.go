package statemachine

// Table maps a state to the set of states directly reachable from it in
// one lifecycle operation. States absent from the table have no outgoing
// edges.
type Table map[string][]string

// StateMachine enforces status transitions against an injected table.
// The table is copied at construction so callers cannot mutate it later.
type StateMachine struct {
	allowedTransitions Table
}

// New creates a state machine over the given transition table.
func New(table Table) *StateMachine {
	copied := make(Table, len(table))
	for from, tos := range table {
		next := make([]string, len(tos))
		copy(next, tos)
		copied[from] = next
	}
	return &StateMachine{allowedTransitions: copied}
}

// CanTransition checks if a status transition is allowed. It is total:
// unknown states (including statuses persisted before a table change)
// simply have no outgoing edges. Self-transitions are only allowed when
// listed explicitly.
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the allowed next statuses for a given status.
func (sm *StateMachine) AllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	next := make([]string, len(allowed))
	copy(next, allowed)
	return next
}

// IsTerminal reports whether a state has no outgoing edges.
func (sm *StateMachine) IsTerminal(state string) bool {
	return len(sm.allowedTransitions[state]) == 0
}
