// Package machine holds the status-transition tables shared by the listing,
// appointment, deal and contract lifecycles. Each entity package declares its
// table once; validation happens here instead of scattered per call site.
package machine

import "estateflow/fault"

// Table maps a current status to the set of statuses it may move to.
// Statuses absent from the table are terminal.
type Table map[string][]string

// Can reports whether from -> to is present in the table.
func (t Table) Can(from, to string) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns nil when from -> to is legal and an InvalidTransitionError
// naming the entity otherwise.
func (t Table) Check(entity, from, to string) error {
	if !t.Can(from, to) {
		return fault.InvalidTransition(entity, from, to)
	}
	return nil
}

// Terminal reports whether status has no outgoing transitions.
func (t Table) Terminal(status string) bool {
	return len(t[status]) == 0
}
