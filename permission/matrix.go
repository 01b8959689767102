package permission

import "sort"

// ToMatrix folds a flat entry list into the nested matrix. Later entries for
// the same triple overwrite earlier ones, matching the store's
// last-writer-wins behaviour.
func ToMatrix(entries []Entry) Matrix {
	m := make(Matrix)
	for _, e := range entries {
		byResource, ok := m[e.Role]
		if !ok {
			byResource = make(map[Resource]map[Action]bool)
			m[e.Role] = byResource
		}
		byAction, ok := byResource[e.Resource]
		if !ok {
			byAction = make(map[Action]bool)
			byResource[e.Resource] = byAction
		}
		byAction[e.Action] = e.Granted
	}
	return m
}

// ToFlat unfolds the nested matrix back into a sorted entry list. Sorting by
// (role, resource, action) makes the conversion order-independent, so
// ToFlat(ToMatrix(entries)) equals the deduplicated, sorted input.
func ToFlat(m Matrix) []Entry {
	entries := make([]Entry, 0, len(m)*4)
	for role, byResource := range m {
		for resource, byAction := range byResource {
			for action, granted := range byAction {
				entries = append(entries, Entry{
					Role:     role,
					Resource: resource,
					Action:   action,
					Granted:  granted,
				})
			}
		}
	}
	SortEntries(entries)
	return entries
}

// SortEntries orders entries by (role, resource, action).
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		return a.Action < b.Action
	})
}
