package permission

import (
	"context"
	"fmt"

	"estateflow/auth"
	"estateflow/fault"
)

// Service exposes the grant matrix to the rest of the application.
type Service struct {
	repo Repository
}

// NewService wires a permission service around the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsGranted answers the capability question for a (role, resource, action)
// triple. Undefined triples deny.
func (s *Service) IsGranted(ctx context.Context, role auth.Role, resource Resource, action Action) (bool, error) {
	return s.repo.IsGranted(ctx, role, resource, action)
}

// GetMatrix returns the nested representation consumed by the settings screen.
func (s *Service) GetMatrix(ctx context.Context) (Matrix, error) {
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return ToMatrix(entries), nil
}

// BulkSet validates and stores a full grant set. All-or-nothing: one invalid
// entry rejects the whole batch before any write. Returns the applied entries
// in canonical order.
func (s *Service) BulkSet(ctx context.Context, entries []Entry) ([]Entry, error) {
	for _, e := range entries {
		if !validRole(e.Role) {
			return nil, fault.Validation("role", fmt.Sprintf("unknown role %q", e.Role))
		}
		if !validResource(e.Resource) {
			return nil, fault.Validation("resource", fmt.Sprintf("unknown resource %q", e.Resource))
		}
		if !validAction(e.Action) {
			return nil, fault.Validation("action", fmt.Sprintf("unknown action %q", e.Action))
		}
	}

	// Collapse duplicate triples (last writer wins) before hitting the store.
	applied := ToFlat(ToMatrix(entries))

	if err := s.repo.ReplaceAll(ctx, applied); err != nil {
		return nil, err
	}
	return applied, nil
}

// SetMatrix accepts the nested shape from the settings screen and performs
// the same all-or-nothing bulk set.
func (s *Service) SetMatrix(ctx context.Context, m Matrix) ([]Entry, error) {
	return s.BulkSet(ctx, ToFlat(m))
}
