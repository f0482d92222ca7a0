package rbac

import (
	"context"
	"errors"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// GrantSource loads the authorization slice of a user profile. It returns
// ErrNotFound when the user has no profile.
type GrantSource interface {
	Grants(ctx context.Context, userID int64) (Grants, error)
}

// Service resolves permissions for users.
type Service struct {
	source GrantSource
}

// NewService constructs a Service over the profile store.
func NewService(source GrantSource) *Service {
	return &Service{source: source}
}

// EffectivePermissions returns deduplicated permission names for a user. A
// user without a profile has no permissions.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := s.source.Grants(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return PermissionsFor(grants), nil
}
