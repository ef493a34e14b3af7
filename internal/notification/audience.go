package notification

import (
	"context"

	"github.com/pkg/errors"

	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// ErrNoRecipients is returned when an audience spec resolves to nobody.
// Fan-out must abort on it: no delivery rows, no sent_at, no counter bump.
var ErrNoRecipients = errors.New("no recipients resolved")

// AudienceResolver expands an audience spec into a deduplicated recipient
// set. Resolution is a pure read; it never writes.
type AudienceResolver interface {
	Resolve(ctx context.Context, spec models.AudienceSpec) (Audience, error)
}

// Audience maps recipient id to the profile cached during group expansion.
// Explicitly targeted ids that were not reached through a group carry a nil
// profile; the email side channel looks those up on demand.
type Audience map[string]*models.User

// IDs returns the recipient ids in unspecified order.
func (a Audience) IDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	return ids
}

type audienceResolver struct {
	users repository.UserRepository
}

func NewAudienceResolver(users repository.UserRepository) AudienceResolver {
	return &audienceResolver{users: users}
}

// Resolve seeds the set with every explicit user id, then expands each
// group, applying the role filter to group members only. Explicit ids are
// included unconditionally, so a role filter never excludes them.
func (r *audienceResolver) Resolve(ctx context.Context, spec models.AudienceSpec) (Audience, error) {
	audience := make(Audience, len(spec.UserIDs))
	for _, id := range spec.UserIDs {
		if id == "" {
			continue
		}
		audience[id] = nil
	}

	for _, groupID := range spec.GroupIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members, err := r.users.ListUsersByGroup(groupID)
		if err != nil {
			return nil, errors.Wrapf(err, "expand group %s", groupID)
		}
		for i := range members {
			member := members[i]
			if len(spec.Roles) > 0 && !models.HasAnyRole(member.Roles, spec.Roles) {
				continue
			}
			audience[member.ID] = &member
		}
	}

	if len(audience) == 0 {
		return nil, ErrNoRecipients
	}
	return audience, nil
}
