package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon-api/internal/models"
)

func TestResolveUnionWithRoleFilter(t *testing.T) {
	users := newMemUserRepo()
	users.addUser("A", "a@example.com", models.RoleViewer)
	users.addUser("B", "b@example.com", models.RoleViewer)
	users.addUser("C", "c@example.com", models.RoleEditor)
	users.addToGroup("G", "B", "C")

	resolver := NewAudienceResolver(users)

	// Explicit ids bypass role filtering; group members are filtered.
	audience, err := resolver.Resolve(context.Background(), models.AudienceSpec{
		UserIDs:  []string{"A", "B"},
		GroupIDs: []string{"G"},
		Roles:    []string{"editor"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B", "C"}, audience.IDs())
	assert.Nil(t, audience["A"], "explicit id without group expansion has no cached profile")
	assert.NotNil(t, audience["C"], "group member carries its profile")
}

func TestResolveGroupOnly(t *testing.T) {
	users := newMemUserRepo()
	users.addUser("B", "b@example.com", models.RoleViewer)
	users.addUser("C", "c@example.com", models.RoleEditor)
	users.addToGroup("G", "B", "C")

	resolver := NewAudienceResolver(users)

	audience, err := resolver.Resolve(context.Background(), models.AudienceSpec{
		GroupIDs: []string{"G"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B", "C"}, audience.IDs())
}

func TestResolveDeduplicatesOverlappingGroups(t *testing.T) {
	users := newMemUserRepo()
	users.addUser("B", "b@example.com", models.RoleViewer)
	users.addToGroup("G1", "B")
	users.addToGroup("G2", "B")

	resolver := NewAudienceResolver(users)

	audience, err := resolver.Resolve(context.Background(), models.AudienceSpec{
		UserIDs:  []string{"B"},
		GroupIDs: []string{"G1", "G2"},
	})
	require.NoError(t, err)
	assert.Len(t, audience, 1)
}

func TestResolveEmptyResultFails(t *testing.T) {
	users := newMemUserRepo()
	users.addUser("C", "c@example.com", models.RoleViewer)
	users.addToGroup("G", "C")

	resolver := NewAudienceResolver(users)

	// Group resolves, but the role filter excludes every member.
	_, err := resolver.Resolve(context.Background(), models.AudienceSpec{
		GroupIDs: []string{"G"},
		Roles:    []string{"admin"},
	})
	assert.ErrorIs(t, err, ErrNoRecipients)

	// Unknown group with no explicit ids.
	_, err = resolver.Resolve(context.Background(), models.AudienceSpec{
		GroupIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, ErrNoRecipients)
}
