package models

import (
	"sort"
	"strings"
	"time"
)

type UserRole string

const (
	RoleViewer     UserRole = "viewer"
	RoleEditor     UserRole = "editor"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

var roleTier = map[UserRole]int{
	RoleViewer:     1,
	RoleEditor:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleTier[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

// NormalizeRoles lowercases, trims, dedupes, and sorts by tier descending.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	result := make([]UserRole, 0, len(roles))
	for _, role := range roles {
		normalized := UserRole(strings.ToLower(strings.TrimSpace(string(role))))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	sort.Slice(result, func(i, j int) bool {
		return roleTier[result[i]] > roleTier[result[j]]
	})
	return result
}

// EnsureDefaultRole guarantees every user carries at least the viewer role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	if len(roles) == 0 {
		return []UserRole{RoleViewer}
	}
	return roles
}

// HasAtLeast reports whether any held role meets the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	need := roleTier[required]
	for _, role := range roles {
		if roleTier[role] >= need {
			return true
		}
	}
	return false
}

// HighestRole returns the highest-tier role held, or RoleViewer when none.
func HighestRole(roles []UserRole) UserRole {
	highest := RoleViewer
	for _, role := range roles {
		if roleTier[role] > roleTier[highest] {
			highest = role
		}
	}
	return highest
}

// HasAnyRole reports whether any held role appears in the wanted set. Used
// by audience resolution to apply a group role filter.
func HasAnyRole(roles []UserRole, wanted []string) bool {
	for _, w := range wanted {
		target := UserRole(strings.ToLower(strings.TrimSpace(w)))
		for _, role := range roles {
			if role == target {
				return true
			}
		}
	}
	return false
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Roles        []UserRole `json:"roles"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Group is a named recipient collection, e.g. a department or team.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
