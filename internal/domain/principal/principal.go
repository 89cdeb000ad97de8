// Package principal models the requesting identity and its tenant memberships.
package principal

import "sort"

// MembershipStatus is the state of a principal's membership in a tenant.
type MembershipStatus string

const (
	// StatusActive grants tenant access.
	StatusActive MembershipStatus = "active"
	// StatusSuspended denies tenant access while keeping the record.
	StatusSuspended MembershipStatus = "suspended"
	// StatusRevoked denies tenant access permanently.
	StatusRevoked MembershipStatus = "revoked"
)

// Principal is the requesting identity (immutable value object).
type Principal struct {
	userID      string
	memberships map[string]MembershipStatus
}

// New creates a Principal. memberships maps tenant id to membership status.
func New(userID string, memberships map[string]MembershipStatus) Principal {
	m := make(map[string]MembershipStatus, len(memberships))
	for k, v := range memberships {
		m[k] = v
	}
	return Principal{userID: userID, memberships: m}
}

// ID returns the principal's user identifier.
func (p *Principal) ID() string { return p.userID }

// Owns reports whether the principal owns an entity with the given owner id.
func (p *Principal) Owns(ownerID string) bool {
	return ownerID != "" && p.userID == ownerID
}

// IsActiveMemberOf reports whether the principal has an active membership in
// the tenant. Suspended and revoked memberships do not count.
func (p *Principal) IsActiveMemberOf(tenantID string) bool {
	if tenantID == "" {
		return false
	}
	return p.memberships[tenantID] == StatusActive
}

// ActiveTenants returns the ids of all tenants with an active membership,
// sorted for deterministic filter construction.
func (p *Principal) ActiveTenants() []string {
	out := make([]string, 0, len(p.memberships))
	for tenant, status := range p.memberships {
		if status == StatusActive {
			out = append(out, tenant)
		}
	}
	sort.Strings(out)
	return out
}
