// Package access holds the single visibility predicate used both for
// filtering search candidates and for direct entity access checks.
package access

import (
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
)

// Visible decides whether a principal may see an entity. Pure and
// side-effect free. An entity is visible if it is public, owned by the
// principal, or belongs to a tenant the principal is an active member of.
func Visible(d entity.Descriptor, p *principal.Principal) bool {
	if d.Visibility.IsPublic() {
		return true
	}
	if p.Owns(d.OwnerID) {
		return true
	}
	return d.TenantID != "" && p.IsActiveMemberOf(d.TenantID)
}
