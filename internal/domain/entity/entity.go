// Package entity defines the searchable entity aggregate shared by every
// indexed content type.
package entity

import (
	"fmt"
	"regexp"

	"github.com/calliope-hq/calliope/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxBodySize is the maximum entity body size in bytes.
const MaxBodySize = 163840 // 160KB

// Type discriminates searchable entity kinds.
type Type string

const (
	// TypeDocument is the primary content type.
	TypeDocument Type = "document"
	// TypeNote is the secondary content type.
	TypeNote Type = "note"
	// TypeComment is the annotation type; comments have no title.
	TypeComment Type = "comment"
)

// AllTypes returns every searchable entity type in priority order.
func AllTypes() []Type {
	return []Type{TypeDocument, TypeNote, TypeComment}
}

// ParseType validates a type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDocument, TypeNote, TypeComment:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidEntity, s)
}

// Visibility controls read access for principals outside the owner/tenant.
type Visibility string

const (
	// VisibilityPrivate restricts access to the owner and tenant members.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublicRead allows anyone to read.
	VisibilityPublicRead Visibility = "public_read"
	// VisibilityPublicWrite allows anyone to read and write.
	VisibilityPublicWrite Visibility = "public_write"
)

// IsPublic reports whether the visibility grants read access to everyone.
func (v Visibility) IsPublic() bool {
	return v == VisibilityPublicRead || v == VisibilityPublicWrite
}

// Descriptor is the minimal view the access predicate needs.
type Descriptor struct {
	TenantID   string // empty means personal/unscoped
	OwnerID    string
	Visibility Visibility
}

// Entity is the searchable entity aggregate (immutable value object).
type Entity struct {
	id                string
	entityType        Type
	title             string
	body              string
	tenantID          string
	ownerID           string
	visibility        Visibility
	vector            []float32
	stale             bool
	updatedAt         int64 // unix millis
	vectorGeneratedAt int64 // unix millis, 0 if never generated
}

// New validates and creates an Entity. A new entity is always stale with no
// vector; the generator is the only writer of the vector triple.
// Title and body may both be empty (the generator treats empty embedding
// text as a no-op).
func New(
	id string, entityType Type, title, body string,
	tenantID, ownerID string, visibility Visibility, updatedAt int64,
) (Entity, error) {
	if id == "" {
		return Entity{}, fmt.Errorf("%w: id is required", domain.ErrInvalidEntity)
	}
	if len(id) > 256 {
		return Entity{}, fmt.Errorf("%w: id too long (max 256)", domain.ErrInvalidEntity)
	}
	if !idRegex.MatchString(id) {
		return Entity{}, fmt.Errorf(
			"%w: id must be alphanumeric with underscores and hyphens", domain.ErrInvalidEntity)
	}
	if _, err := ParseType(string(entityType)); err != nil {
		return Entity{}, err
	}
	if ownerID == "" {
		return Entity{}, fmt.Errorf("%w: owner_id is required", domain.ErrInvalidEntity)
	}
	switch visibility {
	case VisibilityPrivate, VisibilityPublicRead, VisibilityPublicWrite:
	case "":
		visibility = VisibilityPrivate
	default:
		return Entity{}, fmt.Errorf("%w: unknown visibility %q", domain.ErrInvalidEntity, visibility)
	}
	if len(body) > MaxBodySize {
		return Entity{}, fmt.Errorf("%w: body too large (max %d bytes)", domain.ErrInvalidEntity, MaxBodySize)
	}

	return Entity{
		id:         id,
		entityType: entityType,
		title:      title,
		body:       body,
		tenantID:   tenantID,
		ownerID:    ownerID,
		visibility: visibility,
		stale:      true,
		updatedAt:  updatedAt,
	}, nil
}

// Reconstruct creates an Entity without validation (storage hydration).
func Reconstruct(
	id string, entityType Type, title, body string,
	tenantID, ownerID string, visibility Visibility,
	vector []float32, stale bool, updatedAt, vectorGeneratedAt int64,
) Entity {
	return Entity{
		id: id, entityType: entityType, title: title, body: body,
		tenantID: tenantID, ownerID: ownerID, visibility: visibility,
		vector: vector, stale: stale,
		updatedAt: updatedAt, vectorGeneratedAt: vectorGeneratedAt,
	}
}

// ID returns the entity identifier.
func (e *Entity) ID() string { return e.id }

// Type returns the entity type discriminator.
func (e *Entity) Type() Type { return e.entityType }

// Title returns the entity title (empty for comments).
func (e *Entity) Title() string { return e.title }

// Body returns the entity body text.
func (e *Entity) Body() string { return e.body }

// TenantID returns the owning tenant, or empty for personal entities.
func (e *Entity) TenantID() string { return e.tenantID }

// OwnerID returns the owning principal.
func (e *Entity) OwnerID() string { return e.ownerID }

// Visibility returns the visibility setting.
func (e *Entity) Visibility() Visibility { return e.visibility }

// Vector returns the stored embedding vector (nil until first generation).
func (e *Entity) Vector() []float32 { return e.vector }

// Stale reports whether the stored vector lags the current content.
func (e *Entity) Stale() bool { return e.stale }

// UpdatedAt returns the last content mutation time in unix millis.
func (e *Entity) UpdatedAt() int64 { return e.updatedAt }

// VectorGeneratedAt returns the last successful generation time in unix millis.
func (e *Entity) VectorGeneratedAt() int64 { return e.vectorGeneratedAt }

// EmbeddingText derives the text fed to the embedding function.
/// Deterministic: the same field state always yields the same text, which is
// what makes the stale flag meaningful.
func (e *Entity) EmbeddingText() string {
	if e.title == "" {
		return e.body
	}
	if e.body == "" {
		return e.title
	}
	return e.title + "\n\n" + e.body
}

// Descriptor returns the access-relevant view of the entity.
func (e *Entity) Descriptor() Descriptor {
	return Descriptor{TenantID: e.tenantID, OwnerID: e.ownerID, Visibility: e.visibility}
}

// WithContent returns a copy with new title/body, marked stale. The previous
// vector is kept so lexical search keeps working while regeneration is pending.
func (e *Entity) WithContent(title, body string, updatedAt int64) Entity {
	c := *e
	c.title = title
	c.body = body
	c.stale = true
	c.updatedAt = updatedAt
	return c
}

// WithVector returns a copy with the vector triple set and staleness cleared.
func (e *Entity) WithVector(v []float32, generatedAt int64) Entity {
	c := *e
	c.vector = v
	c.vectorGeneratedAt = generatedAt
	c.stale = false
	return c
}

// MarkStale returns a copy with the stale flag re-asserted.
func (e *Entity) MarkStale() Entity {
	c := *e
	c.stale = true
	return c
}
