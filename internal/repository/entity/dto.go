package entity

import (
	"encoding/binary"
	"math"
	"strconv"

	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

// Hash field names. fieldContent and fieldVector carry the double-underscore
// prefix so they cannot collide with future user-facing fields.
const (
	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldTitle       = "title"
	fieldBody        = "body"
	fieldTenantID    = "tenant_id"
	fieldOwnerID     = "owner_id"
	fieldVisibility  = "visibility"
	fieldStale       = "stale"
	fieldUpdatedAt   = "updated_at"
	fieldGeneratedAt = "vector_generated_at"
)

// buildHashFields flattens a domain Entity for HSET. The derived embedding
// text is materialized into __content so BM25 sees exactly what the embedder
// saw. The vector triple fields (__vector, vector_generated_at) are owned by
// SetVector and never written here, so a content update keeps the previous
// vector searchable and its generation timestamp intact.
func buildHashFields(e *doment.Entity) map[string]string {
	return map[string]string{
		fieldContent:    e.EmbeddingText(),
		fieldTitle:      e.Title(),
		fieldBody:       e.Body(),
		fieldTenantID:   e.TenantID(),
		fieldOwnerID:    e.OwnerID(),
		fieldVisibility: string(e.Visibility()),
		fieldStale:      boolFlag(e.Stale()),
		fieldUpdatedAt:  strconv.FormatInt(e.UpdatedAt(), 10),
	}
}

// parseHashFields hydrates a domain Entity from a flat hash map.
func parseHashFields(typ doment.Type, id string, m map[string]string) doment.Entity {
	var vector []float32
	if raw, ok := m[fieldVector]; ok {
		vector = bytesToVector(raw)
	}

	updatedAt, _ := strconv.ParseInt(m[fieldUpdatedAt], 10, 64)
	generatedAt, _ := strconv.ParseInt(m[fieldGeneratedAt], 10, 64)

	return doment.Reconstruct(
		id, typ,
		m[fieldTitle], m[fieldBody],
		m[fieldTenantID], m[fieldOwnerID],
		doment.Visibility(m[fieldVisibility]),
		vector,
		m[fieldStale] == "1",
		updatedAt, generatedAt,
	)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
