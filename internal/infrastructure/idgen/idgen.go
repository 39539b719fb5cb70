// Package idgen provides the identifier generators used for wallets,
// transactions, events and outbox records.
package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates ULID-based IDs. ULIDs sort by creation time, which
// keeps event and outbox primary keys roughly append-ordered.
type ULIDGenerator struct{}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate generates a new UUID.
func (g *UUIDGenerator) Generate() string {
	return uuid.NewString()
}
