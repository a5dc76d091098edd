// Package id provides typed ULID generation for the relay.
//
// ULIDs are lexicographically sortable, so item IDs double as enqueue-order
// evidence in logs, and the prefix makes them recognizable at a glance.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ItemID identifies a queued request for its lifetime.
type ItemID string

// ItemPrefix marks item IDs in logs and status payloads.
const ItemPrefix = "item"

// RequestPrefix marks daemon HTTP request IDs.
const RequestPrefix = "req"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewItemID generates a new queue item ID
func NewItemID() ItemID {
	return ItemID(Default().GenerateWithPrefix(ItemPrefix))
}

// String returns the ID as a plain string
func (id ItemID) String() string { return string(id) }

// NewRequestID generates a new daemon HTTP request ID
func NewRequestID() string {
	return Default().GenerateWithPrefix(RequestPrefix)
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
