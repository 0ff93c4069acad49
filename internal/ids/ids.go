// Package ids generates the identifiers used across a run: question UUIDs,
// service instance IDs and history attempt IDs.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers. Used for run
// and attempt IDs so that the history log sorts by creation time.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UUIDv4Generator generates random UUIDs. Used for question UUIDs and service
// instance IDs, which carry no ordering.
type UUIDv4Generator struct{}

func (UUIDv4Generator) Generate() string {
	return uuid.NewString()
}

// FixedGenerator returns predetermined identifiers in order. Panics once
// exhausted so that tests fail fast when more IDs are drawn than expected.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator returns a generator that yields ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator: all %d ids exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
