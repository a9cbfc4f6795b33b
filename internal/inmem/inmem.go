// Package inmem is the zero-dependency backend: every capability store over
// one mutex-guarded arena. It backs tests, examples, and deployments that
// run without a database.
package inmem

import (
	"sync"

	"github.com/doxalabs/doxa/internal/domain"
)

// ErrNotFound aliases the shared sentinel so errors.Is works uniformly
// across backends.
var ErrNotFound = domain.ErrNotFound

// DB is the process-local arena the in-memory stores share. Beliefs, edges,
// and adjacency live in maps keyed by id; entities never hold raw references
// to each other.
type DB struct {
	mu        sync.RWMutex
	memories  map[string]*domain.MemoryRecord
	beliefs   map[string]*domain.Belief
	conflicts map[string]*domain.BeliefConflict
	edges     map[string]*domain.BeliefRelationship

	// adjacency indexes edge ids by belief id, both directions.
	outEdges map[string][]string
	inEdges  map[string][]string
}

func Open() *DB {
	return &DB{
		memories:  make(map[string]*domain.MemoryRecord),
		beliefs:   make(map[string]*domain.Belief),
		conflicts: make(map[string]*domain.BeliefConflict),
		edges:     make(map[string]*domain.BeliefRelationship),
		outEdges:  make(map[string][]string),
		inEdges:   make(map[string][]string),
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
