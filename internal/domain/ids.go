package domain

import "github.com/google/uuid"

// Identifiers are opaque strings assigned by the engine, never by callers.
// The prefix tells entity kinds apart in logs and details bags.

func NewMemoryID() string       { return "mem_" + uuid.NewString() }
func NewBeliefID() string       { return "bel_" + uuid.NewString() }
func NewConflictID() string     { return "conf_" + uuid.NewString() }
func NewRelationshipID() string { return "rel_" + uuid.NewString() }

// NewDryRunID marks preview ingestions that produced no writes.
func NewDryRunID() string { return "dry-run-" + uuid.NewString() }
