package fha

import (
	"encoding/binary"
	"fmt"
)

// Key identifies a file for scheduling purposes.
//
// It is derived from the leading bytes of the NFS file handle and is
// deliberately approximate: two files sharing a Key only lose some scheduling
// quality, never correctness.
type Key uint64

// KeyFromHandle builds a Key from the first 8 bytes of an opaque file handle.
// Shorter handles are zero padded.
func KeyFromHandle(handle []byte) Key {
	var buf [8]byte
	copy(buf[:], handle)
	return Key(binary.LittleEndian.Uint64(buf[:]))
}

// String renders the key as fixed-width hex.
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// OpKind is the locking intent of a request.
type OpKind uint8

const (
	// Read is shared intent: READ, LOOKUP, GETATTR, READDIR and friends.
	Read OpKind = iota
	// Write is exclusive intent: WRITE, CREATE, REMOVE, RENAME, COMMIT, ...
	Write
)

func (k OpKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("opkind(%d)", uint8(k))
	}
}

// Descriptor is the scheduling-relevant summary of one request.
// Offset is only meaningful for reads; other operations use 0.
type Descriptor struct {
	Key    Key
	Kind   OpKind
	Offset uint64
}

// Worker is a request-processing worker owned by the transport layer.
// The scheduler records associations with workers but never creates,
// destroys or mutates them.
//
// Workers are compared with ==, so implementations should be pointer types.
type Worker interface {
	// ID is a stable identifier used for logging and snapshots.
	ID() int

	// InFlight is the number of requests queued on or executing in the worker,
	// across all files. A worker with zero in-flight requests is idle.
	InFlight() int

	// LastOffset is the offset of the most recent read dispatched to the worker.
	LastOffset() uint64
}

// Pool enumerates the workers of the service pool.
type Pool interface {
	NumWorkers() int
	Worker(i int) Worker
}

// Rule names the policy rule that produced a scheduling decision.
type Rule uint8

const (
	// RuleWriteFunnel routes to the first bound worker while a write is outstanding.
	RuleWriteFunnel Rule = iota
	// RuleLocality reuses a bound worker whose last read falls in the same bin.
	RuleLocality
	// RuleGrowth binds a new worker to the file.
	RuleGrowth
	// RuleOverflow reuses the least loaded bound worker once the file is at its bound.
	RuleOverflow
	// RuleBypass means scheduling is disabled and the caller's worker is used.
	RuleBypass
	// RuleFallback means the entry could not be created and the caller's worker is used.
	RuleFallback

	numRules
)

var ruleNames = [numRules]string{
	RuleWriteFunnel: "write_funnel",
	RuleLocality:    "locality",
	RuleGrowth:      "growth",
	RuleOverflow:    "overflow",
	RuleBypass:      "bypass",
	RuleFallback:    "fallback",
}

func (r Rule) String() string {
	if r < numRules {
		return ruleNames[r]
	}
	return fmt.Sprintf("rule(%d)", uint8(r))
}

// Rules lists every rule in declaration order.
func Rules() []Rule {
	out := make([]Rule, 0, numRules)
	for r := Rule(0); r < numRules; r++ {
		out = append(out, r)
	}
	return out
}
