package workload

import (
	"encoding/binary"
	"math/rand"

	"github.com/marmos91/fhasched/internal/adapter/nfs/fhinfo"
)

// handleSize matches the 32-byte handles common on NFSv3 servers.
const handleSize = 32

var metadataReads = []uint32{fhinfo.ProcGetAttr, fhinfo.ProcLookup, fhinfo.ProcAccess}

// Op is one generated call.
type Op struct {
	Proc   uint32
	File   int
	Handle []byte
	Offset uint64
	Count  uint32
}

// Args encodes the call arguments.
func (o Op) Args() ([]byte, error) {
	return fhinfo.EncodeArgs(o.Proc, o.Handle, o.Offset, o.Count)
}

// Generator produces the call stream of one client. Each client streams
// sequentially through one file at a time, switching files now and then, so
// consecutive reads from a client land in the same offset bin.
//
// A Generator is not safe for concurrent use.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	handles [][]byte
	cursors []uint64
	file    int
}

// NewGenerator creates the generator for client. Two generators with the
// same config and client index produce the same stream.
func NewGenerator(cfg Config, client int) *Generator {
	cfg.ApplyDefaults()
	g := &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed + int64(client)*7919)),
		handles: Handles(cfg.Files),
		cursors: make([]uint64, cfg.Files),
	}
	g.file = g.rng.Intn(cfg.Files)
	// Clients sharing a file start at different places in it.
	for i := range g.cursors {
		g.cursors[i] = g.alignedOffset(g.rng.Uint64())
	}
	return g
}

// Handles returns the deterministic file handles used by the generator. The
// first 8 bytes differ per file, so every file gets its own scheduler key.
func Handles(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		h := make([]byte, handleSize)
		binary.LittleEndian.PutUint64(h, uint64(i)+1)
		binary.BigEndian.PutUint32(h[handleSize-4:], 0xf4a5c4ed)
		out[i] = h
	}
	return out
}

// Next returns the next call of the stream.
func (g *Generator) Next() Op {
	// Switch files roughly every 64 calls.
	if g.rng.Intn(64) == 0 {
		g.file = g.rng.Intn(g.cfg.Files)
	}

	op := Op{File: g.file, Handle: g.handles[g.file]}

	if g.rng.Float64() < g.cfg.MetadataRatio {
		if g.rng.Float64() < g.cfg.ReadRatio {
			op.Proc = metadataReads[g.rng.Intn(len(metadataReads))]
		} else {
			op.Proc = fhinfo.ProcSetAttr
		}
		return op
	}

	op.Proc = fhinfo.ProcWrite
	if g.rng.Float64() < g.cfg.ReadRatio {
		op.Proc = fhinfo.ProcRead
	}
	op.Offset = g.cursors[g.file]
	op.Count = uint32(g.cfg.IOSize)

	next := op.Offset + g.cfg.IOSize.Uint64()
	if next+g.cfg.IOSize.Uint64() > g.cfg.FileSize.Uint64() {
		next = 0
	}
	g.cursors[g.file] = next
	return op
}

func (g *Generator) alignedOffset(r uint64) uint64 {
	slots := g.cfg.FileSize.Uint64() / g.cfg.IOSize.Uint64()
	return (r % slots) * g.cfg.IOSize.Uint64()
}
