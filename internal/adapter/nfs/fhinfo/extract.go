// Package fhinfo turns raw NFSv3 call arguments into scheduling descriptors.
//
// Only the head of the argument body is decoded: the file handle that every
// procedure except NULL starts with and, for READ, WRITE and COMMIT, the
// offset and count that follow it.
package fhinfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marmos91/fhasched/pkg/fha"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// MaxHandleSize is the NFSv3 file handle limit (RFC 1813, NFS3_FHSIZE).
const MaxHandleSize = 64

var (
	// ErrUnknownProcedure is returned for procedure numbers outside NFSv3.
	ErrUnknownProcedure = errors.New("unknown NFSv3 procedure")

	// ErrBadHandle is returned when the encoded file handle is empty or too long.
	ErrBadHandle = errors.New("invalid file handle")
)

type handleArgs struct {
	Handle []byte
}

// offsetArgs is the common prefix of READ3args, WRITE3args and COMMIT3args.
type offsetArgs struct {
	Handle []byte
	Offset uint64
	Count  uint32
}

// Info is what the dispatcher learns about one call.
type Info struct {
	Descriptor fha.Descriptor
	Handle     []byte
	Count      uint32
}

// Extract decodes the call arguments of proc. ok is false for NULL, which is
// dispatched without affinity. Decoding failures are returned as errors; the
// caller should run such calls on the receiving worker.
func Extract(proc uint32, args []byte) (info Info, ok bool, err error) {
	if proc == ProcNull {
		return Info{}, false, nil
	}
	p, known := procedures[proc]
	if !known {
		return Info{}, false, fmt.Errorf("procedure %d: %w", proc, ErrUnknownProcedure)
	}

	if len(args) < 4 {
		return Info{}, false, fmt.Errorf("%s: short argument body: %w", p.name, ErrBadHandle)
	}
	// Reject oversized handles before the decoder allocates them.
	if n := binary.BigEndian.Uint32(args); n == 0 || n > MaxHandleSize {
		return Info{}, false, fmt.Errorf("%s: handle length %d: %w", p.name, n, ErrBadHandle)
	}

	info.Descriptor.Kind = p.kind
	if p.offset {
		var a offsetArgs
		if _, err := xdr.Unmarshal(bytes.NewReader(args), &a); err != nil {
			return Info{}, false, fmt.Errorf("failed to unmarshal %s args: %w", p.name, err)
		}
		info.Handle, info.Count = a.Handle, a.Count
		info.Descriptor.Offset = a.Offset
	} else {
		var a handleArgs
		if _, err := xdr.Unmarshal(bytes.NewReader(args), &a); err != nil {
			return Info{}, false, fmt.Errorf("failed to unmarshal %s args: %w", p.name, err)
		}
		info.Handle = a.Handle
	}

	info.Descriptor.Key = fha.KeyFromHandle(info.Handle)
	return info, true, nil
}

// EncodeArgs builds the argument head Extract understands. Offset and count
// are only written for procedures that carry them. It is used by the workload
// generator and by tests.
func EncodeArgs(proc uint32, handle []byte, offset uint64, count uint32) ([]byte, error) {
	if len(handle) == 0 || len(handle) > MaxHandleSize {
		return nil, fmt.Errorf("handle length %d: %w", len(handle), ErrBadHandle)
	}
	var buf bytes.Buffer
	var v any = &handleArgs{Handle: handle}
	if HasOffset(proc) {
		v = &offsetArgs{Handle: handle, Offset: offset, Count: count}
	}
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to marshal %s args: %w", ProcName(proc), err)
	}
	return buf.Bytes(), nil
}
