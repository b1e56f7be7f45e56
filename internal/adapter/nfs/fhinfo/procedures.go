package fhinfo

import "github.com/marmos91/fhasched/pkg/fha"

// NFSv3 procedure numbers (RFC 1813).
const (
	ProcNull        uint32 = 0
	ProcGetAttr     uint32 = 1
	ProcSetAttr     uint32 = 2
	ProcLookup      uint32 = 3
	ProcAccess      uint32 = 4
	ProcReadLink    uint32 = 5
	ProcRead        uint32 = 6
	ProcWrite       uint32 = 7
	ProcCreate      uint32 = 8
	ProcMkdir       uint32 = 9
	ProcSymlink     uint32 = 10
	ProcMknod       uint32 = 11
	ProcRemove      uint32 = 12
	ProcRmdir       uint32 = 13
	ProcRename      uint32 = 14
	ProcLink        uint32 = 15
	ProcReadDir     uint32 = 16
	ProcReadDirPlus uint32 = 17
	ProcFsStat      uint32 = 18
	ProcFsInfo      uint32 = 19
	ProcPathConf    uint32 = 20
	ProcCommit      uint32 = 21
)

type procInfo struct {
	name string
	kind fha.OpKind
	// offset procedures carry (handle, offset, count) at the head of their args
	offset bool
}

var procedures = map[uint32]procInfo{
	ProcGetAttr:     {name: "GETATTR", kind: fha.Read},
	ProcSetAttr:     {name: "SETATTR", kind: fha.Write},
	ProcLookup:      {name: "LOOKUP", kind: fha.Read},
	ProcAccess:      {name: "ACCESS", kind: fha.Read},
	ProcReadLink:    {name: "READLINK", kind: fha.Read},
	ProcRead:        {name: "READ", kind: fha.Read, offset: true},
	ProcWrite:       {name: "WRITE", kind: fha.Write, offset: true},
	ProcCreate:      {name: "CREATE", kind: fha.Write},
	ProcMkdir:       {name: "MKDIR", kind: fha.Write},
	ProcSymlink:     {name: "SYMLINK", kind: fha.Write},
	ProcMknod:       {name: "MKNOD", kind: fha.Write},
	ProcRemove:      {name: "REMOVE", kind: fha.Write},
	ProcRmdir:       {name: "RMDIR", kind: fha.Write},
	ProcRename:      {name: "RENAME", kind: fha.Write},
	ProcLink:        {name: "LINK", kind: fha.Write},
	ProcReadDir:     {name: "READDIR", kind: fha.Read},
	ProcReadDirPlus: {name: "READDIRPLUS", kind: fha.Read},
	ProcFsStat:      {name: "FSSTAT", kind: fha.Read},
	ProcFsInfo:      {name: "FSINFO", kind: fha.Read},
	ProcPathConf:    {name: "PATHCONF", kind: fha.Read},
	ProcCommit:      {name: "COMMIT", kind: fha.Write, offset: true},
}

// ProcName returns the RFC 1813 name of an NFSv3 procedure.
func ProcName(proc uint32) string {
	if proc == ProcNull {
		return "NULL"
	}
	if p, ok := procedures[proc]; ok {
		return p.name
	}
	return "UNKNOWN"
}

// Kind returns the lock intent of an NFSv3 procedure. ok is false for NULL
// and unknown procedures.
func Kind(proc uint32) (kind fha.OpKind, ok bool) {
	p, ok := procedures[proc]
	return p.kind, ok
}

// HasOffset reports whether the procedure's arguments carry a file offset.
func HasOffset(proc uint32) bool {
	return procedures[proc].offset
}
