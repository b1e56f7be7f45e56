package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging. Use them consistently so the
// scheduler, the service pool and the admin API can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// RPC Call
	// ========================================================================
	KeyRequestID = "request_id" // Call ID assigned at ingress
	KeyProcedure = "procedure"  // NFS procedure name: READ, WRITE, LOOKUP, ...
	KeyHandle    = "handle"     // File-handle key (hex)
	KeyOp        = "op"         // read or write intent
	KeyOffset    = "offset"     // File offset for read/write operations
	KeyCount     = "count"      // Byte count requested

	// ========================================================================
	// Scheduling
	// ========================================================================
	KeyWorker    = "worker"    // Worker ID
	KeyRule      = "rule"      // Rule that picked the worker
	KeyEntries   = "entries"   // Number of tracked files
	KeyReason    = "reason"    // Why something was repaired or rejected
	KeyForwarded = "forwarded" // Call moved from the receiving worker to another
	KeyQueue     = "queue"     // Queue depth
	KeyWorkers   = "workers"   // Pool size

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyComponent  = "component"
	KeyPath       = "path"
	KeyAddr       = "addr"
)

// ============================================================================
// Field constructors
// ============================================================================

// RequestID returns a slog.Attr for a call ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Procedure returns a slog.Attr for an NFS procedure name
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Handle returns a slog.Attr for a file-handle key already in hex form
func Handle(h string) slog.Attr {
	return slog.String(KeyHandle, h)
}

// Offset returns a slog.Attr for a file offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Worker returns a slog.Attr for a worker ID
func Worker(id int) slog.Attr {
	return slog.Int(KeyWorker, id)
}

// Rule returns a slog.Attr for a scheduling rule name
func Rule(name string) slog.Attr {
	return slog.String(KeyRule, name)
}

// DurationMs returns a slog.Attr for an elapsed duration in milliseconds
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}

// Err returns a slog.Attr for an error, or an empty Attr for nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
