// Package fha implements file-handle affinity scheduling for an NFS server's
// request dispatch loop.
//
// Every incoming request is described by the file it targets, whether it
// carries shared (read) or exclusive (write) intent, and an offset. The
// Scheduler decides which worker should run it so that work against the same
// file stays on a small set of workers:
//
//   - while a write is outstanding, all work on the file funnels to the
//     first worker bound to it
//   - reads close to each other (same offset bin) stick to the worker that
//     served the previous nearby read, unless it is overloaded
//   - otherwise a new worker is bound to the file, up to a per-file bound,
//     after which the least loaded bound worker is reused
//
// Assign and Complete are called in pairs from arbitrary goroutines. A single
// mutex covers the whole table; critical sections are a map lookup plus a scan
// over at most MaxThreadsPerFile bindings.
//
// Callers must call Complete for every Slot filled by Assign, including
// requests abandoned by the transport, or the file entry leaks.
package fha
