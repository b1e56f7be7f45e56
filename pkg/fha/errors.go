package fha

import "errors"

var (
	// ErrTableFull is returned by Assign when a new file entry cannot be
	// created because the table reached MaxEntries. The worker returned
	// alongside it is the caller's own, which is always a safe choice.
	ErrTableFull = errors.New("fha: file handle table full")

	// ErrInvalidTunables is wrapped by Tunables.Validate failures.
	ErrInvalidTunables = errors.New("fha: invalid tunables")

	// ErrNilWorker is returned by Assign when called without a worker.
	ErrNilWorker = errors.New("fha: nil worker")

	// ErrNilSlot is returned by Assign when no slot is supplied to carry the
	// back-reference Complete needs.
	ErrNilSlot = errors.New("fha: nil slot")

	// ErrSlotInUse is returned by Assign when the slot still references a
	// request that was never completed.
	ErrSlotInUse = errors.New("fha: slot already bound")
)
