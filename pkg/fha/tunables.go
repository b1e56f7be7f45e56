package fha

import "fmt"

// Default tunable values, matching the historical sysctl defaults.
const (
	DefaultBinShift          = 18 // 256KiB offset bins
	DefaultMaxThreadsPerFile = 8
	DefaultMaxReqsPerThread  = 4
)

// maxBinShift keeps 1<<BinShift inside a uint64.
const maxBinShift = 63

// Tunables are the runtime knobs of the scheduler. They can be changed while
// the scheduler is serving requests; new values apply to the next Assign.
type Tunables struct {
	// Enabled turns affinity scheduling on. When false, Assign always returns
	// the caller's worker and does no bookkeeping.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BinShift sets the offset bin size to 1<<BinShift bytes.
	BinShift uint `json:"bin_shift" yaml:"bin_shift"`

	// MaxThreadsPerFile bounds how many workers the growth rule binds to one
	// file. Zero means unlimited.
	MaxThreadsPerFile int `json:"max_threads_per_file" yaml:"max_threads_per_file"`

	// MaxReqsPerThread is the in-flight load above which a worker stops
	// attracting reads by locality. Zero means unlimited.
	MaxReqsPerThread int `json:"max_reqs_per_thread" yaml:"max_reqs_per_thread"`

	// MaxEntries bounds the number of tracked files. When the table is full,
	// Assign fails with ErrTableFull. Zero means unlimited.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// IdleScanLimit bounds how many pool workers the growth rule inspects when
	// looking for an idle worker. Zero scans the whole pool.
	IdleScanLimit int `json:"idle_scan_limit" yaml:"idle_scan_limit"`
}

// DefaultTunables returns the stock configuration.
func DefaultTunables() Tunables {
	return Tunables{
		Enabled:           true,
		BinShift:          DefaultBinShift,
		MaxThreadsPerFile: DefaultMaxThreadsPerFile,
		MaxReqsPerThread:  DefaultMaxReqsPerThread,
	}
}

// Validate rejects values the policy cannot work with.
func (t Tunables) Validate() error {
	if t.BinShift > maxBinShift {
		return fmt.Errorf("%w: bin_shift %d exceeds %d", ErrInvalidTunables, t.BinShift, maxBinShift)
	}
	if t.MaxThreadsPerFile < 0 {
		return fmt.Errorf("%w: max_threads_per_file must not be negative", ErrInvalidTunables)
	}
	if t.MaxReqsPerThread < 0 {
		return fmt.Errorf("%w: max_reqs_per_thread must not be negative", ErrInvalidTunables)
	}
	if t.MaxEntries < 0 {
		return fmt.Errorf("%w: max_entries must not be negative", ErrInvalidTunables)
	}
	if t.IdleScanLimit < 0 {
		return fmt.Errorf("%w: idle_scan_limit must not be negative", ErrInvalidTunables)
	}
	return nil
}

// bin maps an offset to its locality bin.
func (t Tunables) bin(offset uint64) uint64 {
	return offset >> t.BinShift
}

// threadsFull reports whether n bound workers reach the per-file bound.
func (t Tunables) threadsFull(n int) bool {
	return t.MaxThreadsPerFile > 0 && n >= t.MaxThreadsPerFile
}

// overloaded reports whether a worker with the given load should stop
// attracting locality matches.
func (t Tunables) overloaded(inFlight int) bool {
	return t.MaxReqsPerThread > 0 && inFlight >= t.MaxReqsPerThread
}
