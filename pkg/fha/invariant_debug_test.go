//go:build fhadebug

package fha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplete_PanicsOnViolationInDebugBuilds(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	_, slot := dispatch(t, s, rd(1, 0), pool[0])
	bogus := &Slot{entry: slot.entry, kind: Write, worker: pool[1]}

	assert.Panics(t, func() { s.Complete(bogus) })

	// The lock is released before the panic, so the scheduler stays usable.
	finish(s, slot)
	assert.Equal(t, 0, s.Len())
}
