//go:build tinygo

package core

import (
	"runtime/interrupt"
	"sync"
)

// interruptLocker masks interrupts between Lock and Unlock. It does not
// nest: Lock must not be called again before Unlock.
type interruptLocker struct {
	state interrupt.State
}

// NewInterruptLocker returns a locker that disables interrupts while held
func NewInterruptLocker() sync.Locker {
	return &interruptLocker{}
}

func (l *interruptLocker) Lock() {
	l.state = interrupt.Disable()
}

func (l *interruptLocker) Unlock() {
	interrupt.Restore(l.state)
}
