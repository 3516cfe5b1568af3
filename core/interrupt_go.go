//go:build !tinygo

package core

import "sync"

// NewInterruptLocker returns the locker guarding a timer shared with
// interrupt or goroutine producers. Regular Go has no interrupts to mask, so
// this is a plain mutex.
func NewInterruptLocker() sync.Locker {
	return &sync.Mutex{}
}
