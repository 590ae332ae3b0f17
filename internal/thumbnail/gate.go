package thumbnail

import (
	"errors"

	"go.uber.org/atomic"
)

// ErrBusy is returned when a bulk generation pass is already running.
var ErrBusy = errors.New("thumbnail generation already in progress")

// Gate is a non-queueing single-flight guard: one bulk pass at a time,
// everyone else bounces immediately instead of waiting.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate or fails fast with ErrBusy.
func (g *Gate) TryAcquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	return nil
}

// Release must be called exactly once per successful TryAcquire, on every
// path out of the guarded section.
func (g *Gate) Release() {
	g.busy.Store(false)
}
