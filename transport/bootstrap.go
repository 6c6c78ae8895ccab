package transport

import (
	"context"
	"time"
)

// bootstrapSemaphore is the capacity-1, per-Transport (never process-wide —
// §9 design notes) semaphore guaranteeing at most one sniff-on-startup is
// ever in flight, regardless of how many requests race to be first (§4.5,
// §8 A3).
type bootstrapSemaphore struct {
	ch chan struct{}
}

func newBootstrapSemaphore() *bootstrapSemaphore {
	s := &bootstrapSemaphore{ch: make(chan struct{}, 1)}
	s.ch <- struct{}{}
	return s
}

// TryAcquire blocks up to timeout for the single slot.
func (s *bootstrapSemaphore) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.ch:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}

func (s *bootstrapSemaphore) Release() { s.ch <- struct{}{} }
