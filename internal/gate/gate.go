// Package gate bounds the number of jobs allowed in flight at once.
package gate

import "context"

// Gate is a counting gate of fixed capacity. Acquire blocks until a slot is
// free or the context is cancelled; Release must be called exactly once per
// successful Acquire.
type Gate struct {
	slots chan struct{}
}

func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("gate: release without matching acquire")
	}
}

func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InUse reports currently held slots. Racy by nature; informational only.
func (g *Gate) InUse() int {
	return len(g.slots)
}
