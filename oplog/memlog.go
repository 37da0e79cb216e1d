package oplog

import (
	"context"
	"sync"
)

// MemLog keeps appended ops in memory, in append order.
type MemLog struct {
	lock sync.Mutex
	ops  []Op
}

func (m *MemLog) Append(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lock.Lock()
	m.ops = append(m.ops, ops...)
	m.lock.Unlock()
	return nil
}

// Ops returns a copy of everything appended so far.
func (m *MemLog) Ops() []Op {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]Op(nil), m.ops...)
}

func (m *MemLog) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.ops)
}
