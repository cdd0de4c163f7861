package store

import "sync"

// mailbox is the queue behind the store's serialized context. Whoever pushes
// into an idle mailbox becomes its drainer and processes items until it is
// empty; pushes made while a drainer is active only enqueue. Reentrant sends
// from reducers, middlewares or observers therefore never deadlock and are
// processed after the current item, in push order.
type mailbox[T any] struct {
	mu       sync.Mutex
	items    []T
	draining bool
}

// push enqueues item and reports whether the caller must drain.
func (m *mailbox[T]) push(item T) (owner bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	if m.draining {
		return false
	}
	m.draining = true
	return true
}

// next pops the oldest item. When the mailbox is empty it releases drain
// ownership in the same critical section, so no push can be stranded.
func (m *mailbox[T]) next() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		m.draining = false
		var zero T
		return zero, false
	}
	item := m.items[0]
	var zero T
	m.items[0] = zero
	m.items = m.items[1:]
	return item, true
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
