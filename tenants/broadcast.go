package tenants

import "sync"

// ChangeFunc receives the newly resolved tenant context. ok is false
// when the context returned to "none selected".
type ChangeFunc func(tenantID string, ok bool)

// Broadcaster fans a tenant-context change out to subscribed screens.
// Each change is delivered at most once per subscriber, in subscription
// order, synchronously on the mutating call.
type Broadcaster struct {
	lock        sync.RWMutex
	nextID      int
	subscribers map[int]ChangeFunc
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]ChangeFunc)}
}

// Subscribe registers fn and returns an unsubscribe function.
func (b *Broadcaster) Subscribe(fn ChangeFunc) func() {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster) publish(tenantID string, ok bool) {
	b.lock.RLock()
	fns := make([]ChangeFunc, 0, len(b.subscribers))
	for i := 0; i < b.nextID; i++ {
		if fn, exists := b.subscribers[i]; exists {
			fns = append(fns, fn)
		}
	}
	b.lock.RUnlock()

	for _, fn := range fns {
		fn(tenantID, ok)
	}
}
