package ui

import "sync"

// Bindings owns a set of subscriptions and releases them together.
type Bindings struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add takes ownership of s.
func (b *Bindings) Add(s *Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
}

// Len is the number of subscriptions still owned.
func (b *Bindings) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ReleaseAll releases every owned subscription and empties the arena.
func (b *Bindings) ReleaseAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Release()
	}
}
