package store

// Change notification: every write publishes its collection name to all
// interested subscribers. Sends never block the writer; a subscriber that
// has fallen behind misses the signal and catches up on its periodic tick.

type subscription struct {
	ch     chan string
	wanted map[string]bool
}

// Subscription delivers collection names on C after each write to one of the
// subscribed collections. Close releases it.
type Subscription struct {
	C <-chan string

	store *Store
	id    int
}

// Subscribe registers interest in the given collections. With no arguments
// the subscription covers every collection.
func (s *Store) Subscribe(collections ...string) *Subscription {
	sub := &subscription{ch: make(chan string, 16)}
	if len(collections) > 0 {
		sub.wanted = make(map[string]bool, len(collections))
		for _, c := range collections {
			sub.wanted[c] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	return &Subscription{C: sub.ch, store: s, id: id}
}

// Close unregisters the subscription and closes its channel. Idempotent.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if inner, ok := sub.store.subs[sub.id]; ok {
		close(inner.ch)
		delete(sub.store.subs, sub.id)
	}
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, sub := range s.subs {
		if sub.wanted != nil && !sub.wanted[collection] {
			continue
		}
		select {
		case sub.ch <- collection:
		default:
		}
	}
}
