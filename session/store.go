// Package session holds the console's single source of truth for the current
// access token and authenticated user.
package session

import (
	"sync"

	"github.com/jrsteele09/go-admin-session/users"
)

// Snapshot is an immutable view of the session at one point in time.
// Generation increases by one on every mutation.
type Snapshot struct {
	AccessToken string
	User        *users.Profile
	Generation  uint64
}

// Authenticated reports whether an access token is present.
func (s Snapshot) Authenticated() bool {
	return s.AccessToken != ""
}

// Listener receives the snapshot produced by a mutation.
type Listener func(Snapshot)

// Store owns the session. It is mutated only through SetAuth, Replace,
// CompareAndSetAuth, Clear and ClearIf.
// Listeners are invoked synchronously after each mutation, outside the lock;
// when mutations race, listeners may observe snapshots out of order and
// should compare Generation.
type Store struct {
	mu        sync.RWMutex
	snapshot  Snapshot
	listeners map[int]Listener
	nextID    int
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// SetAuth replaces the access token and, when user is non-nil, the user.
// A nil user leaves the current user in place.
func (s *Store) SetAuth(accessToken string, user *users.Profile) {
	s.mu.Lock()
	next := Snapshot{
		AccessToken: accessToken,
		User:        s.snapshot.User,
		Generation:  s.snapshot.Generation + 1,
	}
	if user != nil {
		next.User = user
	}
	s.snapshot = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, next)
}

// Replace sets the access token and user together, nil user included, in a
// single mutation.
func (s *Store) Replace(accessToken string, user *users.Profile) {
	s.mu.Lock()
	next := Snapshot{
		AccessToken: accessToken,
		User:        user,
		Generation:  s.snapshot.Generation + 1,
	}
	s.snapshot = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, next)
}

// CompareAndSetAuth behaves like SetAuth but only while the stored access
// token is still expected. It reports whether the store was changed.
func (s *Store) CompareAndSetAuth(expected, accessToken string, user *users.Profile) bool {
	s.mu.Lock()
	if s.snapshot.AccessToken != expected {
		s.mu.Unlock()
		return false
	}
	next := Snapshot{
		AccessToken: accessToken,
		User:        s.snapshot.User,
		Generation:  s.snapshot.Generation + 1,
	}
	if user != nil {
		next.User = user
	}
	s.snapshot = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, next)
	return true
}

// Clear resets the session to empty.
func (s *Store) Clear() {
	s.mu.Lock()
	next := Snapshot{Generation: s.snapshot.Generation + 1}
	s.snapshot = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, next)
}

// ClearIf clears the session only while it still holds accessToken.
func (s *Store) ClearIf(accessToken string) bool {
	s.mu.Lock()
	if s.snapshot.AccessToken != accessToken {
		s.mu.Unlock()
		return false
	}
	next := Snapshot{Generation: s.snapshot.Generation + 1}
	s.snapshot = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, next)
	return true
}

// Read returns the current snapshot.
func (s *Store) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Subscribe registers l for every future mutation. The returned function
// removes it and is safe to call more than once.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, snap Snapshot) {
	for _, l := range listeners {
		l(snap)
	}
}
