// Package changeset holds the reviewable file changes of one AI turn.
package changeset

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/sokinpui/changepipe/model"
)

// Set is an ordered collection of FileChanges keyed by ID. Every mutation
// publishes a new slice; a slice handed out by List or to a subscriber is
// never modified afterwards.
type Set struct {
	mu      sync.Mutex
	entries []model.FileChange

	subs    map[int]func([]model.FileChange)
	nextSub int
}

// New returns an empty Set.
func New() *Set {
	return &Set{subs: make(map[int]func([]model.FileChange))}
}

// Add appends one change in pending state and returns it as stored. A change
// without an ID, or with an ID already in the set, gets a fresh one.
func (s *Set) Add(change model.FileChange) model.FileChange {
	added := s.AddBatch([]model.FileChange{change})
	return added[0]
}

// AddBatch appends changes in order. See Add.
func (s *Set) AddBatch(changes []model.FileChange) []model.FileChange {
	if len(changes) == 0 {
		return nil
	}

	s.mu.Lock()
	seen := make(map[string]bool, len(s.entries)+len(changes))
	for _, e := range s.entries {
		seen[e.ID] = true
	}
	added := make([]model.FileChange, 0, len(changes))
	for _, c := range changes {
		if c.ID == "" || seen[c.ID] {
			c.ID = uuid.NewString()
		}
		seen[c.ID] = true
		c.Status = model.StatusPending
		added = append(added, c)
	}
	next := append(slices.Clip(s.entries), added...)
	snapshot := s.publish(next)
	s.mu.Unlock()

	s.notify(snapshot)
	return added
}

// Get returns the change with the given ID.
func (s *Set) Get(id string) (model.FileChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.entries[i], true
	}
	return model.FileChange{}, false
}

// List returns all changes in insertion order.
func (s *Set) List() []model.FileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Pending returns the changes still awaiting a decision, in order.
func (s *Set) Pending() []model.FileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []model.FileChange
	for _, e := range s.entries {
		if e.IsPending() {
			pending = append(pending, e)
		}
	}
	return pending
}

// Len returns the number of changes regardless of status.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Counts returns how many changes are in each status.
func (s *Set) Counts() (pending, accepted, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		switch e.Status {
		case model.StatusPending:
			pending++
		case model.StatusAccepted:
			accepted++
		case model.StatusRejected:
			rejected++
		}
	}
	return pending, accepted, rejected
}

// MarkAccepted records that the change was written. It does not write
// anything itself; callers go through the apply package.
func (s *Set) MarkAccepted(id string) bool {
	return s.transition(id, model.StatusAccepted)
}

// Reject marks a pending change as rejected. The filesystem is never touched.
func (s *Set) Reject(id string) bool {
	return s.transition(id, model.StatusRejected)
}

// transition moves a pending change to status to. Repeating a transition
// that already happened is a no-op that still reports true; any other move
// out of a terminal status is refused.
func (s *Set) transition(id string, to model.Status) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	switch s.entries[i].Status {
	case to:
		s.mu.Unlock()
		return true
	case model.StatusPending:
	default:
		s.mu.Unlock()
		return false
	}

	next := slices.Clone(s.entries)
	next[i].Status = to
	snapshot := s.publish(next)
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

// RejectAll rejects every pending change and returns how many were rejected.
func (s *Set) RejectAll() int {
	s.mu.Lock()
	next := slices.Clone(s.entries)
	n := 0
	for i := range next {
		if next[i].IsPending() {
			next[i].Status = model.StatusRejected
			n++
		}
	}
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	snapshot := s.publish(next)
	s.mu.Unlock()

	s.notify(snapshot)
	return n
}

// Clear discards every change regardless of status.
func (s *Set) Clear() {
	s.mu.Lock()
	snapshot := s.publish(nil)
	s.mu.Unlock()

	s.notify(snapshot)
}

// Subscribe registers fn to receive the full list after every mutation.
// fn runs on the mutating goroutine without the lock held. The returned func
// unsubscribes.
func (s *Set) Subscribe(fn func([]model.FileChange)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func([]model.FileChange))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Set) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e model.FileChange) bool { return e.ID == id })
}

// publish installs next and returns the subscribers to notify along with a
// copy for them. Must be called with s.mu held.
func (s *Set) publish(next []model.FileChange) notification {
	s.entries = next
	fns := make([]func([]model.FileChange), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return notification{fns: fns, entries: slices.Clone(next)}
}

type notification struct {
	fns     []func([]model.FileChange)
	entries []model.FileChange
}

func (s *Set) notify(n notification) {
	for _, fn := range n.fns {
		fn(n.entries)
	}
}
