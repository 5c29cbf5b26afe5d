package relational

import (
	"sort"
	"sync"
)

// RelationChange is the precise delta delivered to observers: the rows
// a mutation added and the rows it removed. Either side may be nil,
// meaning empty.
type RelationChange struct {
	Added   Relation
	Removed Relation
}

// AddedRows collects the added side, treating nil as empty.
func (c RelationChange) AddedRows() ([]Row, error) {
	if c.Added == nil {
		return nil, nil
	}
	return AllRows(c.Added)
}

// RemovedRows collects the removed side, treating nil as empty.
func (c RelationChange) RemovedRows() ([]Row, error) {
	if c.Removed == nil {
		return nil, nil
	}
	return AllRows(c.Removed)
}

// IsEmpty reports whether the change carries no rows on either side.
func (c RelationChange) IsEmpty() bool {
	if c.Added != nil {
		if empty, err := IsEmpty(c.Added); err != nil || !empty {
			return false
		}
	}
	if c.Removed != nil {
		if empty, err := IsEmpty(c.Removed); err != nil || !empty {
			return false
		}
	}
	return true
}

// ChangeObserver receives a RelationChange synchronously when a
// non-async mutation occurs. The differentiator and simple clients
// register these directly on base relations.
type ChangeObserver func(change RelationChange)

// AsyncRelationObserver receives streaming deltas bracketed by the
// three-phase protocol. AddedRows/RemovedRows may be called multiple
// times with row batches between WillChange and DidChange.
type AsyncRelationObserver interface {
	RelationWillChange(rel Relation)
	RelationAddedRows(rel Relation, rows []Row)
	RelationRemovedRows(rel Relation, rows []Row)
	RelationError(rel Relation, err error)
	RelationDidChange(rel Relation)
}

// AsyncContentObserver receives the full new contents instead of a
// delta, bracketed by the same protocol.
type AsyncContentObserver interface {
	RelationWillChange(rel Relation)
	RelationNewContents(rel Relation, rows []Row)
	RelationError(rel Relation, err error)
	RelationDidChange(rel Relation)
}

// RemoveObserver detaches a registered observer. Safe to call more
// than once.
type RemoveObserver func()

// ObserverRegistry stores synchronous change observers by
// monotonically increasing 64-bit IDs so deregistration order is
// deterministic. The zero value is ready to use.
type ObserverRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]ChangeObserver
}

// Add registers an observer and returns its remover.
func (s *ObserverRegistry) Add(observer ChangeObserver) RemoveObserver {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[uint64]ChangeObserver)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = observer

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Notify delivers a change to every observer in registration order.
func (s *ObserverRegistry) Notify(change RelationChange) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]ChangeObserver, len(ids))
	for i, id := range ids {
		observers[i] = s.subs[id]
	}
	s.mu.Unlock()

	for _, observer := range observers {
		observer(change)
	}
}

// IsEmpty reports whether no observers are registered.
func (s *ObserverRegistry) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) == 0
}
