// Package store holds the authoritative, process-wide set of instance status
// records and merges push events and pull snapshots into it.
package store

import (
	"sync"
	"time"

	"github.com/rileyhilliard/instsync/internal/clock"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
)

// ChangeKind identifies which operation modified the store.
type ChangeKind int

const (
	ChangeSnapshot ChangeKind = iota
	ChangePatch
	ChangeCreate
	ChangeUpdate
	ChangeDelete
)

// String returns the operation name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeSnapshot:
		return "snapshot"
	case ChangePatch:
		return "patch"
	case ChangeCreate:
		return "create"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change describes one applied mutation. ID is empty for snapshots.
type Change struct {
	Kind ChangeKind
	ID   instance.ID
}

// Store keeps exactly one record per instance ID, in first-seen order.
// Mutations apply in the order they are called; the latest call wins.
type Store struct {
	mu         sync.RWMutex
	records    map[instance.ID]instance.Record
	order      []instance.ID
	lastUpdate time.Time

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int

	clock clock.Clock
	log   logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp LastUpdate.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[instance.ID]instance.Record),
		subs:    make(map[int]func(Change)),
		clock:   clock.Real(),
		log:     logger.NewEnvLogger("[store]"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplySnapshot replaces the whole collection with records.
// Records absent from the snapshot are dropped. If the snapshot repeats an
// ID, the last occurrence wins and keeps the position of the first.
func (s *Store) ApplySnapshot(records []instance.Record) {
	next := make(map[instance.ID]instance.Record, len(records))
	order := make([]instance.ID, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, seen := next[r.ID]; !seen {
			order = append(order, r.ID)
		}
		next[r.ID] = normalized(r)
	}

	s.mu.Lock()
	s.records = next
	s.order = order
	s.touchLocked()
	s.mu.Unlock()

	s.log.Debug("snapshot applied: %d instances", len(order))
	s.notify(Change{Kind: ChangeSnapshot})
}

// ApplyPatch merges p into the record for id.
// Returns false, changing nothing, if id is unknown.
func (s *Store) ApplyPatch(id instance.ID, p instance.Patch) bool {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		s.log.Warn("patch for unknown instance %s ignored", id)
		return false
	}
	s.records[id] = p.Apply(r)
	s.touchLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangePatch, ID: id})
	return true
}

// ApplyCreate inserts r. A record for an ID that already exists is treated
// as an update so the store never holds two rows for one instance.
func (s *Store) ApplyCreate(r instance.Record) {
	if r.ID == "" {
		s.log.Warn("create without id ignored")
		return
	}

	s.mu.Lock()
	kind := ChangeCreate
	if prev, exists := s.records[r.ID]; exists {
		r = r.MergeIdentity(prev)
		kind = ChangeUpdate
	} else {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = normalized(r)
	s.touchLocked()
	s.mu.Unlock()

	if kind == ChangeUpdate {
		s.log.Debug("create for existing instance %s applied as update", r.ID)
	}
	s.notify(Change{Kind: kind, ID: r.ID})
}

// ApplyUpdate replaces the record for r.ID, keeping identity fields that r
// leaves empty. Returns false if the ID is unknown.
func (s *Store) ApplyUpdate(r instance.Record) bool {
	s.mu.Lock()
	prev, ok := s.records[r.ID]
	if !ok {
		s.mu.Unlock()
		s.log.Warn("update for unknown instance %s ignored", r.ID)
		return false
	}
	s.records[r.ID] = normalized(r.MergeIdentity(prev))
	s.touchLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdate, ID: r.ID})
	return true
}

// ApplyDelete removes the record for id. Returns false if it wasn't present.
func (s *Store) ApplyDelete(id instance.ID) bool {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		s.log.Debug("delete for unknown instance %s ignored", id)
		return false
	}
	delete(s.records, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.touchLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeDelete, ID: id})
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id instance.ID) (instance.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return instance.Record{}, false
	}
	return r.Clone(), true
}

// List returns copies of all records in first-seen order.
func (s *Store) List() []instance.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]instance.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats counts records by status. Unknown status counts as error.
func (s *Store) Stats() instance.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := instance.Stats{Total: len(s.records)}
	for _, r := range s.records {
		if r.Online() {
			st.Running++
		} else {
			st.Error++
		}
	}
	return st
}

// LastUpdate returns when the store was last modified; zero if never.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Subscribe registers fn to be called after every mutation. fn runs on the
// mutating goroutine after the store lock is released. Call the returned
// function to unsubscribe.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) touchLocked() {
	s.lastUpdate = s.clock.Now()
}

func normalized(r instance.Record) instance.Record {
	r = r.Clone()
	r.Status = r.Status.Normalize()
	return r
}
