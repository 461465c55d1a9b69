// Package store implements the consumer-side Reactive Store: the
// process-local state container that Frame Bridge writes into and that UI
// layers read from, with field-granular subscriptions.
package store

import (
	"sync"

	"depthfeed/internal/model"
)

// Field tags which part of the store changed, for selector-based
// subscriptions.
type Field int

const (
	FieldLiveSlice Field = iota
	FieldFrozenSlice
	FieldFrozen
	FieldStatus
	FieldError
	FieldMetrics
	FieldLeader
	FieldSyncMode
)

// State is an immutable snapshot of the store at the moment of
// notification. Subscribers receive a copy, never a live reference.
type State struct {
	LiveSlice   *model.OrderbookSlice
	FrozenSlice *model.OrderbookSlice
	Frozen      bool
	Status      model.ConnectionStatus
	Err         error
	Metrics     model.Metrics
	IsLeader    bool
	SyncMode    model.SyncMode
}

type subscriber struct {
	id int64
	fn func(State)
}

// Store holds the current State and notifies subscribers at field
// granularity. Subscribers are plain callbacks invoked synchronously on
// the goroutine that made the change, after the store's locks have been
// released; callers that need asynchrony should hop to their own
// goroutine from inside the callback.
type Store struct {
	mu    sync.RWMutex
	state State

	subsMu  sync.Mutex
	subs    map[Field][]subscriber
	nextID  int64
}

// New constructs an empty store; no live slice, disconnected, not frozen.
func New() *Store {
	return &Store{
		state: State{Status: model.StatusDisconnected},
		subs:  make(map[Field][]subscriber),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called whenever any of fields changes.
// Returns an unsubscribe function.
func (s *Store) Subscribe(fn func(State), fields ...Field) func() {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	for _, f := range fields {
		s.subs[f] = append(s.subs[f], subscriber{id: id, fn: fn})
	}
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for _, f := range fields {
			list := s.subs[f]
			for i, sub := range list {
				if sub.id == id {
					s.subs[f] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}
}

// UpdateLive replaces the live slice. When frozen, the live reference is
// still updated silently; readers choosing the frozen view are unaffected.
func (s *Store) UpdateLive(slice model.OrderbookSlice) {
	s.mu.Lock()
	s.state.LiveSlice = &slice
	st := s.state
	s.mu.Unlock()
	s.notify(FieldLiveSlice, st)
}

// Freeze captures the current live slice into the frozen slot.
func (s *Store) Freeze() {
	s.mu.Lock()
	s.state.FrozenSlice = s.state.LiveSlice
	s.state.Frozen = true
	st := s.state
	s.mu.Unlock()
	s.notify(FieldFrozenSlice, st)
	s.notify(FieldFrozen, st)
}

// Unfreeze clears the frozen reference.
func (s *Store) Unfreeze() {
	s.mu.Lock()
	s.state.FrozenSlice = nil
	s.state.Frozen = false
	st := s.state
	s.mu.Unlock()
	s.notify(FieldFrozenSlice, st)
	s.notify(FieldFrozen, st)
}

// SetStatus updates the connection status and optional error.
func (s *Store) SetStatus(status model.ConnectionStatus, err error) {
	s.mu.Lock()
	s.state.Status = status
	s.state.Err = err
	st := s.state
	s.mu.Unlock()
	s.notify(FieldStatus, st)
	if err != nil {
		s.notify(FieldError, st)
	}
}

// UpdateMetrics replaces the metrics block.
func (s *Store) UpdateMetrics(m model.Metrics) {
	s.mu.Lock()
	s.state.Metrics = m
	st := s.state
	s.mu.Unlock()
	s.notify(FieldMetrics, st)
}

// SetLeader updates the leader flag.
func (s *Store) SetLeader(leader bool) {
	s.mu.Lock()
	s.state.IsLeader = leader
	st := s.state
	s.mu.Unlock()
	s.notify(FieldLeader, st)
}

// SetSyncMode updates the active distribution-fabric tag.
func (s *Store) SetSyncMode(mode model.SyncMode) {
	s.mu.Lock()
	s.state.SyncMode = mode
	st := s.state
	s.mu.Unlock()
	s.notify(FieldSyncMode, st)
}

func (s *Store) notify(field Field, st State) {
	s.subsMu.Lock()
	subs := append([]subscriber{}, s.subs[field]...)
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.fn(st)
	}
}
