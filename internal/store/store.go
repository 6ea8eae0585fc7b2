package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("key not found")

// Listener receives records published by a Store. Stores only ever add or
// overwrite records, so OnAdd is the single event.
type Listener[V any] interface {
	OnAdd(ctx context.Context, v V) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc[V any] func(ctx context.Context, v V) error

func (f ListenerFunc[V]) OnAdd(ctx context.Context, v V) error {
	return f(ctx, v)
}

// Store keeps the latest record per key and fans records out to its listeners
// in registration order.
//
// Reads may run concurrently. Writers are serialized, and a writer holds the
// write slot until its notifications return, so listeners observe records of a
// key in upsert order. A listener must not write back into the store that is
// notifying it.
type Store[K comparable, V any] struct {
	name  string
	keyFn func(V) K

	write sync.Mutex
	mu    sync.RWMutex
	data  map[K]V
	ls    []Listener[V]
}

// New creates an empty store. keyFn derives the key of a record.
func New[K comparable, V any](name string, keyFn func(V) K) *Store[K, V] {
	return &Store[K, V]{
		name:  name,
		keyFn: keyFn,
		data:  make(map[K]V),
	}
}

// Name returns the store name used in errors and logs.
func (s *Store[K, V]) Name() string {
	return s.name
}

// Get returns the current record for key or ErrNotFound.
func (s *Store[K, V]) Get(key K) (V, error) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, fmt.Errorf("%s: %w: %v", s.name, ErrNotFound, key)
	}
	return v, nil
}

// Upsert stores v under its key without notifying listeners.
func (s *Store[K, V]) Upsert(v V) {
	s.write.Lock()
	defer s.write.Unlock()
	s.put(v)
}

// OnMessage stores v and notifies every listener.
func (s *Store[K, V]) OnMessage(ctx context.Context, v V) error {
	s.write.Lock()
	defer s.write.Unlock()
	s.put(v)
	return s.notify(ctx, v)
}

// Publish notifies every listener with v without storing it.
func (s *Store[K, V]) Publish(ctx context.Context, v V) error {
	s.write.Lock()
	defer s.write.Unlock()
	return s.notify(ctx, v)
}

// AddListener appends l to the notification list.
func (s *Store[K, V]) AddListener(l Listener[V]) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.ls = append(s.ls, l)
	s.mu.Unlock()
}

// Listeners returns a copy of the registered listeners.
func (s *Store[K, V]) Listeners() []Listener[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listener[V], len(s.ls))
	copy(out, s.ls)
	return out
}

// Len returns the number of stored keys.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns the stored keys in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Range calls fn for every stored record until fn returns false.
// fn runs under the read lock and must not write to the store.
func (s *Store[K, V]) Range(fn func(K, V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if !fn(k, v) {
			return
		}
	}
}

func (s *Store[K, V]) put(v V) {
	key := s.keyFn(v)
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
}

// notify runs every listener even if an earlier one fails and joins the errors.
func (s *Store[K, V]) notify(ctx context.Context, v V) error {
	var errs []error
	for i, l := range s.Listeners() {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := l.OnAdd(ctx, v); err != nil {
			errs = append(errs, fmt.Errorf("%s listener %d: %w", s.name, i, err))
		}
	}
	return errors.Join(errs...)
}
