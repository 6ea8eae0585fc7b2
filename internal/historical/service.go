package historical

import (
	"context"
	"errors"

	"bondpipe/internal/obs"
	"bondpipe/internal/store"
)

// Record is anything the archive can persist.
type Record interface {
	Key() string
	Fields() []string
}

// Service keeps the last archived record per key and appends every record it
// receives to the archive of its kind.
type Service[V Record] struct {
	kind   Kind
	writer *Writer
	sql    *SQLSink
	clock  obs.Clock
	store  *store.Store[string, V]
}

// NewService creates an archive listener for kind. sql may be nil.
func NewService[V Record](kind Kind, writer *Writer, sql *SQLSink, clock obs.Clock) *Service[V] {
	if clock == nil {
		clock = obs.SystemClock()
	}
	return &Service[V]{
		kind:   kind,
		writer: writer,
		sql:    sql,
		clock:  clock,
		store:  store.New("historical-"+kind.String(), func(v V) string { return v.Key() }),
	}
}

// OnAdd persists v and archives it.
func (s *Service[V]) OnAdd(ctx context.Context, v V) error {
	return s.PersistData(ctx, v.Key(), v)
}

// PersistData stores v under key and appends it to the archive. An entry
// dropped on a full queue is already counted and does not fail the caller.
func (s *Service[V]) PersistData(ctx context.Context, key string, v V) error {
	s.store.Upsert(v)
	entry := Entry{Kind: s.kind, Time: s.clock.Now(), Fields: v.Fields()}
	if err := s.writer.Append(ctx, entry); err != nil && !errors.Is(err, ErrQueueFull) {
		return err
	}
	if s.sql != nil {
		return s.sql.Insert(ctx, key, entry)
	}
	return nil
}

// Get returns the last archived record of key.
func (s *Service[V]) Get(key string) (V, error) {
	return s.store.Get(key)
}
