/*
Package memstore – in-memory document store with optimistic transactions.

Documents live in a flat map keyed by reference path. Reads inside a
transaction record the revision they observed; writes buffer. Commit
re-checks every recorded revision under the store mutex and applies the
buffered writes atomically, retrying the whole transaction function on
conflict. Deleted documents leave a tombstone revision so a delete between
attempts is detected like any other write.
*/
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	ts "github.com/skeldata/typedstore-go"
)

const defaultMaxAttempts = 5

// Store is an in-memory implementation of typedstore.Store.
type Store struct {
	mu          sync.Mutex
	docs        map[string]*doc
	rev         uint64
	clock       func() time.Time
	log         ts.Logger
	maxAttempts int
}

// doc holds one document's committed state. A nil data is a tombstone left
// by a delete; its revision still advances so commits can detect it.
type doc struct {
	data ts.Item
	rev  uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l ts.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithMaxAttempts bounds transaction retries on conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:        map[string]*doc{},
		clock:       time.Now,
		log:         ts.NopLogger(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunTransaction runs fn against fresh handles until a commit succeeds, fn
// fails, or the attempt budget is spent.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, h ts.TxnHandle) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ts.NewError("transaction context done",
				ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
		}
		h := &handle{
			store:   s,
			reads:   map[string]uint64{},
			written: map[string]bool{},
		}
		if err := fn(ctx, h); err != nil {
			return err
		}
		ok, err := s.commit(h)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.log.Trace("transaction conflict, retrying", map[string]any{
			"attempt": attempt,
		})
	}
	return ts.NewError("transaction exceeded retry attempts",
		ts.WithCode(ts.ErrConflict),
		ts.WithContext(map[string]any{"attempts": s.maxAttempts}))
}

// commit validates the handle's read-set and applies its buffered writes.
// A false return means a conflicting commit happened since a read.
func (s *Store) commit(h *handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, rev := range h.reads {
		if s.currentRev(path) != rev {
			return false, nil
		}
	}

	// Dry-run updates so a missing target aborts before any write lands.
	staged := map[string]ts.Item{}
	now := s.clock()
	for _, w := range h.writes {
		path := w.ref.Path()
		existing, ok := staged[path]
		if !ok {
			existing = s.currentData(path)
		}
		switch w.kind {
		case kindDelete:
			staged[path] = nil
		case kindSet:
			staged[path] = ts.ApplySet(existing, w.data, nil, now)
		case kindSetOpts:
			opts := w.opts
			staged[path] = ts.ApplySet(existing, w.data, &opts, now)
		case kindUpdate:
			next, err := ts.ApplyUpdates(existing, w.updates, now)
			if err != nil {
				return false, err
			}
			staged[path] = next
		}
	}

	for path, data := range staged {
		s.rev++
		s.docs[path] = &doc{data: data, rev: s.rev}
	}
	s.log.Trace("transaction committed", map[string]any{
		"writes": len(staged),
	})
	return true, nil
}

// currentRev is 0 for never-written paths; tombstones keep their revision.
func (s *Store) currentRev(path string) uint64 {
	if d, ok := s.docs[path]; ok {
		return d.rev
	}
	return 0
}

func (s *Store) currentData(path string) ts.Item {
	if d, ok := s.docs[path]; ok {
		return d.data
	}
	return nil
}

// Read returns a document's committed state outside any transaction.
func (s *Store) Read(ref ts.Ref) (ts.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[ref.Path()]
	if !ok || d.data == nil {
		return ts.Snapshot{Ref: ref}, nil
	}
	return ts.Snapshot{Ref: ref, Exists: true, Data: ts.CloneItem(d.data)}, nil
}

// Len reports how many live (non-tombstone) documents the store holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.docs {
		if d.data != nil {
			n++
		}
	}
	return n
}

// ─── transaction handle ─────────────────────────────────────────────────────

type writeKind int

const (
	kindSet writeKind = iota
	kindSetOpts
	kindUpdate
	kindDelete
)

type write struct {
	kind    writeKind
	ref     ts.Ref
	data    ts.Item
	opts    ts.SetOptions
	updates []ts.FieldUpdate
}

// handle is one transaction attempt: a read-set of observed revisions and
// an ordered write buffer.
type handle struct {
	store   *Store
	reads   map[string]uint64
	written map[string]bool
	writes  []write
}

// Get reads a document and records the revision observed. Reads must
// precede writes of the same document within an attempt.
func (h *handle) Get(ctx context.Context, ref ts.Ref) (ts.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ts.Snapshot{}, err
	}
	path := ref.Path()
	if h.written[path] {
		return ts.Snapshot{}, ts.NewError(
			fmt.Sprintf("document %q was already written in this transaction", path),
			ts.WithCode(ts.ErrArgument))
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.reads[path] = h.store.currentRev(path)
	d, ok := h.store.docs[path]
	if !ok || d.data == nil {
		return ts.Snapshot{Ref: ref}, nil
	}
	return ts.Snapshot{Ref: ref, Exists: true, Data: ts.CloneItem(d.data)}, nil
}

func (h *handle) Delete(ctx context.Context, ref ts.Ref) error {
	return h.buffer(ctx, write{kind: kindDelete, ref: ref})
}

func (h *handle) Set(ctx context.Context, ref ts.Ref, data ts.Item) error {
	return h.buffer(ctx, write{kind: kindSet, ref: ref, data: ts.CloneItem(data)})
}

func (h *handle) SetWithOptions(ctx context.Context, ref ts.Ref, data ts.Item, opts ts.SetOptions) error {
	return h.buffer(ctx, write{kind: kindSetOpts, ref: ref, data: ts.CloneItem(data), opts: opts})
}

func (h *handle) Update(ctx context.Context, ref ts.Ref, updates []ts.FieldUpdate) error {
	cp := make([]ts.FieldUpdate, len(updates))
	copy(cp, updates)
	return h.buffer(ctx, write{kind: kindUpdate, ref: ref, updates: cp})
}

func (h *handle) buffer(ctx context.Context, w write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.written[w.ref.Path()] = true
	h.writes = append(h.writes, w)
	return nil
}
