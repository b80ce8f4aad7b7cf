package store

import (
	"context"
	"sort"
	"sync"
)

// Op names the kind of write passed to a WriteHook.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// WriteHook runs before a memory store write is applied and outside the
// store lock, so it may itself write to the store. A non-nil error is returned
// to the writer in place of performing the write.
type WriteHook func(ctx context.Context, op Op, collection, ref string) error

type entry struct {
	version int
	data    []byte
}

type memoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]entry
	hook        WriteHook
}

// NewMemory creates a concurrency-safe in-memory store useful for unit tests
// and development.
func NewMemory() Store {
	return &memoryStore{collections: make(map[string]map[string]entry)}
}

func (s *memoryStore) Get(_ context.Context, collection, ref string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.collections[collectionName(collection)][ref]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Ref: ref, Version: e.version, Data: clone(e.data)}, nil
}

func (s *memoryStore) Create(ctx context.Context, collection, ref string, data []byte) error {
	if err := s.runHook(ctx, OpCreate, collection, ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if _, exists := docs[ref]; exists {
		return ErrExists
	}
	docs[ref] = entry{version: 1, data: clone(data)}
	return nil
}

func (s *memoryStore) Update(ctx context.Context, collection, ref string, expectedVersion int, data []byte) error {
	if err := s.runHook(ctx, OpUpdate, collection, ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	e, ok := docs[ref]
	if !ok {
		return ErrNotFound
	}
	if e.version != expectedVersion {
		return ErrConflict
	}
	docs[ref] = entry{version: expectedVersion + 1, data: clone(data)}
	return nil
}

func (s *memoryStore) Query(_ context.Context, collection string, q Query, max int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collectionName(collection)]
	refs := make([]string, 0, len(docs))
	for ref := range docs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var out []Document
	for _, ref := range refs {
		if max > 0 && len(out) >= max {
			break
		}
		e := docs[ref]
		if q.Matches(e.data) {
			out = append(out, Document{Ref: ref, Version: e.version, Data: clone(e.data)})
		}
	}
	return out, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) collection(name string) map[string]entry {
	name = collectionName(name)
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]entry)
		s.collections[name] = docs
	}
	return docs
}

func (s *memoryStore) runHook(ctx context.Context, op Op, collection, ref string) error {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook == nil {
		return nil
	}
	return hook(ctx, op, collectionName(collection), ref)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
