package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Adapter used by tests and single-process
// games. It keeps the same child-added semantics as the NATS-backed store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	subs    map[*memorySub]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]json.RawMessage),
		subs:    make(map[*memorySub]struct{}),
	}
}

type memorySub struct {
	store *MemoryStore
	path  string
	h     Handler
	seen  map[string]bool

	// deliverMu serializes handler invocations with Close, so that no
	// handler runs after Close returns.
	deliverMu sync.Mutex
	closed    bool
}

type delivery struct {
	sub      *memorySub
	childKey string
	value    json.RawMessage
}

func (s *MemoryStore) WriteAt(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value at %s: %w", path, err)
	}

	s.mu.Lock()
	written := s.writeLocked(path, raw)
	pending := s.collectLocked(written)
	s.mu.Unlock()

	dispatch(pending)
	return nil
}

func (s *MemoryStore) CreateAt(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value at %s: %w", path, err)
	}

	s.mu.Lock()
	if s.existsLocked(path) {
		s.mu.Unlock()
		return fmt.Errorf("create at %s: %w", path, ErrPathExists)
	}
	written := s.writeLocked(path, raw)
	pending := s.collectLocked(written)
	s.mu.Unlock()

	dispatch(pending)
	return nil
}

func (s *MemoryStore) ReadOnceAt(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(path)
}

func (s *MemoryStore) SubscribeChildAdded(path string, h Handler) (Subscription, error) {
	sub := &memorySub{
		store: s,
		path:  path,
		h:     h,
		seen:  make(map[string]bool),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	// Replay children already present at subscription time.
	var existing []string
	for key := range s.records {
		if child, ok := childOf(path, key); ok && !sub.seen[child] {
			sub.seen[child] = true
			existing = append(existing, child)
		}
	}
	sort.Strings(existing)
	var pending []delivery
	for _, child := range existing {
		value, err := s.readLocked(path + "/" + child)
		if err != nil {
			continue
		}
		pending = append(pending, delivery{sub: sub, childKey: child, value: value})
	}
	s.mu.Unlock()

	dispatch(pending)
	return sub, nil
}

// writeLocked stores the record at the exact path and materializes one level
// of children for JSON-object values. Returns the keys written, parent first.
func (s *MemoryStore) writeLocked(path string, raw json.RawMessage) []string {
	written := []string{path}
	s.records[path] = raw

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			key := path + "/" + name
			s.records[key] = fields[name]
			written = append(written, key)
		}
	}
	return written
}

func (s *MemoryStore) existsLocked(path string) bool {
	if _, ok := s.records[path]; ok {
		return true
	}
	for key := range s.records {
		if strings.HasPrefix(key, path+"/") {
			return true
		}
	}
	return false
}

func (s *MemoryStore) readLocked(path string) (json.RawMessage, error) {
	if raw, ok := s.records[path]; ok {
		out := make(json.RawMessage, len(raw))
		copy(out, raw)
		return out, nil
	}

	// Assemble a record from direct children when only fields were written.
	fields := make(map[string]json.RawMessage)
	for key, raw := range s.records {
		if child, ok := childOf(path, key); ok && key == path+"/"+child {
			fields[child] = raw
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("read at %s: %w", path, ErrNoValue)
	}
	return json.Marshal(fields)
}

// collectLocked finds the subscriptions affected by the written keys and
// snapshots the child records to deliver. Duplicate child keys per
// subscription are suppressed here.
func (s *MemoryStore) collectLocked(written []string) []delivery {
	var pending []delivery
	for _, key := range written {
		for sub := range s.subs {
			child, ok := childOf(sub.path, key)
			if !ok || sub.seen[child] {
				continue
			}
			sub.seen[child] = true
			value, err := s.readLocked(sub.path + "/" + child)
			if err != nil {
				continue
			}
			pending = append(pending, delivery{sub: sub, childKey: child, value: value})
		}
	}
	return pending
}

func dispatch(pending []delivery) {
	for _, d := range pending {
		d.sub.deliver(d.childKey, d.value)
	}
}

func (sub *memorySub) deliver(childKey string, value json.RawMessage) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.closed {
		return
	}
	sub.h(childKey, value)
}

func (sub *memorySub) Close() error {
	sub.deliverMu.Lock()
	sub.closed = true
	sub.deliverMu.Unlock()

	sub.store.mu.Lock()
	delete(sub.store.subs, sub)
	sub.store.mu.Unlock()
	return nil
}

// childOf reports whether key lies under parent, returning the first path
// segment below parent.
func childOf(parent, key string) (string, bool) {
	if !strings.HasPrefix(key, parent+"/") {
		return "", false
	}
	rest := key[len(parent)+1:]
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
