package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the JetStream-backed store.
type NATSConfig struct {
	URL           string
	Bucket        string
	MaxReconnects int
	ReconnectWait time.Duration
	ReadTimeout   time.Duration
}

// DefaultNATSConfig returns the default JetStream store configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "panoquest-games",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		ReadTimeout:   5 * time.Second,
	}
}

// NATSStore implements Adapter on a JetStream key-value bucket. Paths map to
// dot-separated keys; a watch on {path}.> provides child-added delivery and
// kv.Create provides the first-write-wins round publication.
type NATSStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config NATSConfig
}

// NewNATSStore connects to NATS and ensures the key-value bucket exists.
func NewNATSStore(ctx context.Context, config NATSConfig) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "PanoQuest game session store",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure key-value bucket: %w", err)
	}

	return &NATSStore{nc: nc, kv: kv, config: config}, nil
}

// Close shuts down the underlying NATS connection.
func (s *NATSStore) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

func (s *NATSStore) WriteAt(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value at %s: %w", path, err)
	}

	key := pathToKey(path)
	if _, err := s.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStoreUnavailable, key, err)
	}
	return s.putChildren(ctx, key, raw)
}

func (s *NATSStore) CreateAt(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value at %s: %w", path, err)
	}

	key := pathToKey(path)
	if _, err := s.kv.Create(ctx, key, raw); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("create at %s: %w", path, ErrPathExists)
		}
		return fmt.Errorf("%w: create %s: %v", ErrStoreUnavailable, key, err)
	}
	// The Create above won the race, so the field keys are ours to write.
	return s.putChildren(ctx, key, raw)
}

// putChildren materializes one level of children for JSON-object values, so
// watchers of the written path observe child-added events.
func (s *NATSStore) putChildren(ctx context.Context, key string, raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil // scalar value, no children
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.kv.Put(ctx, key+"."+name, fields[name]); err != nil {
			return fmt.Errorf("%w: put %s.%s: %v", ErrStoreUnavailable, key, name, err)
		}
	}
	return nil
}

func (s *NATSStore) ReadOnceAt(ctx context.Context, path string) (json.RawMessage, error) {
	entry, err := s.kv.Get(ctx, pathToKey(path))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("read at %s: %w", path, ErrNoValue)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, path, err)
	}
	return entry.Value(), nil
}

func (s *NATSStore) SubscribeChildAdded(path string, h Handler) (Subscription, error) {
	prefix := pathToKey(path)
	watcher, err := s.kv.Watch(context.Background(), prefix+".>")
	if err != nil {
		return nil, fmt.Errorf("%w: watch %s: %v", ErrStoreUnavailable, path, err)
	}

	sub := &natsSub{
		store:   s,
		watcher: watcher,
		prefix:  prefix,
		h:       h,
		seen:    make(map[string]bool),
	}
	go sub.run()
	return sub, nil
}

type natsSub struct {
	store   *NATSStore
	watcher jetstream.KeyWatcher
	prefix  string
	h       Handler
	seen    map[string]bool // touched only by run

	deliverMu sync.Mutex
	closed    bool
}

func (sub *natsSub) run() {
	for entry := range sub.watcher.Updates() {
		if entry == nil {
			// End-of-initial-values marker.
			continue
		}
		if entry.Operation() != jetstream.KeyValuePut {
			continue
		}
		child, ok := childOfKey(sub.prefix, entry.Key())
		if !ok || sub.seen[child] {
			continue
		}

		value := json.RawMessage(entry.Value())
		if entry.Key() != sub.prefix+"."+child {
			// A field key arrived before the full record; read it whole.
			full, err := sub.readChild(child)
			if err != nil {
				log.Warn().Err(err).
					Str("key", entry.Key()).
					Msg("skipping child-added event without readable record")
				continue
			}
			value = full
		}

		sub.seen[child] = true
		sub.deliver(child, value)
	}
}

func (sub *natsSub) readChild(child string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sub.store.config.ReadTimeout)
	defer cancel()
	return sub.store.ReadOnceAt(ctx, keyToPath(sub.prefix+"."+child))
}

func (sub *natsSub) deliver(childKey string, value json.RawMessage) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.closed {
		return
	}
	sub.h(childKey, value)
}

func (sub *natsSub) Close() error {
	sub.deliverMu.Lock()
	if sub.closed {
		sub.deliverMu.Unlock()
		return nil
	}
	sub.closed = true
	sub.deliverMu.Unlock()
	return sub.watcher.Stop()
}

func pathToKey(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

func keyToPath(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

// childOfKey reports whether key lies under prefix, returning the first key
// segment below it.
func childOfKey(prefix, key string) (string, bool) {
	if !strings.HasPrefix(key, prefix+".") {
		return "", false
	}
	rest := key[len(prefix)+1:]
	if idx := strings.Index(rest, "."); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
