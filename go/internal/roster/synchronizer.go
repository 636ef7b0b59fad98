package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/store"
)

// ApplyFunc merges a received player record into local state. It must be an
// upsert keyed by player key so duplicate deliveries are harmless.
type ApplyFunc func(models.Player)

// Synchronizer keeps each client's roster projection eventually consistent
// with the store's players path.
type Synchronizer struct {
	store store.Adapter
}

func NewSynchronizer(st store.Adapter) *Synchronizer {
	return &Synchronizer{store: st}
}

// Membership is the result of a successful join. Close releases the roster
// subscription; it is idempotent and must run on every exit path of the
// owning session, not just the happy one.
type Membership struct {
	sub  store.Subscription
	once sync.Once
	err  error
}

func (m *Membership) Close() error {
	m.once.Do(func() {
		m.err = m.sub.Close()
	})
	return m.err
}

// Join writes the local player record at games/{code}/players/{key} and then
// subscribes to roster additions. Events for the local player's own key are
// skipped; everything else is handed to apply.
func (s *Synchronizer) Join(ctx context.Context, code string, local models.Player, apply ApplyFunc) (*Membership, error) {
	if err := s.store.WriteAt(ctx, store.PlayerPath(code, local.Key), local); err != nil {
		return nil, fmt.Errorf("write player record: %w", err)
	}

	sub, err := s.store.SubscribeChildAdded(store.PlayersPath(code), func(childKey string, value json.RawMessage) {
		if childKey == local.Key {
			return
		}
		var p models.Player
		if err := json.Unmarshal(value, &p); err != nil {
			log.Warn().Err(err).
				Str("game_code", code).
				Str("player_key", childKey).
				Msg("skipping malformed player record")
			return
		}
		if p.Key == "" {
			p.Key = childKey
		}
		apply(p)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to roster: %w", err)
	}

	log.Info().
		Str("game_code", code).
		Str("player_key", local.Key).
		Str("player_name", local.Name).
		Msg("joined roster")
	return &Membership{sub: sub}, nil
}
