package round

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/pano"
	"github.com/panoquest/panoquest/go/internal/session"
	"github.com/panoquest/panoquest/go/internal/store"
)

// ErrNotAuthorized means a non-owner tried to start a round in a Standard
// game. Rejected before any store write. Enforcement is client-side advisory:
// the store itself carries no authorization.
var ErrNotAuthorized = errors.New("not authorized to start round")

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Config tunes the panorama retry loop.
type Config struct {
	// MaxAttempts bounds NoPanoramaFound retries. 0 retries until the
	// context ends, which matches the historical behavior; deployments
	// should set a bound.
	MaxAttempts int
	RetryDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 0,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Coordinator drives the round-start sequence: request a panorama, publish
// the round record, let every client observe it through the store.
type Coordinator struct {
	store  store.Adapter
	source pano.Source
	maps   *geomap.Catalog
	clock  Clock
	config Config
}

type Option func(*Coordinator)

// WithClock swaps the real clock for a fake one in tests.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func NewCoordinator(st store.Adapter, source pano.Source, maps *geomap.Catalog, config Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  st,
		source: source,
		maps:   maps,
		clock:  clockwork.NewRealClock(),
		config: config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartResult reports how a round start concluded.
type StartResult struct {
	Round models.Round
	// Attempts counts NoPanoramaFound retries before success.
	Attempts int
	// AlreadyStarted is set when another client published the round record
	// first; Round then holds the record everyone converges on.
	AlreadyStarted bool
}

// StartRound publishes a new round for the session. Only the owner may start
// rounds in Standard games; in a Challenge every player starts independently.
// onRetry, if non-nil, observes each NoPanoramaFound retry with the running
// attempt count so the caller can surface a progress counter.
//
// The record lives at the session's single round path, so this covers the
// first round of a session: a later call for the same game converges on the
// record already there instead of publishing a second round.
func (c *Coordinator) StartRound(ctx context.Context, st session.State, onRetry func(attempt int)) (*StartResult, error) {
	if st.Variant != models.VariantChallenge && !st.IsLocalOwner() {
		return nil, fmt.Errorf("player %s: %w", st.LocalPlayerKey, ErrNotAuthorized)
	}

	m, err := c.maps.Get(st.Settings.MapID)
	if err != nil {
		return nil, fmt.Errorf("round start: %w", err)
	}

	attempts := 0
	for {
		p, err := c.source.FetchRandomPanorama(ctx, m)
		if err != nil {
			if errors.Is(err, pano.ErrNoPanoramaFound) {
				attempts++
				if onRetry != nil {
					onRetry(attempts)
				}
				log.Warn().
					Str("game_code", st.Code).
					Str("map", m.ID).
					Int("attempt", attempts).
					Msg("no panorama found, retrying")
				if c.config.MaxAttempts > 0 && attempts >= c.config.MaxAttempts {
					return nil, fmt.Errorf("round start gave up after %d attempts: %w", attempts, pano.ErrNoPanoramaFound)
				}
				if err := c.waitRetry(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("round start: %w", err)
		}

		round := models.Round{Panorama: p.ID, Target: p.Position}
		err = c.store.CreateAt(ctx, store.RoundPath(st.Code), round)
		if errors.Is(err, store.ErrPathExists) {
			// Another client won the publication race; their record is the
			// round, first write wins.
			existing, rerr := c.readRound(ctx, st.Code)
			if rerr != nil {
				return nil, rerr
			}
			log.Info().
				Str("game_code", st.Code).
				Str("panorama", existing.Panorama).
				Msg("round already published, converging")
			return &StartResult{Round: *existing, Attempts: attempts, AlreadyStarted: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("publish round: %w", err)
		}

		log.Info().
			Str("game_code", st.Code).
			Str("panorama", round.Panorama).
			Int("attempts", attempts).
			Msg("round published")
		return &StartResult{Round: round, Attempts: attempts}, nil
	}
}

// AwaitRound blocks until a round record appears at the session's round path,
// then reads it once. Every client, the initiator included, enters the round
// through this observation.
func (c *Coordinator) AwaitRound(ctx context.Context, code string) (*models.Round, error) {
	first := make(chan struct{}, 1)
	sub, err := c.store.SubscribeChildAdded(store.RoundPath(code), func(string, json.RawMessage) {
		select {
		case first <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch round path: %w", err)
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-first:
	}
	return c.readRound(ctx, code)
}

func (c *Coordinator) readRound(ctx context.Context, code string) (*models.Round, error) {
	raw, err := c.store.ReadOnceAt(ctx, store.RoundPath(code))
	if err != nil {
		return nil, fmt.Errorf("read round record: %w", err)
	}
	var r models.Round
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode round record: %w", err)
	}
	return &r, nil
}

func (c *Coordinator) waitRetry(ctx context.Context) error {
	if c.config.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := c.clock.NewTimer(c.config.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
