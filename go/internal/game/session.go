package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/roster"
	"github.com/panoquest/panoquest/go/internal/session"
)

// ErrNotEnoughPlayers gates Standard-game starts until a second player has
// joined the lobby.
var ErrNotEnoughPlayers = errors.New("not enough players to start")

// Session is one client's live membership in a game: the locally owned state
// projection plus the roster subscription and the round watcher. External
// changes arrive only as store events applied through the pure transitions;
// nothing mutates the state from outside.
type Session struct {
	app *App

	mu sync.Mutex
	st session.State

	membership *roster.Membership
	cancel     context.CancelFunc
	leaveOnce  sync.Once
}

// State returns a deep-copied snapshot of the session state.
func (s *Session) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

func (s *Session) applyPlayer(p models.Player) {
	s.mu.Lock()
	s.st = s.st.WithPlayer(p)
	code := s.st.Code
	s.mu.Unlock()

	s.app.emit(Event{Type: EventPlayerJoined, GameCode: code, Player: &p})
}

// watchRound blocks until the round record appears at the store, then moves
// the session into the active round. Runs once per session in its own
// goroutine; the initiator converges through here too. The wire contract has
// a single round path per game, so only the first round is observed here.
func (s *Session) watchRound(ctx context.Context, code string) {
	r, err := s.app.rounds.AwaitRound(ctx, code)
	if err != nil {
		if ctx.Err() != nil {
			return // session left before a round started
		}
		log.Error().Err(err).Str("game_code", code).Msg("round watch failed")
		return
	}

	s.mu.Lock()
	next, err := s.st.WithRound(*r)
	if err == nil {
		s.st = next
	}
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Str("game_code", code).Msg("round record ignored")
		return
	}

	s.app.emit(Event{Type: EventRoundStarted, GameCode: code, Round: r})
}

// StartMatch runs the round-start sequence for this client. The phase moves
// to Preparing for the duration; on fatal failure it returns to Lobby and
// the error is reported to the caller, who may retry the action.
func (s *Session) StartMatch(ctx context.Context) error {
	s.mu.Lock()
	st := s.st
	if st.Variant != models.VariantChallenge && st.IsLocalOwner() && len(st.Roster) < 2 {
		s.mu.Unlock()
		return ErrNotEnoughPlayers
	}
	next, err := st.Preparing()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.st = next
	snapshot := next.Clone()
	s.mu.Unlock()

	_, err = s.app.rounds.StartRound(ctx, snapshot, func(attempt int) {
		s.mu.Lock()
		s.st = s.st.BumpProgress()
		progress := s.st.Progress
		s.mu.Unlock()
		s.app.emit(Event{Type: EventRoundPreparing, GameCode: snapshot.Code, Attempt: progress})
	})
	if err != nil {
		s.mu.Lock()
		if back, berr := s.st.BackToLobby(); berr == nil {
			s.st = back
		}
		s.mu.Unlock()
		s.app.emit(Event{Type: EventRoundFailed, GameCode: snapshot.Code, Reason: err.Error()})
		return fmt.Errorf("start match: %w", err)
	}

	// The RoundActive transition arrives through watchRound once the store
	// event is observed, same as for every other client.
	return nil
}

// Leave tears the session down: the round watcher stops and the roster
// subscription is released. Safe to call multiple times and on every exit
// path, including error paths during setup.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.membership != nil {
			if err := s.membership.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close roster subscription")
			}
		}
	})
}
