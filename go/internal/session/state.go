package session

import (
	"errors"
	"fmt"

	"github.com/panoquest/panoquest/go/internal/models"
)

// Phase is the per-client session lifecycle:
// Joining -> Lobby -> (Preparing -> RoundActive)* -> Finished,
// with Preparing -> Lobby on fatal round-start failure.
type Phase string

const (
	PhaseJoining     Phase = "JOINING"
	PhaseLobby       Phase = "LOBBY"
	PhasePreparing   Phase = "PREPARING"
	PhaseRoundActive Phase = "ROUND_ACTIVE"
	PhaseFinished    Phase = "FINISHED"
)

var (
	ErrBadTransition = errors.New("invalid phase transition")
	// ErrOwnerConflict means more than one roster entry claims ownership,
	// which a Standard game must never see at lobby entry.
	ErrOwnerConflict = errors.New("more than one owner in roster")
)

// State is the local projection of one game session. All transitions are
// pure: they return a new value and never mutate the receiver, so snapshots
// handed to concurrent readers stay race-free.
type State struct {
	Code           string
	Title          string
	Variant        models.GameVariant
	Settings       models.GameSettings
	Roster         map[string]models.Player
	LocalPlayerKey string
	Progress       int
	Phase          Phase
	Round          *models.Round
	RoundsPlayed   int
}

// New builds the initial Joining-phase state for a client that has just
// written its own player record.
func New(game models.Game, local models.Player) State {
	return State{
		Code:           game.Code,
		Title:          game.Title,
		Variant:        game.Variant,
		Settings:       game.Settings,
		Roster:         map[string]models.Player{local.Key: local},
		LocalPlayerKey: local.Key,
		Phase:          PhaseJoining,
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s State) Clone() State {
	return s.clone()
}

func (s State) clone() State {
	roster := make(map[string]models.Player, len(s.Roster))
	for k, p := range s.Roster {
		roster[k] = p
	}
	s.Roster = roster
	if s.Round != nil {
		r := *s.Round
		s.Round = &r
	}
	return s
}

// WithPlayer merges a player record into the roster, keyed by player key.
// Applying the same record twice yields the same roster as applying it once.
func (s State) WithPlayer(p models.Player) State {
	next := s.clone()
	next.Roster[p.Key] = p
	return next
}

// EnterLobby completes the join: the local record is written and the roster
// subscription is live. Standard games verify the single-owner invariant.
func (s State) EnterLobby() (State, error) {
	if s.Phase != PhaseJoining {
		return s, fmt.Errorf("enter lobby from %s: %w", s.Phase, ErrBadTransition)
	}
	if s.Variant != models.VariantChallenge {
		owners := 0
		for _, p := range s.Roster {
			if p.IsOwner {
				owners++
			}
		}
		if owners > 1 {
			return s, ErrOwnerConflict
		}
	}
	next := s.clone()
	next.Phase = PhaseLobby
	return next, nil
}

// Preparing marks a round-start attempt in flight.
func (s State) Preparing() (State, error) {
	if s.Phase != PhaseLobby && s.Phase != PhaseRoundActive {
		return s, fmt.Errorf("prepare round from %s: %w", s.Phase, ErrBadTransition)
	}
	next := s.clone()
	next.Phase = PhasePreparing
	return next, nil
}

// BumpProgress counts one retried round-start attempt. The counter never
// decreases within a session.
func (s State) BumpProgress() State {
	next := s.clone()
	next.Progress++
	return next
}

// BackToLobby aborts a failed round-start attempt.
func (s State) BackToLobby() (State, error) {
	if s.Phase != PhasePreparing {
		return s, fmt.Errorf("abort round from %s: %w", s.Phase, ErrBadTransition)
	}
	next := s.clone()
	next.Phase = PhaseLobby
	return next, nil
}

// WithRound applies a published round record. Non-initiating clients move
// straight from Lobby into the round; the initiator comes through Preparing.
func (s State) WithRound(r models.Round) (State, error) {
	if s.Phase != PhaseLobby && s.Phase != PhasePreparing {
		return s, fmt.Errorf("apply round from %s: %w", s.Phase, ErrBadTransition)
	}
	next := s.clone()
	next.Phase = PhaseRoundActive
	next.Round = &r
	next.RoundsPlayed++
	return next, nil
}

// Finish ends the session once the configured round count is exhausted.
func (s State) Finish() (State, error) {
	if s.Phase != PhaseRoundActive {
		return s, fmt.Errorf("finish from %s: %w", s.Phase, ErrBadTransition)
	}
	next := s.clone()
	next.Phase = PhaseFinished
	return next, nil
}

// Owner returns the owning player, if present in the roster yet.
func (s State) Owner() (models.Player, bool) {
	for _, p := range s.Roster {
		if p.IsOwner {
			return p, true
		}
	}
	return models.Player{}, false
}

func (s State) LocalPlayer() models.Player {
	return s.Roster[s.LocalPlayerKey]
}

func (s State) IsLocalOwner() bool {
	return s.LocalPlayer().IsOwner
}

// CanStart reports whether the local player may trigger a round start right
// now: owners (or anyone in a Challenge) once enough players joined.
func (s State) CanStart() bool {
	if s.Variant == models.VariantChallenge {
		return s.Phase == PhaseLobby
	}
	return s.Phase == PhaseLobby && s.IsLocalOwner() && len(s.Roster) >= 2
}
