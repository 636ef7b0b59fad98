package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/panoquest/panoquest/go/internal/game"
	"github.com/panoquest/panoquest/go/internal/models"
)

// SessionEvent is the wire form of a session event sent to WebSocket clients.
type SessionEvent struct {
	ID        string          `json:"id"`
	GameCode  string          `json:"game_code"`
	Type      game.EventType  `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PlayerJoinedPayload announces a roster addition.
type PlayerJoinedPayload struct {
	Player models.Player `json:"player"`
}

// RoundPreparingPayload carries the running attempt counter while the
// initiator looks for a panorama.
type RoundPreparingPayload struct {
	Attempt int `json:"attempt"`
}

// RoundStartedPayload carries the published round record.
type RoundStartedPayload struct {
	Round models.Round `json:"round"`
}

// RoundFailedPayload reports a fatal round-start failure.
type RoundFailedPayload struct {
	Reason string `json:"reason"`
}

// FromGameEvent converts a domain event into its wire form.
func FromGameEvent(e game.Event) (*SessionEvent, error) {
	var payload any
	switch e.Type {
	case game.EventPlayerJoined:
		if e.Player == nil {
			return nil, fmt.Errorf("player joined event without player")
		}
		payload = PlayerJoinedPayload{Player: *e.Player}
	case game.EventRoundPreparing:
		payload = RoundPreparingPayload{Attempt: e.Attempt}
	case game.EventRoundStarted:
		if e.Round == nil {
			return nil, fmt.Errorf("round started event without round")
		}
		payload = RoundStartedPayload{Round: *e.Round}
	case game.EventRoundFailed:
		payload = RoundFailedPayload{Reason: e.Reason}
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &SessionEvent{
		ID:        uuid.New().String(),
		GameCode:  e.GameCode,
		Type:      e.Type,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
