package game

import (
	"github.com/panoquest/panoquest/go/internal/models"
)

// EventType labels the session events emitted toward connected clients.
type EventType string

const (
	EventPlayerJoined   EventType = "PlayerJoined"
	EventRoundPreparing EventType = "RoundPreparing"
	EventRoundStarted   EventType = "RoundStarted"
	EventRoundFailed    EventType = "RoundFailed"
)

// Event is one session-scoped occurrence. Only the fields relevant to the
// event type are set.
type Event struct {
	Type     EventType
	GameCode string
	Player   *models.Player // PlayerJoined
	Attempt  int            // RoundPreparing
	Round    *models.Round  // RoundStarted
	Reason   string         // RoundFailed
}

// EventSink receives session events, typically the WebSocket hub.
type EventSink func(Event)
