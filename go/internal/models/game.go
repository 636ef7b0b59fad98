package models

import (
	"time"
)

// GameVariant defines how a game session is played.
type GameVariant string

const (
	// VariantStandard is a synchronized game: the owner starts each round
	// and every player guesses the same panorama at the same time.
	VariantStandard GameVariant = "STANDARD"
	// VariantChallenge lets each player start and play rounds on their own,
	// comparing scores at the end.
	VariantChallenge GameVariant = "CHALLENGE"
)

// RuleSet defines the guessing rules for a game session.
type RuleSet string

const (
	RulesClassic      RuleSet = "CLASSIC"
	RulesStationary   RuleSet = "STATIONARY"
	RulesGuessCountry RuleSet = "GUESS_COUNTRY"
)

// GameSettings holds the immutable per-session configuration.
type GameSettings struct {
	MapID    string  `json:"map_id"`
	Rounds   int     `json:"rounds"`
	Duration *int    `json:"duration_sec,omitempty"` // nil means infinite
	Rules    RuleSet `json:"rules"`
}

// Game is the session record shared through the store at games/{code}.
type Game struct {
	Code      string       `json:"code"`
	Title     string       `json:"title"`
	Variant   GameVariant  `json:"variant"`
	Settings  GameSettings `json:"settings"`
	CreatedAt time.Time    `json:"created_at"`
}
