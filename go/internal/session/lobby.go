package session

import (
	"fmt"

	"github.com/panoquest/panoquest/go/internal/models"
)

// Display helpers for the lobby surface. These are pure mappings computed on
// demand, never cached as mutable state.

var ruleNames = map[models.RuleSet]string{
	models.RulesClassic:      "Classic",
	models.RulesStationary:   "Stationary",
	models.RulesGuessCountry: "Guess the Country",
}

var ruleExplanations = map[models.RuleSet]string{
	models.RulesClassic:      "Moving around and using what you see, try to pin your drop point on a map.",
	models.RulesStationary:   "You can't move on StreetView! Using only what you see around you, can you guess your drop point on the map? Not an easy task, indeed!",
	models.RulesGuessCountry: "Moving around and using what you see, can you guess the country you're in?! This seems easier, but sometimes, it's tricky!",
}

// RuleName returns the display name of a rule set.
func RuleName(r models.RuleSet) string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return string(r)
}

// RulesExplain returns the explanatory text shown under the rule set.
func RulesExplain(r models.RuleSet) string {
	return ruleExplanations[r]
}

// ReadableDuration renders a round duration for display. A nil duration
// means rounds are untimed.
func ReadableDuration(seconds *int) string {
	if seconds == nil {
		return "Infinite"
	}
	sec := *seconds
	switch {
	case sec < 60:
		return fmt.Sprintf("%d seconds", sec)
	case sec%60 == 0:
		return fmt.Sprintf("%d minutes", sec/60)
	default:
		return fmt.Sprintf("%d minutes %d seconds", sec/60, sec%60)
	}
}

// StartLabel returns the text on the lobby's start control for the local
// player, mirroring the owner/variant gating of CanStart.
func (s State) StartLabel() string {
	if !s.IsLocalOwner() && s.Variant != models.VariantChallenge {
		if owner, ok := s.Owner(); ok {
			return fmt.Sprintf("Waiting for %s to start the game…", owner.Name)
		}
		return "Waiting for the game to start…"
	}
	if s.Phase == PhasePreparing {
		return fmt.Sprintf("Finding new location (attempt #%d)…", s.Progress)
	}
	if s.Variant == models.VariantChallenge {
		return "Start Challenge"
	}
	if len(s.Roster) < 2 {
		return "Waiting for players…"
	}
	return "Start Game"
}
