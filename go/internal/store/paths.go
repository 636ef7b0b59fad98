package store

import "fmt"

// Store layout, keyed by session code. These paths are the wire contract
// between clients: roster entries live under the players path, and the
// appearance of any child at the round path is the round-started signal.

func GamePath(code string) string {
	return fmt.Sprintf("games/%s", code)
}

func PlayersPath(code string) string {
	return fmt.Sprintf("games/%s/players", code)
}

func PlayerPath(code, playerKey string) string {
	return fmt.Sprintf("games/%s/players/%s", code, playerKey)
}

func RoundPath(code string) string {
	return fmt.Sprintf("games/%s/currentRound", code)
}
