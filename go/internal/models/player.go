package models

// Player represents one participant in a game session. The key is assigned
// at join time and is unique within the session.
type Player struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Icon    string `json:"icon"`
	IsOwner bool   `json:"is_owner"`
}
