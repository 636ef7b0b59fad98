package game

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// codeAlphabet omits easily-confused characters (0/O, 1/I) since codes are
// read aloud and typed by players.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 4

// NewGameCode generates a short join code like "AB12".
func NewGameCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

func newPlayerKey() string {
	return uuid.New().String()[:8]
}
