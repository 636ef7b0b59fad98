package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panoquest/panoquest/go/internal/models"
)

func TestRuleName(t *testing.T) {
	assert.Equal(t, "Classic", RuleName(models.RulesClassic))
	assert.Equal(t, "Guess the Country", RuleName(models.RulesGuessCountry))
	assert.Equal(t, "HOUSE_RULES", RuleName(models.RuleSet("HOUSE_RULES")))
}

func TestReadableDuration(t *testing.T) {
	assert.Equal(t, "Infinite", ReadableDuration(nil))

	sec := func(n int) *int { return &n }
	assert.Equal(t, "45 seconds", ReadableDuration(sec(45)))
	assert.Equal(t, "2 minutes", ReadableDuration(sec(120)))
	assert.Equal(t, "1 minutes 30 seconds", ReadableDuration(sec(90)))
}

func TestStartLabelForOwner(t *testing.T) {
	st := lobbyState(t)
	assert.Equal(t, "Waiting for players…", st.StartLabel())

	st = st.WithPlayer(guest())
	assert.Equal(t, "Start Game", st.StartLabel())

	preparing, err := st.Preparing()
	require.NoError(t, err)
	preparing = preparing.BumpProgress()
	assert.Equal(t, "Finding new location (attempt #1)…", preparing.StartLabel())
}

func TestStartLabelForGuest(t *testing.T) {
	st, err := New(testGame(), guest()).EnterLobby()
	require.NoError(t, err)
	assert.Equal(t, "Waiting for the game to start…", st.StartLabel())

	st = st.WithPlayer(owner())
	assert.Equal(t, "Waiting for ada to start the game…", st.StartLabel())
}

func TestStartLabelForChallenge(t *testing.T) {
	g := testGame()
	g.Variant = models.VariantChallenge
	st, err := New(g, guest()).EnterLobby()
	require.NoError(t, err)
	assert.Equal(t, "Start Challenge", st.StartLabel())
}
