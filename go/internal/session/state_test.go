package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panoquest/panoquest/go/internal/models"
)

func testGame() models.Game {
	return models.Game{
		Code:    "AB12",
		Title:   "Friday night",
		Variant: models.VariantStandard,
		Settings: models.GameSettings{
			MapID:  "world",
			Rounds: 5,
			Rules:  models.RulesClassic,
		},
	}
}

func owner() models.Player {
	return models.Player{Key: "p-owner", Name: "ada", IsOwner: true}
}

func guest() models.Player {
	return models.Player{Key: "p-guest", Name: "lin"}
}

func lobbyState(t *testing.T) State {
	t.Helper()
	st, err := New(testGame(), owner()).EnterLobby()
	require.NoError(t, err)
	return st
}

func TestNewStartsInJoining(t *testing.T) {
	st := New(testGame(), owner())
	assert.Equal(t, PhaseJoining, st.Phase)
	assert.Equal(t, "p-owner", st.LocalPlayerKey)
	assert.Len(t, st.Roster, 1)
	assert.True(t, st.IsLocalOwner())
}

func TestWithPlayerIsIdempotentUpsert(t *testing.T) {
	st := lobbyState(t)

	once := st.WithPlayer(guest())
	twice := once.WithPlayer(guest())

	assert.Len(t, once.Roster, 2)
	assert.Equal(t, once.Roster, twice.Roster)

	// Re-applying with changed fields replaces the record under the same key.
	renamed := guest()
	renamed.Name = "linnea"
	updated := twice.WithPlayer(renamed)
	assert.Len(t, updated.Roster, 2)
	assert.Equal(t, "linnea", updated.Roster["p-guest"].Name)
}

func TestTransitionsAreValueSemantics(t *testing.T) {
	st := lobbyState(t)
	next := st.WithPlayer(guest())

	assert.Len(t, st.Roster, 1, "original state must not change")
	assert.Len(t, next.Roster, 2)
}

func TestEnterLobbyRejectsSecondOwner(t *testing.T) {
	st := New(testGame(), owner())
	secondOwner := models.Player{Key: "p2", Name: "eve", IsOwner: true}
	st = st.WithPlayer(secondOwner)

	_, err := st.EnterLobby()
	assert.ErrorIs(t, err, ErrOwnerConflict)
}

func TestEnterLobbyAllowsManyOwnersInChallenge(t *testing.T) {
	g := testGame()
	g.Variant = models.VariantChallenge
	st := New(g, owner()).WithPlayer(models.Player{Key: "p2", IsOwner: true})

	next, err := st.EnterLobby()
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, next.Phase)
}

func TestEnterLobbyOnlyFromJoining(t *testing.T) {
	st := lobbyState(t)
	_, err := st.EnterLobby()
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestRoundLifecycle(t *testing.T) {
	st := lobbyState(t).WithPlayer(guest())

	preparing, err := st.Preparing()
	require.NoError(t, err)
	assert.Equal(t, PhasePreparing, preparing.Phase)

	round := models.Round{Panorama: "pano-1", Target: models.LatLng{Lat: 1, Lng: 2}}
	active, err := preparing.WithRound(round)
	require.NoError(t, err)
	assert.Equal(t, PhaseRoundActive, active.Phase)
	assert.Equal(t, 1, active.RoundsPlayed)
	require.NotNil(t, active.Round)
	assert.Equal(t, "pano-1", active.Round.Panorama)

	// The next round goes through Preparing again.
	preparing2, err := active.Preparing()
	require.NoError(t, err)
	active2, err := preparing2.WithRound(models.Round{Panorama: "pano-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, active2.RoundsPlayed)

	done, err := active2.Finish()
	require.NoError(t, err)
	assert.Equal(t, PhaseFinished, done.Phase)
}

func TestWithRoundFromLobbyForNonInitiators(t *testing.T) {
	st := lobbyState(t)
	active, err := st.WithRound(models.Round{Panorama: "pano-1"})
	require.NoError(t, err)
	assert.Equal(t, PhaseRoundActive, active.Phase)
}

func TestWithRoundRejectedWhileActive(t *testing.T) {
	st := lobbyState(t)
	active, err := st.WithRound(models.Round{Panorama: "pano-1"})
	require.NoError(t, err)

	_, err = active.WithRound(models.Round{Panorama: "pano-2"})
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestBackToLobbyAbortsPreparing(t *testing.T) {
	preparing, err := lobbyState(t).Preparing()
	require.NoError(t, err)

	back, err := preparing.BackToLobby()
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, back.Phase)

	_, err = back.BackToLobby()
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestBumpProgressNeverDecreases(t *testing.T) {
	st := lobbyState(t)
	for i := 1; i <= 3; i++ {
		st = st.BumpProgress()
		assert.Equal(t, i, st.Progress)
	}
}

func TestCanStart(t *testing.T) {
	st := lobbyState(t)
	assert.False(t, st.CanStart(), "owner alone cannot start a standard game")

	st = st.WithPlayer(guest())
	assert.True(t, st.CanStart())

	// Non-owner view of the same lobby.
	guestView, err := New(testGame(), guest()).EnterLobby()
	require.NoError(t, err)
	guestView = guestView.WithPlayer(owner())
	assert.False(t, guestView.CanStart())
}

func TestCanStartChallenge(t *testing.T) {
	g := testGame()
	g.Variant = models.VariantChallenge
	st, err := New(g, guest()).EnterLobby()
	require.NoError(t, err)
	assert.True(t, st.CanStart(), "any challenge player can start alone")
}

func TestCloneIsDeep(t *testing.T) {
	st := lobbyState(t)
	st.Round = &models.Round{Panorama: "pano-1"}

	cp := st.Clone()
	cp.Roster["extra"] = models.Player{Key: "extra"}
	cp.Round.Panorama = "changed"

	assert.Len(t, st.Roster, 1)
	assert.Equal(t, "pano-1", st.Round.Panorama)
}
