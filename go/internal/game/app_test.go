package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/pano"
	"github.com/panoquest/panoquest/go/internal/roster"
	"github.com/panoquest/panoquest/go/internal/round"
	"github.com/panoquest/panoquest/go/internal/session"
	"github.com/panoquest/panoquest/go/internal/store"
)

type stubSource struct{}

func (stubSource) FetchRandomPanorama(ctx context.Context, m geomap.Map) (*pano.Panorama, error) {
	return &pano.Panorama{ID: "pano-1", Position: models.LatLng{Lat: 48.85, Lng: 2.35}}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) sink(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *eventLog) {
	t.Helper()
	ms := store.NewMemoryStore()
	maps := geomap.DefaultCatalog()
	events := &eventLog{}
	rounds := round.NewCoordinator(ms, stubSource{}, maps, round.Config{MaxAttempts: 3})
	app := NewApp(ms, roster.NewSynchronizer(ms), rounds, maps, events.sink)
	return app, ms, events
}

func createRequest() CreateGameRequest {
	return CreateGameRequest{
		Title:     "Friday night",
		Variant:   models.VariantStandard,
		Settings:  models.GameSettings{MapID: geomap.WorldMapID, Rounds: 5, Rules: models.RulesClassic},
		OwnerName: "ada",
		OwnerIcon: "🦉",
	}
}

func TestCreateGameOpensLobby(t *testing.T) {
	ctx := context.Background()
	app, ms, _ := newTestApp(t)

	sess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	defer sess.Leave()

	st := sess.State()
	assert.Equal(t, session.PhaseLobby, st.Phase)
	assert.Equal(t, "Friday night", st.Title)
	assert.Len(t, st.Roster, 1)
	assert.True(t, st.IsLocalOwner())
	assert.False(t, st.CanStart(), "needs a second player")

	// The game record and the owner's roster entry are in the store.
	_, err = ms.ReadOnceAt(ctx, store.GamePath(st.Code))
	assert.NoError(t, err)
	_, err = ms.ReadOnceAt(ctx, store.PlayerPath(st.Code, st.LocalPlayerKey))
	assert.NoError(t, err)
}

func TestCreateGameValidation(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newTestApp(t)

	for name, mutate := range map[string]func(*CreateGameRequest){
		"missing title":      func(r *CreateGameRequest) { r.Title = "" },
		"missing owner name": func(r *CreateGameRequest) { r.OwnerName = "" },
		"unknown variant":    func(r *CreateGameRequest) { r.Variant = "TOURNAMENT" },
		"unknown rules":      func(r *CreateGameRequest) { r.Settings.Rules = "SPEEDRUN" },
		"zero rounds":        func(r *CreateGameRequest) { r.Settings.Rounds = 0 },
		"unknown map":        func(r *CreateGameRequest) { r.Settings.MapID = "atlantis" },
	} {
		t.Run(name, func(t *testing.T) {
			req := createRequest()
			mutate(&req)
			_, err := app.CreateGame(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestJoinGameUnknownCode(t *testing.T) {
	app, _, _ := newTestApp(t)
	_, err := app.JoinGame(context.Background(), "ZZZZ", "lin", "🦊")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestJoinGameSyncsRosters(t *testing.T) {
	ctx := context.Background()
	app, _, events := newTestApp(t)

	ownerSess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	defer ownerSess.Leave()
	code := ownerSess.State().Code

	guestSess, err := app.JoinGame(ctx, code, "lin", "🦊")
	require.NoError(t, err)
	defer guestSess.Leave()

	ownerView := ownerSess.State()
	guestView := guestSess.State()
	assert.Len(t, ownerView.Roster, 2)
	assert.Len(t, guestView.Roster, 2)
	assert.True(t, ownerView.CanStart())
	assert.False(t, guestView.CanStart())

	ownerRecord, ok := guestView.Owner()
	require.True(t, ok)
	assert.Equal(t, "ada", ownerRecord.Name)

	joined := events.ofType(EventPlayerJoined)
	assert.NotEmpty(t, joined)
}

func TestStartMatchNeedsTwoPlayers(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newTestApp(t)

	sess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	defer sess.Leave()

	err = sess.StartMatch(ctx)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	assert.Equal(t, session.PhaseLobby, sess.State().Phase)
}

func TestStartMatchRejectsNonOwner(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newTestApp(t)

	ownerSess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	defer ownerSess.Leave()

	guestSess, err := app.JoinGame(ctx, ownerSess.State().Code, "lin", "🦊")
	require.NoError(t, err)
	defer guestSess.Leave()

	err = guestSess.StartMatch(ctx)
	assert.ErrorIs(t, err, round.ErrNotAuthorized)
	assert.Equal(t, session.PhaseLobby, guestSess.State().Phase, "failed start falls back to the lobby")
}

func TestStartMatchMovesEveryoneIntoTheRound(t *testing.T) {
	ctx := context.Background()
	app, _, events := newTestApp(t)

	ownerSess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	defer ownerSess.Leave()

	guestSess, err := app.JoinGame(ctx, ownerSess.State().Code, "lin", "🦊")
	require.NoError(t, err)
	defer guestSess.Leave()

	require.NoError(t, ownerSess.StartMatch(ctx))

	// Both clients converge through the store's round record.
	inRound := func(s *Session) func() bool {
		return func() bool { return s.State().Phase == session.PhaseRoundActive }
	}
	require.Eventually(t, inRound(ownerSess), time.Second, 5*time.Millisecond)
	require.Eventually(t, inRound(guestSess), time.Second, 5*time.Millisecond)

	ownerRound := ownerSess.State().Round
	guestRound := guestSess.State().Round
	require.NotNil(t, ownerRound)
	require.NotNil(t, guestRound)
	assert.Equal(t, *ownerRound, *guestRound, "everyone plays the same panorama")
	assert.Equal(t, "pano-1", ownerRound.Panorama)

	started := events.ofType(EventRoundStarted)
	assert.Len(t, started, 2, "one RoundStarted per hosted session")
}

func TestSessionRegistry(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newTestApp(t)

	sess, err := app.CreateGame(ctx, createRequest())
	require.NoError(t, err)
	st := sess.State()

	found, err := app.Session(st.Code, st.LocalPlayerKey)
	require.NoError(t, err)
	assert.Same(t, sess, found)

	_, err = app.Session(st.Code, "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, app.LeaveSession(st.Code, st.LocalPlayerKey))
	_, err = app.Session(st.Code, st.LocalPlayerKey)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = app.LeaveSession(st.Code, st.LocalPlayerKey)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNewGameCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := NewGameCode()
		require.Len(t, code, 4)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes vary")
}
