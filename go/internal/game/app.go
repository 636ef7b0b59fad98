package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/roster"
	"github.com/panoquest/panoquest/go/internal/round"
	"github.com/panoquest/panoquest/go/internal/session"
	"github.com/panoquest/panoquest/go/internal/store"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// App hosts the live client sessions of this process: it creates and joins
// games against the shared store and routes session events to the sink.
type App struct {
	store  store.Adapter
	roster *roster.Synchronizer
	rounds *round.Coordinator
	maps   *geomap.Catalog
	sink   EventSink

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewApp(st store.Adapter, ros *roster.Synchronizer, rounds *round.Coordinator, maps *geomap.Catalog, sink EventSink) *App {
	return &App{
		store:    st,
		roster:   ros,
		rounds:   rounds,
		maps:     maps,
		sink:     sink,
		sessions: make(map[string]*Session),
	}
}

// CreateGameRequest carries everything needed to open a new game session.
type CreateGameRequest struct {
	Title     string
	Variant   models.GameVariant
	Settings  models.GameSettings
	OwnerName string
	OwnerIcon string
}

// CreateGame allocates a fresh game code, publishes the game record and
// enters the session as its owner.
func (a *App) CreateGame(ctx context.Context, req CreateGameRequest) (*Session, error) {
	if err := a.validateCreateGameRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var game models.Game
	created := false
	for attempt := 0; attempt < 5 && !created; attempt++ {
		game = models.Game{
			Code:      NewGameCode(),
			Title:     req.Title,
			Variant:   req.Variant,
			Settings:  req.Settings,
			CreatedAt: time.Now().UTC(),
		}
		err := a.store.CreateAt(ctx, store.GamePath(game.Code), game)
		if errors.Is(err, store.ErrPathExists) {
			continue // code collision, roll again
		}
		if err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
		created = true
	}
	if !created {
		return nil, fmt.Errorf("could not allocate a free game code")
	}

	owner := models.Player{
		Key:     newPlayerKey(),
		Name:    req.OwnerName,
		Icon:    req.OwnerIcon,
		IsOwner: true,
	}

	log.Info().
		Str("game_code", game.Code).
		Str("title", game.Title).
		Str("variant", string(game.Variant)).
		Msg("game created")
	return a.enterSession(ctx, game, owner)
}

// JoinGame reads the game record once and enters the session as a regular
// player.
func (a *App) JoinGame(ctx context.Context, code, name, icon string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrInvalidRequest)
	}

	raw, err := a.store.ReadOnceAt(ctx, store.GamePath(code))
	if err != nil {
		if errors.Is(err, store.ErrNoValue) {
			return nil, fmt.Errorf("game %s: %w", code, ErrGameNotFound)
		}
		return nil, fmt.Errorf("read game record: %w", err)
	}

	var game models.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return nil, fmt.Errorf("decode game record: %w", err)
	}

	player := models.Player{
		Key:  newPlayerKey(),
		Name: name,
		Icon: icon,
	}
	return a.enterSession(ctx, game, player)
}

// enterSession wires up the local projection: join the roster, enter the
// lobby and start watching for the round record.
func (a *App) enterSession(ctx context.Context, game models.Game, local models.Player) (*Session, error) {
	sess := &Session{app: a, st: session.New(game, local)}

	membership, err := a.roster.Join(ctx, game.Code, local, sess.applyPlayer)
	if err != nil {
		return nil, fmt.Errorf("join game %s: %w", game.Code, err)
	}
	sess.membership = membership

	sess.mu.Lock()
	st, err := sess.st.EnterLobby()
	if err != nil {
		sess.mu.Unlock()
		sess.Leave()
		return nil, fmt.Errorf("enter lobby: %w", err)
	}
	sess.st = st
	sess.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go sess.watchRound(watchCtx, game.Code)

	a.mu.Lock()
	a.sessions[sessionKey(game.Code, local.Key)] = sess
	a.mu.Unlock()
	return sess, nil
}

// Session finds a hosted session by game code and player key.
func (a *App) Session(code, playerKey string) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionKey(code, playerKey)]
	if !ok {
		return nil, fmt.Errorf("game %s player %s: %w", code, playerKey, ErrSessionNotFound)
	}
	return sess, nil
}

// LeaveSession tears down a hosted session. The roster entry in the store is
// left in place: the wire contract has no removal semantics.
func (a *App) LeaveSession(code, playerKey string) error {
	key := sessionKey(code, playerKey)
	a.mu.Lock()
	sess, ok := a.sessions[key]
	if ok {
		delete(a.sessions, key)
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("game %s player %s: %w", code, playerKey, ErrSessionNotFound)
	}
	sess.Leave()
	return nil
}

// Maps exposes the catalog for the HTTP surface.
func (a *App) Maps() *geomap.Catalog {
	return a.maps
}

func (a *App) emit(e Event) {
	if a.sink != nil {
		a.sink(e)
	}
}

func (a *App) validateCreateGameRequest(req CreateGameRequest) error {
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if req.OwnerName == "" {
		return fmt.Errorf("owner name is required")
	}
	switch req.Variant {
	case models.VariantStandard, models.VariantChallenge:
	default:
		return fmt.Errorf("unknown variant %q", req.Variant)
	}
	switch req.Settings.Rules {
	case models.RulesClassic, models.RulesStationary, models.RulesGuessCountry:
	default:
		return fmt.Errorf("unknown rule set %q", req.Settings.Rules)
	}
	if req.Settings.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1")
	}
	if req.Settings.Duration != nil && *req.Settings.Duration <= 0 {
		return fmt.Errorf("duration must be positive when set")
	}
	if _, err := a.maps.Get(req.Settings.MapID); err != nil {
		return err
	}
	return nil
}

func sessionKey(code, playerKey string) string {
	return code + "/" + playerKey
}
