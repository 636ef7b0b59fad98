package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/game"
	"github.com/panoquest/panoquest/go/internal/models"
	"github.com/panoquest/panoquest/go/internal/pano"
	"github.com/panoquest/panoquest/go/internal/round"
	"github.com/panoquest/panoquest/go/internal/session"
	"github.com/panoquest/panoquest/go/internal/store"
)

// Handler is the HTTP surface of the gateway: lobby actions plus the
// WebSocket upgrade endpoint.
type Handler struct {
	app           *game.App
	hub           *Hub
	publicBaseURL string
}

func NewHandler(app *game.App, hub *Hub, publicBaseURL string) *Handler {
	return &Handler{app: app, hub: hub, publicBaseURL: publicBaseURL}
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /games", h.handleCreateGame)
	mux.HandleFunc("POST /games/{code}/join", h.handleJoinGame)
	mux.HandleFunc("POST /games/{code}/start", h.handleStartMatch)
	mux.HandleFunc("POST /games/{code}/leave", h.handleLeaveGame)
	mux.HandleFunc("GET /games/{code}/qr", h.handleJoinQR)
	mux.HandleFunc("GET /maps", h.handleMaps)
	mux.HandleFunc("GET /ws", h.handleWebSocket)
}

// SessionView is the lobby projection returned to the browser after create
// and join, and on demand.
type SessionView struct {
	Code         string              `json:"code"`
	Title        string              `json:"title"`
	Variant      models.GameVariant  `json:"variant"`
	Phase        session.Phase       `json:"phase"`
	Settings     models.GameSettings `json:"settings"`
	Players      []models.Player     `json:"players"`
	PlayerKey    string              `json:"player_key"`
	Progress     int                 `json:"progress"`
	CanStart     bool                `json:"can_start"`
	StartLabel   string              `json:"start_label"`
	RuleName     string              `json:"rule_name"`
	RulesExplain string              `json:"rules_explain"`
	Duration     string              `json:"duration"`
	JoinURL      string              `json:"join_url"`
	Round        *models.Round       `json:"round,omitempty"`
}

type createGameRequest struct {
	Title    string              `json:"title"`
	Variant  models.GameVariant  `json:"variant"`
	Settings models.GameSettings `json:"settings"`
	Name     string              `json:"name"`
	Icon     string              `json:"icon"`
}

type joinGameRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type playerActionRequest struct {
	PlayerKey string `json:"player_key"`
}

func (h *Handler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", game.ErrInvalidRequest, err))
		return
	}
	if req.Variant == "" {
		req.Variant = models.VariantStandard
	}

	sess, err := h.app.CreateGame(r.Context(), game.CreateGameRequest{
		Title:     req.Title,
		Variant:   req.Variant,
		Settings:  req.Settings,
		OwnerName: req.Name,
		OwnerIcon: req.Icon,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.viewOf(sess.State()))
}

func (h *Handler) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", game.ErrInvalidRequest, err))
		return
	}

	sess, err := h.app.JoinGame(r.Context(), r.PathValue("code"), req.Name, req.Icon)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.viewOf(sess.State()))
}

func (h *Handler) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	var req playerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", game.ErrInvalidRequest, err))
		return
	}

	sess, err := h.app.Session(r.PathValue("code"), req.PlayerKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.StartMatch(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.viewOf(sess.State()))
}

func (h *Handler) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	var req playerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", game.ErrInvalidRequest, err))
		return
	}
	if err := h.app.LeaveSession(r.PathValue("code"), req.PlayerKey); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMaps lists the playable map IDs for the create-game form.
func (h *Handler) handleMaps(w http.ResponseWriter, r *http.Request) {
	ids := h.app.Maps().IDs()
	sort.Strings(ids)
	h.writeJSON(w, http.StatusOK, map[string][]string{"maps": ids})
}

// handleJoinQR renders the join URL as a PNG QR code players can scan.
func (h *Handler) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(h.joinURL(code), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	playerKey := r.URL.Query().Get("player_key")
	if code == "" || playerKey == "" {
		http.Error(w, "code and player_key are required", http.StatusBadRequest)
		return
	}

	if _, err := h.app.Session(code, playerKey); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.hub.UpgradeConnection(w, r, playerKey, code); err != nil {
		log.Error().Err(err).
			Str("game_code", code).
			Str("player_key", playerKey).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

func (h *Handler) viewOf(st session.State) SessionView {
	players := make([]models.Player, 0, len(st.Roster))
	for _, p := range st.Roster {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Key < players[j].Key })

	return SessionView{
		Code:         st.Code,
		Title:        st.Title,
		Variant:      st.Variant,
		Phase:        st.Phase,
		Settings:     st.Settings,
		Players:      players,
		PlayerKey:    st.LocalPlayerKey,
		Progress:     st.Progress,
		CanStart:     st.CanStart(),
		StartLabel:   st.StartLabel(),
		RuleName:     session.RuleName(st.Settings.Rules),
		RulesExplain: session.RulesExplain(st.Settings.Rules),
		Duration:     session.ReadableDuration(st.Settings.Duration),
		JoinURL:      h.joinURL(st.Code),
		Round:        st.Round,
	}
}

func (h *Handler) joinURL(code string) string {
	return fmt.Sprintf("%s/?c=%s", h.publicBaseURL, code)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, round.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrNotEnoughPlayers):
		status = http.StatusConflict
	case errors.Is(err, pano.ErrNoPanoramaFound), errors.Is(err, store.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
