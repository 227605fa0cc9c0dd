package api

import (
	"errors"
	"net/http"

	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/catalog"
	"github.com/fadedpez/spinz/pkg/paytable"
	"github.com/gorilla/mux"
)

const defaultLeaderboardPageSize = 10

// ListGames lists the catalog
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.ListGames(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	out := make([]*gameResponse, 0, len(games))
	for _, game := range games {
		out = append(out, newGameResponse(game))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetGame returns a catalog entry
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newGameResponse(game))
}

// GetRTP reports a game's theoretical return assuming uniform reels
func (h *Handler) GetRTP(w http.ResponseWriter, r *http.Request) {
	game, ok := h.game(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}

	rtp, err := paytable.ExpectedReturn(game.Paytable, paytable.UniformProbabilities(game.Symbols), game.Reels)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &rtpResponse{
		GameID:         game.ID,
		ExpectedReturn: rtp,
		HouseEdge:      1 - rtp,
	})
}

// GetLeaderboard ranks a game's players by total won
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusNotFound, "Leaderboards are not enabled")
		return
	}
	game, ok := h.game(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}

	board, err := h.stats.GetLeaderboard(r.Context(), game.ID,
		queryInt(r, "page", 1), queryInt(r, "per_page", defaultLeaderboardPageSize))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// GetAchievements lists the caller's unlocked achievements, or with
// ?game_id= their progress on every achievement of that game
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	if h.achievements == nil {
		respondError(w, http.StatusNotFound, "Achievements are not enabled")
		return
	}
	account, ok := h.ownAccount(w, r)
	if !ok {
		return
	}

	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		unlocked, err := h.achievements.GetUnlocked(r.Context(), account)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		if unlocked == nil {
			unlocked = []*entities.UnlockedAchievement{}
		}
		respondJSON(w, http.StatusOK, unlocked)
		return
	}

	game, ok := h.game(w, r, gameID)
	if !ok {
		return
	}
	progress, err := h.achievements.GetProgress(r.Context(), account, game)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// GetStatistics returns the caller's statistics for the game named by ?game_id=
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusNotFound, "Statistics are not enabled")
		return
	}
	account, ok := h.ownAccount(w, r)
	if !ok {
		return
	}

	game, ok := h.game(w, r, r.URL.Query().Get("game_id"))
	if !ok {
		return
	}
	playerStats, err := h.stats.GetPlayerStatistics(r.Context(), account, game.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playerStats)
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request, gameID string) (*entities.Game, bool) {
	game, err := h.games.GetGame(r.Context(), gameID)
	if errors.Is(err, catalog.ErrGameNotFound) {
		err = types.WrapError(types.ErrGameNotFound, "game not found", err)
	}
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return game, true
}
