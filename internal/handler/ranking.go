package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/chore"
	"github.com/dukerupert/coolive/internal/model"
	"github.com/dukerupert/coolive/internal/websocket"
)

type RankingHandler struct {
	svc    *chore.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewRankingHandler(svc *chore.Service, hub *websocket.Hub, logger *slog.Logger) *RankingHandler {
	return &RankingHandler{svc: svc, hub: hub, logger: logger}
}

// List handles GET /api/ranking
func (h *RankingHandler) List(w http.ResponseWriter, r *http.Request) {
	standings, err := h.svc.Ranking(r.Context(), auth.GroupID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to load ranking")
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

type bonusRequest struct {
	UserID int64  `json:"user_id"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

type bonusResponse struct {
	Award   *model.PointAward `json:"award"`
	Balance int               `json:"balance"`
}

// Bonus handles POST /api/ranking/bonus
func (h *RankingHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	award, balance, err := h.svc.AwardBonus(r.Context(), ac.GroupID, ac.UserID, req.UserID, req.Points, req.Reason)
	if err != nil {
		writeError(w, h.logger, err, "failed to award bonus")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.GroupID, websocket.NewMessage("ranking", "changed", req.UserID, map[string]any{
			"points": balance,
		}))
	}
	writeJSON(w, http.StatusCreated, bonusResponse{Award: award, Balance: balance})
}

// Awards handles GET /api/ranking/awards
func (h *RankingHandler) Awards(w http.ResponseWriter, r *http.Request) {
	awards, err := h.svc.Awards(r.Context(), auth.GroupID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to list awards")
		return
	}
	writeJSON(w, http.StatusOK, awards)
}
