package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apppublic "round-settlement/internal/app/public"
	"round-settlement/internal/settlement"
)

type PublicHandlers struct {
	svc    *apppublic.Service
	rounds *settlement.Service
}

func NewPublicHandlers(svc *apppublic.Service, rounds *settlement.Service) *PublicHandlers {
	return &PublicHandlers{svc: svc, rounds: rounds}
}

func (h *PublicHandlers) Rooms() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := h.rounds.Rooms()
		items := make([]map[string]any, 0, len(rooms))
		for _, room := range rooms {
			items = append(items, map[string]any{
				"id":               room.ID,
				"min_stake":        room.MinStake,
				"max_stake":        room.MaxStake,
				"max_players":      room.MaxPlayers,
				"duration_seconds": int64(room.Duration.Seconds()),
			})
		}
		render.JSON(w, r, map[string]any{"items": items})
	}
}

func (h *PublicHandlers) UserStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.svc.UserStats(r.Context(), chi.URLParam(r, "account_id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, out)
	}
}

func (h *PublicHandlers) UserRounds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		out, err := h.svc.UserRounds(r.Context(), chi.URLParam(r, "account_id"), limit, offset)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, out)
	}
}

func (h *PublicHandlers) HCSMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := h.svc.HCSMessages(r.Context(), limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, out)
	}
}
