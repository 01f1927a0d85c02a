package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"round-settlement/internal/game"
	"round-settlement/internal/settlement"
	"round-settlement/internal/store"
	"round-settlement/internal/stream"
)

var ssePingInterval = 15 * time.Second

type createRoundRequest struct {
	RoomID          string `json:"room_id" validate:"omitempty,max=64"`
	MinStake        int64  `json:"min_stake" validate:"gte=0"`
	MaxStake        int64  `json:"max_stake" validate:"gte=0"`
	MaxPlayers      int    `json:"max_players" validate:"gte=0,lte=1000"`
	DurationSeconds int64  `json:"duration_seconds" validate:"gte=0,lte=86400"`
}

// joinRequest carries the stake either in minor units or as a token amount.
type joinRequest struct {
	AccountID     string              `json:"account_id" validate:"required,max=64"`
	StakeAmount   int64               `json:"stake_amount" validate:"gte=0"`
	Stake         decimal.NullDecimal `json:"stake"`
	TransferProof string              `json:"transfer_proof" validate:"required,max=128"`
}

type RoundHandlers struct {
	rounds        *settlement.Service
	validate      *validator.Validate
	tokenDecimals int32
}

func NewRoundHandlers(rounds *settlement.Service, tokenDecimals int32) *RoundHandlers {
	return &RoundHandlers{rounds: rounds, validate: validator.New(), tokenDecimals: tokenDecimals}
}

func (h *RoundHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoundRequest
		if r.ContentLength != 0 {
			if err := render.DecodeJSON(r.Body, &req); err != nil {
				WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
				return
			}
		}
		if err := h.validate.Struct(req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		metricRoundCreateTotal.Add(1)
		round, err := h.rounds.Create(r.Context(), settlement.CreateRequest{
			RoomID:     req.RoomID,
			MinStake:   req.MinStake,
			MaxStake:   req.MaxStake,
			MaxPlayers: req.MaxPlayers,
			Duration:   time.Duration(req.DurationSeconds) * time.Second,
		})
		if err != nil {
			metricRoundCreateErrors.Add(1)
			writeDomainError(w, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, round)
	}
}

func (h *RoundHandlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		f := store.RoundFilter{
			Status: game.Status(r.URL.Query().Get("status")),
			RoomID: r.URL.Query().Get("room_id"),
			Limit:  limit,
			Offset: offset,
		}
		switch f.Status {
		case "", game.StatusOpen, game.StatusLocked, game.StatusCompleted, game.StatusCancelled:
		default:
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		items, err := h.rounds.List(r.Context(), f)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *RoundHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := h.rounds.Get(r.Context(), chi.URLParam(r, "round_id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, round)
	}
}

func (h *RoundHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		stake, err := h.stakeAmount(req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metricJoinSubmitTotal.Add(1)
		round, err := h.rounds.Join(r.Context(), settlement.JoinRequest{
			RoundID:       chi.URLParam(r, "round_id"),
			AccountID:     req.AccountID,
			StakeAmount:   stake,
			TransferProof: req.TransferProof,
		})
		if err != nil {
			metricJoinSubmitErrors.Add(1)
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, round)
	}
}

func (h *RoundHandlers) stakeAmount(req joinRequest) (int64, error) {
	switch {
	case req.StakeAmount > 0 && req.Stake.Valid:
		return 0, game.ErrInvalidRequest
	case req.StakeAmount > 0:
		return req.StakeAmount, nil
	case req.Stake.Valid:
		return game.ToMinorUnits(req.Stake.Decimal, h.tokenDecimals)
	default:
		return 0, game.ErrInvalidRequest
	}
}

// Proof returns the selection proof and whether it replays to the same winner.
func (h *RoundHandlers) Proof() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proof, err := h.rounds.Proof(r.Context(), chi.URLParam(r, "round_id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		verr := game.VerifySelection(*proof)
		resp := map[string]any{"proof": proof, "verified": verr == nil}
		if verr != nil {
			log.Error().Err(verr).Str("round_id", proof.RoundID).Msg("stored selection proof does not verify")
			resp["verify_error"] = verr.Error()
		}
		render.JSON(w, r, resp)
	}
}

// Events streams round lifecycle events as SSE, optionally for one round.
func (h *RoundHandlers) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "streaming_unsupported")
			return
		}
		roundID := r.URL.Query().Get("round_id")
		buf := h.rounds.Events()

		metricRoundSSEConnectionsTotal.Add(1)
		metricRoundSSEConnectionsActive.Add(1)
		defer metricRoundSSEConnectionsActive.Add(-1)

		stream.SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)

		ch, backlog := buf.SubscribeAfter(r.Header.Get("Last-Event-ID"))
		defer buf.Unsubscribe(ch)
		for _, ev := range backlog {
			if !matchesRound(ev, roundID) {
				continue
			}
			if err := stream.WriteSSE(w, ev); err != nil {
				return
			}
		}
		flusher.Flush()

		ticker := time.NewTicker(ssePingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if !matchesRound(ev, roundID) {
					continue
				}
				if err := stream.WriteSSE(w, ev); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				ping := stream.Event{Event: "ping", ServerTS: time.Now().UnixMilli()}
				if err := stream.WriteSSE(w, ping); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func matchesRound(ev stream.Event, roundID string) bool {
	return roundID == "" || ev.RoundID == roundID
}
