package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"round-settlement/internal/game"
	"round-settlement/internal/ledger"
	"round-settlement/internal/settlement"
)

const reasonOperatorCancel = "operator_cancelled"

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=128"`
}

type depositRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type AdminHandlers struct {
	rounds   *settlement.Service
	ledger   ledger.Ledger
	pool     string
	dev      *ledger.Memory
	health   func() error
	validate *validator.Validate

	tokenDecimals int32
}

func NewAdminHandlers(rounds *settlement.Service, led ledger.Ledger, pool string, tokenDecimals int32, dev *ledger.Memory, health func() error) *AdminHandlers {
	return &AdminHandlers{
		rounds:        rounds,
		ledger:        led,
		pool:          pool,
		dev:           dev,
		health:        health,
		validate:      validator.New(),
		tokenDecimals: tokenDecimals,
	}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.health != nil {
			if err := h.health(); err != nil {
				log.Warn().Err(err).Msg("health check failed")
				WriteHTTPError(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		render.JSON(w, r, map[string]any{"ok": true})
	}
}

func (h *AdminHandlers) Lock() http.HandlerFunc {
	return h.roundAction("lock", h.rounds.Lock)
}

func (h *AdminHandlers) Reveal() http.HandlerFunc {
	return h.roundAction("reveal", h.rounds.Reveal)
}

func (h *AdminHandlers) RetryPayout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := h.rounds.RetryPayout(r.Context(), chi.URLParam(r, "round_id"))
		if err != nil {
			log.Warn().Err(err).Str("round_id", chi.URLParam(r, "round_id")).Msg("manual payout retry failed")
			if round != nil {
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, map[string]any{"error": "payout_failed", "round": round})
				return
			}
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, round)
	}
}

func (h *AdminHandlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
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
		if req.Reason == "" {
			req.Reason = reasonOperatorCancel
		}
		round, err := h.rounds.Cancel(r.Context(), chi.URLParam(r, "round_id"), req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, round)
	}
}

func (h *AdminHandlers) PoolBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bal, err := h.ledger.Balance(r.Context(), h.pool)
		if err != nil {
			log.Error().Err(err).Str("account_id", h.pool).Msg("pool balance lookup failed")
			if ledger.IsTransient(err) {
				WriteHTTPError(w, http.StatusServiceUnavailable, "external_unavailable")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		render.JSON(w, r, map[string]any{
			"account_id":     h.pool,
			"balance":        bal,
			"balance_tokens": game.FromMinorUnits(bal, h.tokenDecimals).String(),
		})
	}
}

// Deposit simulates a wallet transfer into the pool on the memory ledger and
// returns the proof a join can present.
func (h *AdminHandlers) Deposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.dev == nil {
			WriteHTTPError(w, http.StatusNotFound, "not_found")
			return
		}
		var req depositRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		proof, err := h.dev.Deposit(req.AccountID, req.Amount)
		if err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{"account_id": req.AccountID, "amount": req.Amount, "transfer_proof": proof})
	}
}

func (h *AdminHandlers) roundAction(action string, fn func(ctx context.Context, id string) (*game.Round, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "round_id")
		round, err := fn(r.Context(), id)
		if err != nil {
			log.Debug().Err(err).Str("round_id", id).Str("action", action).Msg("admin round action rejected")
			writeDomainError(w, err)
			return
		}
		render.JSON(w, r, round)
	}
}
