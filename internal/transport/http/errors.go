package httptransport

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	apppublic "round-settlement/internal/app/public"
	"round-settlement/internal/game"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var domainErrors = []errorMapping{
	{game.ErrRoundNotFound, http.StatusNotFound, "round_not_found"},
	{game.ErrRoundNotOpen, http.StatusConflict, "round_not_open"},
	{game.ErrDeadlinePassed, http.StatusConflict, "deadline_passed"},
	{game.ErrStakeOutOfRange, http.StatusBadRequest, "stake_out_of_range"},
	{game.ErrDuplicatePlayer, http.StatusConflict, "duplicate_player"},
	{game.ErrRoundFull, http.StatusConflict, "round_full"},
	{game.ErrTransferVerificationFailed, http.StatusPaymentRequired, "transfer_verification_failed"},
	{game.ErrProofReused, http.StatusConflict, "transfer_proof_reused"},
	{game.ErrNotEnoughPlayers, http.StatusConflict, "not_enough_players"},
	{game.ErrRoundNotLocked, http.StatusConflict, "round_not_locked"},
	{game.ErrRoundNotCompleted, http.StatusConflict, "round_not_completed"},
	{game.ErrNothingToRetry, http.StatusConflict, "nothing_to_retry"},
	{game.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{game.ErrPayoutFailed, http.StatusBadGateway, "payout_failed"},
	{game.ErrExternalService, http.StatusServiceUnavailable, "external_unavailable"},
	{game.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{game.ErrInvalidRound, http.StatusBadRequest, "invalid_request"},
	{game.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{apppublic.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{apppublic.ErrNotFound, http.StatusNotFound, "not_found"},
}

// writeDomainError maps service errors to their HTTP status and code.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := game.KindOf(err)
	metricDomainErrors.Add(string(kind), 1)
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				log.Warn().Err(err).Str("kind", string(kind)).Str("code", m.code).Msg("request failed upstream")
			}
			WriteHTTPError(w, m.status, m.code)
			return
		}
	}
	log.Error().Err(err).Str("kind", string(kind)).Msg("unmapped request error")
	WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
}
