package game

import "errors"

var (
	ErrInvalidRequest             = errors.New("invalid_request")
	ErrInvalidRound               = errors.New("invalid_round")
	ErrInvalidAmount              = errors.New("invalid_amount")
	ErrRoundNotFound              = errors.New("round_not_found")
	ErrRoundNotOpen               = errors.New("round_not_open")
	ErrRoundNotLocked             = errors.New("round_not_locked")
	ErrRoundNotCompleted          = errors.New("round_not_completed")
	ErrDeadlinePassed             = errors.New("deadline_passed")
	ErrStakeOutOfRange            = errors.New("stake_out_of_range")
	ErrDuplicatePlayer            = errors.New("duplicate_player")
	ErrRoundFull                  = errors.New("round_full")
	ErrNotEnoughPlayers           = errors.New("not_enough_players")
	ErrTransferVerificationFailed = errors.New("transfer_verification_failed")
	ErrProofReused                = errors.New("transfer_proof_reused")
	ErrProofMismatch              = errors.New("selection_proof_mismatch")
	ErrVersionConflict            = errors.New("version_conflict")
	ErrExternalService            = errors.New("external_service_unavailable")
	ErrPayoutFailed               = errors.New("payout_failed")
	ErrNothingToRetry             = errors.New("nothing_to_retry")
)

// Kind groups errors by how a caller is expected to react.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindVerification Kind = "verification"
	KindExternal     Kind = "external_service"
	KindPayout       Kind = "payout"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransferVerificationFailed), errors.Is(err, ErrProofReused):
		return KindVerification
	case errors.Is(err, ErrExternalService):
		return KindExternal
	case errors.Is(err, ErrPayoutFailed):
		return KindPayout
	case errors.Is(err, ErrVersionConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidRound),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrRoundNotFound),
		errors.Is(err, ErrRoundNotOpen),
		errors.Is(err, ErrRoundNotLocked),
		errors.Is(err, ErrRoundNotCompleted),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrStakeOutOfRange),
		errors.Is(err, ErrDuplicatePlayer),
		errors.Is(err, ErrRoundFull),
		errors.Is(err, ErrNotEnoughPlayers),
		errors.Is(err, ErrNothingToRetry):
		return KindValidation
	default:
		return KindInternal
	}
}
