package hedera

import (
	"context"
	stderrors "errors"

	sdk "github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/pkg/errors"
)

// classify maps SDK failures onto this package's sentinels. submitted is true
// once the node accepted the transaction, after which a timeout no longer
// proves the transfer did not happen.
func classify(err error, submitted bool) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		if submitted {
			return errors.Wrap(ErrOutcomeUnknown, err.Error())
		}
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	var pre sdk.ErrHederaPreCheckStatus
	if stderrors.As(err, &pre) {
		return errors.Wrap(statusError(pre.Status), "precheck "+pre.Status.String())
	}
	var rec sdk.ErrHederaReceiptStatus
	if stderrors.As(err, &rec) {
		return errors.Wrap(statusError(rec.Status), "receipt "+rec.Status.String())
	}
	if submitted {
		return errors.Wrap(ErrOutcomeUnknown, err.Error())
	}
	return errors.Wrap(ErrUnavailable, err.Error())
}

func statusError(status sdk.Status) error {
	switch status {
	case sdk.StatusBusy, sdk.StatusPlatformTransactionNotCreated, sdk.StatusPlatformNotActive,
		sdk.StatusTransactionExpired, sdk.StatusInvalidTransactionStart:
		return ErrUnavailable
	case sdk.StatusInsufficientPayerBalance, sdk.StatusInsufficientAccountBalance,
		sdk.StatusInsufficientTokenBalance:
		return ErrInsufficientBalance
	default:
		return ErrRejected
	}
}
