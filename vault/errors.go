package vault

import (
	"errors"

	"github.com/rustyeddy/treasury/ledger"
)

var (
	ErrNotFound      = errors.New("treasury not found")
	ErrExists        = errors.New("treasury already exists")
	ErrUnauthorized  = errors.New("principal not authorized")
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrBusy means another mutating operation holds the treasury. Callers
	// retry at their own pace; nothing was started.
	ErrBusy = errors.New("treasury busy")

	// ErrRefreshFailed wraps whatever stopped a reconciliation run. State up
	// to the last durably merged page is kept; retrying is safe.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrTransferFailed wraps an ambiguous or failed submission. When the
	// cause is ledger.ErrUnavailable the transfer may still have landed;
	// only a refresh can tell.
	ErrTransferFailed = errors.New("transfer failed")
)

// Code returns the stable text code for an error, for RPC payloads and logs.
// The most specific category wins: an insufficient-funds rejection inside a
// transfer reports INSUFFICIENT_FUNDS, not TRANSFER_FAILED.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrBusy):
		return "BUSY"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ledger.ErrRejected):
		return "LEDGER_REJECTED"
	case errors.Is(err, ErrRefreshFailed):
		return "REFRESH_FAILED"
	case errors.Is(err, ErrTransferFailed):
		return "TRANSFER_FAILED"
	case errors.Is(err, ledger.ErrUnavailable):
		return "LEDGER_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
