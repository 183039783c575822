package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoProvider           = errors.New("no wallet provider available")
	ErrUserRejected         = errors.New("request rejected by user")
	ErrNotConnected         = errors.New("wallet not connected")
	ErrUnrecognizedChain    = errors.New("chain not recognized by wallet provider")
	ErrWrongNetwork         = errors.New("wrong network")
	ErrValidation           = errors.New("validation failed")
	ErrRead                 = errors.New("ledger read failed")
	ErrRoleDenied           = errors.New("role denied")
	ErrTaskNotFound         = errors.New("task not found")
	ErrTransactionFailed    = errors.New("transaction failed")
	ErrTransactionDropped   = errors.New("transaction dropped")
	ErrTransactionAbandoned = errors.New("stopped waiting for transaction")
	ErrConfirmationTimeout  = errors.New("confirmation not observed in time")
)

// WrongNetworkError is returned when the provider could not be brought onto the
// required network. The connection attempt is aborted.
type WrongNetworkError struct {
	Expected uint64
	Actual   uint64
	Cause    error
}

func (e *WrongNetworkError) Error() string {
	msg := fmt.Sprintf("wrong network: expected chain %d, wallet is on %d", e.Expected, e.Actual)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *WrongNetworkError) Is(target error) bool { return target == ErrWrongNetwork }
func (e *WrongNetworkError) Unwrap() error        { return e.Cause }

// ValidationError is a client-side guard failure. It never reaches the chain.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ReadError marks a query whose result is unknown. Callers must not treat it
// as an empty or zero value.
type ReadError struct {
	Op    string
	Cause error
}

func NewReadError(op string, cause error) *ReadError {
	return &ReadError{Op: op, Cause: cause}
}

func (e *ReadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("failed to read %s", e.Op)
	}
	return fmt.Sprintf("failed to read %s: %s", e.Op, e.Cause)
}

func (e *ReadError) Is(target error) bool { return target == ErrRead }
func (e *ReadError) Unwrap() error        { return e.Cause }

// RoleDeniedError is a guard failure on a privileged action.
type RoleDeniedError struct {
	Required Role
	Reason   string
}

func (e *RoleDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s role required: %s", e.Required, e.Reason)
	}
	return fmt.Sprintf("%s role required", e.Required)
}

func (e *RoleDeniedError) Is(target error) bool { return target == ErrRoleDenied }

// TransactionFailedError carries the chain revert reason verbatim when one
// could be recovered.
type TransactionFailedError struct {
	Hash   common.Hash
	Reason string
	Cause  error
}

func (e *TransactionFailedError) Error() string {
	msg := "transaction failed"
	if e.Hash != (common.Hash{}) {
		msg = fmt.Sprintf("transaction %s failed", e.Hash.Hex())
	}
	if e.Reason != "" {
		return msg + ": " + e.Reason
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }
func (e *TransactionFailedError) Unwrap() error        { return e.Cause }

// ConfirmationTimeoutError is an ambiguous outcome: the transaction may still
// confirm later.
type ConfirmationTimeoutError struct {
	Hash   common.Hash
	Waited time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf(
		"confirmation of %s not observed within %s, outcome unknown", e.Hash.Hex(), e.Waited,
	)
}

func (e *ConfirmationTimeoutError) Is(target error) bool { return target == ErrConfirmationTimeout }
