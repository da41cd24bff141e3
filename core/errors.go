package core

import (
	"errors"
	"fmt"
)

// Code is a machine-readable auction error code. Every code is terminal:
// retrying the same command against the same state fails the same way.
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeOwnerForbidden      Code = "OWNER_FORBIDDEN"
	CodeWrongDenomination   Code = "WRONG_DENOMINATION"
	CodeNoFundsAttached     Code = "NO_FUNDS_ATTACHED"
	CodeInvalidFunds        Code = "INVALID_FUNDS"
	CodeBidTooLow           Code = "BID_TOO_LOW"
	CodeAmountOverflow      Code = "AMOUNT_OVERFLOW"
	CodeBiddingClosed       Code = "BIDDING_CLOSED"
	CodeBiddingStillOpen    Code = "BIDDING_STILL_OPEN"
	CodeWinnerCannotRetract Code = "WINNER_CANNOT_RETRACT"
	CodeNoSuchBidder        Code = "NO_SUCH_BIDDER"
	CodeAlreadyRetracted    Code = "ALREADY_RETRACTED"
	CodeNoWinner            Code = "NO_WINNER"
	CodeNotYetDecided       Code = "NOT_YET_DECIDED"
	CodeInvalidCommission   Code = "INVALID_COMMISSION"
	CodeAlreadyInitialized  Code = "ALREADY_INITIALIZED"
	CodeNotInitialized      Code = "NOT_INITIALIZED"
	CodeInvalidOwner        Code = "INVALID_OWNER"
	CodeInvalidSender       Code = "INVALID_SENDER"
	CodeStorageFailure      Code = "STORAGE_FAILURE"
)

// Error is the auction domain error.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Context for the caller, e.g. the owner identity
	Cause    error             // Underlying error, set for storage failures
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func withMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Sentinels for errors.Is. Returned errors may carry metadata the sentinels
// lack; matching is by code only.
var (
	ErrUnauthorized        = newError(CodeUnauthorized, "unauthorized")
	ErrOwnerForbidden      = newError(CodeOwnerForbidden, "owner cannot perform this operation")
	ErrWrongDenomination   = newError(CodeWrongDenomination, "bid done with wrong coin")
	ErrNoFundsAttached     = newError(CodeNoFundsAttached, "no funds attached to bid")
	ErrInvalidFunds        = newError(CodeInvalidFunds, "bid must attach exactly one coin")
	ErrBidTooLow           = newError(CodeBidTooLow, "bid not high enough")
	ErrAmountOverflow      = newError(CodeAmountOverflow, "cumulative bid overflows")
	ErrBiddingClosed       = newError(CodeBiddingClosed, "bidding is closed")
	ErrBiddingStillOpen    = newError(CodeBiddingStillOpen, "bidding is still open")
	ErrWinnerCannotRetract = newError(CodeWinnerCannotRetract, "winner cannot withdraw funds")
	ErrNoSuchBidder        = newError(CodeNoSuchBidder, "no bid recorded for this address")
	ErrAlreadyRetracted    = newError(CodeAlreadyRetracted, "funds already retracted")
	ErrNoWinner            = newError(CodeNoWinner, "no highest bidder to close on")
	ErrNotYetDecided       = newError(CodeNotYetDecided, "winner not decided yet")
	ErrInvalidCommission   = newError(CodeInvalidCommission, "commission must be between 0 and 100")
	ErrAlreadyInitialized  = newError(CodeAlreadyInitialized, "auction already initialized")
	ErrNotInitialized      = newError(CodeNotInitialized, "auction not initialized")
	ErrInvalidOwner        = newError(CodeInvalidOwner, "auction owner identity is required")
	ErrInvalidSender       = newError(CodeInvalidSender, "sender identity is required")
	ErrStorageFailure      = newError(CodeStorageFailure, "storage failure")
)

func errUnauthorized(owner Addr) *Error {
	return withMetadata(CodeUnauthorized,
		fmt.Sprintf("unauthorized - only %s can close bid", owner),
		map[string]string{"owner": string(owner)})
}

func errOwnerForbidden(op string) *Error {
	msg := "owner cannot bid"
	if op == OpRetract {
		msg = "owner cannot withdraw funds"
	}
	return withMetadata(CodeOwnerForbidden, msg, map[string]string{"op": op})
}

func errWrongDenomination(want, got string) *Error {
	return withMetadata(CodeWrongDenomination,
		fmt.Sprintf("bid done with wrong coin: want %s, got %s", want, got),
		map[string]string{"expected": want, "actual": got})
}

func errNoSuchBidder(addr Addr) *Error {
	return withMetadata(CodeNoSuchBidder,
		fmt.Sprintf("no bid recorded for %s", addr),
		map[string]string{"bidder": string(addr)})
}

func errStorage(op string, cause error) *Error {
	return &Error{
		Code:    CodeStorageFailure,
		Message: "storage failure during " + op,
		Cause:   cause,
	}
}

// IsRetractNotAllowed reports whether err rejects a retract made outside
// its window: before close, or by the winner.
func IsRetractNotAllowed(err error) bool {
	return errors.Is(err, ErrBiddingStillOpen) || errors.Is(err, ErrWinnerCannotRetract)
}

// CodeOf returns the domain code of err, or "" when err is not an auction
// error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
