// Package gameerr defines the error taxonomy shared by the simulator, the
// ledger and the adapters around them.
//
// Business-rule failures carry a machine-checkable Code and a message meant
// for the player. Storage failures use CodeStorage so callers can tell
// "your order was invalid" apart from "your session could not be saved".
package gameerr

import (
	"errors"
	"fmt"
)

// Code is a machine-checkable failure reason.
type Code string

const (
	CodeConfig               Code = "config_error"
	CodeValidation           Code = "validation_error"
	CodeInsufficientFunds    Code = "insufficient_funds"
	CodeInsufficientHoldings Code = "insufficient_holdings"
	CodeHorizonExceeded      Code = "horizon_exceeded"
	CodeMissingPriceData     Code = "missing_price_data"
	CodeStorage              Code = "storage_error"
)

// Error is a coded failure. Two Errors match under errors.Is when their
// codes are equal, so the sentinels below work as category checks.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrConfig               = &Error{Code: CodeConfig, Msg: "invalid configuration"}
	ErrValidation           = &Error{Code: CodeValidation, Msg: "invalid order"}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds, Msg: "not enough cash"}
	ErrInsufficientHoldings = &Error{Code: CodeInsufficientHoldings, Msg: "not enough units held"}
	ErrHorizonExceeded      = &Error{Code: CodeHorizonExceeded, Msg: "already at the last day"}
	ErrMissingPriceData     = &Error{Code: CodeMissingPriceData, Msg: "no price data"}
	ErrStorage              = &Error{Code: CodeStorage, Msg: "storage failure"}
)

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps an I/O failure from a persistence backend.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Msg: op, Err: err}
}

// CodeOf returns the code carried by err, or "" when err is not coded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the player-facing message of a coded error, falling back
// to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

// IsBusiness reports whether err is a recoverable business-rule failure,
// as opposed to a configuration or storage failure.
func IsBusiness(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeInsufficientFunds, CodeInsufficientHoldings,
		CodeHorizonExceeded, CodeMissingPriceData:
		return true
	}
	return false
}
