// Package apperr holds the user-facing error taxonomy shared by every stage of
// the deposit flow. Messages are derived from the kind, never from raw
// backend or wallet text, except for Unknown errors.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the category of a failure
type Kind string

const (
	KindUserRejected      Kind = "user_rejected"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNetwork           Kind = "network_error"
	KindRoute             Kind = "route_error"
	KindTransactionFailed Kind = "transaction_failed"
	KindTimeout           Kind = "timeout"
	KindUnknown           Kind = "unknown"
)

// Step is where the flow should take the user to recover
type Step string

const (
	StepConfirm     Step = "confirm"
	StepAmount      Step = "amount"
	StepCurrent     Step = "current"
	StepSelectToken Step = "select-token"
	StepExplorer    Step = "explorer"
)

// MaxMessageLength bounds raw text that is echoed for unknown errors
const MaxMessageLength = 160

// userRejectedCode is the EIP-1193 code for a declined request
const userRejectedCode = 4001

type treatment struct {
	message string
	step    Step
}

var treatments = map[Kind]treatment{
	KindUserRejected:      {"Transaction cancelled.", StepConfirm},
	KindInsufficientFunds: {"Insufficient balance. Adjust the amount or add funds for gas.", StepAmount},
	KindNetwork:           {"Network error. Check your connection and try again.", StepCurrent},
	KindRoute:             {"No route available for this token. Try another token or chain.", StepSelectToken},
	KindTransactionFailed: {"Transaction failed on chain. Please try again.", StepConfirm},
	KindTimeout:           {"This is taking longer than expected. Check the block explorer for the latest status.", StepExplorer},
	KindUnknown:           {"Something went wrong. Please try again.", StepCurrent},
}

// Error is a classified, displayable failure
type Error struct {
	Kind    Kind
	Message string
	Step    Step
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error of the given kind with the category message
func New(kind Kind, cause error) *Error {
	t, ok := treatments[kind]
	if !ok {
		kind = KindUnknown
		t = treatments[KindUnknown]
	}

	msg := t.message
	if kind == KindUnknown && cause != nil {
		msg = truncate(cause.Error())
	}

	return &Error{
		Kind:    kind,
		Message: msg,
		Step:    t.step,
		Cause:   cause,
	}
}

// Timeout builds a timeout error with a custom message
func Timeout(message string) *Error {
	e := New(KindTimeout, context.DeadlineExceeded)
	if message != "" {
		e.Message = message
	}
	return e
}

// KindOf returns the kind of a classified error, or Unknown
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

type coder interface {
	ErrorCode() int
}

// Classify maps a raw wallet, backend or network error to the taxonomy.
// Errors that are already classified are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return New(classifyKind(err), err)
}

func classifyKind(err error) Kind {
	var c coder
	if errors.As(err, &c) && c.ErrorCode() == userRejectedCode {
		return KindUserRejected
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user rejected", "user denied", "rejected the request", "action_rejected", "user cancelled", "user canceled"):
		return KindUserRejected
	case containsAny(msg, "insufficient funds", "insufficient balance", "exceeds balance"):
		return KindInsufficientFunds
	case containsAny(msg, "no route", "unsupported", "insufficient liquidity", "slippage", "price impact", "route not found"):
		return KindRoute
	case containsAny(msg, "revert", "gas required exceeds", "cannot estimate gas", "execution failed", "out of gas"):
		return KindTransactionFailed
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if containsAny(msg, "connection refused", "no such host", "network", "eof", "connection reset", "failed to fetch") {
		return KindNetwork
	}

	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return treatments[KindUnknown].message
	}
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:MaxMessageLength-3]))
}
