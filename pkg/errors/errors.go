package errors

import (
	stderrors "errors"
)

// Error is a coded application error. Sentinels below are compared with
// errors.Is; wrapping with fmt.Errorf("%w") keeps the code reachable.
type Error struct {
	Code    string
	Message string
	soft    bool
}

func (e *Error) Error() string {
	return e.Message
}

// Soft reports whether the error is a warning that never resets game state.
func (e *Error) Soft() bool {
	return e.soft
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newSoft(code, message string) *Error {
	return &Error{Code: code, Message: message, soft: true}
}

const (
	CodeNotYourTurn     = "NOT_YOUR_TURN"
	CodeRollInProgress  = "ROLL_IN_PROGRESS"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeRateLimited     = "RATE_LIMITED"
	CodeActionTooFast   = "ACTION_TOO_FAST"
	CodeDuplicateAction = "DUPLICATE_ACTION"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeTimeout         = "TIMEOUT"
	CodeChannelError    = "CHANNEL_ERROR"

	CodeMatchNotFound       = "MATCH_NOT_FOUND"
	CodeMatchFull           = "MATCH_FULL"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeAlreadyJoined       = "ALREADY_JOINED"
	CodeJoinInProgress      = "JOIN_IN_PROGRESS"
	CodeSameNetwork         = "SAME_NETWORK"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeStakeNotFound       = "STAKE_NOT_FOUND"
	CodeInternal            = "INTERNAL"
)

var (
	ErrNotYourTurn     = New(CodeNotYourTurn, "not your turn")
	ErrRollInProgress  = New(CodeRollInProgress, "dice already rolled")
	ErrInvalidToken    = New(CodeInvalidToken, "token cannot be moved")
	ErrRateLimited     = newSoft(CodeRateLimited, "too many requests")
	ErrActionTooFast   = newSoft(CodeActionTooFast, "action too fast")
	ErrDuplicateAction = newSoft(CodeDuplicateAction, "duplicate action")
	ErrUnauthorized    = New(CodeUnauthorized, "unauthorized")
	ErrVersionConflict = New(CodeVersionConflict, "version conflict")
	ErrTimeout         = New(CodeTimeout, "request timed out")
	ErrChannelError    = New(CodeChannelError, "channel error")

	ErrMatchNotFound       = New(CodeMatchNotFound, "match not found")
	ErrMatchFull           = New(CodeMatchFull, "match is full")
	ErrInvalidState        = New(CodeInvalidState, "match is not in a valid state for this action")
	ErrInvalidAction       = New(CodeInvalidAction, "invalid action")
	ErrAlreadyJoined       = New(CodeAlreadyJoined, "player already joined")
	ErrJoinInProgress      = New(CodeJoinInProgress, "join in progress")
	ErrSameNetwork         = New(CodeSameNetwork, "players share a network")
	ErrInsufficientBalance = New(CodeInsufficientBalance, "insufficient balance")
	ErrStakeNotFound       = New(CodeStakeNotFound, "stake tier not found")
)

// CodeOf returns the taxonomy code carried by err, or CodeInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsSoft reports whether err is a soft warning (rate limit, too fast, duplicate).
func IsSoft(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.soft
	}
	return false
}

// IsTransport reports whether err is a connectivity failure the supervisor retries.
func IsTransport(err error) bool {
	switch CodeOf(err) {
	case CodeTimeout, CodeChannelError:
		return true
	}
	return false
}

// FromCode maps a wire code back to its sentinel so callers can use errors.Is
// on errors decoded from a response.
func FromCode(code, message string) error {
	for _, e := range all {
		if e.Code == code {
			if message == "" || message == e.Message {
				return e
			}
			return &wireError{sentinel: e, message: message}
		}
	}
	if message == "" {
		message = code
	}
	return New(code, message)
}

var all = []*Error{
	ErrNotYourTurn, ErrRollInProgress, ErrInvalidToken, ErrRateLimited, ErrActionTooFast,
	ErrDuplicateAction, ErrUnauthorized, ErrVersionConflict, ErrTimeout, ErrChannelError,
	ErrMatchNotFound, ErrMatchFull, ErrInvalidState, ErrInvalidAction, ErrAlreadyJoined,
	ErrJoinInProgress, ErrSameNetwork, ErrInsufficientBalance, ErrStakeNotFound,
}

// Duplicate marks err as the replayed outcome of an action already seen.
// CodeOf still reports err's own code; errors.Is matches ErrDuplicateAction.
func Duplicate(err error) error {
	if err == nil || stderrors.Is(err, ErrDuplicateAction) {
		return err
	}
	return &duplicateError{err: err}
}

type duplicateError struct {
	err error
}

func (d *duplicateError) Error() string { return d.err.Error() }

func (d *duplicateError) Unwrap() []error { return []error{d.err, ErrDuplicateAction} }

type wireError struct {
	sentinel *Error
	message  string
}

func (w *wireError) Error() string { return w.message }

func (w *wireError) Unwrap() error { return w.sentinel }
