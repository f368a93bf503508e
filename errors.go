package server

import "fmt"

// ErrorCode identifies a request-plane failure reported back to a caller.
//
// Grounded on com.faforever.server.error.ErrorCode / RequestException in
// original_source: the Java service raises a checked RequestException
// carrying one of a fixed set of codes plus format args. Go code returns a
// *RequestError satisfying the error interface instead of raising/catching.
type ErrorCode string

const (
	ErrAlreadyInGame                     ErrorCode = "ALREADY_IN_GAME"
	ErrNotInAGame                        ErrorCode = "NOT_IN_A_GAME"
	ErrNoSuchGame                        ErrorCode = "NO_SUCH_GAME"
	ErrGameNotJoinable                   ErrorCode = "GAME_NOT_JOINABLE"
	ErrInvalidPassword                   ErrorCode = "INVALID_PASSWORD"
	ErrHostOnlyOption                    ErrorCode = "HOST_ONLY_OPTION"
	ErrInvalidGameState                  ErrorCode = "INVALID_GAME_STATE"
	ErrInvalidPlayerGameStateTransition  ErrorCode = "INVALID_PLAYER_GAME_STATE_TRANSITION"
	ErrInvalidFeaturedMod                ErrorCode = "INVALID_FEATURED_MOD"
	ErrCantRestoreGameDoesntExist        ErrorCode = "CANT_RESTORE_GAME_DOESNT_EXIST"
	ErrCantRestoreGameNotParticipant     ErrorCode = "CANT_RESTORE_GAME_NOT_PARTICIPANT"
)

// RequestError is the structured error returned to a caller for the
// request-facing error plane (spec.md §7). It is never used for the
// telemetry-failure plane, which is logged through the Engine's logger and
// discarded instead.
type RequestError struct {
	Code   ErrorCode
	Params []any
}

func newRequestError(code ErrorCode, params ...any) *RequestError {
	return &RequestError{Code: code, Params: params}
}

func (e *RequestError) Error() string {
	if len(e.Params) == 0 {
		return string(e.Code)
	}
	return fmt.Sprintf("%s %v", e.Code, e.Params)
}

// Is supports errors.Is(err, newRequestError(ErrNoSuchGame)) style
// comparisons: two RequestErrors match when their codes are equal, whatever
// their params.
func (e *RequestError) Is(target error) bool {
	other, ok := target.(*RequestError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
