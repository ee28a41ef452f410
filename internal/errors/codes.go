// Package errors provides coded domain errors and their HTTP mapping.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidParameters Code = "INVALID_PARAMETERS"

	// Phase errors
	CodeGameNotJoinable   Code = "GAME_NOT_JOINABLE"
	CodeGameNotInProgress Code = "GAME_NOT_IN_PROGRESS"
	CodeGameNotFinished   Code = "GAME_NOT_FINISHED"

	// Authorization/identity errors
	CodeAlreadyJoined         Code = "ALREADY_JOINED"
	CodePlayerNotFound        Code = "PLAYER_NOT_FOUND"
	CodePlayerAlreadyFinished Code = "PLAYER_ALREADY_FINISHED"
	CodeNotWinner             Code = "NOT_WINNER"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeForbidden             Code = "FORBIDDEN"

	// Resource-limit errors
	CodeGameFull          Code = "GAME_FULL"
	CodeNoBoostsRemaining Code = "NO_BOOSTS_REMAINING"

	// Economic errors
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeAlreadyClaimed    Code = "ALREADY_CLAIMED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - malformed input
	case CodeInvalidParameters:
		return http.StatusBadRequest

	// Conflict - lifecycle or resource preconditions fail
	case CodeGameNotJoinable,
		CodeGameNotInProgress,
		CodeGameNotFinished,
		CodeAlreadyJoined,
		CodePlayerAlreadyFinished,
		CodeGameFull,
		CodeNoBoostsRemaining,
		CodeInsufficientFunds,
		CodeAlreadyClaimed:
		return http.StatusConflict

	// Unauthorized - missing or invalid credentials
	case CodeUnauthenticated:
		return http.StatusUnauthorized

	// Forbidden - authenticated but not allowed
	case CodeNotWinner,
		CodeForbidden:
		return http.StatusForbidden

	// Not found - resource doesn't exist
	case CodeNotFound,
		CodePlayerNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
