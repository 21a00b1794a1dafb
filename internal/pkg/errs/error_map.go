/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, websocket error frames and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownEvent:         {Code: ErrUnknownEvent, Message: "Unsupported event."},

	// 2xxx: Validation Errors
	ErrInvalidName:     {Code: ErrInvalidName, Message: "Invalid display name.", Status: http.StatusBadRequest},
	ErrUnknownArea:     {Code: ErrUnknownArea, Message: "Unknown area.", Status: http.StatusNotFound},
	ErrUnknownRoom:     {Code: ErrUnknownRoom, Message: "Unknown room.", Status: http.StatusNotFound},
	ErrUnknownDoor:     {Code: ErrUnknownDoor, Message: "Unknown door."},
	ErrInvalidSlot:     {Code: ErrInvalidSlot, Message: "Invalid stream slot."},
	ErrMovementBlocked: {Code: ErrMovementBlocked, Message: "You can't move there."},
	ErrMessageFlood:    {Code: ErrMessageFlood, Message: "You are sending messages too fast."},
	ErrUnknownUser:     {Code: ErrUnknownUser, Message: "User not found.", Status: http.StatusNotFound},
	ErrNotInGame:       {Code: ErrNotInGame, Message: "You are not playing."},
	ErrSlotNotReady:    {Code: ErrSlotNotReady, Message: "This stream is not available."},
	ErrNotPublisher:    {Code: ErrNotPublisher, Message: "You are not part of this stream."},
	ErrInvalidSignal:   {Code: ErrInvalidSignal, Message: "Invalid stream signal."},

	// 3xxx: Authorization Errors
	ErrInvalidSession:       {Code: ErrInvalidSession, Message: "Your session has expired. Please log in again.", Status: http.StatusUnauthorized},
	ErrBanned:               {Code: ErrBanned, Message: "You are banned.", Status: http.StatusForbidden},
	ErrTooManySessions:      {Code: ErrTooManySessions, Message: "Too many sessions from your address.", Status: http.StatusForbidden},
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},
	ErrSessionKicked:        {Code: ErrSessionKicked, Message: "You were signed in on another tab."},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Not authorized.", Status: http.StatusUnauthorized},
	ErrConnectRequired:      {Code: ErrConnectRequired, Message: "Connect first."},

	// 4xxx: Contention Errors
	ErrSlotTaken:          {Code: ErrSlotTaken, Message: "Someone is already streaming in this slot.", Status: http.StatusConflict},
	ErrBlockedByPublisher: {Code: ErrBlockedByPublisher, Message: "The streamer has blocked you.", Status: http.StatusConflict},
	ErrPublisherBlocked:   {Code: ErrPublisherBlocked, Message: "You have blocked the streamer.", Status: http.StatusConflict},
	ErrSeatTaken:          {Code: ErrSeatTaken, Message: "The game table is full.", Status: http.StatusConflict},
	ErrNotYourTurn:        {Code: ErrNotYourTurn, Message: "It's not your turn.", Status: http.StatusConflict},

	// 5xxx: Internal System Errors
	ErrUnknown:    {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrServerBusy: {Code: ErrServerBusy, Message: "Server is busy. Please try again.", Status: http.StatusServiceUnavailable},

	// 6xxx: External Service Errors
	ErrStreamNegotiationFailed: {Code: ErrStreamNegotiationFailed, Message: "Stream could not be started.", Status: http.StatusBadGateway},

	// 7xxx: Persistence Errors
	ErrPersistenceFailed: {Code: ErrPersistenceFailed, Message: "State could not be saved.", Status: http.StatusInternalServerError},
}
