/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients. The leading
digit of a code selects its Kind (see errs.go).
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownEvent indicates that a websocket frame carried an unsupported event type.
	ErrUnknownEvent = 1008
)

// 2xxx: Validation Errors (rejected locally, only the initiator is told)
const (
	// ErrInvalidName indicates an empty or malformed display name.
	ErrInvalidName = 2001

	// ErrUnknownArea indicates that the requested area is not configured.
	ErrUnknownArea = 2002

	// ErrUnknownRoom indicates that the requested room is not configured.
	ErrUnknownRoom = 2003

	// ErrUnknownDoor indicates that the requested door is not registered for the target room.
	ErrUnknownDoor = 2004

	// ErrInvalidSlot indicates a stream slot index outside the room's capacity.
	ErrInvalidSlot = 2005

	// ErrMovementBlocked indicates a move out of bounds, onto a blocked tile or across a forbidden transition.
	ErrMovementBlocked = 2006

	// ErrMessageFlood indicates that the user is sending chat messages too fast.
	ErrMessageFlood = 2007

	// ErrUnknownUser indicates that the referenced user does not exist.
	ErrUnknownUser = 2008

	// ErrNotInGame indicates a game action from someone who holds no seat.
	ErrNotInGame = 2009

	// ErrSlotNotReady indicates a listen request on a slot that is not broadcasting yet.
	ErrSlotNotReady = 2010

	// ErrNotPublisher indicates a signal for a slot the user neither publishes nor listens to.
	ErrNotPublisher = 2011

	// ErrInvalidSignal indicates a malformed offer, answer or candidate.
	ErrInvalidSignal = 2012
)

// 3xxx: Authorization Errors (connection refused, no state created)
const (
	// ErrInvalidSession indicates an unknown or stale private id.
	ErrInvalidSession = 3001

	// ErrBanned indicates that the originating address is banned.
	ErrBanned = 3002

	// ErrTooManySessions indicates that the address already holds the maximum number of sessions in the area.
	ErrTooManySessions = 3003

	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3004

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3005

	// ErrSessionKicked indicates that the current connection was replaced by a newer one.
	ErrSessionKicked = 3006

	// ErrUnauthorized indicates a missing or invalid administrative token.
	ErrUnauthorized = 3007

	// ErrConnectRequired indicates that the first websocket frame was not a connect event.
	ErrConnectRequired = 3008
)

// 4xxx: Contention Errors (a reason code, not a server fault)
const (
	// ErrSlotTaken indicates that the slot already has an active publisher.
	ErrSlotTaken = 4001

	// ErrBlockedByPublisher indicates that the slot's publisher has blocked the requester.
	ErrBlockedByPublisher = 4002

	// ErrPublisherBlocked indicates that the requester has blocked the slot's publisher.
	ErrPublisherBlocked = 4003

	// ErrSeatTaken indicates that both chess seats are already filled.
	ErrSeatTaken = 4004

	// ErrNotYourTurn indicates a chess move out of turn.
	ErrNotYourTurn = 4005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrServerBusy indicates that the event loop could not accept the request in time.
	ErrServerBusy = 5001
)

// 6xxx: External Service Errors
const (
	// ErrStreamNegotiationFailed indicates that the SFU rejected or failed a negotiation step.
	ErrStreamNegotiationFailed = 6001
)

// 7xxx: Persistence Errors
const (
	// ErrPersistenceFailed indicates that saving or restoring presence state failed.
	ErrPersistenceFailed = 7001
)
