/*
Package sfu talks to the selective forwarding units that relay audio and video.

Client is the capability the stream arbiter needs; Janus implements it against the Janus
videoroom plugin over its websocket transport, and Pool spreads rooms across several
servers.
*/
package sfu

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/pion/webrtc/v4"
)

// Janus error codes the server reacts to.
const (
	// CodePluginAttach is the core error returned when the videoroom plugin cannot be
	// attached. Seen when the SFU is wedged; the process gives up and lets its supervisor
	// restart it.
	CodePluginAttach = 461

	// CodeNoSuchRoom is the videoroom error for a missing room.
	CodeNoSuchRoom = 426

	// CodeRoomExists is the videoroom error for a room that already exists.
	CodeRoomExists = 427

	// CodeNoSuchFeed is the videoroom error for a missing publisher.
	CodeNoSuchFeed = 428
)

// ErrClosed is returned once the transport to a server is gone.
var ErrClosed = errors.New("sfu connection closed")

// Error is a failure reported by the SFU.
type Error struct {
	Code   int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sfu error %d: %s", e.Code, e.Reason)
}

// Code extracts the SFU error code from err, or 0.
func Code(err error) int {
	var sfuErr *Error
	if errors.As(err, &sfuErr) {
		return sfuErr.Code
	}
	return 0
}

// IsWedged reports whether err carries the signature of an SFU that cannot recover.
func IsWedged(err error) bool {
	return Code(err) == CodePluginAttach
}

// Publication is the result of a successful publish.
type Publication struct {
	Handle uint64
	Feed   uint64
	Answer webrtc.SessionDescription
}

// Subscription is the result of a successful subscribe.
type Subscription struct {
	Handle uint64
	Offer  webrtc.SessionDescription
}

// Client is one SFU server.
type Client interface {
	// CreateRoom creates roomID. An existing room counts as success.
	CreateRoom(ctx context.Context, roomID uint64) error

	// DestroyRoom removes roomID. A missing room counts as success.
	DestroyRoom(ctx context.Context, roomID uint64) error

	// Publish attaches a publisher handle and negotiates offer.
	Publish(ctx context.Context, roomID uint64, offer webrtc.SessionDescription) (Publication, error)

	// Subscribe attaches a subscriber handle to feed and returns the SFU's offer.
	Subscribe(ctx context.Context, roomID, feed uint64) (Subscription, error)

	// Start completes a subscription with the listener's answer.
	Start(ctx context.Context, handle uint64, answer webrtc.SessionDescription) error

	// Trickle forwards one ICE candidate to handle.
	Trickle(ctx context.Context, handle uint64, candidate webrtc.ICECandidateInit) error

	// Detach releases handle.
	Detach(ctx context.Context, handle uint64) error

	// OnHangup registers fn to be called from a background goroutine whenever the SFU
	// drops a handle on its own.
	OnHangup(fn func(handle uint64))
}

// RoomID maps an area and room onto a stable SFU room id. Janus room ids must fit in a
// JavaScript number, so the id is kept to 32 bits.
func RoomID(areaID, roomID string) uint64 {
	h := fnv.New32a()
	h.Write([]byte(areaID))
	h.Write([]byte{0})
	h.Write([]byte(roomID))
	return uint64(h.Sum32())
}
