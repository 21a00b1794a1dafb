package world

import (
	"time"

	"gridroom/internal/app/chess"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/topology"
	"gridroom/internal/pkg/errs"
)

// SlotID is a stream slot index validated against a room's capacity. The zero value is
// slot 0; obtain SlotIDs through RoomState.SlotID.
type SlotID struct {
	index int
}

// Index returns the position of the slot in the room's array.
func (id SlotID) Index() int {
	return id.index
}

// Participant is a publisher or listener of a slot. Handle is zero until the SFU has
// attached one.
type Participant struct {
	UserID string
	Handle uint64
}

// StreamSlot is one broadcast reservation.
type StreamSlot struct {
	Active    bool
	Ready     bool
	WithAudio bool
	WithVideo bool
	Private   bool

	Publisher *Participant

	// Feed is the SFU publisher id listeners subscribe to.
	Feed uint64

	// Listeners is keyed by user id.
	Listeners map[string]*Participant

	// Generation changes whenever the slot changes hands. Async continuations compare it
	// to decide whether they are stale.
	Generation uint64

	// Liveness fires when a publisher never obtains a handle.
	Liveness loop.Timer
}

// Clear frees the slot and invalidates everything tied to the previous publisher.
func (s *StreamSlot) Clear() {
	if s.Liveness != nil {
		s.Liveness.Stop()
	}
	*s = StreamSlot{
		Listeners:  make(map[string]*Participant),
		Generation: s.Generation + 1,
	}
}

// PublishedBy reports whether userID publishes in this slot.
func (s *StreamSlot) PublishedBy(userID string) bool {
	return s.Publisher != nil && s.Publisher.UserID == userID
}

// ChessState is the single chess table of a room.
type ChessState struct {
	Game  chess.Engine
	White string
	Black string

	LastMoveAt time.Time
	Timer      loop.Timer

	// Following receives game updates regardless of where its members are.
	Following map[string]struct{}

	// Generation changes on every reset and every accepted move.
	Generation uint64
}

// Active reports whether both seats are filled.
func (c *ChessState) Active() bool {
	return c.Game != nil
}

// Seated reports whether userID holds a seat.
func (c *ChessState) Seated(userID string) bool {
	return userID != "" && (c.White == userID || c.Black == userID)
}

// ColorOf returns the color played by userID.
func (c *ChessState) ColorOf(userID string) (chess.Color, bool) {
	switch {
	case userID == "":
		return "", false
	case c.White == userID:
		return chess.White, true
	case c.Black == userID:
		return chess.Black, true
	}
	return "", false
}

// Reset returns the table to Empty.
func (c *ChessState) Reset() {
	if c.Timer != nil {
		c.Timer.Stop()
	}
	*c = ChessState{
		Following:  make(map[string]struct{}),
		Generation: c.Generation + 1,
	}
}

// SFURoom maps a room onto one server of the SFU pool.
type SFURoom struct {
	// Server is the pool index.
	Server int

	// RoomID is the id of the room on that server.
	RoomID uint64
}

// RoomState is the mutable state of one room.
type RoomState struct {
	Room *topology.Room

	// Slots has exactly Room.StreamSlots entries for the lifetime of the state.
	Slots []*StreamSlot

	Chess *ChessState

	// Occupants holds public ids of users in the room, ghosts included.
	Occupants map[string]struct{}

	// SFU is nil until the first publisher negotiates.
	SFU *SFURoom
}

func newRoomState(room *topology.Room) *RoomState {
	rs := &RoomState{
		Room:      room,
		Slots:     make([]*StreamSlot, room.StreamSlots),
		Chess:     &ChessState{Following: make(map[string]struct{})},
		Occupants: make(map[string]struct{}),
	}
	for i := range rs.Slots {
		rs.Slots[i] = &StreamSlot{Listeners: make(map[string]*Participant)}
	}
	return rs
}

// Area returns the id of the room's area.
func (r *RoomState) Area() string {
	return r.Room.Area
}

// SlotID validates a raw index.
func (r *RoomState) SlotID(index int) (SlotID, error) {
	if index < 0 || index >= len(r.Slots) {
		return SlotID{}, errs.NewError(errs.ErrInvalidSlot)
	}
	return SlotID{index: index}, nil
}

// Slot returns the slot behind id.
func (r *RoomState) Slot(id SlotID) *StreamSlot {
	return r.Slots[id.index]
}

// SlotIDs returns every valid id in order.
func (r *RoomState) SlotIDs() []SlotID {
	ids := make([]SlotID, len(r.Slots))
	for i := range ids {
		ids[i] = SlotID{index: i}
	}
	return ids
}

// PublisherSlot finds the slot published by userID.
func (r *RoomState) PublisherSlot(userID string) (SlotID, bool) {
	for i, s := range r.Slots {
		if s.PublishedBy(userID) {
			return SlotID{index: i}, true
		}
	}
	return SlotID{}, false
}

// AnyActive reports whether any slot is active.
func (r *RoomState) AnyActive() bool {
	for _, s := range r.Slots {
		if s.Active {
			return true
		}
	}
	return false
}
