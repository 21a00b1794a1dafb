package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"gridroom/internal/app/topology"
)

// Outbound is implemented by every server-to-client event.
type Outbound interface {
	// Type is the envelope discriminator.
	Type() string
}

// UserView is a user as other clients see it.
type UserView struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Position         topology.Point     `json:"position"`
	Direction        topology.Direction `json:"direction"`
	Character        string             `json:"character"`
	CharacterVariant string             `json:"characterVariant,omitempty"`
	BubblePosition   topology.Direction `json:"bubblePosition"`
	Ghost            bool               `json:"ghost"`
	Inactive         bool               `json:"inactive"`
}

// SlotView describes one stream slot to one recipient.
type SlotView struct {
	Slot        int    `json:"slot"`
	Active      bool   `json:"active"`
	Ready       bool   `json:"ready"`
	WithAudio   bool   `json:"withAudio"`
	WithVideo   bool   `json:"withVideo"`
	Private     bool   `json:"private"`
	PublisherID string `json:"publisherId,omitempty"`

	// Listenable is false when the recipient and the publisher are block-related.
	Listenable bool `json:"listenable"`
}

// GameView is the public state of a room's chess table.
type GameView struct {
	White  string `json:"white,omitempty"`
	Black  string `json:"black,omitempty"`
	Active bool   `json:"active"`
	Turn   string `json:"turn,omitempty"`
	FEN    string `json:"fen,omitempty"`
}

// RoomListEntry summarizes a room for the room picker.
type RoomListEntry struct {
	ID        string   `json:"id"`
	Users     int      `json:"users"`
	Streamers []string `json:"streamers"`
}

type RoomState struct {
	Area      string     `json:"area"`
	Room      string     `json:"room"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Anonymous bool       `json:"anonymous"`
	Self      UserView   `json:"self"`
	Users     []UserView `json:"users"`
	Slots     []SlotView `json:"slots"`
	Game      GameView   `json:"game"`
}

type UserJoined struct {
	User UserView `json:"user"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type Moved struct {
	UserID           string             `json:"userId"`
	Position         topology.Point     `json:"position"`
	Direction        topology.Direction `json:"direction"`
	Spin             bool               `json:"spin"`
	Sitting          bool               `json:"sitting"`
	CharacterVariant string             `json:"characterVariant,omitempty"`
}

type BubblePositionChanged struct {
	UserID   string             `json:"userId"`
	Position topology.Direction `json:"position"`
}

type MessagePosted struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Text   string `json:"text"`
}

// UserGhosted tells a room that a user lost its connection but is kept for reconnection.
// A reconnect is announced with UserJoined.
type UserGhosted struct {
	UserID string `json:"userId"`
}

type UserInactive struct {
	UserID string `json:"userId"`
}

type UserActive struct {
	UserID string `json:"userId"`
}

type StreamSlotsChanged struct {
	Slots []SlotView `json:"slots"`
}

type MovementRejected struct {
	Code      int                `json:"code"`
	Reason    string             `json:"reason"`
	Position  topology.Point     `json:"position"`
	Direction topology.Direction `json:"direction"`
}

type GameStateChanged struct {
	Game GameView `json:"game"`
}

type GameEnded struct {
	Reason   string `json:"reason"`
	Winner   string `json:"winner,omitempty"`
	WinnerID string `json:"winnerId,omitempty"`
}

type RoomList struct {
	Rooms []RoomListEntry `json:"rooms"`
}

type StatsUpdated struct {
	Area    string `json:"area"`
	Users   int    `json:"users"`
	Streams int    `json:"streams"`
}

type LoginDenied struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type Signal struct {
	Slot      int                      `json:"slot"`
	Kind      SignalType               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// SignalFromDescription wraps an SFU session description.
func SignalFromDescription(slot int, d webrtc.SessionDescription) Signal {
	return Signal{Slot: slot, Kind: SignalType(d.Type.String()), SDP: d.SDP}
}

type PublishRejected struct {
	Slot   int    `json:"slot"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Pong struct{}

func (RoomState) Type() string             { return "room_state" }
func (UserJoined) Type() string            { return "user_joined" }
func (UserLeft) Type() string              { return "user_left" }
func (Moved) Type() string                 { return "moved" }
func (BubblePositionChanged) Type() string { return "bubble_position_changed" }
func (MessagePosted) Type() string         { return "message_posted" }
func (UserGhosted) Type() string           { return "user_ghosted" }
func (UserInactive) Type() string          { return "user_inactive" }
func (UserActive) Type() string            { return "user_active" }
func (StreamSlotsChanged) Type() string    { return "stream_slots_changed" }
func (MovementRejected) Type() string      { return "movement_rejected" }
func (GameStateChanged) Type() string      { return "game_state_changed" }
func (GameEnded) Type() string             { return "game_ended" }
func (RoomList) Type() string              { return "room_list" }
func (StatsUpdated) Type() string          { return "stats_updated" }
func (LoginDenied) Type() string           { return "login_denied" }
func (Signal) Type() string                { return "signal" }
func (PublishRejected) Type() string       { return "publish_rejected" }
func (Error) Type() string                 { return "error" }
func (Pong) Type() string                  { return "pong" }

// Encode marshals ev into an envelope.
func Encode(ev Outbound) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}
