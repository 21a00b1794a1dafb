/*
Package protocol defines the websocket wire format.

Every frame is a JSON envelope {"type": ..., "payload": {...}}. Inbound frames decode into
the Inbound sum type and outbound events implement Outbound; both sets are closed so that
dispatch code can switch over them exhaustively.
*/
package protocol

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/pion/webrtc/v4"

	"gridroom/internal/app/topology"
	"gridroom/internal/pkg/errs"
)

// MaxMessageRunes bounds chat message length.
const MaxMessageRunes = 500

// Envelope is the frame shape shared by both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is implemented by every client-to-server event.
type Inbound interface {
	inbound()
}

type Connect struct {
	PrivateID string `json:"privateId"`
}

type SendMessage struct {
	Text string `json:"text"`
}

type Move struct {
	Direction topology.Direction `json:"direction"`
}

type SetBubblePosition struct {
	Position topology.Direction `json:"position"`
}

type RequestPublish struct {
	Slot      int  `json:"slot"`
	WithAudio bool `json:"withAudio"`
	WithVideo bool `json:"withVideo"`
	Private   bool `json:"private"`
}

type StopPublish struct{}

type RequestListen struct {
	Slot int `json:"slot"`
}

type DropListen struct {
	Slot int `json:"slot"`
}

// SignalType discriminates WebRTC signalling messages.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// RelaySignal carries one offer, answer or ICE candidate for a slot.
type RelaySignal struct {
	Slot      int                      `json:"slot"`
	Type      SignalType               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Description returns the SDP as a typed session description.
func (s RelaySignal) Description() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(s.Type)), SDP: s.SDP}
}

type ChangeRoom struct {
	TargetRoom string `json:"targetRoomId"`
	TargetDoor string `json:"targetDoorId,omitempty"`
}

type ListRooms struct{}

type BlockUser struct {
	UserID string `json:"userId"`
}

type Ping struct{}

type JoinGame struct{}

type QuitGame struct{}

type MakeMove struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (Connect) inbound()           {}
func (SendMessage) inbound()       {}
func (Move) inbound()              {}
func (SetBubblePosition) inbound() {}
func (RequestPublish) inbound()    {}
func (StopPublish) inbound()       {}
func (RequestListen) inbound()     {}
func (DropListen) inbound()        {}
func (RelaySignal) inbound()       {}
func (ChangeRoom) inbound()        {}
func (ListRooms) inbound()         {}
func (BlockUser) inbound()         {}
func (Ping) inbound()              {}
func (JoinGame) inbound()          {}
func (QuitGame) inbound()          {}
func (MakeMove) inbound()          {}

var inboundTypes = map[string]func() Inbound{
	"connect":             func() Inbound { return &Connect{} },
	"send_message":        func() Inbound { return &SendMessage{} },
	"move":                func() Inbound { return &Move{} },
	"set_bubble_position": func() Inbound { return &SetBubblePosition{} },
	"request_publish":     func() Inbound { return &RequestPublish{} },
	"stop_publish":        func() Inbound { return &StopPublish{} },
	"request_listen":      func() Inbound { return &RequestListen{} },
	"drop_listen":         func() Inbound { return &DropListen{} },
	"relay_signal":        func() Inbound { return &RelaySignal{} },
	"change_room":         func() Inbound { return &ChangeRoom{} },
	"list_rooms":          func() Inbound { return &ListRooms{} },
	"block_user":          func() Inbound { return &BlockUser{} },
	"ping":                func() Inbound { return &Ping{} },
	"join_game":           func() Inbound { return &JoinGame{} },
	"quit_game":           func() Inbound { return &QuitGame{} },
	"make_move":           func() Inbound { return &MakeMove{} },
}

// Decode parses one inbound frame. The returned value is always one of the pointer types
// above.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	newEvent, ok := inboundTypes[env.Type]
	if !ok {
		return nil, errs.NewError(errs.ErrUnknownEvent)
	}

	ev := newEvent()
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, errs.NewError(errs.ErrInvalidJSONFormat)
		}
	}

	if err := validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func validate(ev Inbound) error {
	switch e := ev.(type) {
	case *Connect:
		if e.PrivateID == "" {
			return errs.NewError(errs.ErrInvalidSession)
		}
	case *Move:
		if _, ok := topology.ParseDirection(string(e.Direction)); !ok {
			return errs.NewError(errs.ErrInvalidParams)
		}
	case *SetBubblePosition:
		if _, ok := topology.ParseDirection(string(e.Position)); !ok {
			return errs.NewError(errs.ErrInvalidParams)
		}
	case *SendMessage:
		if utf8.RuneCountInString(e.Text) > MaxMessageRunes {
			e.Text = string([]rune(e.Text)[:MaxMessageRunes])
		}
	case *RelaySignal:
		switch e.Type {
		case SignalOffer, SignalAnswer:
			if e.SDP == "" {
				return errs.NewError(errs.ErrInvalidSignal)
			}
		case SignalCandidate:
			if e.Candidate == nil {
				return errs.NewError(errs.ErrInvalidSignal)
			}
		default:
			return errs.NewError(errs.ErrInvalidSignal)
		}
	case *ChangeRoom:
		if e.TargetRoom == "" {
			return errs.NewError(errs.ErrUnknownRoom)
		}
	case *BlockUser:
		if e.UserID == "" {
			return errs.NewError(errs.ErrUnknownUser)
		}
	case *MakeMove:
		if e.From == "" || e.To == "" {
			return errs.NewError(errs.ErrInvalidParams)
		}
	}
	return nil
}
