/*
Package user contains the user record shared by every component of the world.

A User is created on login, mutated by every event on the event loop, kept as a ghost
while disconnected within the retention window and purged afterwards. The record is
persisted verbatim; PrivateID must never appear in an outbound event.
*/
package user

import (
	"slices"
	"time"

	"gridroom/internal/app/topology"
)

// User is the authoritative state of one participant.
type User struct {
	// PublicID is the stable, shareable identifier.
	PublicID string `json:"publicId"`

	// PrivateID is the capability token proving ownership of PublicID across reconnects.
	PrivateID string `json:"privateId"`

	// Name is the display name, including any tripcode tag.
	Name string `json:"name"`

	Area string `json:"area"`
	Room string `json:"room"`

	Position  topology.Point     `json:"position"`
	Direction topology.Direction `json:"direction"`

	// Character and CharacterVariant select the avatar.
	Character        string `json:"character"`
	CharacterVariant string `json:"characterVariant,omitempty"`

	// BubblePosition is where the client draws the speech bubble.
	BubblePosition topology.Direction `json:"bubblePosition"`

	// IP is the address of the most recent connection.
	IP string `json:"ip"`

	// BlockedIPs are addresses this user does not want to see or be seen by.
	BlockedIPs []string `json:"blockedIps"`

	// Ghost is set while no connection is attached.
	Ghost bool `json:"ghost"`

	// DisconnectedAt is nil while connected.
	DisconnectedAt *time.Time `json:"disconnectedAt"`

	// LastAction is the time of the last movement or chat message.
	LastAction time.Time `json:"lastAction"`

	// Inactive is set once LastAction is older than the inactivity threshold.
	Inactive bool `json:"inactive"`

	// LastTurnAt is when the user last turned without moving.
	LastTurnAt time.Time `json:"-"`
	// TurnedFrom is the facing before that turn.
	TurnedFrom topology.Direction `json:"-"`

	recent floodRing
}

// New creates a user record for a fresh login.
func New(publicID, privateID, name, character string) *User {
	return &User{
		PublicID:       publicID,
		PrivateID:      privateID,
		Name:           name,
		Character:      character,
		BubblePosition: topology.Up,
		BlockedIPs:     []string{},
	}
}

// Blocks reports whether u has blocked the given address.
func (u *User) Blocks(ip string) bool {
	return slices.Contains(u.BlockedIPs, ip)
}

// Block adds ip to the block list. Blocking yourself is ignored.
func (u *User) Block(ip string) {
	if ip == "" || ip == u.IP || u.Blocks(ip) {
		return
	}
	u.BlockedIPs = append(u.BlockedIPs, ip)
}

// BlockedWith reports whether either user has blocked the other.
func (u *User) BlockedWith(other *User) bool {
	if u == nil || other == nil || u == other {
		return false
	}
	return u.Blocks(other.IP) || other.Blocks(u.IP)
}

// Connected reports whether a live connection is attached.
func (u *User) Connected() bool {
	return !u.Ghost
}

// Clone returns a deep copy safe to hand to another goroutine.
func (u *User) Clone() User {
	c := *u
	c.BlockedIPs = slices.Clone(u.BlockedIPs)
	if c.BlockedIPs == nil {
		c.BlockedIPs = []string{}
	}
	if u.DisconnectedAt != nil {
		t := *u.DisconnectedAt
		c.DisconnectedAt = &t
	}
	c.recent = floodRing{}
	return c
}
