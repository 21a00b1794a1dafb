/*
Package broadcast fans events out to connected users.

The Router owns the registry of live connections and knows the visibility rules:
anonymous rooms blank display names, and users who are block-related (either one has
blocked the other's address) do not see each other's movement, arrivals, departures or
messages, and see each other's stream slots neutralized.
*/
package broadcast

import (
	"github.com/rs/zerolog"

	"gridroom/internal/app/protocol"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/pkg/logx"
)

// Websocket close codes passed to Conn.Kick (4000-4999 range).
const (
	// CloseSessionReplaced is sent to a connection superseded by a newer one for the same user.
	CloseSessionReplaced = 4001

	// CloseBanned is sent when the user's address is banned.
	CloseBanned = 4002

	// CloseSessionEnded is sent when the user record is purged.
	CloseSessionEnded = 4003
)

// Conn is a live client connection as seen from the event loop.
type Conn interface {
	// Send queues ev for delivery. It must not block.
	Send(ev protocol.Outbound)

	// Kick closes the connection with a websocket close code.
	Kick(code int, reason string)
}

// Router delivers outbound events. It is used from the event loop only.
type Router struct {
	store *world.Store

	// conns maps public ids to their current connection.
	conns map[string]Conn

	logger zerolog.Logger
}

// NewRouter creates a Router over store.
func NewRouter(store *world.Store) *Router {
	return &Router{
		store:  store,
		conns:  make(map[string]Conn),
		logger: logx.For("Router"),
	}
}

// Attach binds c to userID and returns the connection it replaces, if any.
func (r *Router) Attach(userID string, c Conn) Conn {
	prev := r.conns[userID]
	r.conns[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

// Detach unbinds c. It reports false when c is no longer the user's current connection.
func (r *Router) Detach(userID string, c Conn) bool {
	if cur, ok := r.conns[userID]; !ok || cur != c {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Conn returns the connection bound to userID.
func (r *Router) Conn(userID string) (Conn, bool) {
	c, ok := r.conns[userID]
	return c, ok
}

// ToUser sends ev to one user. Users without a connection are skipped.
func (r *Router) ToUser(userID string, ev protocol.Outbound) {
	if c, ok := r.conns[userID]; ok {
		c.Send(ev)
	}
}

// ToUsers sends ev to each id once.
func (r *Router) ToUsers(ids map[string]struct{}, ev protocol.Outbound) {
	for id := range ids {
		r.ToUser(id, ev)
	}
}

// ToRoom sends ev to every occupant of a room.
func (r *Router) ToRoom(areaID, roomID string, ev protocol.Outbound) {
	rs, ok := r.store.Room(areaID, roomID)
	if !ok {
		return
	}
	for id := range rs.Occupants {
		r.ToUser(id, ev)
	}
}

// ToArea sends ev to every user of an area.
func (r *Router) ToArea(areaID string, ev protocol.Outbound) {
	for _, u := range r.store.UsersInArea(areaID) {
		r.ToUser(u.PublicID, ev)
	}
}

// ToAll sends ev to every connected user.
func (r *Router) ToAll(ev protocol.Outbound) {
	for _, c := range r.conns {
		c.Send(ev)
	}
}

// ToRelevant sends ev about subject to the occupants of subject's room that are not
// block-related to subject. subject itself receives it too.
func (r *Router) ToRelevant(subject *user.User, ev protocol.Outbound) {
	rs, ok := r.store.RoomOf(subject)
	if !ok {
		return
	}
	for _, recipient := range r.store.UsersIn(rs) {
		if recipient.BlockedWith(subject) {
			continue
		}
		r.ToUser(recipient.PublicID, ev)
	}
}

// ToRelevantExcept is ToRelevant without subject.
func (r *Router) ToRelevantExcept(subject *user.User, ev protocol.Outbound) {
	rs, ok := r.store.RoomOf(subject)
	if !ok {
		return
	}
	for _, recipient := range r.store.UsersIn(rs) {
		if recipient == subject || recipient.BlockedWith(subject) {
			continue
		}
		r.ToUser(recipient.PublicID, ev)
	}
}

// ToRoomEach builds a separate event for every connected occupant.
func (r *Router) ToRoomEach(rs *world.RoomState, build func(recipient *user.User) protocol.Outbound) {
	for _, recipient := range r.store.UsersIn(rs) {
		c, ok := r.conns[recipient.PublicID]
		if !ok {
			continue
		}
		c.Send(build(recipient))
	}
}
