/*
Package world holds the mutable state of every area and room: the user table, occupant
sets, stream slots, chess tables and SFU room mappings.

A Store is created once from the topology and injected into every component. It is not
safe for concurrent use; all access happens on the event loop.
*/
package world

import (
	"sort"

	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
)

// Observer is notified when a user leaves or enters a room.
type Observer interface {
	// Leaving runs before u is removed from its current room.
	Leaving(u *user.User)

	// Entered runs after u has been placed in its new room.
	Entered(u *user.User)
}

// Store is the world table.
type Store struct {
	topo *topology.Topology

	// rooms is keyed by area id, then room id.
	rooms map[string]map[string]*RoomState

	// users is keyed by public id.
	users map[string]*user.User

	// byPrivate indexes users by private id.
	byPrivate map[string]*user.User

	// banned is the set of banned addresses.
	banned map[string]struct{}
}

// NewStore creates room state for every room of topo.
func NewStore(topo *topology.Topology) *Store {
	s := &Store{
		topo:      topo,
		rooms:     make(map[string]map[string]*RoomState, len(topo.Areas)),
		users:     make(map[string]*user.User),
		byPrivate: make(map[string]*user.User),
		banned:    make(map[string]struct{}),
	}

	for areaID, area := range topo.Areas {
		s.rooms[areaID] = make(map[string]*RoomState, len(area.Rooms))
		for roomID, room := range area.Rooms {
			s.rooms[areaID][roomID] = newRoomState(room)
		}
	}

	return s
}

// Topology returns the static world description.
func (s *Store) Topology() *topology.Topology {
	return s.topo
}

// Room returns the state of a room.
func (s *Store) Room(areaID, roomID string) (*RoomState, bool) {
	rooms, ok := s.rooms[areaID]
	if !ok {
		return nil, false
	}
	rs, ok := rooms[roomID]
	return rs, ok
}

// RoomOf returns the room u is in.
func (s *Store) RoomOf(u *user.User) (*RoomState, bool) {
	return s.Room(u.Area, u.Room)
}

// RoomsInArea returns the area's rooms ordered by id.
func (s *Store) RoomsInArea(areaID string) []*RoomState {
	rooms := s.rooms[areaID]
	out := make([]*RoomState, 0, len(rooms))
	for _, rs := range rooms {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.ID < out[j].Room.ID })
	return out
}

// AllRooms returns every room, ordered by area then room id.
func (s *Store) AllRooms() []*RoomState {
	var out []*RoomState
	for _, areaID := range s.topo.AreaIDs() {
		out = append(out, s.RoomsInArea(areaID)...)
	}
	return out
}

// User looks up a user by public id.
func (s *Store) User(publicID string) (*user.User, bool) {
	u, ok := s.users[publicID]
	return u, ok
}

// UserByPrivateID looks up a user by private id.
func (s *Store) UserByPrivateID(privateID string) (*user.User, bool) {
	u, ok := s.byPrivate[privateID]
	return u, ok
}

// AddUser registers u and places it in the occupant set of u.Area/u.Room. It returns
// false when that room does not exist.
func (s *Store) AddUser(u *user.User) bool {
	rs, ok := s.Room(u.Area, u.Room)
	if !ok {
		return false
	}
	s.users[u.PublicID] = u
	s.byPrivate[u.PrivateID] = u
	rs.Occupants[u.PublicID] = struct{}{}
	return true
}

// RemoveUser deletes u from the table and its room.
func (s *Store) RemoveUser(u *user.User) {
	if rs, ok := s.Room(u.Area, u.Room); ok {
		delete(rs.Occupants, u.PublicID)
	}
	delete(s.users, u.PublicID)
	delete(s.byPrivate, u.PrivateID)
}

// MoveUser transfers u's membership to another room of its area.
func (s *Store) MoveUser(u *user.User, roomID string) bool {
	target, ok := s.Room(u.Area, roomID)
	if !ok {
		return false
	}
	if rs, ok := s.Room(u.Area, u.Room); ok {
		delete(rs.Occupants, u.PublicID)
	}
	u.Room = roomID
	target.Occupants[u.PublicID] = struct{}{}
	return true
}

// Users returns all users ordered by public id.
func (s *Store) Users() []*user.User {
	out := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicID < out[j].PublicID })
	return out
}

// UsersIn returns the occupants of a room ordered by public id.
func (s *Store) UsersIn(rs *RoomState) []*user.User {
	out := make([]*user.User, 0, len(rs.Occupants))
	for id := range rs.Occupants {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicID < out[j].PublicID })
	return out
}

// UsersInArea returns every user of an area.
func (s *Store) UsersInArea(areaID string) []*user.User {
	var out []*user.User
	for _, u := range s.Users() {
		if u.Area == areaID {
			out = append(out, u)
		}
	}
	return out
}

// UsersWithIP returns users whose last address is ip.
func (s *Store) UsersWithIP(ip string) []*user.User {
	var out []*user.User
	for _, u := range s.Users() {
		if u.IP == ip {
			out = append(out, u)
		}
	}
	return out
}

// Ban adds ip to the banned set.
func (s *Store) Ban(ip string) {
	s.banned[ip] = struct{}{}
}

// Unban removes ip from the banned set.
func (s *Store) Unban(ip string) {
	delete(s.banned, ip)
}

// IsBanned reports whether ip is banned.
func (s *Store) IsBanned(ip string) bool {
	_, ok := s.banned[ip]
	return ok
}

// Banned returns the banned set, sorted.
func (s *Store) Banned() []string {
	out := make([]string, 0, len(s.banned))
	for ip := range s.banned {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
