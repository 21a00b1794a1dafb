package broadcast

import (
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
)

// UserView describes u, blanking the name inside anonymous rooms.
func (r *Router) UserView(u *user.User) protocol.UserView {
	name := u.Name
	if rs, ok := r.store.RoomOf(u); ok && rs.Room.Anonymous {
		name = ""
	}
	return protocol.UserView{
		ID:               u.PublicID,
		Name:             name,
		Position:         u.Position,
		Direction:        u.Direction,
		Character:        u.Character,
		CharacterVariant: u.CharacterVariant,
		BubblePosition:   u.BubblePosition,
		Ghost:            u.Ghost,
		Inactive:         u.Inactive,
	}
}

// SlotViews describes rs's slots to recipient. Slots whose publisher is block-related to
// the recipient show as occupied without a publisher and cannot be listened to.
func (r *Router) SlotViews(rs *world.RoomState, recipient *user.User) []protocol.SlotView {
	views := make([]protocol.SlotView, len(rs.Slots))
	for i, s := range rs.Slots {
		v := protocol.SlotView{
			Slot:      i,
			Active:    s.Active,
			Ready:     s.Ready,
			WithAudio: s.WithAudio,
			WithVideo: s.WithVideo,
			Private:   s.Private,
		}
		if s.Publisher != nil {
			publisher, _ := r.store.User(s.Publisher.UserID)
			if !recipient.BlockedWith(publisher) {
				v.PublisherID = s.Publisher.UserID
				v.Listenable = s.Ready && s.Publisher.UserID != recipient.PublicID
			}
		}
		views[i] = v
	}
	return views
}

// GameView describes a chess table.
func GameView(cs *world.ChessState) protocol.GameView {
	v := protocol.GameView{White: cs.White, Black: cs.Black, Active: cs.Active()}
	if cs.Game != nil {
		v.Turn = string(cs.Game.Turn())
		v.FEN = cs.Game.FEN()
	}
	return v
}

// Snapshot is the full room state handed to a user entering rs.
func (r *Router) Snapshot(rs *world.RoomState, recipient *user.User) protocol.RoomState {
	users := make([]protocol.UserView, 0, len(rs.Occupants))
	for _, u := range r.store.UsersIn(rs) {
		if u == recipient || recipient.BlockedWith(u) {
			continue
		}
		users = append(users, r.UserView(u))
	}
	return protocol.RoomState{
		Area:      rs.Area(),
		Room:      rs.Room.ID,
		Width:     rs.Room.Width,
		Height:    rs.Room.Height,
		Anonymous: rs.Room.Anonymous,
		Self:      r.UserView(recipient),
		Users:     users,
		Slots:     r.SlotViews(rs, recipient),
		Game:      GameView(rs.Chess),
	}
}

// SendSnapshot sends recipient the state of its current room.
func (r *Router) SendSnapshot(recipient *user.User) {
	if rs, ok := r.store.RoomOf(recipient); ok {
		r.ToUser(recipient.PublicID, r.Snapshot(rs, recipient))
	}
}

// RoomList lists the rooms of recipient's area. Names of private streams and of
// publishers block-related to the recipient are left out.
func (r *Router) RoomList(recipient *user.User) protocol.RoomList {
	rooms := r.store.RoomsInArea(recipient.Area)
	out := protocol.RoomList{Rooms: make([]protocol.RoomListEntry, 0, len(rooms))}

	for _, rs := range rooms {
		entry := protocol.RoomListEntry{ID: rs.Room.ID, Users: len(rs.Occupants), Streamers: []string{}}
		for _, s := range rs.Slots {
			if !s.Active || s.Private || s.Publisher == nil {
				continue
			}
			publisher, ok := r.store.User(s.Publisher.UserID)
			if !ok || recipient.BlockedWith(publisher) {
				continue
			}
			entry.Streamers = append(entry.Streamers, r.UserView(publisher).Name)
		}
		out.Rooms = append(out.Rooms, entry)
	}
	return out
}

// Stats aggregates occupant and public stream counts of an area.
func (r *Router) Stats(areaID string) protocol.StatsUpdated {
	stats := protocol.StatsUpdated{Area: areaID}
	for _, rs := range r.store.RoomsInArea(areaID) {
		stats.Users += len(rs.Occupants)
		for _, s := range rs.Slots {
			if s.Active && !s.Private {
				stats.Streams++
			}
		}
	}
	return stats
}

// BroadcastStats sends the current stats of an area to the whole area.
func (r *Router) BroadcastStats(areaID string) {
	r.ToArea(areaID, r.Stats(areaID))
}

// SlotsChanged announces rs's slots to its occupants and refreshes area stats.
func (r *Router) SlotsChanged(rs *world.RoomState) {
	r.ToRoomEach(rs, func(recipient *user.User) protocol.Outbound {
		return protocol.StreamSlotsChanged{Slots: r.SlotViews(rs, recipient)}
	})
	r.BroadcastStats(rs.Area())
}
