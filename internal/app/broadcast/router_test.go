package broadcast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/broadcast/broadcasttest"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/world"
	"gridroom/internal/app/world/worldtest"
)

func TestRouter_AttachDetach(t *testing.T) {
	r := broadcast.NewRouter(worldtest.Store(t))
	first, second := &broadcasttest.Conn{}, &broadcasttest.Conn{}

	assert.Nil(t, r.Attach("a", first))
	assert.Equal(t, first, r.Attach("a", second))

	assert.False(t, r.Detach("a", first))
	assert.True(t, r.Detach("a", second))
	_, ok := r.Conn("a")
	assert.False(t, ok)
}

func TestRouter_ToRelevantSkipsBlockedBothWays(t *testing.T) {
	s := worldtest.Store(t)
	r := broadcast.NewRouter(s)

	a := worldtest.AddUser(t, s, "a", "10.0.0.1", "gen", "bar")
	b := worldtest.AddUser(t, s, "b", "10.0.0.2", "gen", "bar")
	worldtest.AddUser(t, s, "c", "10.0.0.3", "gen", "bar")
	worldtest.AddUser(t, s, "d", "10.0.0.4", "gen", "school")

	conns := map[string]*broadcasttest.Conn{}
	for _, id := range []string{"a", "b", "c", "d"} {
		conns[id] = &broadcasttest.Conn{}
		r.Attach(id, conns[id])
	}

	b.Block(a.IP)
	r.ToRelevant(a, protocol.UserLeft{UserID: a.PublicID})
	assert.Len(t, conns["a"].Events, 1)
	assert.Empty(t, conns["b"].Events)
	assert.Len(t, conns["c"].Events, 1)
	assert.Empty(t, conns["d"].Events)

	r.ToRelevantExcept(b, protocol.UserLeft{UserID: b.PublicID})
	assert.Len(t, conns["a"].Events, 1)
	assert.Len(t, conns["c"].Events, 2)
	assert.Empty(t, conns["b"].Events)

	r.ToArea("gen", protocol.Pong{})
	assert.Len(t, conns["d"].Events, 1)
}

func TestRouter_AnonymousRoomBlanksNames(t *testing.T) {
	s := worldtest.Store(t)
	r := broadcast.NewRouter(s)

	a := worldtest.AddUser(t, s, "a", "10.0.0.1", "gen", "school")
	b := worldtest.AddUser(t, s, "b", "10.0.0.2", "gen", "bar")

	assert.Empty(t, r.UserView(a).Name)
	assert.Equal(t, "b", r.UserView(b).Name)
}

func TestRouter_SlotViewsNeutralizeBlockedPublisher(t *testing.T) {
	s := worldtest.Store(t)
	r := broadcast.NewRouter(s)

	pub := worldtest.AddUser(t, s, "pub", "10.0.0.1", "gen", "bar")
	viewer := worldtest.AddUser(t, s, "viewer", "10.0.0.2", "gen", "bar")
	blocked := worldtest.AddUser(t, s, "blocked", "10.0.0.3", "gen", "bar")
	blocked.Block(pub.IP)

	bar, _ := s.Room("gen", "bar")
	slot := bar.Slots[0]
	slot.Active, slot.Ready = true, true
	slot.Publisher = &world.Participant{UserID: pub.PublicID}

	v := r.SlotViews(bar, viewer)[0]
	assert.Equal(t, "pub", v.PublisherID)
	assert.True(t, v.Listenable)

	v = r.SlotViews(bar, blocked)[0]
	assert.True(t, v.Active)
	assert.Empty(t, v.PublisherID)
	assert.False(t, v.Listenable)

	v = r.SlotViews(bar, pub)[0]
	assert.False(t, v.Listenable)
}

func TestRouter_RoomListAndStatsHidePrivateSlots(t *testing.T) {
	s := worldtest.Store(t)
	r := broadcast.NewRouter(s)

	pub := worldtest.AddUser(t, s, "pub", "10.0.0.1", "gen", "bar")
	viewer := worldtest.AddUser(t, s, "viewer", "10.0.0.2", "gen", "school")

	bar, _ := s.Room("gen", "bar")
	bar.Slots[0].Active = true
	bar.Slots[0].Publisher = &world.Participant{UserID: pub.PublicID}
	bar.Slots[1].Active = true
	bar.Slots[1].Private = true
	bar.Slots[1].Publisher = &world.Participant{UserID: viewer.PublicID}

	list := r.RoomList(viewer)
	require.Len(t, list.Rooms, 2)
	assert.Equal(t, "bar", list.Rooms[0].ID)
	assert.Equal(t, []string{"pub"}, list.Rooms[0].Streamers)
	assert.Equal(t, 1, list.Rooms[0].Users)

	stats := r.Stats("gen")
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Streams)
}

func TestRouter_SnapshotOmitsBlockedUsers(t *testing.T) {
	s := worldtest.Store(t)
	r := broadcast.NewRouter(s)

	a := worldtest.AddUser(t, s, "a", "10.0.0.1", "gen", "bar")
	worldtest.AddUser(t, s, "b", "10.0.0.2", "gen", "bar")
	c := worldtest.AddUser(t, s, "c", "10.0.0.3", "gen", "bar")
	c.Block(a.IP)

	bar, _ := s.Room("gen", "bar")
	snap := r.Snapshot(bar, a)

	assert.Equal(t, "a", snap.Self.ID)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "b", snap.Users[0].ID)
	assert.Len(t, snap.Slots, 2)
	assert.False(t, snap.Game.Active)
}
