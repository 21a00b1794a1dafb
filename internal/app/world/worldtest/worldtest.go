// Package worldtest builds small worlds for tests.
package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
)

// Area is the main test area.
const Area = "gen"

// Topology returns:
//
//	gen/bar    9x9, blocked (2,2), forbidden (4,4)->(5,4), seat (0,8), transform (7,7),
//	           doors entrance (1,2) facing down and back (8,8), 2 stream slots
//	gen/school 5x3, anonymous, 1 stream slot
//	for/lobby  4x4, no stream slots
func Topology(t testing.TB) *topology.Topology {
	t.Helper()

	topo, err := topology.Build(topology.File{Areas: []topology.AreaConfig{
		{
			ID:          Area,
			DefaultRoom: "bar",
			Rooms: []topology.RoomConfig{
				{
					ID: "bar", Width: 9, Height: 9, SpawnDoor: "entrance", StreamSlots: 2,
					Blocked:    []topology.Point{{X: 2, Y: 2}},
					Forbidden:  []topology.Transition{{From: topology.Point{X: 4, Y: 4}, To: topology.Point{X: 5, Y: 4}}},
					Seats:      []topology.Point{{X: 0, Y: 8}},
					Transforms: []topology.TransformTile{{X: 7, Y: 7, Character: "giko", Variant: "alt"}},
					Doors: []topology.Door{
						{ID: "entrance", X: 1, Y: 2, Direction: topology.Down},
						{ID: "back", X: 8, Y: 8, Direction: topology.Left},
					},
				},
				{
					ID: "school", Width: 5, Height: 3, SpawnDoor: "door", StreamSlots: 1, Anonymous: true,
					Doors: []topology.Door{{ID: "door", X: 0, Y: 0, Direction: topology.Right}},
				},
			},
		},
		{
			ID:          "for",
			DefaultRoom: "lobby",
			Rooms: []topology.RoomConfig{
				{ID: "lobby", Width: 4, Height: 4, SpawnDoor: "d", Doors: []topology.Door{{ID: "d", X: 0, Y: 0}}},
			},
		},
	}})
	require.NoError(t, err)
	return topo
}

// Store returns a store over Topology.
func Store(t testing.TB) *world.Store {
	t.Helper()
	return world.NewStore(Topology(t))
}

// AddUser places a connected user named after id at the spawn door of area/room.
func AddUser(t testing.TB, s *world.Store, id, ip, area, room string) *user.User {
	t.Helper()

	rs, ok := s.Room(area, room)
	require.True(t, ok, "unknown room %s/%s", area, room)

	u := user.New(id, "private-"+id, id, "giko")
	u.IP = ip
	u.Area = area
	u.Room = room
	spawn := rs.Room.Spawn()
	u.Position = spawn.Point()
	u.Direction = spawn.Direction
	require.True(t, s.AddUser(u))
	return u
}
