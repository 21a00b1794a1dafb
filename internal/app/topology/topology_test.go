package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
areas:
  - id: gen
    default_room: bar
    rooms:
      - id: bar
        width: 9
        height: 9
        spawn_door: entrance
        stream_slots: 2
        blocked:
          - {x: 2, y: 2}
        forbidden:
          - from: {x: 4, y: 4}
            to: {x: 5, y: 4}
        seats:
          - {x: 0, y: 8}
        doors:
          - {id: entrance, x: 1, y: 2, direction: up}
          - {id: back, x: 8, y: 8}
        transforms:
          - {x: 7, y: 7, character: cat, variant: alt}
      - id: school
        width: 5
        height: 3
        spawn_door: door
        anonymous: true
        doors:
          - {id: door, x: 0, y: 0, direction: right}
`

func TestParse(t *testing.T) {
	topo, err := Parse(strings.NewReader(sampleYAML), "yaml")
	require.NoError(t, err)

	area, ok := topo.Area("gen")
	require.True(t, ok)
	assert.Equal(t, []string{"bar", "school"}, area.RoomIDs())

	bar, ok := topo.Room("gen", "bar")
	require.True(t, ok)
	assert.Equal(t, 2, bar.StreamSlots)
	assert.True(t, bar.IsBlocked(Point{2, 2}))
	assert.False(t, bar.IsBlocked(Point{2, 3}))
	assert.True(t, bar.IsForbidden(Point{4, 4}, Point{5, 4}))
	assert.False(t, bar.IsForbidden(Point{5, 4}, Point{4, 4}))
	assert.True(t, bar.IsSeat(Point{0, 8}))

	spawn := bar.Spawn()
	assert.Equal(t, Point{1, 2}, spawn.Point())
	assert.Equal(t, Up, spawn.Direction)

	back, ok := bar.Door("back")
	require.True(t, ok)
	assert.Equal(t, Down, back.Direction)

	tt, ok := bar.TransformAt(Point{7, 7})
	require.True(t, ok)
	assert.Equal(t, "alt", tt.Variant)

	school, _ := topo.Room("gen", "school")
	assert.True(t, school.Anonymous)
	assert.Equal(t, 0, school.StreamSlots)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	topo, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen"}, topo.AreaIDs())
}

func TestBuild_Errors(t *testing.T) {
	room := func(mut func(*RoomConfig)) File {
		rc := RoomConfig{ID: "r", Width: 3, Height: 3, SpawnDoor: "d", Doors: []Door{{ID: "d"}}}
		mut(&rc)
		return File{Areas: []AreaConfig{{ID: "a", DefaultRoom: "r", Rooms: []RoomConfig{rc}}}}
	}

	tests := []struct {
		name string
		file File
	}{
		{"no areas", File{}},
		{"zero grid", room(func(rc *RoomConfig) { rc.Width = 0 })},
		{"missing spawn door", room(func(rc *RoomConfig) { rc.SpawnDoor = "nope" })},
		{"door outside grid", room(func(rc *RoomConfig) { rc.Doors[0].X = 3 })},
		{"bad door direction", room(func(rc *RoomConfig) { rc.Doors[0].Direction = "north" })},
		{"negative slots", room(func(rc *RoomConfig) { rc.StreamSlots = -1 })},
		{"unknown default room", File{Areas: []AreaConfig{{ID: "a", DefaultRoom: "x"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.file)
			assert.Error(t, err)
		})
	}
}

func TestDirection(t *testing.T) {
	d, ok := ParseDirection("left")
	assert.True(t, ok)
	assert.Equal(t, Point{0, 5}, Point{1, 5}.Step(d))

	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}
