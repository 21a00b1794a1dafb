/*
Package topology holds the static geometry of the world: areas, rooms, grid sizes,
blocked tiles, forbidden transitions, doors, seats, transform tiles and the stream
slot capacity of every room. It is loaded once at startup and read-only afterwards.
*/
package topology

import (
	"fmt"
	"sort"
)

// Direction is a facing or movement direction on the grid.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection validates s.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case Up, Down, Left, Right:
		return d, true
	}
	return "", false
}

// Delta returns the grid offset of one step. The y axis grows upwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, 1
	case Down:
		return 0, -1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Point is a grid cell.
type Point struct {
	X int `mapstructure:"x" json:"x"`
	Y int `mapstructure:"y" json:"y"`
}

// Step returns the neighbouring cell in direction d.
func (p Point) Step(d Direction) Point {
	dx, dy := d.Delta()
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Transition is a directed move between two adjacent cells.
type Transition struct {
	From Point `mapstructure:"from"`
	To   Point `mapstructure:"to"`
}

// Door is a named spawn point inside a room.
type Door struct {
	ID        string    `mapstructure:"id"`
	X         int       `mapstructure:"x"`
	Y         int       `mapstructure:"y"`
	Direction Direction `mapstructure:"direction"`
}

// Point returns the door's cell.
func (d Door) Point() Point {
	return Point{X: d.X, Y: d.Y}
}

// TransformTile swaps the avatar variant of a user stepping on it. An empty Character
// matches every avatar.
type TransformTile struct {
	X         int    `mapstructure:"x"`
	Y         int    `mapstructure:"y"`
	Character string `mapstructure:"character"`
	Variant   string `mapstructure:"variant"`
}

// Room is the immutable description of one room.
type Room struct {
	ID          string
	Area        string
	Width       int
	Height      int
	SpawnDoor   string
	StreamSlots int
	Anonymous   bool

	blocked    map[Point]struct{}
	forbidden  map[Transition]struct{}
	seats      map[Point]struct{}
	doors      map[string]Door
	transforms map[Point]TransformTile
}

// InBounds reports whether p lies on the grid.
func (r *Room) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < r.Width && p.Y < r.Height
}

// IsBlocked reports whether p is an obstacle.
func (r *Room) IsBlocked(p Point) bool {
	_, ok := r.blocked[p]
	return ok
}

// IsForbidden reports whether moving from one cell to the other is disallowed.
func (r *Room) IsForbidden(from, to Point) bool {
	_, ok := r.forbidden[Transition{From: from, To: to}]
	return ok
}

// IsSeat reports whether p is a seat.
func (r *Room) IsSeat(p Point) bool {
	_, ok := r.seats[p]
	return ok
}

// Door looks up a door by id.
func (r *Room) Door(id string) (Door, bool) {
	d, ok := r.doors[id]
	return d, ok
}

// Spawn returns the room's default door.
func (r *Room) Spawn() Door {
	return r.doors[r.SpawnDoor]
}

// TransformAt returns the transform tile at p, if any.
func (r *Room) TransformAt(p Point) (TransformTile, bool) {
	t, ok := r.transforms[p]
	return t, ok
}

// Area is a top-level partition of the world.
type Area struct {
	ID          string
	DefaultRoom string
	Rooms       map[string]*Room
}

// RoomIDs returns the area's room ids in sorted order.
func (a *Area) RoomIDs() []string {
	ids := make([]string, 0, len(a.Rooms))
	for id := range a.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Topology is the whole static world.
type Topology struct {
	Areas map[string]*Area
}

// Area looks up an area.
func (t *Topology) Area(id string) (*Area, bool) {
	a, ok := t.Areas[id]
	return a, ok
}

// Room looks up a room inside an area.
func (t *Topology) Room(areaID, roomID string) (*Room, bool) {
	a, ok := t.Areas[areaID]
	if !ok {
		return nil, false
	}
	r, ok := a.Rooms[roomID]
	return r, ok
}

// AreaIDs returns area ids in sorted order.
func (t *Topology) AreaIDs() []string {
	ids := make([]string, 0, len(t.Areas))
	for id := range t.Areas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build validates a decoded configuration file and indexes it.
func Build(f File) (*Topology, error) {
	if len(f.Areas) == 0 {
		return nil, fmt.Errorf("topology defines no areas")
	}

	t := &Topology{Areas: make(map[string]*Area, len(f.Areas))}

	for _, ac := range f.Areas {
		if ac.ID == "" {
			return nil, fmt.Errorf("area without id")
		}
		if _, dup := t.Areas[ac.ID]; dup {
			return nil, fmt.Errorf("duplicate area %q", ac.ID)
		}

		area := &Area{ID: ac.ID, DefaultRoom: ac.DefaultRoom, Rooms: make(map[string]*Room, len(ac.Rooms))}

		for _, rc := range ac.Rooms {
			room, err := buildRoom(ac.ID, rc)
			if err != nil {
				return nil, fmt.Errorf("area %q: %w", ac.ID, err)
			}
			if _, dup := area.Rooms[room.ID]; dup {
				return nil, fmt.Errorf("area %q: duplicate room %q", ac.ID, room.ID)
			}
			area.Rooms[room.ID] = room
		}

		if _, ok := area.Rooms[area.DefaultRoom]; !ok {
			return nil, fmt.Errorf("area %q: default room %q is not defined", ac.ID, area.DefaultRoom)
		}

		t.Areas[area.ID] = area
	}

	return t, nil
}

func buildRoom(areaID string, rc RoomConfig) (*Room, error) {
	if rc.ID == "" {
		return nil, fmt.Errorf("room without id")
	}
	if rc.Width <= 0 || rc.Height <= 0 {
		return nil, fmt.Errorf("room %q: grid must be at least 1x1", rc.ID)
	}
	if rc.StreamSlots < 0 {
		return nil, fmt.Errorf("room %q: negative stream slot count", rc.ID)
	}

	r := &Room{
		ID:          rc.ID,
		Area:        areaID,
		Width:       rc.Width,
		Height:      rc.Height,
		SpawnDoor:   rc.SpawnDoor,
		StreamSlots: rc.StreamSlots,
		Anonymous:   rc.Anonymous,
		blocked:     make(map[Point]struct{}, len(rc.Blocked)),
		forbidden:   make(map[Transition]struct{}, len(rc.Forbidden)),
		seats:       make(map[Point]struct{}, len(rc.Seats)),
		doors:       make(map[string]Door, len(rc.Doors)),
		transforms:  make(map[Point]TransformTile, len(rc.Transforms)),
	}

	for _, p := range rc.Blocked {
		r.blocked[p] = struct{}{}
	}
	for _, tr := range rc.Forbidden {
		r.forbidden[tr] = struct{}{}
	}
	for _, p := range rc.Seats {
		r.seats[p] = struct{}{}
	}
	for _, tt := range rc.Transforms {
		r.transforms[Point{X: tt.X, Y: tt.Y}] = tt
	}

	for _, d := range rc.Doors {
		if d.ID == "" {
			return nil, fmt.Errorf("room %q: door without id", rc.ID)
		}
		if !r.InBounds(d.Point()) {
			return nil, fmt.Errorf("room %q: door %q is outside the grid", rc.ID, d.ID)
		}
		if d.Direction == "" {
			d.Direction = Down
		}
		if _, ok := ParseDirection(string(d.Direction)); !ok {
			return nil, fmt.Errorf("room %q: door %q has invalid direction %q", rc.ID, d.ID, d.Direction)
		}
		r.doors[d.ID] = d
	}

	if _, ok := r.doors[r.SpawnDoor]; !ok {
		return nil, fmt.Errorf("room %q: spawn door %q is not defined", rc.ID, rc.SpawnDoor)
	}

	return r, nil
}
