// Package movement validates and applies grid movement and room changes.
package movement

import (
	"time"

	"github.com/rs/zerolog"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
)

// DefaultSpinWindow is how soon after a turn a different direction moves instead of
// turning again.
const DefaultSpinWindow = 500 * time.Millisecond

// Rejection reasons sent in movement_rejected.
const (
	ReasonOutOfBounds = "out_of_bounds"
	ReasonBlocked     = "blocked"
	ReasonForbidden   = "forbidden"
)

// Outcome is the result of one movement input.
type Outcome int

const (
	Turned Outcome = iota
	Moved
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Turned:
		return "turned"
	case Moved:
		return "moved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Activity is told about every accepted action so it can clear inactivity.
type Activity interface {
	MarkActive(u *user.User)
}

// Config tunes an Engine.
type Config struct {
	SpinWindow time.Duration
}

// Engine applies movement on the event loop.
type Engine struct {
	store  *world.Store
	sched  loop.Scheduler
	router *broadcast.Router
	cfg    Config

	activity  Activity
	observers []world.Observer

	logger zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store *world.Store, sched loop.Scheduler, router *broadcast.Router, cfg Config) *Engine {
	if cfg.SpinWindow <= 0 {
		cfg.SpinWindow = DefaultSpinWindow
	}
	return &Engine{
		store:  store,
		sched:  sched,
		router: router,
		cfg:    cfg,
		logger: logx.For("Movement"),
	}
}

// SetActivity registers the activity tracker.
func (e *Engine) SetActivity(a Activity) {
	e.activity = a
}

// Observe registers observers notified around room changes, in order.
func (e *Engine) Observe(obs ...world.Observer) {
	e.observers = append(e.observers, obs...)
}

func (e *Engine) markActive(u *user.User) {
	if e.activity != nil {
		e.activity.MarkActive(u)
		return
	}
	u.LastAction = e.sched.Now()
}

// Move handles one direction input. Input matching the current facing steps forward;
// any other input turns. Pressing back toward the facing just turned away from within
// the spin window steps that way right away instead.
func (e *Engine) Move(u *user.User, dir topology.Direction) (Outcome, error) {
	rs, ok := e.store.RoomOf(u)
	if !ok {
		return Rejected, errs.NewError(errs.ErrUnknownRoom)
	}
	if _, ok := topology.ParseDirection(string(dir)); !ok {
		return Rejected, errs.NewError(errs.ErrInvalidParams)
	}

	now := e.sched.Now()
	room := rs.Room
	spin := false

	if dir != u.Direction {
		spinning := !u.LastTurnAt.IsZero() && now.Sub(u.LastTurnAt) < e.cfg.SpinWindow && dir == u.TurnedFrom
		if !spinning {
			u.TurnedFrom = u.Direction
			u.Direction = dir
			u.LastTurnAt = now
			e.markActive(u)
			e.router.ToRelevant(u, e.moved(u, room, false))
			return Turned, nil
		}
		spin = true
	}

	from := u.Position
	to := from.Step(dir)

	if reason := check(room, from, to); reason != "" {
		e.router.ToUser(u.PublicID, protocol.MovementRejected{
			Code:      errs.ErrMovementBlocked,
			Reason:    reason,
			Position:  u.Position,
			Direction: u.Direction,
		})
		return Rejected, nil
	}

	u.Position = to
	u.Direction = dir
	u.LastTurnAt = time.Time{}
	u.TurnedFrom = ""
	if tile, ok := room.TransformAt(to); ok && (tile.Character == "" || tile.Character == u.Character) {
		u.CharacterVariant = tile.Variant
	}

	e.markActive(u)
	e.router.ToRelevant(u, e.moved(u, room, spin))
	return Moved, nil
}

// check validates a step in order: bounds, blocked tiles, forbidden transitions.
func check(room *topology.Room, from, to topology.Point) string {
	switch {
	case !room.InBounds(to):
		return ReasonOutOfBounds
	case room.IsBlocked(to):
		return ReasonBlocked
	case room.IsForbidden(from, to):
		return ReasonForbidden
	}
	return ""
}

func (e *Engine) moved(u *user.User, room *topology.Room, spin bool) protocol.Moved {
	return protocol.Moved{
		UserID:           u.PublicID,
		Position:         u.Position,
		Direction:        u.Direction,
		Spin:             spin,
		Sitting:          room.IsSeat(u.Position),
		CharacterVariant: u.CharacterVariant,
	}
}

// ChangeRoom moves u to another room of its area through targetDoor, or the target's
// spawn door when targetDoor is empty. Nothing changes when the room or door is unknown.
func (e *Engine) ChangeRoom(u *user.User, targetRoom, targetDoor string) error {
	target, ok := e.store.Room(u.Area, targetRoom)
	if !ok {
		return errs.NewError(errs.ErrUnknownRoom)
	}

	door := target.Room.Spawn()
	if targetDoor != "" {
		if door, ok = target.Room.Door(targetDoor); !ok {
			return errs.NewError(errs.ErrUnknownDoor)
		}
	}

	previous := u.Room
	e.Leave(u)

	e.store.MoveUser(u, targetRoom)
	u.Position = door.Point()
	u.Direction = door.Direction
	u.LastTurnAt = time.Time{}
	u.TurnedFrom = ""

	e.Enter(u)
	e.router.BroadcastStats(u.Area)

	e.logger.Info().
		Str("user_id", u.PublicID).
		Str("from", previous).
		Str("to", targetRoom).
		Str("door", door.ID).
		Msg("User changed room.")
	return nil
}

// Leave runs the departure side of a room change: observers release what u holds and
// the room is told u is gone.
func (e *Engine) Leave(u *user.User) {
	for _, obs := range e.observers {
		obs.Leaving(u)
	}
	e.router.ToRelevantExcept(u, protocol.UserLeft{UserID: u.PublicID})
}

// Enter announces u to its current room, sends u the room snapshot and notifies
// observers.
func (e *Engine) Enter(u *user.User) {
	e.router.ToRelevantExcept(u, protocol.UserJoined{User: e.router.UserView(u)})
	e.router.SendSnapshot(u)
	for _, obs := range e.observers {
		obs.Entered(u)
	}
	e.markActive(u)
}
