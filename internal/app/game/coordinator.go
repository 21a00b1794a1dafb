/*
Package game drives the single chess table of every room.

A table goes Empty -> Seated(white) -> Active(white, black) -> Empty. Seats are handed
out in arrival order, the engine exists only while both are filled, and one per-room
timer ends the game when the side to move stays silent for too long.
*/
package game

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/chess"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
)

// DefaultTurnTimeout ends a game whose side to move has not moved for this long.
const DefaultTurnTimeout = 5 * time.Minute

// Reasons reported in game_ended.
const (
	ReasonTimeout = "timeout"
	ReasonForfeit = "forfeit"
)

// Config tunes a Coordinator.
type Config struct {
	TurnTimeout time.Duration

	// Engine creates the rules engine for a new game. Defaults to chess.New.
	Engine chess.Factory
}

// Coordinator owns every room's ChessState. All methods run on the event loop.
type Coordinator struct {
	store  *world.Store
	sched  loop.Scheduler
	router *broadcast.Router
	cfg    Config
	logger zerolog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store *world.Store, sched loop.Scheduler, router *broadcast.Router, cfg Config) *Coordinator {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Engine == nil {
		cfg.Engine = chess.New
	}
	return &Coordinator{
		store:  store,
		sched:  sched,
		router: router,
		cfg:    cfg,
		logger: logx.For("Game"),
	}
}

func (c *Coordinator) table(u *user.User) (*world.RoomState, error) {
	rs, ok := c.store.RoomOf(u)
	if !ok {
		return nil, errs.NewError(errs.ErrUnknownRoom)
	}
	return rs, nil
}

// JoinGame seats u. The first player takes white, the second takes black and starts
// the game. Joining again while seated changes nothing.
func (c *Coordinator) JoinGame(u *user.User) error {
	rs, err := c.table(u)
	if err != nil {
		return err
	}
	cs := rs.Chess

	switch {
	case cs.Seated(u.PublicID):
		return nil

	case cs.White == "":
		cs.White = u.PublicID
		cs.Following[u.PublicID] = struct{}{}

	case cs.Black == "":
		cs.Black = u.PublicID
		cs.Game = c.cfg.Engine()
		cs.LastMoveAt = c.sched.Now()
		c.follow(rs)
		c.arm(rs)

		c.logger.Info().
			Str("room", rs.Room.ID).
			Str("white", cs.White).
			Str("black", cs.Black).
			Msg("Game started.")

	default:
		return errs.NewError(errs.ErrSeatTaken)
	}

	c.announce(rs)
	return nil
}

// QuitGame gives up u's seat. Quitting an active game hands the win to the opponent.
func (c *Coordinator) QuitGame(u *user.User) error {
	rs, err := c.table(u)
	if err != nil {
		return err
	}
	if !rs.Chess.Seated(u.PublicID) {
		return errs.NewError(errs.ErrNotInGame)
	}
	c.forfeit(rs, u.PublicID)
	return nil
}

// Forfeit releases whatever seat u holds in its current room.
func (c *Coordinator) Forfeit(u *user.User) {
	rs, ok := c.store.RoomOf(u)
	if !ok || !rs.Chess.Seated(u.PublicID) {
		return
	}
	c.forfeit(rs, u.PublicID)
}

func (c *Coordinator) forfeit(rs *world.RoomState, loserID string) {
	cs := rs.Chess
	if !cs.Active() {
		cs.Reset()
		c.announce(rs)
		return
	}

	winner := chess.White
	if cs.White == loserID {
		winner = chess.Black
	}
	c.end(rs, ReasonForfeit, winner)
}

// MakeMove applies a move for u. Moves out of turn are refused; illegal moves are
// dropped and the mover is sent the authoritative position.
func (c *Coordinator) MakeMove(u *user.User, from, to, promotion string) error {
	rs, err := c.table(u)
	if err != nil {
		return err
	}
	cs := rs.Chess

	color, seated := cs.ColorOf(u.PublicID)
	if !seated || !cs.Active() {
		return errs.NewError(errs.ErrNotInGame)
	}
	if cs.Game.Turn() != color {
		return errs.NewError(errs.ErrNotYourTurn)
	}

	if err := cs.Game.Move(from, to, promotion); err != nil {
		if !errors.Is(err, chess.ErrIllegalMove) {
			c.logger.Error().Err(err).Str("room", rs.Room.ID).Msg("Chess engine failed.")
		}
		c.router.ToUser(u.PublicID, protocol.GameStateChanged{Game: broadcast.GameView(cs)})
		return nil
	}

	cs.Generation++
	cs.LastMoveAt = c.sched.Now()
	c.follow(rs)

	if outcome := cs.Game.Outcome(); outcome.Over {
		c.end(rs, outcome.Method, outcome.Winner)
		return nil
	}

	c.arm(rs)
	c.announce(rs)
	return nil
}

// arm replaces the room's turn timer.
func (c *Coordinator) arm(rs *world.RoomState) {
	cs := rs.Chess
	if cs.Timer != nil {
		cs.Timer.Stop()
	}
	area, room, gen := rs.Area(), rs.Room.ID, cs.Generation
	cs.Timer = c.sched.AfterFunc(c.cfg.TurnTimeout, func() { c.expire(area, room, gen) })
}

func (c *Coordinator) expire(area, room string, gen uint64) {
	rs, ok := c.store.Room(area, room)
	if !ok || !rs.Chess.Active() || rs.Chess.Generation != gen {
		return
	}
	c.end(rs, ReasonTimeout, "")
}

// end announces the result to the audience and empties the table.
func (c *Coordinator) end(rs *world.RoomState, reason string, winner chess.Color) {
	cs := rs.Chess
	ev := protocol.GameEnded{Reason: reason, Winner: string(winner)}
	switch winner {
	case chess.White:
		ev.WinnerID = cs.White
	case chess.Black:
		ev.WinnerID = cs.Black
	}

	audience := c.audience(rs)
	c.router.ToUsers(audience, ev)

	c.logger.Info().
		Str("room", rs.Room.ID).
		Str("reason", reason).
		Str("winner", ev.WinnerID).
		Msg("Game ended.")

	cs.Reset()
	c.router.ToUsers(audience, protocol.GameStateChanged{Game: broadcast.GameView(cs)})
}

// announce sends the table state to its audience.
func (c *Coordinator) announce(rs *world.RoomState) {
	c.router.ToUsers(c.audience(rs), protocol.GameStateChanged{Game: broadcast.GameView(rs.Chess)})
}

// follow adds the room's current occupants to the following set.
func (c *Coordinator) follow(rs *world.RoomState) {
	for id := range rs.Occupants {
		rs.Chess.Following[id] = struct{}{}
	}
}

// audience is the following set plus the room's occupants and both players.
func (c *Coordinator) audience(rs *world.RoomState) map[string]struct{} {
	cs := rs.Chess
	out := make(map[string]struct{}, len(cs.Following)+len(rs.Occupants)+2)
	for id := range cs.Following {
		out[id] = struct{}{}
	}
	for id := range rs.Occupants {
		out[id] = struct{}{}
	}
	for _, id := range []string{cs.White, cs.Black} {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// Leaving implements world.Observer. Leaving the room forfeits.
func (c *Coordinator) Leaving(u *user.User) {
	c.Forfeit(u)
}

// Entered implements world.Observer. Anyone who enters during a match follows it.
func (c *Coordinator) Entered(u *user.User) {
	rs, ok := c.store.RoomOf(u)
	if !ok || !rs.Chess.Active() {
		return
	}
	rs.Chess.Following[u.PublicID] = struct{}{}
}
