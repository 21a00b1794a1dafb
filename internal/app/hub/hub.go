/*
Package hub wires the world together and connects it to the outside.

The Hub builds every component around one world.Store, dispatches decoded websocket
events to them on the event loop, runs the presence sweep and the persistence save on
their own tickers, and exposes the handful of calls the HTTP layer needs.
*/
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/game"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/movement"
	"gridroom/internal/app/persist"
	"gridroom/internal/app/presence"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/sfu"
	"gridroom/internal/app/stream"
	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/configs"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/tripcode"
)

// saveTimeout bounds one persistence save.
const saveTimeout = 10 * time.Second

// Hub is the entry point into the world for transports.
type Hub struct {
	sched   loop.Scheduler
	store   *world.Store
	router  *broadcast.Router
	backend persist.Store

	presence *presence.Manager
	moves    *movement.Engine
	streams  *stream.Arbiter
	games    *game.Coordinator

	sweepInterval time.Duration
	saveInterval  time.Duration

	// stopChan stops the ticker goroutines.
	stopChan chan struct{}
	stopOnce sync.Once

	// wg waits for the ticker goroutines during shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// New builds the world described by topo. pool may be nil when streaming is disabled and
// backend may be nil when nothing is persisted.
func New(cfg *configs.AppConfig, topo *topology.Topology, sched loop.Scheduler, pool *sfu.Pool, backend persist.Store) *Hub {
	if backend == nil {
		backend = persist.NewMemory()
	}

	store := world.NewStore(topo)
	router := broadcast.NewRouter(store)

	moves := movement.NewEngine(store, sched, router, movement.Config{SpinWindow: cfg.SpinWindow})
	streams := stream.NewArbiter(store, sched, router, pool, stream.Config{Liveness: cfg.SlotLiveness})
	games := game.NewCoordinator(store, sched, router, game.Config{TurnTimeout: cfg.TurnTimeout})
	moves.Observe(streams, games)

	manager := presence.NewManager(store, sched, router, tripcode.NewSigner(cfg.TripcodeSalt), moves, streams, presence.Config{
		GhostRetention:      cfg.GhostRetention,
		InactivityThreshold: cfg.InactivityThreshold,
		MaxSessionsPerIP:    cfg.MaxSessionsPerIP,
		FloodLimit:          cfg.FloodLimit,
		FloodWindow:         cfg.FloodWindow,
	})
	moves.SetActivity(manager)

	sweep, save := cfg.SweepInterval, cfg.SaveInterval
	if sweep <= 0 {
		sweep = time.Second
	}
	if save <= 0 {
		save = 5 * time.Second
	}

	return &Hub{
		sched:         sched,
		store:         store,
		router:        router,
		backend:       backend,
		presence:      manager,
		moves:         moves,
		streams:       streams,
		games:         games,
		sweepInterval: sweep,
		saveInterval:  save,
		stopChan:      make(chan struct{}),
		logger:        logx.For("Hub"),
	}
}

// Restore loads the persisted presence set. A failed load is logged and the world starts
// empty.
func (h *Hub) Restore(ctx context.Context) {
	state, err := h.backend.Load(ctx)
	if errors.Is(err, persist.ErrNoState) {
		h.logger.Info().Msg("No saved presence state, starting empty.")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Int("code", errs.ErrPersistenceFailed).Msg("Failed to restore presence, starting empty.")
		return
	}

	if err := h.sched.Call(func() { h.presence.Restore(state) }); err != nil {
		h.logger.Error().Err(err).Msg("Event loop refused restore.")
	}
}

// Start launches the sweep and save tickers.
func (h *Hub) Start() {
	h.wg.Add(2)
	go h.runTicker("sweep", h.sweepInterval, func() { h.sched.Post(h.presence.Sweep) })
	go h.runTicker("save", h.saveInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := h.Save(ctx); err != nil {
			h.logger.Error().Err(err).Int("code", errs.ErrPersistenceFailed).Msg("Failed to save presence.")
		}
	})
}

func (h *Hub) runTicker(name string, every time.Duration, fn func()) {
	defer h.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	h.logger.Info().Str("ticker", name).Dur("interval", every).Msg("Ticker started.")

	for {
		select {
		case <-ticker.C:
			fn()
		case <-h.stopChan:
			h.logger.Info().Str("ticker", name).Msg("Ticker stopped.")
			return
		}
	}
}

// Save snapshots the presence set on the event loop and writes it to the backend.
func (h *Hub) Save(ctx context.Context) error {
	var state persist.State
	if err := h.sched.Call(func() { state = h.presence.Snapshot() }); err != nil {
		return err
	}
	return h.backend.Save(ctx, state)
}

// Shutdown stops the tickers and writes a final snapshot. The event loop must still be
// running.
func (h *Hub) Shutdown(ctx context.Context) {
	h.logger.Info().Msg("Shutting down hub...")

	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()

	if err := h.Save(ctx); err != nil {
		h.logger.Error().Err(err).Msg("Final presence save failed.")
	}

	h.logger.Info().Msg("Hub shutdown complete.")
}

// call runs fn on the event loop and maps a stopped loop to ErrServerBusy.
func (h *Hub) call(fn func()) error {
	if err := h.sched.Call(fn); err != nil {
		return errs.NewError(errs.ErrServerBusy)
	}
	return nil
}

// Login creates a session.
func (h *Hub) Login(req presence.LoginRequest) (presence.Session, error) {
	var (
		s   presence.Session
		err error
	)
	if callErr := h.call(func() { s, err = h.presence.Login(req) }); callErr != nil {
		return presence.Session{}, callErr
	}
	return s, err
}

// Connect attaches conn to the session owning privateID.
func (h *Hub) Connect(privateID, ip string, conn broadcast.Conn) (*user.User, error) {
	var (
		u   *user.User
		err error
	)
	if callErr := h.call(func() { u, err = h.presence.Connect(privateID, ip, conn) }); callErr != nil {
		return nil, callErr
	}
	return u, err
}

// Disconnect ghosts u if conn is still its connection.
func (h *Hub) Disconnect(u *user.User, conn broadcast.Conn) {
	h.sched.Post(func() { h.presence.Disconnect(u, conn) })
}

// Submit queues ev from u for dispatch on the event loop.
func (h *Hub) Submit(u *user.User, ev protocol.Inbound) {
	h.sched.Post(func() { h.Dispatch(u, ev) })
}

// Ban bans addresses and returns the number of users purged.
func (h *Hub) Ban(ips []string) (int, error) {
	var n int
	err := h.call(func() { n = h.presence.Ban(ips) })
	return n, err
}

// Unban lifts bans.
func (h *Hub) Unban(ips []string) error {
	return h.call(func() { h.presence.Unban(ips) })
}

// RoomView describes a room to an outside observer.
func (h *Hub) RoomView(areaID, roomID string) (protocol.RoomState, error) {
	var (
		view protocol.RoomState
		err  error
	)
	callErr := h.call(func() {
		rs, ok := h.store.Room(areaID, roomID)
		if !ok {
			err = errs.NewError(errs.ErrUnknownRoom)
			return
		}
		view = h.router.Snapshot(rs, &user.User{})
	})
	if callErr != nil {
		return protocol.RoomState{}, callErr
	}
	return view, err
}

// Stats returns occupant and stream counts of an area.
func (h *Hub) Stats(areaID string) (protocol.StatsUpdated, error) {
	var (
		stats protocol.StatsUpdated
		err   error
	)
	callErr := h.call(func() {
		if _, ok := h.store.Topology().Area(areaID); !ok {
			err = errs.NewError(errs.ErrUnknownArea)
			return
		}
		stats = h.router.Stats(areaID)
	})
	if callErr != nil {
		return protocol.StatsUpdated{}, callErr
	}
	return stats, err
}
