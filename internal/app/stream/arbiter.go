/*
Package stream arbitrates the fixed array of broadcast slots in every room against the
SFU pool.

Every exported method runs on the event loop. SFU calls run through Scheduler.Go and
post their results back; each continuation re-checks the slot generation and the
participant it was started for before it touches state, so a user who stopped,
disconnected or changed rooms in the meantime is never acted upon.
*/
package stream

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/sfu"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
)

const (
	// DefaultLiveness is how long a new publisher has to obtain an SFU handle.
	DefaultLiveness = 10 * time.Second

	defaultCallTimeout = 15 * time.Second
)

// Options are the publish flags requested by the client.
type Options struct {
	WithAudio bool
	WithVideo bool
	Private   bool
}

// Config tunes an Arbiter.
type Config struct {
	// Liveness is the window a publisher has to complete negotiation.
	Liveness time.Duration

	// CallTimeout bounds every SFU call.
	CallTimeout time.Duration

	// Fatal is invoked with SFU errors that carry the wedged signature. It defaults to
	// logging at fatal level, which exits the process.
	Fatal func(err error)
}

// slotKey addresses a slot independently of pointers that may be replaced.
type slotKey struct {
	area string
	room string
	slot world.SlotID
}

// Arbiter owns slot reservation and SFU negotiation.
type Arbiter struct {
	store  *world.Store
	sched  loop.Scheduler
	router *broadcast.Router
	pool   *sfu.Pool
	cfg    Config

	// negotiations is keyed by participant identity, so a replaced participant never
	// inherits the state of its predecessor.
	negotiations map[*world.Participant]*negotiation

	logger zerolog.Logger
}

// NewArbiter creates an Arbiter. A nil pool behaves like an empty one: slots can be
// reserved but negotiation fails.
func NewArbiter(store *world.Store, sched loop.Scheduler, router *broadcast.Router, pool *sfu.Pool, cfg Config) *Arbiter {
	if pool == nil {
		pool = sfu.NewPool()
	}
	if cfg.Liveness <= 0 {
		cfg.Liveness = DefaultLiveness
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(err error) {
			logx.Fatal(err, "SFU is wedged, exiting so the supervisor can restart the server")
		}
	}

	a := &Arbiter{
		store:        store,
		sched:        sched,
		router:       router,
		pool:         pool,
		cfg:          cfg,
		negotiations: make(map[*world.Participant]*negotiation),
		logger:       logx.For("Arbiter"),
	}

	pool.OnHangup(func(server int, handle uint64) {
		sched.Post(func() { a.HandleHangup(server, handle) })
	})

	return a
}

func (a *Arbiter) resolve(k slotKey) (*world.RoomState, *world.StreamSlot, bool) {
	rs, ok := a.store.Room(k.area, k.room)
	if !ok {
		return nil, nil, false
	}
	return rs, rs.Slot(k.slot), true
}

func (a *Arbiter) lookup(u *user.User, index int) (*world.RoomState, world.SlotID, error) {
	rs, ok := a.store.RoomOf(u)
	if !ok {
		return nil, world.SlotID{}, errs.NewError(errs.ErrUnknownRoom)
	}
	id, err := rs.SlotID(index)
	if err != nil {
		return nil, world.SlotID{}, err
	}
	return rs, id, nil
}

func keyOf(rs *world.RoomState, id world.SlotID) slotKey {
	return slotKey{area: rs.Area(), room: rs.Room.ID, slot: id}
}

// contention explains why u cannot take a slot published by someone else.
func (a *Arbiter) contention(u *user.User, slot *world.StreamSlot) error {
	if publisher, ok := a.store.User(slot.Publisher.UserID); ok {
		if publisher.Blocks(u.IP) {
			return errs.NewError(errs.ErrBlockedByPublisher)
		}
		if u.Blocks(publisher.IP) {
			return errs.NewError(errs.ErrPublisherBlocked)
		}
	}
	return errs.NewError(errs.ErrSlotTaken)
}

// RequestPublish reserves a slot for u. A slot held by someone else is refused with
// ErrBlockedByPublisher, ErrPublisherBlocked or ErrSlotTaken. A slot u already
// publishes in is released first.
func (a *Arbiter) RequestPublish(u *user.User, index int, opts Options) error {
	rs, id, err := a.lookup(u, index)
	if err != nil {
		return err
	}

	slot := rs.Slot(id)
	if slot.Active && slot.Publisher != nil && !slot.PublishedBy(u.PublicID) {
		return a.contention(u, slot)
	}

	if current, ok := rs.PublisherSlot(u.PublicID); ok {
		a.clear(rs, current, "republish")
	}

	slot.Generation++
	gen := slot.Generation
	key := keyOf(rs, id)

	slot.Active = true
	slot.Ready = false
	slot.WithAudio = opts.WithAudio
	slot.WithVideo = opts.WithVideo
	slot.Private = opts.Private
	slot.Publisher = &world.Participant{UserID: u.PublicID}
	a.negotiations[slot.Publisher] = &negotiation{phase: phaseIdle}
	slot.Liveness = a.sched.AfterFunc(a.cfg.Liveness, func() { a.expire(key, gen) })

	a.logger.Info().
		Str("user_id", u.PublicID).
		Str("room", rs.Room.ID).
		Int("slot", id.Index()).
		Msg("Slot reserved.")

	a.router.SlotsChanged(rs)
	return nil
}

// expire clears a slot whose publisher never obtained a handle.
func (a *Arbiter) expire(key slotKey, gen uint64) {
	rs, slot, ok := a.resolve(key)
	if !ok || slot.Generation != gen || slot.Publisher == nil || slot.Publisher.Handle != 0 {
		return
	}

	publisher := slot.Publisher.UserID
	a.logger.Warn().
		Str("user_id", publisher).
		Str("room", key.room).
		Int("slot", key.slot.Index()).
		Msg("Publisher did not negotiate in time, releasing slot.")

	a.clear(rs, key.slot, "liveness_timeout")
	a.router.ToUser(publisher, errorEvent(errs.ErrStreamNegotiationFailed))
}

// StopPublish releases the slot u publishes in.
func (a *Arbiter) StopPublish(u *user.User) error {
	rs, ok := a.store.RoomOf(u)
	if !ok {
		return errs.NewError(errs.ErrUnknownRoom)
	}
	id, ok := rs.PublisherSlot(u.PublicID)
	if !ok {
		return errs.NewError(errs.ErrNotPublisher)
	}
	a.clear(rs, id, "stopped")
	return nil
}

// RequestListen starts a subscription of u to the publisher of a ready slot.
func (a *Arbiter) RequestListen(u *user.User, index int) error {
	rs, id, err := a.lookup(u, index)
	if err != nil {
		return err
	}

	slot := rs.Slot(id)
	if !slot.Active || !slot.Ready || slot.Publisher == nil || rs.SFU == nil {
		return errs.NewError(errs.ErrSlotNotReady)
	}
	if slot.PublishedBy(u.PublicID) {
		return errs.NewError(errs.ErrInvalidSlot)
	}
	if publisher, ok := a.store.User(slot.Publisher.UserID); ok {
		if publisher.Blocks(u.IP) {
			return errs.NewError(errs.ErrBlockedByPublisher)
		}
		if u.Blocks(publisher.IP) {
			return errs.NewError(errs.ErrPublisherBlocked)
		}
	}

	if _, ok := slot.Listeners[u.PublicID]; ok {
		a.dropListener(rs, slot, u.PublicID)
	}

	p := &world.Participant{UserID: u.PublicID}
	slot.Listeners[u.PublicID] = p
	a.negotiations[p] = &negotiation{phase: phaseSubscribing}

	key, gen := keyOf(rs, id), slot.Generation
	server, roomID, feed := rs.SFU.Server, rs.SFU.RoomID, slot.Feed
	client := a.pool.Client(server)

	a.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()

		sub, err := client.Subscribe(ctx, roomID, feed)
		a.sched.Post(func() { a.onSubscribed(key, gen, server, p, sub, err) })
	})

	return nil
}

func (a *Arbiter) onSubscribed(key slotKey, gen uint64, server int, p *world.Participant, sub sfu.Subscription, err error) {
	rs, slot, ok := a.resolve(key)
	valid := ok && slot.Generation == gen && slot.Listeners[p.UserID] == p

	if err != nil {
		if sfu.IsWedged(err) {
			a.cfg.Fatal(err)
			return
		}
		a.logger.Error().Err(err).Str("user_id", p.UserID).Msg("SFU subscribe failed.")
		if valid {
			a.dropListener(rs, slot, p.UserID)
			a.router.ToUser(p.UserID, errorEvent(errs.ErrStreamNegotiationFailed))
		}
		return
	}

	if !valid {
		a.detach(server, sub.Handle)
		return
	}

	n := a.negotiations[p]
	p.Handle = sub.Handle
	n.advance(phaseSubscribing, phaseAwaitingAnswer)

	a.router.ToUser(p.UserID, protocol.SignalFromDescription(key.slot.Index(), sub.Offer))
	a.flush(server, p, n)
}

// DropListen ends u's subscription to a slot. Dropping a subscription that does not
// exist is not an error.
func (a *Arbiter) DropListen(u *user.User, index int) error {
	rs, id, err := a.lookup(u, index)
	if err != nil {
		return err
	}
	slot := rs.Slot(id)
	if _, ok := slot.Listeners[u.PublicID]; ok {
		a.dropListener(rs, slot, u.PublicID)
	}
	return nil
}

func (a *Arbiter) dropListener(rs *world.RoomState, slot *world.StreamSlot, userID string) {
	p := slot.Listeners[userID]
	delete(slot.Listeners, userID)
	delete(a.negotiations, p)

	if p != nil && p.Handle != 0 && rs.SFU != nil {
		a.detach(rs.SFU.Server, p.Handle)
	}
}

// RelaySignal routes one signalling message from u. Publishers send an offer and
// candidates; listeners send an answer and candidates.
func (a *Arbiter) RelaySignal(u *user.User, sig protocol.RelaySignal) error {
	rs, id, err := a.lookup(u, sig.Slot)
	if err != nil {
		return err
	}

	slot := rs.Slot(id)
	if slot.PublishedBy(u.PublicID) {
		return a.publisherSignal(rs, id, slot, sig)
	}
	if p, ok := slot.Listeners[u.PublicID]; ok {
		return a.listenerSignal(rs, id, slot, p, sig)
	}
	return errs.NewError(errs.ErrNotPublisher)
}

func (a *Arbiter) publisherSignal(rs *world.RoomState, id world.SlotID, slot *world.StreamSlot, sig protocol.RelaySignal) error {
	p := slot.Publisher
	n := a.negotiations[p]
	if n == nil {
		return errs.NewError(errs.ErrInvalidSignal)
	}

	switch sig.Type {
	case protocol.SignalCandidate:
		return a.trickle(rs, p, n, *sig.Candidate)

	case protocol.SignalOffer:
		if n.phase != phaseIdle {
			return errs.NewError(errs.ErrInvalidSignal)
		}
		offer := sig.Description()
		if err := inspectOffer(offer); err != nil {
			return err
		}

		if rs.SFU == nil {
			server, err := a.pool.Acquire()
			if err != nil {
				a.logger.Error().Err(err).Str("room", rs.Room.ID).Msg("No SFU available for publish.")
				a.clear(rs, id, "no_sfu")
				return errs.NewError(errs.ErrStreamNegotiationFailed)
			}
			rs.SFU = &world.SFURoom{Server: server, RoomID: sfu.RoomID(rs.Area(), rs.Room.ID)}
		}

		n.advance(phaseIdle, phasePublishing)

		key, gen := keyOf(rs, id), slot.Generation
		server, roomID := rs.SFU.Server, rs.SFU.RoomID
		client := a.pool.Client(server)

		a.sched.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
			defer cancel()

			var pub sfu.Publication
			err := client.CreateRoom(ctx, roomID)
			if err == nil {
				pub, err = client.Publish(ctx, roomID, offer)
			}
			a.sched.Post(func() { a.onPublished(key, gen, server, p, pub, err) })
		})
		return nil
	}

	return errs.NewError(errs.ErrInvalidSignal)
}

// inspectOffer rejects offers that do not parse or carry no media.
func inspectOffer(offer webrtc.SessionDescription) error {
	parsed, err := offer.Unmarshal()
	if err != nil || len(parsed.MediaDescriptions) == 0 {
		return errs.NewError(errs.ErrInvalidSignal)
	}
	return nil
}

func (a *Arbiter) onPublished(key slotKey, gen uint64, server int, p *world.Participant, pub sfu.Publication, err error) {
	rs, slot, ok := a.resolve(key)
	valid := ok && slot.Generation == gen && slot.Publisher == p

	if err != nil {
		if sfu.IsWedged(err) {
			a.cfg.Fatal(err)
			return
		}
		a.logger.Error().Err(err).Str("user_id", p.UserID).Msg("SFU publish failed.")
		if valid {
			a.clear(rs, key.slot, "sfu_error")
			a.router.ToUser(p.UserID, errorEvent(errs.ErrStreamNegotiationFailed))
		}
		return
	}

	if !valid {
		a.detach(server, pub.Handle)
		return
	}

	n := a.negotiations[p]
	p.Handle = pub.Handle
	slot.Feed = pub.Feed
	slot.Ready = true
	if slot.Liveness != nil {
		slot.Liveness.Stop()
	}
	n.advance(phasePublishing, phaseEstablished)

	a.router.ToUser(p.UserID, protocol.SignalFromDescription(key.slot.Index(), pub.Answer))
	a.flush(server, p, n)
	a.router.SlotsChanged(rs)

	a.logger.Info().Str("user_id", p.UserID).Str("room", key.room).Int("slot", key.slot.Index()).Msg("Slot ready.")
}

func (a *Arbiter) listenerSignal(rs *world.RoomState, id world.SlotID, slot *world.StreamSlot, p *world.Participant, sig protocol.RelaySignal) error {
	n := a.negotiations[p]
	if n == nil {
		return errs.NewError(errs.ErrInvalidSignal)
	}

	switch sig.Type {
	case protocol.SignalCandidate:
		return a.trickle(rs, p, n, *sig.Candidate)

	case protocol.SignalAnswer:
		if !n.advance(phaseAwaitingAnswer, phaseStarting) {
			return errs.NewError(errs.ErrInvalidSignal)
		}

		key, gen := keyOf(rs, id), slot.Generation
		client, handle, answer := a.pool.Client(rs.SFU.Server), p.Handle, sig.Description()

		a.sched.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
			defer cancel()

			err := client.Start(ctx, handle, answer)
			a.sched.Post(func() { a.onStarted(key, gen, p, err) })
		})
		return nil
	}

	return errs.NewError(errs.ErrInvalidSignal)
}

func (a *Arbiter) onStarted(key slotKey, gen uint64, p *world.Participant, err error) {
	rs, slot, ok := a.resolve(key)
	valid := ok && slot.Generation == gen && slot.Listeners[p.UserID] == p
	if !valid {
		return
	}

	if err != nil {
		if sfu.IsWedged(err) {
			a.cfg.Fatal(err)
			return
		}
		a.logger.Error().Err(err).Str("user_id", p.UserID).Msg("SFU start failed.")
		a.dropListener(rs, slot, p.UserID)
		a.router.ToUser(p.UserID, errorEvent(errs.ErrStreamNegotiationFailed))
		return
	}

	a.negotiations[p].advance(phaseStarting, phaseEstablished)
}

// trickle forwards c once p has a handle and queues it until then.
func (a *Arbiter) trickle(rs *world.RoomState, p *world.Participant, n *negotiation, c webrtc.ICECandidateInit) error {
	if p.Handle == 0 || rs.SFU == nil {
		n.queue(c)
		return nil
	}
	a.sendCandidates(rs.SFU.Server, p.Handle, []webrtc.ICECandidateInit{c})
	return nil
}

func (a *Arbiter) flush(server int, p *world.Participant, n *negotiation) {
	if pending := n.drain(); len(pending) > 0 {
		a.sendCandidates(server, p.Handle, pending)
	}
}

func (a *Arbiter) sendCandidates(server int, handle uint64, candidates []webrtc.ICECandidateInit) {
	client := a.pool.Client(server)
	a.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()

		for _, c := range candidates {
			if err := client.Trickle(ctx, handle, c); err != nil {
				a.logger.Warn().Err(err).Uint64("handle_id", handle).Msg("Failed to trickle candidate.")
				return
			}
		}
	})
}

func (a *Arbiter) detach(server int, handle uint64) {
	if handle == 0 {
		return
	}
	client := a.pool.Client(server)
	a.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()

		if err := client.Detach(ctx, handle); err != nil {
			a.logger.Warn().Err(err).Uint64("handle_id", handle).Msg("Failed to detach SFU handle.")
		}
	})
}

// clear frees a slot, detaches every handle tied to it and tears down the room's SFU
// mapping once nothing in the room is active.
func (a *Arbiter) clear(rs *world.RoomState, id world.SlotID, reason string) {
	slot := rs.Slot(id)

	if slot.Publisher != nil {
		if rs.SFU != nil {
			a.detach(rs.SFU.Server, slot.Publisher.Handle)
		}
		delete(a.negotiations, slot.Publisher)

		a.logger.Info().
			Str("user_id", slot.Publisher.UserID).
			Str("room", rs.Room.ID).
			Int("slot", id.Index()).
			Str("reason", reason).
			Msg("Slot released.")
	}
	for _, p := range slot.Listeners {
		if rs.SFU != nil {
			a.detach(rs.SFU.Server, p.Handle)
		}
		delete(a.negotiations, p)
	}

	slot.Clear()
	a.router.SlotsChanged(rs)

	if !rs.AnyActive() && rs.SFU != nil {
		a.destroyRoom(rs)
	}
}

func (a *Arbiter) destroyRoom(rs *world.RoomState) {
	mapping := rs.SFU
	rs.SFU = nil
	a.pool.Release(mapping.Server)

	client := a.pool.Client(mapping.Server)
	a.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()

		if err := client.DestroyRoom(ctx, mapping.RoomID); err != nil {
			a.logger.Warn().Err(err).Uint64("sfu_room", mapping.RoomID).Msg("Failed to destroy SFU room.")
		}
	})
}

// ReleaseUser drops everything u holds in its current room: the slot it publishes in
// and every subscription.
func (a *Arbiter) ReleaseUser(u *user.User) {
	rs, ok := a.store.RoomOf(u)
	if !ok {
		return
	}
	if id, ok := rs.PublisherSlot(u.PublicID); ok {
		a.clear(rs, id, "released")
	}
	for _, slot := range rs.Slots {
		if _, ok := slot.Listeners[u.PublicID]; ok {
			a.dropListener(rs, slot, u.PublicID)
		}
	}
}

// Leaving implements world.Observer.
func (a *Arbiter) Leaving(u *user.User) {
	a.ReleaseUser(u)
}

// Entered implements world.Observer.
func (a *Arbiter) Entered(*user.User) {}

// HandleHangup reacts to the SFU dropping a handle on its own.
func (a *Arbiter) HandleHangup(server int, handle uint64) {
	for _, rs := range a.store.AllRooms() {
		if rs.SFU == nil || rs.SFU.Server != server {
			continue
		}
		for _, id := range rs.SlotIDs() {
			slot := rs.Slot(id)
			if slot.Publisher != nil && slot.Publisher.Handle == handle {
				a.clear(rs, id, "sfu_hangup")
				return
			}
			for userID, p := range slot.Listeners {
				if p.Handle == handle {
					a.dropListener(rs, slot, userID)
					a.router.ToUser(userID, errorEvent(errs.ErrStreamNegotiationFailed))
					return
				}
			}
		}
	}
}

func errorEvent(code int) protocol.Error {
	e := errs.NewError(code)
	return protocol.Error{Code: e.Code, Message: e.Message}
}
