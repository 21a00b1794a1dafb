package hub

import (
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/stream"
	"gridroom/internal/app/user"
	"gridroom/internal/pkg/errs"
)

// Dispatch routes one event from u to the component that owns it. It runs on the event
// loop; events from users purged in the meantime are dropped.
func (h *Hub) Dispatch(u *user.User, ev protocol.Inbound) {
	if current, ok := h.store.User(u.PublicID); !ok || current != u || !u.Connected() {
		return
	}

	var err error

	switch e := ev.(type) {
	case *protocol.Ping:
		h.router.ToUser(u.PublicID, protocol.Pong{})

	case *protocol.SendMessage:
		err = h.presence.SendMessage(u, e.Text)

	case *protocol.Move:
		_, err = h.moves.Move(u, e.Direction)

	case *protocol.SetBubblePosition:
		err = h.presence.SetBubblePosition(u, e.Position)

	case *protocol.RequestPublish:
		opts := stream.Options{WithAudio: e.WithAudio, WithVideo: e.WithVideo, Private: e.Private}
		if err := h.streams.RequestPublish(u, e.Slot, opts); err != nil {
			ce := errs.As(err)
			h.router.ToUser(u.PublicID, protocol.PublishRejected{Slot: e.Slot, Code: ce.Code, Reason: ce.Message})
		}
		return

	case *protocol.StopPublish:
		err = h.streams.StopPublish(u)

	case *protocol.RequestListen:
		err = h.streams.RequestListen(u, e.Slot)

	case *protocol.DropListen:
		err = h.streams.DropListen(u, e.Slot)

	case *protocol.RelaySignal:
		err = h.streams.RelaySignal(u, *e)

	case *protocol.ChangeRoom:
		err = h.moves.ChangeRoom(u, e.TargetRoom, e.TargetDoor)

	case *protocol.ListRooms:
		h.presence.ListRooms(u)

	case *protocol.BlockUser:
		err = h.presence.BlockUser(u, e.UserID)

	case *protocol.JoinGame:
		err = h.games.JoinGame(u)

	case *protocol.QuitGame:
		err = h.games.QuitGame(u)

	case *protocol.MakeMove:
		err = h.games.MakeMove(u, e.From, e.To, e.Promotion)

	case *protocol.Connect:
		err = errs.NewError(errs.ErrInvalidParams)

	default:
		err = errs.NewError(errs.ErrUnknownEvent)
	}

	if err != nil {
		h.sendError(u, err)
	}
}

// sendError reports err to u. Failures outside the request, validation and contention
// ranges are logged as well.
func (h *Hub) sendError(u *user.User, err error) {
	ce := errs.As(err)
	switch ce.Kind() {
	case errs.KindRequest, errs.KindValidation, errs.KindContention:
	default:
		h.logger.Error().Err(err).Str("user_id", u.PublicID).Msg("Event handler failed.")
	}
	h.router.ToUser(u.PublicID, protocol.Error{Code: ce.Code, Message: ce.Message})
}
