package sfu

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"gridroom/internal/pkg/logx"
)

const (
	// janusSubprotocol is required by the Janus websocket transport.
	janusSubprotocol = "janus-protocol"

	videoroomPlugin = "janus.plugin.videoroom"

	// keepAlivePeriod must stay below the server's session_timeout (60s by default).
	keepAlivePeriod = 25 * time.Second

	janusWriteWait = 10 * time.Second
)

// janusMessage is any frame received from Janus.
type janusMessage struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	Sender      uint64 `json:"sender"`
	Data        struct {
		ID uint64 `json:"id"`
	} `json:"data"`
	Error *struct {
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
	PluginData struct {
		Plugin string          `json:"plugin"`
		Data   json.RawMessage `json:"data"`
	} `json:"plugindata"`
	JSEP *webrtc.SessionDescription `json:"jsep"`
}

// videoroomData is the plugin payload of videoroom responses.
type videoroomData struct {
	Videoroom string `json:"videoroom"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
	ID        uint64 `json:"id"`
}

func (m *janusMessage) videoroom() (videoroomData, error) {
	var d videoroomData
	if len(m.PluginData.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(m.PluginData.Data, &d); err != nil {
		return d, fmt.Errorf("decode videoroom data: %w", err)
	}
	if d.ErrorCode != 0 {
		return d, &Error{Code: d.ErrorCode, Reason: d.Error}
	}
	return d, nil
}

// Janus is a Client speaking the Janus websocket API. One Janus session is held per
// connection; every publisher and subscriber gets its own plugin handle.
type Janus struct {
	url  string
	conn *websocket.Conn

	// session is the Janus session id.
	session uint64

	// control is the handle used for room administration.
	control uint64

	// pending routes responses to the request waiting on their transaction.
	pending map[string]chan janusMessage
	mu      sync.Mutex

	// writeMu serializes writes; gorilla connections allow one concurrent writer.
	writeMu sync.Mutex

	hangup func(handle uint64)

	closed    chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// DialJanus connects to url, creates a session and attaches the control handle.
func DialJanus(ctx context.Context, url string) (*Janus, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{janusSubprotocol},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	j := &Janus{
		url:     url,
		conn:    conn,
		pending: make(map[string]chan janusMessage),
		closed:  make(chan struct{}),
		logger:  logx.For("Janus").With().Str("sfu_url", url).Logger(),
	}

	go j.readLoop()

	msg, err := j.request(ctx, map[string]any{"janus": "create"}, false)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	j.session = msg.Data.ID

	if j.control, err = j.attach(ctx); err != nil {
		j.Close()
		return nil, fmt.Errorf("attach control handle: %w", err)
	}

	go j.keepAlive()

	j.logger.Info().Uint64("session_id", j.session).Msg("Connected to SFU.")
	return j, nil
}

// Close tears down the connection. Pending requests fail with ErrClosed.
func (j *Janus) Close() {
	j.closeOnce.Do(func() {
		close(j.closed)
		if err := j.conn.Close(); err != nil {
			j.logger.Warn().Err(err).Msg("SFU connection close error.")
		}
	})
}

// OnHangup implements Client.
func (j *Janus) OnHangup(fn func(handle uint64)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hangup = fn
}

func (j *Janus) readLoop() {
	defer j.Close()

	for {
		_, data, err := j.conn.ReadMessage()
		if err != nil {
			select {
			case <-j.closed:
			default:
				j.logger.Error().Err(err).Msg("SFU connection lost.")
			}
			return
		}

		var msg janusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			j.logger.Warn().Err(err).Msg("SFU sent invalid JSON.")
			continue
		}

		j.mu.Lock()
		ch, waiting := j.pending[msg.Transaction]
		hangup := j.hangup
		j.mu.Unlock()

		if waiting && msg.Transaction != "" {
			select {
			case ch <- msg:
			default:
				j.logger.Warn().Str("transaction", msg.Transaction).Msg("Response channel full, dropping SFU message.")
			}
			continue
		}

		switch msg.Janus {
		case "hangup", "detached":
			if hangup != nil && msg.Sender != 0 {
				hangup(msg.Sender)
			}
		case "timeout":
			j.logger.Error().Uint64("session_id", j.session).Msg("SFU session timed out.")
			return
		default:
			j.logger.Debug().Str("janus", msg.Janus).Uint64("sender", msg.Sender).Msg("SFU event.")
		}
	}
}

func (j *Janus) keepAlive() {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-j.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), janusWriteWait)
			if _, err := j.request(ctx, map[string]any{"janus": "keepalive"}, false); err != nil {
				j.logger.Warn().Err(err).Msg("SFU keepalive failed.")
			}
			cancel()
		}
	}
}

// request sends body and waits for its response. With awaitEvent the initial ack is
// skipped and the asynchronous plugin event is returned instead.
func (j *Janus) request(ctx context.Context, body map[string]any, awaitEvent bool) (janusMessage, error) {
	tx := uuid.NewString()
	body["transaction"] = tx
	if j.session != 0 {
		body["session_id"] = j.session
	}

	ch := make(chan janusMessage, 4)
	j.mu.Lock()
	j.pending[tx] = ch
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		delete(j.pending, tx)
		j.mu.Unlock()
	}()

	if err := j.write(body); err != nil {
		return janusMessage{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return janusMessage{}, ctx.Err()
		case <-j.closed:
			return janusMessage{}, ErrClosed
		case msg := <-ch:
			switch msg.Janus {
			case "ack":
				if awaitEvent {
					continue
				}
				return msg, nil
			case "error":
				if msg.Error != nil {
					return msg, &Error{Code: msg.Error.Code, Reason: msg.Error.Reason}
				}
				return msg, &Error{Reason: "unspecified error"}
			default:
				if _, err := msg.videoroom(); err != nil {
					return msg, err
				}
				return msg, nil
			}
		}
	}
}

func (j *Janus) write(body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	select {
	case <-j.closed:
		return ErrClosed
	default:
	}

	if err := j.conn.SetWriteDeadline(time.Now().Add(janusWriteWait)); err != nil {
		return err
	}
	return j.conn.WriteMessage(websocket.TextMessage, data)
}

func (j *Janus) attach(ctx context.Context) (uint64, error) {
	msg, err := j.request(ctx, map[string]any{"janus": "attach", "plugin": videoroomPlugin}, false)
	if err != nil {
		return 0, err
	}
	return msg.Data.ID, nil
}

func (j *Janus) message(ctx context.Context, handle uint64, body map[string]any, jsep *webrtc.SessionDescription, awaitEvent bool) (janusMessage, error) {
	req := map[string]any{
		"janus":     "message",
		"handle_id": handle,
		"body":      body,
	}
	if jsep != nil {
		req["jsep"] = jsep
	}
	return j.request(ctx, req, awaitEvent)
}

// CreateRoom implements Client.
func (j *Janus) CreateRoom(ctx context.Context, roomID uint64) error {
	_, err := j.message(ctx, j.control, map[string]any{
		"request":    "create",
		"room":       roomID,
		"publishers": 16,
		"permanent":  false,
	}, nil, false)
	if Code(err) == CodeRoomExists {
		return nil
	}
	return err
}

// DestroyRoom implements Client.
func (j *Janus) DestroyRoom(ctx context.Context, roomID uint64) error {
	_, err := j.message(ctx, j.control, map[string]any{
		"request": "destroy",
		"room":    roomID,
	}, nil, false)
	if Code(err) == CodeNoSuchRoom {
		return nil
	}
	return err
}

// Publish implements Client.
func (j *Janus) Publish(ctx context.Context, roomID uint64, offer webrtc.SessionDescription) (Publication, error) {
	handle, err := j.attach(ctx)
	if err != nil {
		return Publication{}, err
	}

	msg, err := j.message(ctx, handle, map[string]any{
		"request": "joinandconfigure",
		"ptype":   "publisher",
		"room":    roomID,
		"audio":   true,
		"video":   true,
	}, &offer, true)
	if err == nil && msg.JSEP == nil {
		err = &Error{Reason: "publish response without answer"}
	}
	if err != nil {
		j.detachQuietly(handle)
		return Publication{}, err
	}

	data, _ := msg.videoroom()
	return Publication{Handle: handle, Feed: data.ID, Answer: *msg.JSEP}, nil
}

// Subscribe implements Client.
func (j *Janus) Subscribe(ctx context.Context, roomID, feed uint64) (Subscription, error) {
	handle, err := j.attach(ctx)
	if err != nil {
		return Subscription{}, err
	}

	msg, err := j.message(ctx, handle, map[string]any{
		"request": "join",
		"ptype":   "subscriber",
		"room":    roomID,
		"feed":    feed,
	}, nil, true)
	if err == nil && msg.JSEP == nil {
		err = &Error{Reason: "subscribe response without offer"}
	}
	if err != nil {
		j.detachQuietly(handle)
		return Subscription{}, err
	}

	return Subscription{Handle: handle, Offer: *msg.JSEP}, nil
}

// Start implements Client.
func (j *Janus) Start(ctx context.Context, handle uint64, answer webrtc.SessionDescription) error {
	_, err := j.message(ctx, handle, map[string]any{"request": "start"}, &answer, true)
	return err
}

// Trickle implements Client.
func (j *Janus) Trickle(ctx context.Context, handle uint64, candidate webrtc.ICECandidateInit) error {
	_, err := j.request(ctx, map[string]any{
		"janus":     "trickle",
		"handle_id": handle,
		"candidate": candidate,
	}, false)
	return err
}

// Detach implements Client.
func (j *Janus) Detach(ctx context.Context, handle uint64) error {
	_, err := j.request(ctx, map[string]any{
		"janus":     "detach",
		"handle_id": handle,
	}, false)
	return err
}

func (j *Janus) detachQuietly(handle uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), janusWriteWait)
	defer cancel()

	if err := j.Detach(ctx, handle); err != nil {
		j.logger.Warn().Err(err).Uint64("handle_id", handle).Msg("Failed to detach handle after error.")
	}
}
