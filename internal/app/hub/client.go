package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gridroom/internal/app/protocol"
	"gridroom/internal/app/user"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client. SDP offers are the
	// largest frames.
	maxMessageSize = 64 * 1024

	// connectWait bounds how long a fresh socket may stay silent before sending connect.
	connectWait = 10 * time.Second

	// sendBuffer is the number of outbound frames queued per client.
	sendBuffer = 256
)

// Client is one websocket connection. It implements broadcast.Conn; Send and Kick never
// block, so the event loop can call them freely.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	ip   string

	// user is set once connect succeeds and only read by ReadPump afterwards.
	user *user.User

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// closeFrame carries at most one close frame; WritePump exits after writing it.
	closeFrame chan []byte

	logger zerolog.Logger
}

// NewClient wraps an upgraded websocket connection.
func NewClient(h *Hub, wsConn *websocket.Conn, ip string) *Client {
	return &Client{
		hub:        h,
		conn:       wsConn,
		ip:         ip,
		send:       make(chan []byte, sendBuffer),
		closeFrame: make(chan []byte, 1),
		logger:     logx.Logger().With().Str("component", "Client").Str("remote_ip", ip).Logger(),
	}
}

// Send implements broadcast.Conn.
func (c *Client) Send(ev protocol.Outbound) {
	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_type", ev.Type()).Msg("Error encoding outbound event")
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
	}
}

// Kick implements broadcast.Conn. Frames queued before the kick are still flushed.
func (c *Client) Kick(code int, reason string) {
	c.logger.Warn().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Sending WS close message and closing connection.")

	select {
	case c.closeFrame <- websocket.FormatCloseMessage(code, reason):
	default:
	}
}

// deny reports a failed connect and closes the socket.
func (c *Client) deny(err error) {
	ce := errs.As(err)
	c.Send(protocol.LoginDenied{Code: ce.Code, Reason: ce.Message})
	c.Kick(websocket.ClosePolicyViolation, ce.Message)
}

// ReadPump reads frames until the connection closes. The first frame must be connect;
// every later frame is decoded and handed to the hub.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(connectWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	if !c.handshake() {
		return
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		ev, err := protocol.Decode(messageBytes)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid frame")
			ce := errs.As(err)
			c.Send(protocol.Error{Code: ce.Code, Message: ce.Message})
			continue
		}

		c.hub.Submit(c.user, ev)
	}
}

// handshake reads and performs the connect frame.
func (c *Client) handshake() bool {
	_, messageBytes, err := c.conn.ReadMessage()
	if err != nil {
		c.logger.Info().Err(err).Msg("Connection closed before connect")
		return false
	}

	ev, err := protocol.Decode(messageBytes)
	if err != nil {
		c.deny(err)
		return false
	}

	connect, ok := ev.(*protocol.Connect)
	if !ok {
		c.deny(errs.NewError(errs.ErrConnectRequired))
		return false
	}

	u, err := c.hub.Connect(connect.PrivateID, c.ip, c)
	if err != nil {
		c.deny(err)
		return false
	}

	c.user = u
	c.logger.Info().Str("user_id", u.PublicID).Msg("Client connected.")
	return true
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	if c.user != nil {
		c.hub.Disconnect(c.user, c)
	}

	// WritePump exits on the close frame and closes the socket.
	c.Kick(websocket.CloseNormalClosure, "")
}

// WritePump handles writing messages from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(websocket.TextMessage, message) {
				return
			}

		case frame := <-c.closeFrame:
			c.flush()
			c.writeMessage(websocket.CloseMessage, frame)
			return

		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(websocket.TextMessage, message) {
				return
			}
		default:
			return
		}
	}
}

// writeMessage writes one frame under the write deadline. It returns false if the
// WritePump loop should terminate.
func (c *Client) writeMessage(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Int("frame_type", messageType).Msg("Error writing message")
		return false
	}

	return true
}
