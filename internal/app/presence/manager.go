/*
Package presence manages the lifecycle of user sessions.

A login creates a user record and hands back its public and private ids. The record is a
ghost until a websocket connects with the private id, turns back into a ghost when that
connection goes away, and is purged once it has been a ghost for longer than the
retention window. Purging cascades: the user's stream is released, its game forfeited and
its former room told it left.
*/
package presence

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/persist"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/randx"
	"gridroom/internal/pkg/tripcode"
)

const (
	// MaxNameRunes is the length display names are cut to, tripcode tag excluded.
	MaxNameRunes = 20

	// DefaultCharacter is used when a login names no avatar.
	DefaultCharacter = "giko"
)

// Defaults for Config.
const (
	DefaultGhostRetention      = 30 * time.Minute
	DefaultInactivityThreshold = 10 * time.Minute
	DefaultFloodLimit          = 5
	DefaultFloodWindow         = 5 * time.Second
)

// Config tunes a Manager.
type Config struct {
	GhostRetention      time.Duration
	InactivityThreshold time.Duration

	// MaxSessionsPerIP caps users per address per area. Zero disables the cap.
	MaxSessionsPerIP int

	FloodLimit  int
	FloodWindow time.Duration
}

// Rooms runs the room-level side of arrivals and departures.
type Rooms interface {
	// Leave releases what u holds in its room and tells the room u left.
	Leave(u *user.User)

	// Enter announces u to its room and sends u the room snapshot.
	Enter(u *user.User)
}

// Streams releases streaming resources held by a user.
type Streams interface {
	ReleaseUser(u *user.User)
}

// LoginRequest is the input of Login.
type LoginRequest struct {
	Name      string
	Character string
	Area      string
	Room      string
	IP        string
}

// Session is the result of a successful Login.
type Session struct {
	PublicID  string `json:"publicId"`
	PrivateID string `json:"privateId"`
}

// Manager owns user records. Every method runs on the event loop.
type Manager struct {
	store   *world.Store
	sched   loop.Scheduler
	router  *broadcast.Router
	signer  *tripcode.Signer
	rooms   Rooms
	streams Streams
	cfg     Config

	logger zerolog.Logger
}

// NewManager creates a Manager. rooms and streams may be nil in tests that do not
// exercise the cascade.
func NewManager(store *world.Store, sched loop.Scheduler, router *broadcast.Router, signer *tripcode.Signer, rooms Rooms, streams Streams, cfg Config) *Manager {
	if cfg.GhostRetention <= 0 {
		cfg.GhostRetention = DefaultGhostRetention
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = DefaultInactivityThreshold
	}
	if cfg.FloodLimit <= 0 {
		cfg.FloodLimit = DefaultFloodLimit
	}
	if cfg.FloodWindow <= 0 {
		cfg.FloodWindow = DefaultFloodWindow
	}
	if signer == nil {
		signer = tripcode.NewSigner("")
	}
	return &Manager{
		store:   store,
		sched:   sched,
		router:  router,
		signer:  signer,
		rooms:   rooms,
		streams: streams,
		cfg:     cfg,
		logger:  logx.For("Manager"),
	}
}

// normalizeName validates a login name and applies the tripcode signature.
func (m *Manager) normalizeName(raw string) (string, error) {
	visible, secret, signed := strings.Cut(raw, tripcode.Delimiter)

	visible = tripcode.Defang(strings.TrimSpace(visible))
	if visible == "" || !utf8.ValidString(visible) {
		return "", errs.NewError(errs.ErrInvalidName)
	}
	for _, r := range visible {
		if unicode.IsControl(r) {
			return "", errs.NewError(errs.ErrInvalidName)
		}
	}
	if utf8.RuneCountInString(visible) > MaxNameRunes {
		visible = strings.TrimSpace(string([]rune(visible)[:MaxNameRunes]))
	}

	if !signed {
		return visible, nil
	}
	return m.signer.Apply(visible + tripcode.Delimiter + secret), nil
}

// Login creates a user record in the requested room, or the area's default room when
// none is given. The user stays a ghost until its websocket connects.
func (m *Manager) Login(req LoginRequest) (Session, error) {
	name, err := m.normalizeName(req.Name)
	if err != nil {
		return Session{}, err
	}

	topo := m.store.Topology()
	area, ok := topo.Area(req.Area)
	if !ok {
		return Session{}, errs.NewError(errs.ErrUnknownArea)
	}
	roomID := req.Room
	if roomID == "" {
		roomID = area.DefaultRoom
	}
	room, ok := topo.Room(area.ID, roomID)
	if !ok {
		return Session{}, errs.NewError(errs.ErrUnknownRoom)
	}

	if m.store.IsBanned(req.IP) {
		m.logger.Warn().Str("ip", req.IP).Msg("Login refused for banned address.")
		return Session{}, errs.NewError(errs.ErrBanned)
	}
	if err := m.admit(area.ID, req.IP); err != nil {
		return Session{}, err
	}

	publicID, err := randx.PublicID()
	if err != nil {
		return Session{}, errs.NewError(errs.ErrUnknown, err)
	}

	character := strings.TrimSpace(req.Character)
	if character == "" {
		character = DefaultCharacter
	}

	now := m.sched.Now()
	spawn := room.Spawn()

	u := user.New(publicID, randx.PrivateID(), name, character)
	u.Area = area.ID
	u.Room = room.ID
	u.Position = spawn.Point()
	u.Direction = spawn.Direction
	u.IP = req.IP
	u.Ghost = true
	u.DisconnectedAt = &now
	u.LastAction = now
	m.store.AddUser(u)

	m.logger.Info().
		Str("user_id", u.PublicID).
		Str("area", u.Area).
		Str("room", u.Room).
		Msg("User logged in.")

	return Session{PublicID: u.PublicID, PrivateID: u.PrivateID}, nil
}

// admit enforces the per-address cap, purging the address's ghosts in the area first.
func (m *Manager) admit(areaID, ip string) error {
	if m.cfg.MaxSessionsPerIP <= 0 {
		return nil
	}

	count := 0
	for _, u := range m.store.UsersWithIP(ip) {
		if u.Area == areaID {
			count++
		}
	}
	if count < m.cfg.MaxSessionsPerIP {
		return nil
	}

	for _, u := range m.store.UsersWithIP(ip) {
		if u.Area == areaID && u.Ghost {
			m.Purge(u, "replaced_by_login")
			count--
		}
	}
	if count >= m.cfg.MaxSessionsPerIP {
		return errs.NewError(errs.ErrTooManySessions)
	}
	return nil
}

// Resolve finds the user owning privateID.
func (m *Manager) Resolve(privateID string) (*user.User, error) {
	if !randx.IsValidPrivateID(privateID) {
		return nil, errs.NewError(errs.ErrInvalidSession)
	}
	u, ok := m.store.UserByPrivateID(privateID)
	if !ok {
		return nil, errs.NewError(errs.ErrInvalidSession)
	}
	return u, nil
}

// Connect attaches conn to the user owning privateID. An older connection of the same
// user is kicked with CloseSessionReplaced.
func (m *Manager) Connect(privateID, ip string, conn broadcast.Conn) (*user.User, error) {
	if m.store.IsBanned(ip) {
		return nil, errs.NewError(errs.ErrBanned)
	}
	u, err := m.Resolve(privateID)
	if err != nil {
		return nil, err
	}

	if prev := m.router.Attach(u.PublicID, conn); prev != nil {
		m.logger.Info().Str("user_id", u.PublicID).Msg("Replacing existing connection.")
		prev.Kick(broadcast.CloseSessionReplaced, errs.NewError(errs.ErrSessionKicked).Message)
	}

	u.IP = ip
	u.Ghost = false
	u.DisconnectedAt = nil

	if m.rooms != nil {
		m.rooms.Enter(u)
	} else {
		m.router.SendSnapshot(u)
	}
	m.MarkActive(u)
	m.router.BroadcastStats(u.Area)

	m.logger.Info().Str("user_id", u.PublicID).Str("room", u.Room).Msg("User connected.")
	return u, nil
}

// Disconnect turns u into a ghost when conn is still its current connection. The
// user's stream is released; its seat and record are kept for the retention window.
func (m *Manager) Disconnect(u *user.User, conn broadcast.Conn) {
	if !m.router.Detach(u.PublicID, conn) {
		return
	}
	if _, ok := m.store.User(u.PublicID); !ok {
		return
	}

	now := m.sched.Now()
	u.Ghost = true
	u.DisconnectedAt = &now

	if m.streams != nil {
		m.streams.ReleaseUser(u)
	}
	m.router.ToRelevantExcept(u, protocol.UserGhosted{UserID: u.PublicID})
	m.router.BroadcastStats(u.Area)

	m.logger.Info().Str("user_id", u.PublicID).Msg("User disconnected, kept as ghost.")
}

// MarkActive records an action by u and clears its inactive flag.
func (m *Manager) MarkActive(u *user.User) {
	u.LastAction = m.sched.Now()
	if u.Inactive {
		u.Inactive = false
		m.router.ToRelevant(u, protocol.UserActive{UserID: u.PublicID})
	}
}

// Sweep purges expired ghosts and flips idle users to inactive.
func (m *Manager) Sweep() {
	m.PurgeGhosts()

	now := m.sched.Now()
	for _, u := range m.store.Users() {
		if u.Ghost || u.Inactive {
			continue
		}
		if now.Sub(u.LastAction) >= m.cfg.InactivityThreshold {
			u.Inactive = true
			m.router.ToRelevant(u, protocol.UserInactive{UserID: u.PublicID})
		}
	}
}

// PurgeGhosts removes ghosts whose retention window has run out, and ghosts that carry
// no disconnection time at all.
func (m *Manager) PurgeGhosts() int {
	now := m.sched.Now()
	purged := 0
	for _, u := range m.store.Users() {
		if !u.Ghost {
			continue
		}
		if u.DisconnectedAt == nil || !now.Before(u.DisconnectedAt.Add(m.cfg.GhostRetention)) {
			m.Purge(u, "ghost_expired")
			purged++
		}
	}
	return purged
}

// Purge deletes u and cascades: its stream is released, its game forfeited and its
// room told it left. A live connection is closed.
func (m *Manager) Purge(u *user.User, reason string) {
	if _, ok := m.store.User(u.PublicID); !ok {
		return
	}

	if m.rooms != nil {
		m.rooms.Leave(u)
	} else {
		m.router.ToRelevantExcept(u, protocol.UserLeft{UserID: u.PublicID})
	}

	if conn, ok := m.router.Conn(u.PublicID); ok {
		m.router.Detach(u.PublicID, conn)
		code := broadcast.CloseSessionEnded
		if reason == "banned" {
			code = broadcast.CloseBanned
		}
		conn.Kick(code, reason)
	}

	m.store.RemoveUser(u)
	m.router.BroadcastStats(u.Area)

	m.logger.Info().Str("user_id", u.PublicID).Str("reason", reason).Msg("User purged.")
}

// Ban bans every address in ips and purges their users. It returns the number of
// users purged.
func (m *Manager) Ban(ips []string) int {
	purged := 0
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		m.store.Ban(ip)
		for _, u := range m.store.UsersWithIP(ip) {
			m.Purge(u, "banned")
			purged++
		}
		m.logger.Warn().Str("ip", ip).Msg("Address banned.")
	}
	return purged
}

// Unban lifts bans on ips.
func (m *Manager) Unban(ips []string) {
	for _, ip := range ips {
		m.store.Unban(strings.TrimSpace(ip))
	}
}

// SendMessage posts text to u's room. An empty message only refreshes activity.
func (m *Manager) SendMessage(u *user.User, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		m.MarkActive(u)
		return nil
	}
	if !u.AllowMessage(m.sched.Now(), m.cfg.FloodLimit, m.cfg.FloodWindow) {
		return errs.NewError(errs.ErrMessageFlood)
	}

	m.MarkActive(u)
	m.router.ToRelevant(u, protocol.MessagePosted{
		UserID: u.PublicID,
		Name:   m.router.UserView(u).Name,
		Text:   text,
	})
	return nil
}

// SetBubblePosition changes where u's speech bubble is drawn.
func (m *Manager) SetBubblePosition(u *user.User, pos topology.Direction) error {
	if _, ok := topology.ParseDirection(string(pos)); !ok {
		return errs.NewError(errs.ErrInvalidParams)
	}
	u.BubblePosition = pos
	m.router.ToRelevant(u, protocol.BubblePositionChanged{UserID: u.PublicID, Position: pos})
	return nil
}

// BlockUser adds the address of targetID to u's block list. Both users stop seeing each
// other from then on.
func (m *Manager) BlockUser(u *user.User, targetID string) error {
	target, ok := m.store.User(targetID)
	if !ok || target == u {
		return errs.NewError(errs.ErrUnknownUser)
	}

	u.Block(target.IP)

	if target.Area == u.Area && target.Room == u.Room {
		m.router.ToUser(u.PublicID, protocol.UserLeft{UserID: target.PublicID})
		m.router.ToUser(target.PublicID, protocol.UserLeft{UserID: u.PublicID})
		if rs, ok := m.store.RoomOf(u); ok {
			m.router.SlotsChanged(rs)
		}
	}
	return nil
}

// ListRooms sends u the rooms of its area.
func (m *Manager) ListRooms(u *user.User) {
	m.router.ToUser(u.PublicID, m.router.RoomList(u))
}

// Snapshot copies the presence set for persistence.
func (m *Manager) Snapshot() persist.State {
	users := m.store.Users()
	s := persist.State{
		Users:     make([]user.User, 0, len(users)),
		BannedIPs: m.store.Banned(),
	}
	for _, u := range users {
		s.Users = append(s.Users, u.Clone())
	}
	return s
}

// Restore loads a persisted presence set into an empty world. Every restored user is a
// ghost, since no connection survives a restart; users that were connected when the
// snapshot was taken get a fresh retention window. Users of rooms that no longer exist
// are dropped.
func (m *Manager) Restore(s persist.State) int {
	now := m.sched.Now()

	for _, ip := range s.BannedIPs {
		m.store.Ban(ip)
	}

	restored := 0
	for i := range s.Users {
		c := s.Users[i].Clone()
		u := &c

		rs, ok := m.store.Room(u.Area, u.Room)
		if !ok || u.PublicID == "" || u.PrivateID == "" {
			m.logger.Warn().Str("user_id", u.PublicID).Str("room", u.Room).Msg("Dropping unrestorable user.")
			continue
		}
		if !rs.Room.InBounds(u.Position) {
			spawn := rs.Room.Spawn()
			u.Position = spawn.Point()
			u.Direction = spawn.Direction
		}
		if !u.Ghost || u.DisconnectedAt == nil {
			u.Ghost = true
			u.DisconnectedAt = &now
		}

		m.store.AddUser(u)
		restored++
	}

	m.logger.Info().Int("users", restored).Int("banned", len(s.BannedIPs)).Msg("Presence restored.")
	return restored
}
