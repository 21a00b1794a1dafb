package presence_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridroom/internal/app/broadcast"
	"gridroom/internal/app/broadcast/broadcasttest"
	"gridroom/internal/app/game"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/movement"
	"gridroom/internal/app/persist"
	"gridroom/internal/app/presence"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/stream"
	"gridroom/internal/app/user"
	"gridroom/internal/app/world"
	"gridroom/internal/app/world/worldtest"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/tripcode"
)

const retention = 30 * time.Minute

type harness struct {
	mgr     *presence.Manager
	sched   *loop.Manual
	store   *world.Store
	router  *broadcast.Router
	arbiter *stream.Arbiter
	games   *game.Coordinator
}

func newWorld(t *testing.T, cfg presence.Config) *harness {
	t.Helper()

	store := worldtest.Store(t)
	router := broadcast.NewRouter(store)
	sched := loop.NewManual(time.Unix(1_700_000_000, 0))

	engine := movement.NewEngine(store, sched, router, movement.Config{})
	arbiter := stream.NewArbiter(store, sched, router, nil, stream.Config{})
	games := game.NewCoordinator(store, sched, router, game.Config{TurnTimeout: 24 * time.Hour})
	engine.Observe(arbiter, games)

	if cfg.GhostRetention == 0 {
		cfg.GhostRetention = retention
	}
	mgr := presence.NewManager(store, sched, router, tripcode.NewSigner("test-salt"), engine, arbiter, cfg)
	engine.SetActivity(mgr)

	return &harness{mgr: mgr, sched: sched, store: store, router: router, arbiter: arbiter, games: games}
}

func (w *harness) login(t *testing.T, name, ip string) presence.Session {
	t.Helper()
	s, err := w.mgr.Login(presence.LoginRequest{Name: name, Area: worldtest.Area, Room: "bar", IP: ip})
	require.NoError(t, err)
	return s
}

func (w *harness) connect(t *testing.T, name, ip string) (*user.User, *broadcasttest.Conn) {
	t.Helper()
	s := w.login(t, name, ip)
	conn := &broadcasttest.Conn{}
	u, err := w.mgr.Connect(s.PrivateID, ip, conn)
	require.NoError(t, err)
	return u, conn
}

func TestLogin_Validation(t *testing.T) {
	w := newWorld(t, presence.Config{})

	tests := []struct {
		name string
		req  presence.LoginRequest
		code int
	}{
		{name: "empty name", req: presence.LoginRequest{Name: "", Area: worldtest.Area}, code: errs.ErrInvalidName},
		{name: "blank name", req: presence.LoginRequest{Name: "   ", Area: worldtest.Area}, code: errs.ErrInvalidName},
		{name: "control character", req: presence.LoginRequest{Name: "a\x07b", Area: worldtest.Area}, code: errs.ErrInvalidName},
		{name: "secret only", req: presence.LoginRequest{Name: "#secret", Area: worldtest.Area}, code: errs.ErrInvalidName},
		{name: "unknown area", req: presence.LoginRequest{Name: "alice", Area: "nowhere"}, code: errs.ErrUnknownArea},
		{name: "unknown room", req: presence.LoginRequest{Name: "alice", Area: worldtest.Area, Room: "attic"}, code: errs.ErrUnknownRoom},
		{name: "room of another area", req: presence.LoginRequest{Name: "alice", Area: worldtest.Area, Room: "lobby"}, code: errs.ErrUnknownRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.mgr.Login(tt.req)
			assert.True(t, errs.Is(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, w.store.Users())
}

func TestLogin_CreatesGhostAtSpawn(t *testing.T) {
	w := newWorld(t, presence.Config{})

	s, err := w.mgr.Login(presence.LoginRequest{Name: "  alice  ", Area: worldtest.Area, IP: "10.0.0.1"})
	require.NoError(t, err)

	u, err := w.mgr.Resolve(s.PrivateID)
	require.NoError(t, err)
	assert.Equal(t, s.PublicID, u.PublicID)
	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, "bar", u.Room)
	assert.Equal(t, presence.DefaultCharacter, u.Character)
	assert.Equal(t, 1, u.Position.X)
	assert.Equal(t, 2, u.Position.Y)
	assert.True(t, u.Ghost)
	require.NotNil(t, u.DisconnectedAt)
	assert.Equal(t, w.sched.Now(), *u.DisconnectedAt)
}

func TestLogin_NamesAreTruncatedAndSigned(t *testing.T) {
	w := newWorld(t, presence.Config{})

	long := strings.Repeat("あ", 30)
	s := w.login(t, long, "10.0.0.1")
	u, _ := w.store.User(s.PublicID)
	assert.Equal(t, strings.Repeat("あ", presence.MaxNameRunes), u.Name)

	first, _ := w.store.User(w.login(t, "alice#hunter2", "10.0.0.2").PublicID)
	second, _ := w.store.User(w.login(t, "mallory#hunter2", "10.0.0.3").PublicID)
	third, _ := w.store.User(w.login(t, "alice#other", "10.0.0.4").PublicID)

	assert.True(t, strings.HasPrefix(first.Name, "alice"+tripcode.Mark))
	assert.NotContains(t, first.Name, "hunter2")
	assert.Equal(t, strings.TrimPrefix(first.Name, "alice"), strings.TrimPrefix(second.Name, "mallory"))
	assert.NotEqual(t, first.Name, third.Name)
}

func TestLogin_TypedTagCannotImpersonate(t *testing.T) {
	w := newWorld(t, presence.Config{})

	owner, _ := w.store.User(w.login(t, "alice#hunter2", "10.0.0.2").PublicID)
	forger, _ := w.store.User(w.login(t, owner.Name, "10.0.0.3").PublicID)
	signedForger, _ := w.store.User(w.login(t, owner.Name+"#guess", "10.0.0.4").PublicID)

	assert.NotEqual(t, owner.Name, forger.Name)
	assert.NotContains(t, forger.Name, tripcode.Mark)
	assert.Contains(t, forger.Name, tripcode.OpenMark)
	assert.NotEqual(t, owner.Name, signedForger.Name)
	assert.Equal(t, 1, strings.Count(signedForger.Name, tripcode.Mark))
}

func TestResolve_UnknownSession(t *testing.T) {
	w := newWorld(t, presence.Config{})

	_, err := w.mgr.Resolve("not-a-token")
	assert.True(t, errs.Is(err, errs.ErrInvalidSession))

	_, err = w.mgr.Resolve("1b4e28ba-2fa1-41d2-883f-0016d3cca427")
	assert.True(t, errs.Is(err, errs.ErrInvalidSession))
}

func TestConnect_AnnouncesAndSendsSnapshot(t *testing.T) {
	w := newWorld(t, presence.Config{})
	bob, bobConn := w.connect(t, "bob", "10.0.0.2")
	bobConn.Reset()

	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")

	assert.False(t, alice.Ghost)
	assert.Nil(t, alice.DisconnectedAt)

	snapshot, ok := broadcasttest.Last[protocol.RoomState](aliceConn)
	require.True(t, ok)
	assert.Equal(t, "bar", snapshot.Room)
	require.Len(t, snapshot.Users, 1)
	assert.Equal(t, bob.PublicID, snapshot.Users[0].ID)

	joined, ok := broadcasttest.Last[protocol.UserJoined](bobConn)
	require.True(t, ok)
	assert.Equal(t, alice.PublicID, joined.User.ID)
	assert.False(t, joined.User.Ghost)
}

func TestConnect_ReplacesOlderConnection(t *testing.T) {
	w := newWorld(t, presence.Config{})
	s := w.login(t, "alice", "10.0.0.1")

	first := &broadcasttest.Conn{}
	_, err := w.mgr.Connect(s.PrivateID, "10.0.0.1", first)
	require.NoError(t, err)

	second := &broadcasttest.Conn{}
	u, err := w.mgr.Connect(s.PrivateID, "10.0.0.1", second)
	require.NoError(t, err)

	assert.Equal(t, broadcast.CloseSessionReplaced, first.KickCode)
	assert.Equal(t, errs.NewError(errs.ErrSessionKicked).Message, first.KickReason)
	assert.Zero(t, second.KickCode)

	// The replaced connection closing afterwards must not ghost the user.
	w.mgr.Disconnect(u, first)
	assert.False(t, u.Ghost)

	w.mgr.Disconnect(u, second)
	assert.True(t, u.Ghost)
}

func TestGhostRetention_Boundary(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	_, bobConn := w.connect(t, "bob", "10.0.0.2")

	w.mgr.Disconnect(alice, aliceConn)
	bobConn.Reset()

	w.sched.Advance(retention - time.Second)
	w.mgr.Sweep()
	_, ok := w.store.User(alice.PublicID)
	assert.True(t, ok, "ghost must stay resolvable inside the retention window")
	_, err := w.mgr.Resolve(alice.PrivateID)
	require.NoError(t, err)

	w.sched.Advance(time.Second)
	w.mgr.Sweep()
	_, ok = w.store.User(alice.PublicID)
	assert.False(t, ok)

	left, ok := broadcasttest.Last[protocol.UserLeft](bobConn)
	require.True(t, ok)
	assert.Equal(t, alice.PublicID, left.UserID)
}

func TestDisconnect_ReleasesSlotImmediately(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	bob, bobConn := w.connect(t, "bob", "10.0.0.2")

	require.NoError(t, w.arbiter.RequestPublish(alice, 0, stream.Options{WithAudio: true}))
	rs, _ := w.store.RoomOf(alice)
	require.True(t, rs.Slots[0].Active)

	w.mgr.Disconnect(alice, aliceConn)

	assert.False(t, rs.Slots[0].Active)
	require.NoError(t, w.arbiter.RequestPublish(bob, 0, stream.Options{}))

	ghosted, ok := broadcasttest.Last[protocol.UserGhosted](bobConn)
	require.True(t, ok)
	assert.Equal(t, alice.PublicID, ghosted.UserID)
}

func TestPurge_CascadesGameForfeit(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	bob, bobConn := w.connect(t, "bob", "10.0.0.2")

	require.NoError(t, w.games.JoinGame(alice))
	require.NoError(t, w.games.JoinGame(bob))

	w.mgr.Disconnect(alice, aliceConn)
	rs, _ := w.store.RoomOf(bob)
	assert.True(t, rs.Chess.Active(), "a ghost keeps its seat")

	w.sched.Advance(retention)
	w.mgr.Sweep()

	ended, ok := broadcasttest.Last[protocol.GameEnded](bobConn)
	require.True(t, ok)
	assert.Equal(t, game.ReasonForfeit, ended.Reason)
	assert.Equal(t, bob.PublicID, ended.WinnerID)
	assert.False(t, rs.Chess.Active())
}

func TestPurgeGhosts_NeverConnected(t *testing.T) {
	w := newWorld(t, presence.Config{})
	s := w.login(t, "alice", "10.0.0.1")

	w.sched.Advance(retention)
	assert.Equal(t, 1, w.mgr.PurgeGhosts())
	_, err := w.mgr.Resolve(s.PrivateID)
	assert.True(t, errs.Is(err, errs.ErrInvalidSession))
}

func TestLogin_SessionCapPurgesGhostsFirst(t *testing.T) {
	w := newWorld(t, presence.Config{MaxSessionsPerIP: 2})

	live, _ := w.connect(t, "one", "10.0.0.1")
	ghost := w.login(t, "two", "10.0.0.1")

	third := w.login(t, "three", "10.0.0.1")
	_, ok := w.store.User(ghost.PublicID)
	assert.False(t, ok, "the ghost makes room for the new login")

	_, err := w.mgr.Connect(third.PrivateID, "10.0.0.1", &broadcasttest.Conn{})
	require.NoError(t, err)

	_, err = w.mgr.Login(presence.LoginRequest{Name: "four", Area: worldtest.Area, IP: "10.0.0.1"})
	assert.True(t, errs.Is(err, errs.ErrTooManySessions))
	_, ok = w.store.User(live.PublicID)
	assert.True(t, ok)

	// The cap is per area.
	_, err = w.mgr.Login(presence.LoginRequest{Name: "four", Area: "for", IP: "10.0.0.1"})
	assert.NoError(t, err)
}

func TestBan_PurgesAndRefuses(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	s := w.login(t, "alice2", "10.0.0.1")

	assert.Equal(t, 2, w.mgr.Ban([]string{"10.0.0.1", " "}))

	assert.Equal(t, broadcast.CloseBanned, aliceConn.KickCode)
	_, ok := w.store.User(alice.PublicID)
	assert.False(t, ok)

	_, err := w.mgr.Login(presence.LoginRequest{Name: "alice", Area: worldtest.Area, IP: "10.0.0.1"})
	assert.True(t, errs.Is(err, errs.ErrBanned))
	_, err = w.mgr.Connect(s.PrivateID, "10.0.0.1", &broadcasttest.Conn{})
	assert.True(t, errs.Is(err, errs.ErrBanned))

	w.mgr.Unban([]string{"10.0.0.1"})
	w.login(t, "alice", "10.0.0.1")
}

func TestSweep_FlipsInactiveOnce(t *testing.T) {
	w := newWorld(t, presence.Config{InactivityThreshold: 10 * time.Minute})
	alice, _ := w.connect(t, "alice", "10.0.0.1")
	_, bobConn := w.connect(t, "bob", "10.0.0.2")

	w.sched.Advance(10 * time.Minute)
	bobConn.Reset()
	w.mgr.Sweep()
	w.mgr.Sweep()

	assert.True(t, alice.Inactive)
	assert.Len(t, broadcasttest.Of[protocol.UserInactive](bobConn), 2, "both users went idle")

	bobConn.Reset()
	require.NoError(t, w.mgr.SendMessage(alice, "back"))
	assert.False(t, alice.Inactive)

	active, ok := broadcasttest.Last[protocol.UserActive](bobConn)
	require.True(t, ok)
	assert.Equal(t, alice.PublicID, active.UserID)
}

func TestSendMessage_FloodControl(t *testing.T) {
	w := newWorld(t, presence.Config{FloodLimit: 5, FloodWindow: 5 * time.Second})
	alice, _ := w.connect(t, "alice", "10.0.0.1")
	_, bobConn := w.connect(t, "bob", "10.0.0.2")

	for i := 0; i < 5; i++ {
		require.NoError(t, w.mgr.SendMessage(alice, "hi"))
	}
	assert.True(t, errs.Is(w.mgr.SendMessage(alice, "hi"), errs.ErrMessageFlood))
	assert.Len(t, broadcasttest.Of[protocol.MessagePosted](bobConn), 5)

	w.sched.Advance(5 * time.Second)
	assert.NoError(t, w.mgr.SendMessage(alice, "hi again"))
}

func TestSendMessage_AnonymousRoomHidesName(t *testing.T) {
	w := newWorld(t, presence.Config{})
	s, err := w.mgr.Login(presence.LoginRequest{Name: "alice", Area: worldtest.Area, Room: "school", IP: "10.0.0.1"})
	require.NoError(t, err)
	conn := &broadcasttest.Conn{}
	alice, err := w.mgr.Connect(s.PrivateID, "10.0.0.1", conn)
	require.NoError(t, err)

	require.NoError(t, w.mgr.SendMessage(alice, "who am I"))

	msg, ok := broadcasttest.Last[protocol.MessagePosted](conn)
	require.True(t, ok)
	assert.Empty(t, msg.Name)
	assert.Equal(t, alice.PublicID, msg.UserID)
}

func TestBlockUser_HidesBothWays(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	bob, bobConn := w.connect(t, "bob", "10.0.0.2")

	assert.True(t, errs.Is(w.mgr.BlockUser(alice, "nobody"), errs.ErrUnknownUser))
	require.NoError(t, w.mgr.BlockUser(alice, bob.PublicID))

	left, ok := broadcasttest.Last[protocol.UserLeft](aliceConn)
	require.True(t, ok)
	assert.Equal(t, bob.PublicID, left.UserID)
	left, ok = broadcasttest.Last[protocol.UserLeft](bobConn)
	require.True(t, ok)
	assert.Equal(t, alice.PublicID, left.UserID)

	bobConn.Reset()
	require.NoError(t, w.mgr.SendMessage(alice, "secret"))
	assert.Empty(t, broadcasttest.Of[protocol.MessagePosted](bobConn))
}

func TestSnapshotRestore(t *testing.T) {
	w := newWorld(t, presence.Config{})
	alice, aliceConn := w.connect(t, "alice", "10.0.0.1")
	bob, _ := w.connect(t, "bob", "10.0.0.2")
	alice.Block(bob.IP)
	w.mgr.Disconnect(alice, aliceConn)
	disconnectedAt := *alice.DisconnectedAt
	w.mgr.Ban([]string{"192.0.2.1"})

	state := w.mgr.Snapshot()
	state.Users = append(state.Users, user.User{PublicID: "gone", PrivateID: "x", Area: worldtest.Area, Room: "demolished"})

	store := persist.NewMemory()
	require.NoError(t, store.Save(t.Context(), state))
	loaded, err := store.Load(t.Context())
	require.NoError(t, err)

	fresh := newWorld(t, presence.Config{})
	fresh.sched.Advance(time.Minute)
	assert.Equal(t, 2, fresh.mgr.Restore(loaded))

	a, ok := fresh.store.User(alice.PublicID)
	require.True(t, ok)
	assert.True(t, a.Ghost)
	assert.Equal(t, disconnectedAt, *a.DisconnectedAt)
	assert.Equal(t, []string{bob.IP}, a.BlockedIPs)

	b, ok := fresh.store.User(bob.PublicID)
	require.True(t, ok)
	assert.True(t, b.Ghost, "connections do not survive a restart")
	assert.Equal(t, fresh.sched.Now(), *b.DisconnectedAt)

	assert.True(t, fresh.store.IsBanned("192.0.2.1"))

	_, err = fresh.mgr.Connect(bob.PrivateID, bob.IP, &broadcasttest.Conn{})
	assert.NoError(t, err)
}
