package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
	"github.com/DoyleJ11/glitch-battleship/internal/types"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

type fakeConn struct {
	out chan types.ServerMessage

	mu     sync.Mutex
	closed string
}

func newFakeConn(buf int) *fakeConn {
	return &fakeConn{out: make(chan types.ServerMessage, buf)}
}

func (c *fakeConn) Send(msg types.ServerMessage) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

func (c *fakeConn) closedReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fixedPhase engine.Phase

func (p fixedPhase) Phase(context.Context) engine.Phase { return engine.Phase(p) }

type recordingAwarder struct {
	calls chan []wire.Ranking
}

func (a *recordingAwarder) AwardRankings(_ context.Context, _ string, rankings []wire.Ranking, _ map[string][]string) error {
	a.calls <- rankings
	return nil
}

// recvKind reads until a message of the given kind arrives, so tests never hang
// and never depend on the exact interleaving of snapshots.
func recvKind(t *testing.T, c *fakeConn, kind string, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-c.out:
			if msg.Type == kind {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return types.ServerMessage{}
		}
	}
}

func recvNoKind(t *testing.T, c *fakeConn, kind string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-c.out:
			if msg.Type == kind {
				t.Fatalf("expected no %s within %v, got %+v", kind, within, msg.Payload)
			}
		case <-deadline:
			return
		}
	}
}

func recvView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func fleetRows() [][]bool {
	rows := make([][]bool, engine.GridSize)
	for y := range rows {
		rows[y] = make([]bool, engine.GridSize)
	}
	for i, size := range engine.FleetSizes {
		for x := 0; x < size; x++ {
			rows[i*2][x] = true
		}
	}
	return rows
}

func placeFleet(t *testing.T, r *Room, conn *fakeConn, connID, teamID string) {
	t.Helper()
	fleet, err := engine.FleetFromRows(fleetRows())
	require.NoError(t, err)
	r.Inbox() <- FromClient{ConnID: connID, Conn: conn, Cmd: engine.PlaceFleet{TeamID: teamID, Fleet: fleet}}
}

func newTestRoom(t *testing.T, deps Deps) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if deps.Seed == 0 {
		deps.Seed = 42
	}
	if deps.TickInterval == 0 {
		deps.TickInterval = time.Hour
	}
	return New(ctx, "r1", deps)
}

func TestRoom_JoinSendsSnapshot(t *testing.T) {
	r := newTestRoom(t, Deps{})
	alice := newFakeConn(16)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}

	msg := recvKind(t, alice, wire.EventRoomUpdate, time.Second)
	update := msg.Payload.(wire.RoomUpdate)
	assert.Equal(t, "r1", update.RoomID)
	assert.Equal(t, "waiting", update.Status)
	require.Len(t, update.Teams, 1)
	assert.Equal(t, "A", update.Teams[0].TeamID)
	assert.Equal(t, 1, recvView(t, r).NumConns)
}

func TestRoom_ErrorGoesOnlyToSender(t *testing.T) {
	r := newTestRoom(t, Deps{})
	alice, bob := newFakeConn(32), newFakeConn(32)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	r.Inbox() <- Join{ConnID: "c2", TeamID: "B", UserID: "bob", Conn: bob}
	placeFleet(t, r, alice, "c1", "A")
	placeFleet(t, r, bob, "c2", "B")

	recvKind(t, alice, wire.EventTurnChange, time.Second)
	recvKind(t, bob, wire.EventTurnChange, time.Second)

	// B attacks out of turn
	r.Inbox() <- FromClient{ConnID: "c2", Conn: bob, Cmd: engine.Attack{AttackerID: "B", TargetID: "A", X: 0, Y: 0, UserID: "bob"}}

	msg := recvKind(t, bob, wire.EventErrorMessage, time.Second)
	assert.Equal(t, "NotYourTurn", msg.Payload.(wire.ErrorMessage).Code)
	recvNoKind(t, alice, wire.EventErrorMessage, 50*time.Millisecond)
}

func TestRoom_AttackResultRouting(t *testing.T) {
	r := newTestRoom(t, Deps{})
	alice, bob := newFakeConn(32), newFakeConn(32)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	r.Inbox() <- Join{ConnID: "c2", TeamID: "B", UserID: "bob", Conn: bob}
	placeFleet(t, r, alice, "c1", "A")
	placeFleet(t, r, bob, "c2", "B")
	r.Inbox() <- FromClient{ConnID: "c1", Conn: alice, Cmd: engine.Attack{AttackerID: "A", TargetID: "B", X: 0, Y: 0, UserID: "alice"}}

	hit := recvKind(t, bob, wire.EventFleetHit, time.Second).Payload.(wire.FleetHit)
	assert.Equal(t, 16, hit.HP)

	// attacker sees the public result first, then its private copy with the grid
	first := recvKind(t, alice, wire.EventAttackResult, time.Second).Payload.(wire.AttackResult)
	assert.Nil(t, first.AttackGrid)
	private := recvKind(t, alice, wire.EventAttackResult, time.Second).Payload.(wire.AttackResult)
	require.NotNil(t, private.AttackGrid)
	assert.Equal(t, "hit", private.AttackGrid[0][0])

	recvNoKind(t, alice, wire.EventFleetHit, 50*time.Millisecond)
}

func TestRoom_SecondTabReplacesFirst(t *testing.T) {
	r := newTestRoom(t, Deps{})
	tab1, tab2, bob := newFakeConn(64), newFakeConn(64), newFakeConn(64)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: tab1}
	r.Inbox() <- Join{ConnID: "c2", TeamID: "B", UserID: "bob", Conn: bob}
	r.Inbox() <- Join{ConnID: "c3", TeamID: "A", UserID: "alice", Conn: tab2}

	view := recvView(t, r)
	assert.Equal(t, "session replaced", tab1.closedReason())
	assert.Equal(t, 2, view.NumConns)

	// the old tab going away must not disconnect alice's team
	r.Inbox() <- Leave{ConnID: "c1"}
	placeFleet(t, r, tab2, "c3", "A")
	placeFleet(t, r, bob, "c2", "B")
	view = recvView(t, r)
	require.Equal(t, "active", view.Summary.Status)
	require.Equal(t, "A", view.Summary.TurnTeamID)
	assert.Equal(t, 1, view.Summary.Teams[0].ConnectedMembers)

	r.Inbox() <- FromClient{ConnID: "c3", Conn: tab2, Cmd: engine.Attack{AttackerID: "A", TargetID: "B", X: 0, Y: 0, UserID: "alice"}}
	res := recvKind(t, tab2, wire.EventAttackResult, time.Second).Payload.(wire.AttackResult)
	assert.Equal(t, "hit", res.Result)
	assert.Empty(t, tab2.closedReason())
}

func TestRoom_DropSlowClient(t *testing.T) {
	r := newTestRoom(t, Deps{})
	slow := newFakeConn(0)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: slow}

	view := recvView(t, r)
	assert.Equal(t, 0, view.NumConns)
	assert.Equal(t, "slow consumer", slow.closedReason())
	require.Len(t, view.Summary.Teams, 1)
	assert.Equal(t, 0, view.Summary.Teams[0].ConnectedMembers)
}

func TestRoom_AIEnemyTakesItsTurn(t *testing.T) {
	r := newTestRoom(t, Deps{AIThinkDelay: 10 * time.Millisecond})
	alice := newFakeConn(64)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	placeFleet(t, r, alice, "c1", "A")

	update := recvKind(t, alice, wire.EventRoomUpdate, time.Second).Payload.(wire.RoomUpdate)
	for update.Status != "active" {
		update = recvKind(t, alice, wire.EventRoomUpdate, time.Second).Payload.(wire.RoomUpdate)
	}
	require.NotNil(t, update.AIEnemy)
	botID := update.AIEnemy.TeamID
	assert.Equal(t, "AI-r1", botID)

	r.Inbox() <- FromClient{ConnID: "c1", Conn: alice, Cmd: engine.Attack{AttackerID: "A", TargetID: botID, X: 9, Y: 9, UserID: "alice"}}
	recvKind(t, alice, wire.EventAIEnemyGridUpdate, time.Second)

	for {
		res := recvKind(t, alice, wire.EventAttackResult, time.Second).Payload.(wire.AttackResult)
		if res.AttackerID == botID {
			assert.Equal(t, "A", res.TargetTeamID)
			break
		}
	}

	turn := recvKind(t, alice, wire.EventTurnChange, time.Second).Payload.(wire.TurnChange)
	assert.Equal(t, "A", turn.TeamID)
	assert.False(t, recvView(t, r).AIArmed)
}

func TestRoom_StaleAIFireIsDropped(t *testing.T) {
	r := newTestRoom(t, Deps{AIThinkDelay: time.Hour})
	alice := newFakeConn(64)

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	placeFleet(t, r, alice, "c1", "A")
	r.Inbox() <- FromClient{ConnID: "c1", Conn: alice, Cmd: engine.Attack{AttackerID: "A", TargetID: "AI-r1", X: 9, Y: 9, UserID: "alice"}}

	before := recvView(t, r)
	require.True(t, before.AIArmed)
	require.Equal(t, "AI-r1", before.Summary.TurnTeamID)

	r.Inbox() <- AIFire{Token: before.AIToken - 1}
	after := recvView(t, r)
	assert.Equal(t, "AI-r1", after.Summary.TurnTeamID)
	assert.Equal(t, before.Summary.TurnCount, after.Summary.TurnCount)

	r.Inbox() <- AIFire{Token: before.AIToken}
	after = recvView(t, r)
	assert.Equal(t, "A", after.Summary.TurnTeamID)
	assert.Equal(t, 2, after.Summary.TurnCount)
}

func TestRoom_AdminStartAndStop(t *testing.T) {
	awards := &recordingAwarder{calls: make(chan []wire.Ranking, 1)}
	r := newTestRoom(t, Deps{Awarder: awards, Phases: fixedPhase(engine.PhaseDualDamage)})
	alice, bob := newFakeConn(64), newFakeConn(64)
	ctx := context.Background()

	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	r.Inbox() <- Join{ConnID: "c2", TeamID: "B", UserID: "bob", Conn: bob}
	require.ErrorIs(t, r.Start(ctx), engine.ErrRoomNotReady)

	placeFleet(t, r, alice, "c1", "A")
	placeFleet(t, r, bob, "c2", "B")

	summary, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", summary.Status)
	assert.Equal(t, int(engine.PhaseDualDamage), summary.GlitchPhase, "override wins over turn count")

	require.NoError(t, r.Stop(ctx))
	over := recvKind(t, bob, wire.EventGameOver, time.Second).Payload.(wire.GameOver)
	assert.Equal(t, "admin-stop", over.Reason)

	select {
	case rankings := <-awards.calls:
		assert.Len(t, rankings, 2)
	case <-time.After(time.Second):
		t.Fatal("rankings were not awarded")
	}

	require.NoError(t, r.Stop(ctx), "stopping a finished room is a no-op")
}

func TestRoom_PostAfterShutdown(t *testing.T) {
	r := newTestRoom(t, Deps{})
	alice := newFakeConn(16)
	r.Inbox() <- Join{ConnID: "c1", TeamID: "A", UserID: "alice", Conn: alice}
	r.Inbox() <- Shutdown{}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not stop")
	}
	assert.Equal(t, "server shutting down", alice.closedReason())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Summary(ctx)
	require.Error(t, err)
}
