package room

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
	"github.com/DoyleJ11/glitch-battleship/internal/metrics"
	"github.com/DoyleJ11/glitch-battleship/internal/types"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

var ErrClosed = errors.New("room closed")

const (
	DefaultAIThinkDelay = 800 * time.Millisecond
	DefaultTickInterval = time.Second

	overrideTimeout = 200 * time.Millisecond
	awardTimeout    = 10 * time.Second
)

// PhaseSource reports the admin glitch override, or 0 when none is set.
type PhaseSource interface {
	Phase(ctx context.Context) engine.Phase
}

// Awarder credits final placements to the external score service.
type Awarder interface {
	AwardRankings(ctx context.Context, roomID string, rankings []wire.Ranking, members map[string][]string) error
}

type Deps struct {
	Logger       *zap.Logger
	Phases       PhaseSource
	Awarder      Awarder
	AIThinkDelay time.Duration
	TickInterval time.Duration
	Seed         int64 // 0 seeds from the clock
}

type turnKey struct {
	status    engine.Status
	turnCount int
	turnIndex int
}

// Room owns one engine.Room. Every read and write of that state happens on the
// loop goroutine; everything else talks to it through the inbox.
type Room struct {
	id      string
	inbox   chan Msg
	state   *engine.Room
	conns   map[string]Conn
	deps    Deps
	log     *zap.Logger
	rng     *rand.Rand
	aiToken uint64
	aiTimer *time.Timer
	aiTurn  turnKey
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, id string, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AIThinkDelay <= 0 {
		deps.AIThinkDelay = DefaultAIThinkDelay
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	seed := deps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r := &Room{
		id:     id,
		inbox:  make(chan Msg, 64),
		state:  engine.NewRoom(id),
		conns:  make(map[string]Conn),
		deps:   deps,
		log:    deps.Logger.With(zap.String("room_id", id)),
		rng:    rand.New(rand.NewSource(seed)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the actor inbox for the gateway and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.done }

// Post delivers m unless ctx expires or the room has shut down.
func (r *Room) Post(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func (r *Room) Start(ctx context.Context) error {
	return r.request(ctx, func(reply chan error) Msg { return AdminStart{Reply: reply} })
}

func (r *Room) Stop(ctx context.Context) error {
	return r.request(ctx, func(reply chan error) Msg { return AdminStop{Reply: reply} })
}

func (r *Room) Summary(ctx context.Context) (wire.RoomUpdate, error) {
	reply := make(chan wire.RoomUpdate, 1)
	if err := r.Post(ctx, GetSummary{Reply: reply}); err != nil {
		return wire.RoomUpdate{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return wire.RoomUpdate{}, ctx.Err()
	case <-r.done:
		return wire.RoomUpdate{}, ErrClosed
	}
}

func (r *Room) request(ctx context.Context, build func(chan error) Msg) error {
	reply := make(chan error, 1)
	if err := r.Post(ctx, build(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func (r *Room) loop() {
	ticker := time.NewTicker(r.deps.TickInterval)
	defer ticker.Stop()
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-ticker.C:
			// Periodic resync for clients that missed an update. Never mutates.
			if r.state.Status == engine.StatusActive {
				r.broadcast(types.Wrap(engine.Snapshot(r.state)))
			}

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				delete(r.conns, msg.ConnID)
				r.apply(engine.LeaveRoom{ConnID: msg.ConnID})

			case FromClient:
				if err := r.apply(msg.Cmd); err != nil {
					r.reject(msg.Conn, err)
				}

			case AIFire:
				if msg.Token != r.aiToken {
					metrics.RecordAIMove(true)
					r.log.Debug("stale ai timer dropped", zap.Uint64("token", msg.Token))
					break
				}
				r.aiTimer = nil
				metrics.RecordAIMove(false)
				if err := r.apply(engine.AIMove{}); err != nil {
					r.log.Debug("ai move skipped", zap.Error(err))
				}

			case AdminStart:
				msg.Reply <- r.apply(engine.StartGame{})

			case AdminStop:
				msg.Reply <- r.apply(engine.StopGame{Reason: engine.ReasonAdminStop})

			case GetSummary:
				msg.Reply <- engine.Snapshot(r.state)

			case GetState:
				msg.Reply <- View{
					NumConns: len(r.conns),
					Summary:  engine.Snapshot(r.state),
					AIArmed:  r.aiTimer != nil,
					AIToken:  r.aiToken,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	cmd := engine.JoinRoom{ConnID: msg.ConnID, TeamID: msg.TeamID, UserID: msg.UserID, TeamName: msg.TeamName}
	replaced := r.memberConn(msg.TeamID, msg.UserID)
	events, err := r.applyRaw(cmd)
	if err != nil {
		r.reject(msg.Conn, err)
		return
	}
	// One connection per member: a newer tab takes over from the older one.
	if replaced != "" && replaced != msg.ConnID {
		if old, ok := r.conns[replaced]; ok {
			old.Close("session replaced")
			delete(r.conns, replaced)
		}
	}
	r.conns[msg.ConnID] = msg.Conn
	r.log.Info("member joined",
		zap.String("conn_id", msg.ConnID),
		zap.String("team_id", msg.TeamID),
		zap.String("user_id", msg.UserID))
	r.dispatch(events)
	r.scheduleAI()
}

func (r *Room) memberConn(teamID, userID string) string {
	if userID == "" {
		return ""
	}
	if t := r.state.Team(teamID); t != nil {
		return t.MemberConns[userID]
	}
	return ""
}

// apply runs cmd through the engine and delivers the resulting events.
func (r *Room) apply(cmd engine.Command) error {
	events, err := r.applyRaw(cmd)
	if err != nil {
		return err
	}
	r.dispatch(events)
	r.scheduleAI()
	return nil
}

func (r *Room) applyRaw(cmd engine.Command) ([]engine.Event, error) {
	env := engine.Env{Rand: r.rng, Override: r.override()}
	wasStatus := r.state.Status

	start := time.Now()
	events, err := engine.Apply(r.state, cmd, env)
	metrics.ObserveApply(commandName(cmd), time.Since(start))
	if err != nil {
		return nil, err
	}

	if wasStatus == engine.StatusWaiting && r.state.Status == engine.StatusActive {
		metrics.RecordGameStarted()
		r.log.Info("game started",
			zap.Int("teams", len(r.state.Teams)),
			zap.Bool("ai_enemy", r.state.Bot() != nil))
	}
	return events, nil
}

func (r *Room) override() engine.Phase {
	if r.deps.Phases == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(r.ctx, overrideTimeout)
	defer cancel()
	return r.deps.Phases.Phase(ctx)
}

func (r *Room) reject(conn Conn, err error) {
	code := engine.ErrorCode(err)
	metrics.RecordRejected(code)
	if conn == nil {
		return
	}
	conn.Send(types.Error(code, err.Error()))
}

// dispatch routes each event to its audience. Subscribers whose buffer is full
// are closed and removed, and their departure is applied afterwards.
func (r *Room) dispatch(events []engine.Event) {
	var dropped []string

	for _, ev := range events {
		msg := types.Wrap(ev.Payload)
		for _, connID := range r.recipients(ev.To) {
			conn, ok := r.conns[connID]
			if !ok {
				continue
			}
			if !conn.Send(msg) {
				conn.Close("slow consumer")
				delete(r.conns, connID)
				dropped = append(dropped, connID)
				metrics.RecordSlowConnDropped()
			}
		}
		r.observe(ev)
	}

	for _, connID := range dropped {
		r.log.Warn("dropped slow subscriber", zap.String("conn_id", connID))
		if err := r.apply(engine.LeaveRoom{ConnID: connID}); err != nil {
			r.log.Error("leave after drop failed", zap.Error(err))
		}
	}
}

func (r *Room) recipients(to engine.Audience) []string {
	switch to.Kind {
	case engine.ToConn:
		return []string{to.ConnID}
	case engine.ToTeam:
		t := r.state.Team(to.TeamID)
		if t == nil {
			return nil
		}
		ids := make([]string, 0, len(t.MemberConns))
		for _, connID := range t.MemberConns {
			ids = append(ids, connID)
		}
		return ids
	default:
		ids := make([]string, 0, len(r.conns))
		for connID := range r.conns {
			ids = append(ids, connID)
		}
		return ids
	}
}

func (r *Room) broadcast(msg types.ServerMessage) {
	var dropped []string
	for connID, conn := range r.conns {
		if !conn.Send(msg) {
			conn.Close("slow consumer")
			delete(r.conns, connID)
			dropped = append(dropped, connID)
			metrics.RecordSlowConnDropped()
		}
	}
	for _, connID := range dropped {
		if err := r.apply(engine.LeaveRoom{ConnID: connID}); err != nil {
			r.log.Error("leave after drop failed", zap.Error(err))
		}
	}
}

// observe records metrics for room-wide events and kicks off score crediting.
func (r *Room) observe(ev engine.Event) {
	if ev.To.Kind != engine.ToRoom {
		return
	}
	switch p := ev.Payload.(type) {
	case wire.AttackResult:
		metrics.RecordAttack(p.Result, p.GlitchPhase)
	case wire.PhaseChange:
		r.log.Debug("phase change", zap.Int("turn", p.TurnCount), zap.String("phase", p.PhaseName))
	case wire.GameOver:
		metrics.RecordGameFinished(p.Reason)
		r.log.Info("game over", zap.String("reason", p.Reason), zap.Int("turn", r.state.TurnCount))
		r.cancelAI()
		r.award(p.Rankings)
	}
}

// award runs off the loop; a slow or failing score service never blocks play.
func (r *Room) award(rankings []wire.Ranking) {
	if r.deps.Awarder == nil {
		return
	}
	members := make(map[string][]string)
	for _, t := range r.state.Teams {
		if t.IsBot {
			continue
		}
		t.Members.Each(func(userID string) {
			members[t.ID] = append(members[t.ID], userID)
		})
	}

	awarder, log, roomID := r.deps.Awarder, r.log, r.id
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), awardTimeout)
		defer cancel()
		if err := awarder.AwardRankings(ctx, roomID, rankings, members); err != nil {
			log.Warn("award rankings failed", zap.Error(err))
		}
	}()
}

// scheduleAI arms the think timer when the AI enemy holds the turn. The token
// ties a fire to the turn it was armed for; any change of turn invalidates it.
func (r *Room) scheduleAI() {
	owner := r.state.TurnOwner()
	key := turnKey{status: r.state.Status, turnCount: r.state.TurnCount, turnIndex: r.state.TurnIndex}

	if r.state.Status != engine.StatusActive || owner == nil || !owner.IsBot {
		r.cancelAI()
		return
	}
	if r.aiTimer != nil && r.aiTurn == key {
		return
	}

	r.cancelAI()
	token := r.aiToken
	r.aiTurn = key
	r.aiTimer = time.AfterFunc(r.deps.AIThinkDelay, func() {
		_ = r.Post(r.ctx, AIFire{Token: token})
	})
}

func (r *Room) cancelAI() {
	if r.aiTimer != nil {
		r.aiTimer.Stop()
		r.aiTimer = nil
	}
	r.aiToken++
}

func (r *Room) shutdown() {
	r.cancelAI()
	for id, conn := range r.conns {
		conn.Close("server shutting down")
		delete(r.conns, id)
	}
	r.cancel()
	r.log.Debug("room stopped")
}

func commandName(cmd engine.Command) string {
	switch cmd.(type) {
	case engine.JoinRoom:
		return "join"
	case engine.LeaveRoom:
		return "leave"
	case engine.PlaceFleet:
		return "place_fleet"
	case engine.Attack:
		return "attack"
	case engine.AIMove:
		return "ai_move"
	case engine.StartGame:
		return "start"
	case engine.StopGame:
		return "stop"
	default:
		return "unknown"
	}
}
