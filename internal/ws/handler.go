package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/glitch-battleship/internal/auth"
	"github.com/DoyleJ11/glitch-battleship/internal/engine"
	"github.com/DoyleJ11/glitch-battleship/internal/hub"
	"github.com/DoyleJ11/glitch-battleship/internal/metrics"
	"github.com/DoyleJ11/glitch-battleship/internal/room"
	"github.com/DoyleJ11/glitch-battleship/internal/types"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

const (
	codeBadRequest  = "BadRequest"
	codeRateLimited = "RateLimited"

	teamLookupTimeout = 2 * time.Second
	postTimeout       = 2 * time.Second
)

// TeamDirectory resolves display names for teams at join time.
type TeamDirectory interface {
	TeamName(ctx context.Context, teamID string) (string, error)
}

type Config struct {
	Logger       *zap.Logger
	Verifier     *auth.Verifier // nil or disabled: trust client-supplied user ids
	Teams        TeamDirectory
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Inbound messages per second per connection, and burst.
	MessageRate    float64
	MessageBurst   int
	SendBuffer     int
	OriginPatterns []string
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.MessageRate <= 0 {
		c.MessageRate = 10
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// client is the room.Conn for one websocket session.
type client struct {
	id   string
	out  chan types.ServerMessage
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	reason string
}

func newClient(id string, buf int) *client {
	return &client{id: id, out: make(chan types.ServerMessage, buf), done: make(chan struct{})}
}

func (c *client) Send(msg types.ServerMessage) bool {
	select {
	case <-c.done:
		return true // already closing; nothing more to drop
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *client) Close(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *client) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// session is the reader side: identity plus the one room this connection is in.
type session struct {
	h      *hub.Hub
	cfg    Config
	log    *zap.Logger
	client *client
	claims *auth.Claims
	userID string
	room   *room.Room
}

func Handler(h *hub.Hub, cfg Config) http.HandlerFunc {
	cfg.defaults()

	return func(w http.ResponseWriter, r *http.Request) {
		var claims *auth.Claims
		if cfg.Verifier.Enabled() {
			c, err := cfg.Verifier.FromRequest(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims = c
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			cfg.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		metrics.ConnectionOpened()
		defer metrics.ConnectionClosed()

		c := newClient(uuid.NewString(), cfg.SendBuffer)
		s := &session{
			h:      h,
			cfg:    cfg,
			log:    cfg.Logger.With(zap.String("conn_id", c.id)),
			client: c,
			claims: claims,
			userID: c.id,
		}
		if claims != nil {
			s.userID = claims.User()
		}
		s.log.Debug("connection opened", zap.String("user_id", s.userID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go s.writeLoop(writeCtx, conn)

		defer s.leave()
		defer c.Close("connection closed")

		limiter := rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst)

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					s.log.Debug("read ended", zap.Error(err))
				}
				return
			}

			if !limiter.Allow() {
				metrics.RecordRejected(codeRateLimited)
				c.Send(types.Error(codeRateLimited, "slow down"))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.Send(types.Error(codeBadRequest, "bad json"))
				continue
			}
			s.handle(r.Context(), cm)
		}
	}
}

func (s *session) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case msg := <-s.client.out:
			payload, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("encode outbound message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.client.Close("write failed")
				return
			}

		case <-s.client.done:
			// Room dropped us or the reader ended; closing unblocks the reader.
			_ = conn.Close(websocket.StatusPolicyViolation, s.client.closeReason())
			return

		case <-ctx.Done():
			return
		}
	}
}

func (s *session) handle(ctx context.Context, cm types.ClientMessage) {
	var err error
	switch cm.Type {
	case wire.ActionJoinRoom:
		var p wire.JoinRoom
		if err = json.Unmarshal(cm.Payload, &p); err == nil {
			err = s.join(ctx, p)
		}
	case wire.ActionPlaceFleet:
		var p wire.PlaceFleet
		if err = json.Unmarshal(cm.Payload, &p); err == nil {
			err = s.placeFleet(ctx, p)
		}
	case wire.ActionAttack:
		var p wire.Attack
		if err = json.Unmarshal(cm.Payload, &p); err == nil {
			err = s.attack(ctx, p)
		}
	default:
		s.client.Send(types.Error(codeBadRequest, "unknown type"))
		return
	}
	if err != nil {
		s.fail(err)
	}
}

func (s *session) fail(err error) {
	code := engine.ErrorCode(err)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, errBadRequest) {
		code = codeBadRequest
	}
	metrics.RecordRejected(code)
	s.client.Send(types.Error(code, err.Error()))
}

var errBadRequest = errors.New("roomId and teamId are required")

func (s *session) join(ctx context.Context, p wire.JoinRoom) error {
	roomID, teamID := types.CleanID(p.RoomID), types.CleanID(p.TeamID)
	if roomID == "" || teamID == "" {
		return errBadRequest
	}
	if s.claims == nil {
		if u := types.CleanID(p.UserID); u != "" {
			s.userID = u
		}
	}

	rm, created, err := s.h.Ensure(ctx, roomID)
	if err != nil {
		return err
	}
	if s.room != nil && s.room != rm {
		s.leave()
	}
	if created {
		s.log.Info("room opened by join", zap.String("room_id", roomID))
	}

	pctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	err = rm.Post(pctx, room.Join{
		ConnID:   s.client.id,
		TeamID:   teamID,
		UserID:   s.userID,
		TeamName: s.teamName(ctx, teamID),
		Conn:     s.client,
	})
	if err != nil {
		return err
	}
	s.room = rm
	return nil
}

func (s *session) placeFleet(ctx context.Context, p wire.PlaceFleet) error {
	rm, err := s.lookup(ctx, p.RoomID)
	if err != nil {
		return err
	}
	fleet, err := engine.FleetFromRows(p.FleetGrid)
	if err != nil {
		return err
	}
	cmd := engine.PlaceFleet{TeamID: types.CleanID(p.TeamID), UserID: s.userID, Fleet: fleet}
	return s.post(ctx, rm, cmd)
}

func (s *session) attack(ctx context.Context, p wire.Attack) error {
	rm, err := s.lookup(ctx, p.RoomID)
	if err != nil {
		return err
	}
	userID := s.userID
	if s.claims == nil {
		if u := types.CleanID(p.UserID); u != "" {
			userID = u
		}
	}
	cmd := engine.Attack{
		AttackerID:      types.CleanID(p.AttackerID),
		TargetID:        types.CleanID(p.TargetTeamID),
		X:               p.X,
		Y:               p.Y,
		DoubleOrNothing: p.DoubleOrNothing,
		UserID:          userID,
	}
	return s.post(ctx, rm, cmd)
}

func (s *session) lookup(ctx context.Context, roomID string) (*room.Room, error) {
	rm, err := s.h.Get(ctx, types.CleanID(roomID))
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, engine.ErrRoomNotFound
	}
	return rm, nil
}

func (s *session) post(ctx context.Context, rm *room.Room, cmd engine.Command) error {
	pctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	return rm.Post(pctx, room.FromClient{ConnID: s.client.id, Conn: s.client, Cmd: cmd})
}

func (s *session) leave() {
	if s.room == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()
	if err := s.room.Post(ctx, room.Leave{ConnID: s.client.id}); err != nil && !errors.Is(err, room.ErrClosed) {
		s.log.Warn("leave not delivered", zap.String("room_id", s.room.ID()), zap.Error(err))
	}
	s.room = nil
}

// teamName asks the directory for a display name, falling back to the id.
func (s *session) teamName(ctx context.Context, teamID string) string {
	if s.cfg.Teams == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, teamLookupTimeout)
	defer cancel()
	name, err := s.cfg.Teams.TeamName(ctx, teamID)
	if err != nil {
		s.log.Debug("team name lookup failed", zap.String("team_id", teamID), zap.Error(err))
		return ""
	}
	return name
}
