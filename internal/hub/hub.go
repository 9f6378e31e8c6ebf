package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/glitch-battleship/internal/metrics"
	"github.com/DoyleJ11/glitch-battleship/internal/room"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// Ensured is the reply to EnsureRoom. Created is false when the room already existed.
type Ensured struct {
	Room    *room.Room
	Created bool
}

type EnsureRoom struct {
	ID    string
	Reply chan Ensured
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room // nil when unknown
}

type ListRooms struct {
	Reply chan []*room.Room
}

// ShutdownHub stops every room; Done is closed once they have all exited.
type ShutdownHub struct {
	Done chan struct{}
}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the roomId -> room registry. Rooms live until the process stops.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	order  []string
	deps   room.Deps
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, deps room.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		deps:   deps,
		log:    deps.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.ID]; rm != nil {
					msg.Reply <- Ensured{Room: rm}
					break
				}
				rm := room.New(h.ctx, msg.ID, h.deps)
				h.rooms[msg.ID] = rm
				h.order = append(h.order, msg.ID)
				metrics.RecordRoomCreated()
				h.log.Info("room created", zap.String("room_id", msg.ID), zap.Int("rooms", len(h.rooms)))
				msg.Reply <- Ensured{Room: rm, Created: true}

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID]

			case ListRooms:
				out := make([]*room.Room, 0, len(h.order))
				for _, id := range h.order {
					out = append(out, h.rooms[id])
				}
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				close(msg.Done)
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
	}
	for _, rm := range h.rooms {
		<-rm.Done()
	}
	clear(h.rooms)
	h.order = nil
	h.cancel()
}

// Ensure returns the room with id, creating it if needed.
func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, bool, error) {
	reply := make(chan Ensured, 1)
	if err := h.post(ctx, EnsureRoom{ID: id, Reply: reply}); err != nil {
		return nil, false, err
	}
	select {
	case e := <-reply:
		return e.Room, e.Created, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-h.done:
		return nil, false, ErrClosed
	}
}

// Get returns nil without error when the room does not exist.
func (h *Hub) Get(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.post(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rm := <-reply:
		return rm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrClosed
	}
}

func (h *Hub) List(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.post(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrClosed
	}
}

// Shutdown stops every room and waits for them, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.post(ctx, ShutdownHub{Done: done}); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) post(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrClosed
	}
}
