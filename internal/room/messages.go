package room

import (
	"github.com/DoyleJ11/glitch-battleship/internal/engine"
	"github.com/DoyleJ11/glitch-battleship/internal/types"
	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

type Msg interface{ isRoomMsg() }

// Conn is one subscribed websocket session. Send must not block; returning
// false marks the session as too slow and the room drops it.
type Conn interface {
	Send(msg types.ServerMessage) bool
	Close(reason string)
}

type Join struct {
	ConnID   string
	TeamID   string
	UserID   string
	TeamName string
	Conn     Conn
}

func (Join) isRoomMsg() {}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

// FromClient carries a gameplay command. Conn receives the errorMessage when
// the command is rejected.
type FromClient struct {
	ConnID string
	Conn   Conn
	Cmd    engine.Command
}

func (FromClient) isRoomMsg() {}

type AIFire struct{ Token uint64 }

func (AIFire) isRoomMsg() {}

type AdminStart struct{ Reply chan error }

func (AdminStart) isRoomMsg() {}

type AdminStop struct{ Reply chan error }

func (AdminStop) isRoomMsg() {}

type GetSummary struct{ Reply chan wire.RoomUpdate }

func (GetSummary) isRoomMsg() {}

type GetState struct{ Reply chan View }

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View is a read-only copy of actor state for tests and diagnostics.
type View struct {
	NumConns int
	Summary  wire.RoomUpdate
	AIArmed  bool
	AIToken  uint64
}
