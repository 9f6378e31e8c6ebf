package types

// Client -> Server
//
// joinRoom:
//   roomId: string
//   teamId: string
//   userId: string // ignored when the connection carries a session token
//
// placeFleet:
//   roomId: string
//   teamId: string
//   fleetGrid: boolean[10][10] // fleetGrid[y][x]
//
// attack:
//   roomId: string
//   attackerId: string
//   targetTeamId: string
//   x, y: number
//   doubleOrNothing: boolean
//   userId: string

const (
	ActionJoinRoom   = "joinRoom"
	ActionPlaceFleet = "placeFleet"
	ActionAttack     = "attack"
)

type JoinRoom struct {
	RoomID string `json:"roomId"`
	TeamID string `json:"teamId"`
	UserID string `json:"userId,omitempty"`
}

type PlaceFleet struct {
	RoomID    string   `json:"roomId"`
	TeamID    string   `json:"teamId"`
	FleetGrid [][]bool `json:"fleetGrid"`
}

type Attack struct {
	RoomID          string `json:"roomId"`
	AttackerID      string `json:"attackerId"`
	TargetTeamID    string `json:"targetTeamId"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	DoubleOrNothing bool   `json:"doubleOrNothing,omitempty"`
	UserID          string `json:"userId,omitempty"`
}
