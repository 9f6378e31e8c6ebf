package types

// Server -> Client
//
// Every outbound payload names its own event type so the transport can wrap it in
// {"type": Kind(), "payload": ...} without a lookup table.

const (
	EventRoomUpdate        = "roomUpdate"
	EventAttackResult      = "attackResult"
	EventFleetHit          = "fleetHit"
	EventAIEnemyGridUpdate = "aiEnemyGridUpdate"
	EventPhaseChange       = "phaseChange"
	EventTurnChange        = "turnChange"
	EventGameOver          = "gameOver"
	EventErrorMessage      = "errorMessage"
)

// Payload is implemented by every server -> client event body.
type Payload interface {
	Kind() string
}

type TeamView struct {
	TeamID           string `json:"teamId"`
	TeamName         string `json:"teamName,omitempty"`
	HP               int    `json:"hp"`
	Score            int    `json:"score"`
	IsAlive          bool   `json:"isAlive"`
	IsConnected      bool   `json:"isConnected"`
	IsBot            bool   `json:"isBot,omitempty"`
	FleetPlaced      bool   `json:"fleetPlaced"`
	Members          int    `json:"members"`
	ConnectedMembers int    `json:"connectedMembers"`
	ShipsSunk        int    `json:"shipsSunk"`
}

// RoomUpdate is the full room snapshot; it doubles as the admin room summary.
type RoomUpdate struct {
	RoomID      string     `json:"roomId"`
	Status      string     `json:"status"`
	TurnCount   int        `json:"turnCount"`
	GlitchPhase int        `json:"glitchPhase"`
	PhaseName   string     `json:"phaseName"`
	TurnTeamID  string     `json:"turnTeamId,omitempty"`
	Teams       []TeamView `json:"teams"`
	AIEnemy     *TeamView  `json:"aiEnemy,omitempty"`
}

func (RoomUpdate) Kind() string { return EventRoomUpdate }

type AttackResult struct {
	AttackerID       string     `json:"attackerId"`
	TargetTeamID     string     `json:"targetTeamId"`
	UserID           string     `json:"userId,omitempty"`
	X                int        `json:"x"`
	Y                int        `json:"y"`
	OriginalX        int        `json:"originalX"`
	OriginalY        int        `json:"originalY"`
	Result           string     `json:"result"` // "hit" | "miss"
	TurnCount        int        `json:"turnCount"`
	GlitchPhase      int        `json:"glitchPhase"`
	ShotShifted      bool       `json:"shotShifted"`
	DamageMultiplier int        `json:"damageMultiplier"`
	DamageToAttacker int        `json:"damageToAttacker"`
	DamageToTarget   int        `json:"damageToTarget"`
	AttackerHP       int        `json:"attackerHp"`
	TargetHP         int        `json:"targetHp"`
	ShipSunk         bool       `json:"shipSunk"`
	AttackGrid       [][]string `json:"attackGrid,omitempty"` // attacking team only
}

func (AttackResult) Kind() string { return EventAttackResult }

type FleetHit struct {
	AttackerID   string `json:"attackerId"`
	TargetTeamID string `json:"targetTeamId"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	Damage       int    `json:"damage"`
	HP           int    `json:"hp"`
	ShipSunk     bool   `json:"shipSunk"`
	ShipSize     int    `json:"shipSize,omitempty"`
}

func (FleetHit) Kind() string { return EventFleetHit }

type AIEnemyGridUpdate struct {
	AIEnemyID  string     `json:"aiEnemyId"`
	AttackerID string     `json:"attackerId"`
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Result     string     `json:"result"`
	HP         int        `json:"hp"`
	Grid       [][]string `json:"grid"`
}

func (AIEnemyGridUpdate) Kind() string { return EventAIEnemyGridUpdate }

type PhaseChange struct {
	TurnCount   int    `json:"turnCount"`
	GlitchPhase int    `json:"glitchPhase"`
	PhaseName   string `json:"phaseName"`
}

func (PhaseChange) Kind() string { return EventPhaseChange }

type TurnChange struct {
	TeamID string `json:"teamId,omitempty"` // empty when nobody can hold the turn
}

func (TurnChange) Kind() string { return EventTurnChange }

type Ranking struct {
	Rank        int    `json:"rank"`
	TeamID      string `json:"teamId"`
	TeamName    string `json:"teamName,omitempty"`
	HP          int    `json:"hp"`
	Score       int    `json:"score"`
	IsAlive     bool   `json:"isAlive"`
	IsConnected bool   `json:"isConnected"`
	IsBot       bool   `json:"isBot,omitempty"`
}

type GameOver struct {
	Reason   string    `json:"reason"` // "last-team-standing" | "round-limit" | "admin-stop"
	Rankings []Ranking `json:"rankings"`
}

func (GameOver) Kind() string { return EventGameOver }

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorMessage) Kind() string { return EventErrorMessage }
