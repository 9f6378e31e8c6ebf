package engine

import (
	"errors"
	"math/rand"

	"github.com/zyedidia/generic/mapset"

	"github.com/DoyleJ11/glitch-battleship/pkg/types"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrTeamNotFound = errors.New("team not found")
var ErrRoomFull = errors.New("room is full")
var ErrInvalidFleetShape = errors.New("fleet must be ships of sizes 5, 4, 3, 3 and 2")
var ErrGameNotActive = errors.New("game not active")
var ErrNotYourTurn = errors.New("not your turn")
var ErrAlreadyAttackedThisRound = errors.New("already attacked this round")
var ErrInvalidCoordinates = errors.New("invalid coordinates")
var ErrTileAlreadyTargeted = errors.New("tile already targeted")
var ErrAttackerInactive = errors.New("attacker inactive")
var ErrTargetEliminated = errors.New("target eliminated")
var ErrInvalidTarget = errors.New("cannot target your own team")
var ErrGameInProgress = errors.New("game already in progress")
var ErrFleetAlreadyPlaced = errors.New("fleet already placed")
var ErrRoomNotReady = errors.New("room not ready to start")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MaxTeams  = 5
	MinTeams  = 1
	MaxTurns  = 15
	SinkBonus = 5
	AIPrefix  = "AI-"
)

const (
	ReasonLastTeamStanding = "last-team-standing"
	ReasonRoundLimit       = "round-limit"
	ReasonAdminStop        = "admin-stop"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type AttackKey struct {
	TeamID string
	UserID string
}

type Room struct {
	ID           string
	Status       Status
	TurnCount    int
	GlitchPhase  Phase
	TurnIndex    int
	Teams        []*Team
	RoundAttacks mapset.Set[AttackKey]
	AIGrid       AttackGrid // shared reveal of every shot fired at the AI enemy
	FinishReason string
}

type Team struct {
	ID          string
	Name        string
	Members     mapset.Set[string]
	MemberConns map[string]string // userID -> connID; presence means connected
	Fleet       *FleetGrid
	Struck      FleetGrid
	Ships       []Ship
	HP          int
	Alive       bool
	Score       int
	AttackGrids map[string]*AttackGrid
	IsBot       bool
}

// Env carries what a command needs from outside the room: randomness and the
// admin glitch override (zero when none is set).
type Env struct {
	Rand     *rand.Rand
	Override Phase
}

func (e Env) phaseFor(turn int) Phase {
	if e.Override.Valid() {
		return e.Override
	}
	return PhaseForTurn(turn)
}

type Command interface{ isCommand() }

type JoinRoom struct {
	ConnID   string
	TeamID   string
	UserID   string
	TeamName string
}

type LeaveRoom struct {
	ConnID string
}

type PlaceFleet struct {
	TeamID string
	UserID string
	Fleet  FleetGrid
}

type Attack struct {
	AttackerID      string
	TargetID        string
	X               int
	Y               int
	DoubleOrNothing bool
	UserID          string
}

type AIMove struct{}

type StartGame struct{}

type StopGame struct {
	Reason string
}

func (JoinRoom) isCommand()   {}
func (LeaveRoom) isCommand()  {}
func (PlaceFleet) isCommand() {}
func (Attack) isCommand()     {}
func (AIMove) isCommand()     {}
func (StartGame) isCommand()  {}
func (StopGame) isCommand()   {}

type AudienceKind int

const (
	ToRoom AudienceKind = iota
	ToTeam
	ToConn
)

type Audience struct {
	Kind   AudienceKind
	TeamID string
	ConnID string
}

type Event struct {
	To      Audience
	Payload types.Payload
}

func roomEvent(p types.Payload) Event { return Event{To: Audience{Kind: ToRoom}, Payload: p} }

func teamEvent(teamID string, p types.Payload) Event {
	return Event{To: Audience{Kind: ToTeam, TeamID: teamID}, Payload: p}
}

func connEvent(connID string, p types.Payload) Event {
	return Event{To: Audience{Kind: ToConn, ConnID: connID}, Payload: p}
}

// Apply validates cmd against r and, only when every check passes, mutates r
// and returns the events to deliver. A non-nil error means r is unchanged.
func Apply(r *Room, cmd Command, env Env) ([]Event, error) {
	switch c := cmd.(type) {
	case JoinRoom:
		return applyJoin(r, c, env)
	case LeaveRoom:
		return applyLeave(r, c, env), nil
	case PlaceFleet:
		return applyPlaceFleet(r, c, env)
	case Attack:
		return applyAttack(r, c, env)
	case AIMove:
		return applyAIMove(r, env)
	case StartGame:
		if !r.CanStart() {
			return nil, ErrRoomNotReady
		}
		return append(r.start(env), roomEvent(Snapshot(r))), nil
	case StopGame:
		if r.Status == StatusFinished {
			return nil, nil
		}
		reason := c.Reason
		if reason == "" {
			reason = ReasonAdminStop
		}
		return append(r.finish(reason), roomEvent(Snapshot(r))), nil
	default:
		return nil, ErrUnsupportedCommand
	}
}

func applyJoin(r *Room, c JoinRoom, env Env) ([]Event, error) {
	if c.TeamID == "" {
		return nil, ErrTeamNotFound
	}

	t := r.Team(c.TeamID)
	if t != nil && t.IsBot {
		return nil, ErrTeamNotFound
	}
	if t == nil {
		if r.Status != StatusWaiting {
			return nil, ErrGameInProgress
		}
		if len(r.Teams) >= MaxTeams {
			return nil, ErrRoomFull
		}
		t = newTeam(c.TeamID, c.TeamName)
		r.Teams = append(r.Teams, t)
	}

	userID := c.UserID
	if userID == "" {
		userID = c.ConnID
	}
	r.detachConn(c.ConnID)
	t.Members.Put(userID)
	t.MemberConns[userID] = c.ConnID
	if c.TeamName != "" {
		t.Name = c.TeamName
	}

	var events []Event
	if r.Status == StatusActive {
		// Nobody could hold the turn; the rejoining team reopens it. A team
		// that already fired this round passes it straight on.
		if r.TurnIndex < 0 {
			if next := r.nextEligible(0); next >= 0 {
				r.TurnIndex = next
				if r.turnSatisfied(r.Teams[next]) {
					events = append(events, r.advanceTurn(env)...)
				} else {
					events = append(events, roomEvent(types.TurnChange{TeamID: r.turnTeamID()}))
				}
			}
		}
		events = append(events, connEvent(c.ConnID, types.TurnChange{TeamID: r.turnTeamID()}))
	}
	return append(events, roomEvent(Snapshot(r))), nil
}

func applyLeave(r *Room, c LeaveRoom, env Env) []Event {
	t := r.detachConn(c.ConnID)
	if t == nil {
		return nil
	}

	var events []Event
	if r.Status == StatusActive && r.TurnOwner() == t && r.turnSatisfied(t) {
		events = append(events, r.advanceTurn(env)...)
	}
	return append(events, roomEvent(Snapshot(r)))
}

func applyPlaceFleet(r *Room, c PlaceFleet, env Env) ([]Event, error) {
	t := r.Team(c.TeamID)
	if t == nil || t.IsBot {
		return nil, ErrTeamNotFound
	}
	if c.UserID != "" && !t.Members.Has(c.UserID) {
		return nil, ErrTeamNotFound
	}
	if r.Status != StatusWaiting {
		return nil, ErrGameInProgress
	}
	if t.Fleet != nil {
		return nil, ErrFleetAlreadyPlaced
	}
	ships, err := ValidateFleet(c.Fleet)
	if err != nil {
		return nil, err
	}

	fleet := c.Fleet
	t.Fleet = &fleet
	t.Ships = NewShips(ships)
	t.HP = FleetCells
	t.Alive = true

	var events []Event
	if r.CanStart() {
		events = r.start(env)
	}
	return append(events, roomEvent(Snapshot(r))), nil
}

func applyAttack(r *Room, c Attack, env Env) ([]Event, error) {
	if r.Status != StatusActive {
		return nil, ErrGameNotActive
	}
	attacker, target := r.Team(c.AttackerID), r.Team(c.TargetID)
	if attacker == nil || target == nil {
		return nil, ErrTeamNotFound
	}
	if attacker == target {
		return nil, ErrInvalidTarget
	}
	if !attacker.Alive || !attacker.Connected() {
		return nil, ErrAttackerInactive
	}
	if !target.Alive {
		return nil, ErrTargetEliminated
	}
	if r.TurnOwner() != attacker {
		return nil, ErrNotYourTurn
	}
	if c.UserID != "" && !attacker.IsBot && !attacker.Members.Has(c.UserID) {
		return nil, ErrNotYourTurn
	}
	if c.UserID != "" && r.RoundAttacks.Has(AttackKey{TeamID: attacker.ID, UserID: c.UserID}) {
		return nil, ErrAlreadyAttackedThisRound
	}
	if !InBounds(c.X, c.Y) {
		return nil, ErrInvalidCoordinates
	}
	if attacker.shotAt(target.ID, Coord{X: c.X, Y: c.Y}) != CellUnknown {
		return nil, ErrTileAlreadyTargeted
	}

	return r.fire(attacker, target, c, env), nil
}

func (r *Room) fire(attacker, target *Team, c Attack, env Env) []Event {
	phase := r.GlitchPhase
	aimed := Coord{X: c.X, Y: c.Y}
	hitAt := aimed
	if phase.ShiftsTarget() {
		// A redirect never lands on a cell this attacker already resolved.
		if to := Redirect(aimed, env.Rand.Intn); attacker.shotAt(target.ID, to) == CellUnknown {
			hitAt = to
		}
	}

	isHit := target.Fleet != nil && target.Fleet[hitAt.Y][hitAt.X]
	res := Resolve(phase, isHit, c.DoubleOrNothing)
	toTarget := res.DamageToTarget * res.Multiplier
	toAttacker := res.DamageToAttacker * res.Multiplier

	sunk, shipSize := false, 0
	if toTarget > 0 {
		target.HP = max(target.HP-toTarget, 0)
		attacker.Score += toTarget
		if i := target.shipAt(hitAt); i >= 0 && !target.Struck[hitAt.Y][hitAt.X] {
			target.Struck[hitAt.Y][hitAt.X] = true
			ship := &target.Ships[i]
			ship.Hits++
			if !ship.Sunk && ship.Hits >= ship.Size() {
				ship.Sunk = true
				sunk, shipSize = true, ship.Size()
				attacker.Score += SinkBonus * res.Multiplier
			}
		}
		if target.HP == 0 {
			target.Alive = false
		}
	}
	if toAttacker > 0 {
		attacker.HP = max(attacker.HP-toAttacker, 0)
		attacker.Score = max(attacker.Score-toAttacker, 0)
		if attacker.HP == 0 {
			attacker.Alive = false
		}
	}

	cell := CellMiss
	if isHit {
		cell = CellHit
	}
	grid := attacker.attackGrid(target.ID)
	grid[hitAt.Y][hitAt.X] = cell
	if target.IsBot && r.AIGrid[hitAt.Y][hitAt.X] == CellUnknown {
		r.AIGrid[hitAt.Y][hitAt.X] = cell
	}
	if c.UserID != "" {
		r.RoundAttacks.Put(AttackKey{TeamID: attacker.ID, UserID: c.UserID})
	}

	result := types.AttackResult{
		AttackerID:       attacker.ID,
		TargetTeamID:     target.ID,
		UserID:           c.UserID,
		X:                hitAt.X,
		Y:                hitAt.Y,
		OriginalX:        aimed.X,
		OriginalY:        aimed.Y,
		Result:           string(cell),
		TurnCount:        r.TurnCount,
		GlitchPhase:      int(phase),
		ShotShifted:      hitAt != aimed,
		DamageMultiplier: res.Multiplier,
		DamageToAttacker: toAttacker,
		DamageToTarget:   toTarget,
		AttackerHP:       attacker.HP,
		TargetHP:         target.HP,
		ShipSunk:         sunk,
	}
	private := result
	private.AttackGrid = grid.Rows(cellString)

	events := []Event{roomEvent(result), teamEvent(attacker.ID, private)}
	if toTarget > 0 && !target.IsBot {
		events = append(events, teamEvent(target.ID, types.FleetHit{
			AttackerID:   attacker.ID,
			TargetTeamID: target.ID,
			X:            hitAt.X,
			Y:            hitAt.Y,
			Damage:       toTarget,
			HP:           target.HP,
			ShipSunk:     sunk,
			ShipSize:     shipSize,
		}))
	}
	if target.IsBot {
		events = append(events, roomEvent(types.AIEnemyGridUpdate{
			AIEnemyID:  target.ID,
			AttackerID: attacker.ID,
			X:          hitAt.X,
			Y:          hitAt.Y,
			Result:     string(cell),
			HP:         target.HP,
			Grid:       r.AIGrid.Rows(cellString),
		}))
	}

	if r.aliveParties() < 2 {
		events = append(events, r.finish(ReasonLastTeamStanding)...)
		return append(events, roomEvent(Snapshot(r)))
	}

	if attacker.IsBot || c.UserID == "" || !attacker.Alive || r.turnSatisfied(attacker) {
		events = append(events, r.advanceTurn(env)...)
	}
	return append(events, roomEvent(Snapshot(r)))
}

func applyAIMove(r *Room, env Env) ([]Event, error) {
	if r.Status != StatusActive {
		return nil, ErrGameNotActive
	}
	bot := r.TurnOwner()
	if bot == nil || !bot.IsBot {
		return nil, ErrNotYourTurn
	}

	target := r.aiTarget()
	if target == nil {
		return nil, nil
	}
	shot, ok := chooseRandomUnknown(bot.AttackGrids[target.ID], env.Rand)
	if !ok {
		return nil, nil
	}
	return applyAttack(r, Attack{AttackerID: bot.ID, TargetID: target.ID, X: shot.X, Y: shot.Y}, env)
}

func (r *Room) start(env Env) []Event {
	r.ensureBot(env.Rand)
	r.Status = StatusActive
	r.TurnCount = 1
	r.GlitchPhase = env.phaseFor(r.TurnCount)
	r.RoundAttacks.Clear()
	r.TurnIndex = r.nextEligible(0)

	return []Event{
		roomEvent(phaseChange(r)),
		roomEvent(types.TurnChange{TeamID: r.turnTeamID()}),
	}
}

func (r *Room) finish(reason string) []Event {
	r.Status = StatusFinished
	r.FinishReason = reason
	r.RoundAttacks.Clear()
	return []Event{roomEvent(types.GameOver{Reason: reason, Rankings: Rankings(r)})}
}
