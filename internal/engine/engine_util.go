package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"github.com/DoyleJ11/glitch-battleship/pkg/types"
)

func NewRoom(id string) *Room {
	return &Room{
		ID:           id,
		Status:       StatusWaiting,
		GlitchPhase:  PhaseNormal,
		TurnIndex:    -1,
		RoundAttacks: mapset.New[AttackKey](),
		AIGrid:       CreateGrid(CellUnknown),
	}
}

func newTeam(id, name string) *Team {
	if name == "" {
		name = id
	}
	return &Team{
		ID:          id,
		Name:        name,
		Members:     mapset.New[string](),
		MemberConns: map[string]string{},
		AttackGrids: map[string]*AttackGrid{},
	}
}

func (t *Team) Connected() bool { return t.IsBot || len(t.MemberConns) > 0 }

func (r *Room) Team(id string) *Team {
	for _, t := range r.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *Room) Bot() *Team {
	for _, t := range r.Teams {
		if t.IsBot {
			return t
		}
	}
	return nil
}

// CanStart holds while waiting once at least MinTeams human teams exist and
// every one of them has placed a fleet.
func (r *Room) CanStart() bool {
	if r.Status != StatusWaiting {
		return false
	}
	humans := 0
	for _, t := range r.Teams {
		if t.IsBot {
			continue
		}
		if t.Fleet == nil {
			return false
		}
		humans++
	}
	return humans >= MinTeams
}

// ConnTeam finds the team a connection is attached to.
func (r *Room) ConnTeam(connID string) (*Team, string) {
	for _, t := range r.Teams {
		for userID, c := range t.MemberConns {
			if c == connID {
				return t, userID
			}
		}
	}
	return nil, ""
}

func (r *Room) detachConn(connID string) *Team {
	t, userID := r.ConnTeam(connID)
	if t != nil {
		delete(t.MemberConns, userID)
	}
	return t
}

func (r *Room) aliveParties() int {
	n := 0
	for _, t := range r.Teams {
		if t.Alive {
			n++
		}
	}
	return n
}

func (t *Team) shotAt(targetID string, c Coord) Cell {
	g, ok := t.AttackGrids[targetID]
	if !ok {
		return CellUnknown
	}
	return g[c.Y][c.X]
}

func (t *Team) attackGrid(targetID string) *AttackGrid {
	g, ok := t.AttackGrids[targetID]
	if !ok {
		fresh := CreateGrid(CellUnknown)
		g = &fresh
		t.AttackGrids[targetID] = g
	}
	return g
}

// ShipAt returns the index into t.Ships of the ship covering c, or -1.
func (t *Team) ShipAt(c Coord) int { return t.shipAt(c) }

func (t *Team) shipAt(c Coord) int {
	for i, s := range t.Ships {
		for _, sc := range s.Cells {
			if sc == c {
				return i
			}
		}
	}
	return -1
}

func (t *Team) shipsSunk() int {
	n := 0
	for _, s := range t.Ships {
		if s.Sunk {
			n++
		}
	}
	return n
}

func (r *Room) ensureBot(rng *rand.Rand) {
	humans := 0
	for _, t := range r.Teams {
		if t.IsBot {
			return
		}
		humans++
	}
	if humans != 1 || len(r.Teams) >= MaxTeams {
		return
	}

	id := AIPrefix + r.ID
	for n := 2; r.Team(id) != nil; n++ {
		id = fmt.Sprintf("%s%s-%d", AIPrefix, r.ID, n)
	}

	fleet, ships := PlaceFleetRandomly(rng)
	bot := newTeam(id, "AI Enemy")
	bot.IsBot = true
	bot.Fleet = &fleet
	bot.Ships = NewShips(ships)
	bot.HP = FleetCells
	bot.Alive = true
	r.Teams = append(r.Teams, bot)
}

// aiTarget prefers a connected living human team, then any living human team.
func (r *Room) aiTarget() *Team {
	var fallback *Team
	for _, t := range r.Teams {
		if t.IsBot || !t.Alive {
			continue
		}
		if t.Connected() {
			return t
		}
		if fallback == nil {
			fallback = t
		}
	}
	return fallback
}

func chooseRandomUnknown(g *AttackGrid, rng *rand.Rand) (Coord, bool) {
	var open []Coord
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if g == nil || g[y][x] == CellUnknown {
				open = append(open, Coord{X: x, Y: y})
			}
		}
	}
	if len(open) == 0 {
		return Coord{}, false
	}
	return open[rng.Intn(len(open))], true
}

func cellString(c Cell) string { return string(c) }

func teamView(t *Team) types.TeamView {
	return types.TeamView{
		TeamID:           t.ID,
		TeamName:         t.Name,
		HP:               t.HP,
		Score:            t.Score,
		IsAlive:          t.Alive,
		IsConnected:      t.Connected(),
		IsBot:            t.IsBot,
		FleetPlaced:      t.Fleet != nil,
		Members:          t.Members.Size(),
		ConnectedMembers: len(t.MemberConns),
		ShipsSunk:        t.shipsSunk(),
	}
}

// Snapshot renders the room for roomUpdate and admin summaries. The AI enemy is
// listed among Teams and repeated in AIEnemy.
func Snapshot(r *Room) types.RoomUpdate {
	u := types.RoomUpdate{
		RoomID:      r.ID,
		Status:      string(r.Status),
		TurnCount:   r.TurnCount,
		GlitchPhase: int(r.GlitchPhase),
		PhaseName:   r.GlitchPhase.String(),
		TurnTeamID:  r.turnTeamID(),
		Teams:       make([]types.TeamView, 0, len(r.Teams)),
	}
	for _, t := range r.Teams {
		v := teamView(t)
		u.Teams = append(u.Teams, v)
		if t.IsBot {
			u.AIEnemy = &v
		}
	}
	return u
}

// Rankings orders every team, bot included, by alive, then hp, then score.
// Ties keep join order.
func Rankings(r *Room) []types.Ranking {
	teams := make([]*Team, len(r.Teams))
	copy(teams, r.Teams)
	sort.SliceStable(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		if a.Alive != b.Alive {
			return a.Alive
		}
		if a.HP != b.HP {
			return a.HP > b.HP
		}
		return a.Score > b.Score
	})

	out := make([]types.Ranking, 0, len(teams))
	for i, t := range teams {
		out = append(out, types.Ranking{
			Rank:        i + 1,
			TeamID:      t.ID,
			TeamName:    t.Name,
			HP:          t.HP,
			Score:       t.Score,
			IsAlive:     t.Alive,
			IsConnected: t.Connected(),
			IsBot:       t.IsBot,
		})
	}
	return out
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrTeamNotFound, "TeamNotFound"},
	{ErrRoomFull, "RoomFull"},
	{ErrInvalidFleetShape, "InvalidFleetShape"},
	{ErrGameNotActive, "GameNotActive"},
	{ErrNotYourTurn, "NotYourTurn"},
	{ErrAlreadyAttackedThisRound, "AlreadyAttackedThisRound"},
	{ErrInvalidCoordinates, "InvalidCoordinates"},
	{ErrTileAlreadyTargeted, "TileAlreadyTargeted"},
	{ErrAttackerInactive, "AttackerInactive"},
	{ErrTargetEliminated, "TargetEliminated"},
	{ErrInvalidTarget, "InvalidTarget"},
	{ErrGameInProgress, "GameInProgress"},
	{ErrFleetAlreadyPlaced, "FleetAlreadyPlaced"},
	{ErrRoomNotReady, "RoomNotReady"},
	{ErrUnsupportedCommand, "BadRequest"},
}

// ErrorCode maps an engine error to the stable code sent in errorMessage.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "InternalError"
}

// ContainsKind reports whether any event carries a payload of the given kind.
func ContainsKind(events []Event, kind string) bool {
	for _, e := range events {
		if e.Payload.Kind() == kind {
			return true
		}
	}
	return false
}
