package engine

import "github.com/DoyleJ11/glitch-battleship/pkg/types"

// Turn order walks r.Teams in join order. A team may hold the turn while it is
// alive and has at least one connected member; the AI enemy is always
// connected. The walk never wraps inside a round: running off the end closes
// the round.

func (t *Team) eligible() bool { return t.Alive && t.Connected() }

func (r *Room) TurnOwner() *Team {
	if r.TurnIndex < 0 || r.TurnIndex >= len(r.Teams) {
		return nil
	}
	return r.Teams[r.TurnIndex]
}

func (r *Room) turnTeamID() string {
	if t := r.TurnOwner(); t != nil {
		return t.ID
	}
	return ""
}

// nextEligible returns the first eligible index at or after from, or -1.
func (r *Room) nextEligible(from int) int {
	for i := max(from, 0); i < len(r.Teams); i++ {
		if r.Teams[i].eligible() {
			return i
		}
	}
	return -1
}

// turnSatisfied reports whether every currently connected member of t has
// fired this round. A team with nobody connected is trivially satisfied.
func (r *Room) turnSatisfied(t *Team) bool {
	if t.IsBot {
		return true
	}
	for userID := range t.MemberConns {
		if !r.RoundAttacks.Has(AttackKey{TeamID: t.ID, UserID: userID}) {
			return false
		}
	}
	return true
}

// advanceTurn hands the turn to the next eligible team. Closing a round bumps
// TurnCount, clears the per-member tracker and re-derives the glitch phase;
// closing round MaxTurns finishes the game. With no eligible team at all the
// turn parks at -1 and the round stays open.
func (r *Room) advanceTurn(env Env) []Event {
	var events []Event

	next := r.nextEligible(r.TurnIndex + 1)
	if next < 0 && r.nextEligible(0) < 0 {
		r.TurnIndex = -1
		return append(events, roomEvent(types.TurnChange{}))
	}
	if next < 0 {
		r.TurnCount++
		r.RoundAttacks.Clear()
		if r.TurnCount > MaxTurns {
			r.TurnCount = MaxTurns
			return append(events, r.finish(ReasonRoundLimit)...)
		}
		r.GlitchPhase = env.phaseFor(r.TurnCount)
		events = append(events, roomEvent(phaseChange(r)))
		next = r.nextEligible(0)
	}

	r.TurnIndex = next
	return append(events, roomEvent(types.TurnChange{TeamID: r.turnTeamID()}))
}

func phaseChange(r *Room) types.PhaseChange {
	return types.PhaseChange{
		TurnCount:   r.TurnCount,
		GlitchPhase: int(r.GlitchPhase),
		PhaseName:   r.GlitchPhase.String(),
	}
}
