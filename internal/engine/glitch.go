package engine

// Phase is the active glitch modifier, 1 through 5.
type Phase int

const (
	PhaseNormal Phase = iota + 1
	PhaseReflectiveArmor
	PhaseDualDamage
	PhaseShotShift
	PhaseDoubleOrNothing
)

var phaseNames = map[Phase]string{
	PhaseNormal:          "Normal",
	PhaseReflectiveArmor: "Reflective Armor",
	PhaseDualDamage:      "Dual Damage",
	PhaseShotShift:       "Shot Shift",
	PhaseDoubleOrNothing: "Double or Nothing",
}

var Phases = []Phase{PhaseNormal, PhaseReflectiveArmor, PhaseDualDamage, PhaseShotShift, PhaseDoubleOrNothing}

func (p Phase) Valid() bool { return p >= PhaseNormal && p <= PhaseDoubleOrNothing }

// ShiftsTarget reports whether shots are redirected before they resolve.
func (p Phase) ShiftsTarget() bool { return p == PhaseShotShift }

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Unknown"
}

// PhaseForTurn derives the glitch phase from the round counter: three rounds per phase.
func PhaseForTurn(turn int) Phase {
	switch {
	case turn <= 3:
		return PhaseNormal
	case turn <= 6:
		return PhaseReflectiveArmor
	case turn <= 9:
		return PhaseDualDamage
	case turn <= 12:
		return PhaseShotShift
	default:
		return PhaseDoubleOrNothing
	}
}

type Resolution struct {
	DamageToAttacker int
	DamageToTarget   int
	ShiftsTarget     bool
	Multiplier       int
}

// Resolve maps a phase and hit outcome to the damage split. Damage values are
// before the multiplier is applied.
func Resolve(phase Phase, isHit, doubleOrNothing bool) Resolution {
	res := Resolution{Multiplier: 1}

	switch phase {
	case PhaseReflectiveArmor:
		if isHit {
			res.DamageToAttacker = 1
		}
	case PhaseDualDamage:
		if isHit {
			res.DamageToAttacker = 1
			res.DamageToTarget = 1
		}
	case PhaseShotShift:
		res.ShiftsTarget = true
		if isHit {
			res.DamageToTarget = 1
		}
	case PhaseDoubleOrNothing:
		if doubleOrNothing {
			res.Multiplier = 2
		}
		if isHit {
			res.DamageToTarget = 1
		}
	default:
		if isHit {
			res.DamageToTarget = 1
		}
	}
	return res
}

// Redirect moves a Shot Shift target to one orthogonal neighbour chosen by pick.
// An off-board neighbour keeps the original coordinate.
func Redirect(c Coord, pick func(n int) int) Coord {
	dirs := neighbours(c)
	n := dirs[pick(len(dirs))]
	if !InBounds(n.X, n.Y) {
		return c
	}
	return n
}
