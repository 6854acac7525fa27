package bootstrap

import "n8nstack/internal/check"

type Phase uint8

const (
	PhasePending Phase = iota
	PhaseLiveness
	PhaseSchema
	PhaseAdmin
	PhaseWorkspace
	PhaseMembership
	PhasePreferences
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseLiveness:
		return "liveness"
	case PhaseSchema:
		return "schema"
	case PhaseAdmin:
		return "admin"
	case PhaseWorkspace:
		return "workspace"
	case PhaseMembership:
		return "membership"
	case PhasePreferences:
		return "preferences"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Title is the human-readable step label.
func (p Phase) Title() string {
	switch p {
	case PhaseLiveness:
		return "waiting for database"
	case PhaseSchema:
		return "waiting for schema"
	case PhaseAdmin:
		return "ensuring owner account"
	case PhaseWorkspace:
		return "ensuring personal project"
	case PhaseMembership:
		return "ensuring project membership"
	case PhasePreferences:
		return "resetting owner settings"
	default:
		return p.String()
	}
}

// Transition moves strictly forward one phase at a time; any running phase
// may fail. Terminal phases do not move.
func (p Phase) Transition(to Phase) Phase {
	ok := !p.Terminal() && (to == p+1 || (to == PhaseFailed && p != PhasePending))
	check.Assertf(ok, "bootstrap phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}
