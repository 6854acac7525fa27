package bootstrap

// Report summarizes what a run observed and changed.
type Report struct {
	Phase            Phase
	UserID           string
	WorkspaceID      string
	LivenessAttempts int
	SchemaAttempts   int
	Outcomes         map[Entity]Outcome
	Repaired         []Entity
}

func newReport() Report {
	return Report{Phase: PhasePending, Outcomes: make(map[Entity]Outcome, 3)}
}

// Inserts counts the rows this run inserted.
func (r Report) Inserts() int {
	n := 0
	for _, o := range r.Outcomes {
		if o == OutcomeInserted {
			n++
		}
	}
	return n
}

// Changed reports whether anything other than the settings overwrite was
// written.
func (r Report) Changed() bool {
	return r.Inserts() > 0 || len(r.Repaired) > 0
}
