package refinement

// MaxRounds is the refinement budget: the number of follow-up answers accepted
// before the session is forced into a terminal outcome.
const MaxRounds = 3

// UndeterminedDiagnosis is used when the budget runs out and the service
// offered no candidate at all.
const UndeterminedDiagnosis = "Unable to determine a single disease"

// SymptomID is an opaque catalog identifier.
type SymptomID string

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusResolved      Status = "resolved"
	StatusAmbiguous     Status = "ambiguous"
	StatusEscalated     Status = "escalated"
)

// Outcome is the classified result of a prediction. It is one of Resolved,
// Ambiguous or Escalated.
type Outcome interface {
	Status() Status
	Terminal() bool
}

// Resolved is a single diagnosis. Forced is set when the session produced it
// by downgrading an Ambiguous outcome.
type Resolved struct {
	Diagnosis string
	Forced    bool
}

func (Resolved) Status() Status { return StatusResolved }
func (Resolved) Terminal() bool { return true }

// Ambiguous keeps the service's candidate ranking as-is.
type Ambiguous struct {
	Candidates []string
	FollowUps  []SymptomID
}

func (Ambiguous) Status() Status { return StatusAmbiguous }
func (Ambiguous) Terminal() bool { return false }

// HasFollowUp reports whether id is one of the open questions.
func (a Ambiguous) HasFollowUp(id SymptomID) bool {
	for _, f := range a.FollowUps {
		if f == id {
			return true
		}
	}
	return false
}

type Escalated struct {
	Reason            string
	FallbackDiagnosis *string
}

func (Escalated) Status() Status { return StatusEscalated }
func (Escalated) Terminal() bool { return true }

// StatusOf tolerates a nil outcome, which means the session has not started.
func StatusOf(o Outcome) Status {
	if o == nil {
		return StatusUninitialized
	}
	return o.Status()
}

// IsTerminal reports whether o ends the protocol.
func IsTerminal(o Outcome) bool {
	return o != nil && o.Terminal()
}

// RawResponse is the decoded body of a prediction service reply. Every field
// is optional; Classify decides which shape it carries.
type RawResponse struct {
	Disease           *string  `json:"disease,omitempty"`
	Escalate          bool     `json:"escalate,omitempty"`
	Message           string   `json:"message,omitempty"`
	FallbackDiagnosis *string  `json:"fallback_diagnosis,omitempty"`
	PossibleDiseases  []string `json:"possible_diseases,omitempty"`
	AskMoreSymptoms   []string `json:"ask_more_symptoms,omitempty"`
}

// Snapshot is a read-only copy of a session's state for presentation.
// Version grows with every committed change, so of two snapshots of the
// same session the one with the higher Version is newer.
type Snapshot struct {
	Evidence  []SymptomID
	Denied    []SymptomID
	Round     int
	MaxRounds int
	Outcome   Outcome
	Busy      bool
	Version   uint64
}

// CanConfirm gates follow-up controls: only an idle session with open
// questions accepts answers.
func (s Snapshot) CanConfirm() bool {
	_, ok := s.Outcome.(Ambiguous)
	return ok && !s.Busy && s.Round < s.MaxRounds
}
