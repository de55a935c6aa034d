package diagnosis

import (
	"time"

	"diagnosis-refiner/internal/refinement"

	"github.com/google/uuid"
)

// Record is the persisted form of a refinement session after its last
// committed operation.
type Record struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	Status     refinement.Status      `json:"status" db:"status"`
	Evidence   []refinement.SymptomID `json:"evidence" db:"evidence"`
	Denied     []refinement.SymptomID `json:"denied" db:"denied"`
	Round      int                    `json:"round" db:"round"`
	Diagnosis  string                 `json:"diagnosis,omitempty" db:"diagnosis"`
	Forced     bool                   `json:"forced,omitempty" db:"forced"`
	Candidates []string               `json:"candidates,omitempty" db:"candidates"`
	FollowUps  []refinement.SymptomID `json:"follow_ups,omitempty" db:"follow_ups"`
	Reason     string                 `json:"reason,omitempty" db:"reason"`
	Fallback   *string                `json:"fallback_diagnosis,omitempty" db:"fallback_diagnosis"`
	Version    uint64                 `json:"version" db:"version"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// View is what the presentation layer renders.
type View struct {
	Record
	MaxRounds  int  `json:"max_rounds"`
	Busy       bool `json:"busy"`
	CanConfirm bool `json:"can_confirm"`
}

func newRecord(id uuid.UUID, snap refinement.Snapshot, createdAt time.Time) Record {
	rec := Record{
		ID:        id,
		Status:    refinement.StatusOf(snap.Outcome),
		Evidence:  snap.Evidence,
		Denied:    snap.Denied,
		Round:     snap.Round,
		Version:   snap.Version,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
	}

	switch o := snap.Outcome.(type) {
	case refinement.Resolved:
		rec.Diagnosis = o.Diagnosis
		rec.Forced = o.Forced
	case refinement.Ambiguous:
		rec.Candidates = o.Candidates
		rec.FollowUps = o.FollowUps
	case refinement.Escalated:
		rec.Reason = o.Reason
		rec.Fallback = o.FallbackDiagnosis
	}
	return rec
}

func newView(id uuid.UUID, snap refinement.Snapshot, createdAt time.Time) View {
	return View{
		Record:     newRecord(id, snap, createdAt),
		MaxRounds:  snap.MaxRounds,
		Busy:       snap.Busy,
		CanConfirm: snap.CanConfirm(),
	}
}

// snapshot turns a stored record back into engine state.
func (r Record) snapshot() refinement.Snapshot {
	snap := refinement.Snapshot{
		Evidence:  r.Evidence,
		Denied:    r.Denied,
		Round:     r.Round,
		MaxRounds: refinement.MaxRounds,
		Version:   r.Version,
	}

	switch r.Status {
	case refinement.StatusResolved:
		snap.Outcome = refinement.Resolved{Diagnosis: r.Diagnosis, Forced: r.Forced}
	case refinement.StatusAmbiguous:
		snap.Outcome = refinement.Ambiguous{Candidates: r.Candidates, FollowUps: r.FollowUps}
	case refinement.StatusEscalated:
		snap.Outcome = refinement.Escalated{Reason: r.Reason, FallbackDiagnosis: r.Fallback}
	}
	return snap
}
