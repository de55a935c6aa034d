package refinement

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Predictor is the remote diagnosis service. Implementations should wrap
// their failures in ErrTransport or ErrProtocol; anything else is treated as
// a transport failure.
type Predictor interface {
	Predict(ctx context.Context, symptoms []SymptomID) (RawResponse, error)
}

// Session drives one diagnostic interaction through predict -> ask -> re-predict
// rounds. Operations are serialized: a call made while another is waiting on
// the predictor fails with ErrSessionBusy. State is only replaced after a
// prediction has been classified, so a failed call leaves it exactly as it was.
type Session struct {
	predictor Predictor

	mu         sync.Mutex
	evidence   *EvidenceSet
	denied     *EvidenceSet
	round      int
	outcome    Outcome
	generation uint64
	version    uint64
	busy       bool
	cancel     context.CancelFunc
}

func NewSession(predictor Predictor) *Session {
	return &Session{
		predictor: predictor,
		evidence:  NewEvidenceSet(),
		denied:    NewEvidenceSet(),
	}
}

// Start replaces whatever the session held with a fresh round-zero session
// over selection. The returned snapshot is the state it committed; its
// Outcome is the first outcome.
func (s *Session) Start(ctx context.Context, selection []SymptomID) (Snapshot, error) {
	evidence, err := EvidenceFromSelection(selection)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionBusy
	}
	ctx, gen := s.beginLocked(ctx)
	s.mu.Unlock()
	defer s.end(gen)

	outcome, err := s.predict(ctx, gen, evidence)
	if err != nil {
		return Snapshot{}, err
	}
	outcome = settle(outcome, evidence, 0)

	return s.commit(gen, evidence, NewEvidenceSet(), 0, outcome)
}

// ConfirmSymptom records the answer to one follow-up question and re-predicts.
// Denials advance the round without touching the evidence. Once the round
// reaches MaxRounds the outcome is always terminal.
func (s *Session) ConfirmSymptom(ctx context.Context, symptom SymptomID, confirmed bool) (Snapshot, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionBusy
	}

	current, ok := s.outcome.(Ambiguous)
	switch {
	case !ok:
		status := StatusOf(s.outcome)
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: session is %s, nothing to confirm", ErrValidation, status)
	case s.round >= MaxRounds:
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: refinement budget of %d rounds exhausted", ErrValidation, MaxRounds)
	case !current.HasFollowUp(symptom):
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %q is not an open follow-up", ErrValidation, symptom)
	}

	evidence := s.evidence.Clone()
	denied := s.denied.Clone()
	if confirmed {
		evidence.Add(symptom)
	} else {
		denied.Add(symptom)
	}
	round := s.round + 1

	ctx, gen := s.beginLocked(ctx)
	s.mu.Unlock()
	defer s.end(gen)

	outcome, err := s.predict(ctx, gen, evidence)
	if err != nil {
		return Snapshot{}, err
	}
	outcome = settle(outcome, evidence, round)

	return s.commit(gen, evidence, denied, round, outcome)
}

// Reset returns the session to its uninitialized state. It is always legal;
// an outstanding prediction is cancelled and its reply discarded.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.version++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.busy = false
	s.evidence = NewEvidenceSet()
	s.denied = NewEvidenceSet()
	s.round = 0
	s.outcome = nil
	return s.snapshotLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Evidence:  s.evidence.IDs(),
		Denied:    s.denied.IDs(),
		Round:     s.round,
		MaxRounds: MaxRounds,
		Outcome:   s.outcome,
		Busy:      s.busy,
		Version:   s.version,
	}
}

// beginLocked marks the session busy and derives a cancellable context for
// the outbound request. s.mu must be held.
func (s *Session) beginLocked(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	return ctx, s.generation
}

func (s *Session) end(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.busy = false
}

func (s *Session) predict(ctx context.Context, gen uint64, evidence *EvidenceSet) (Outcome, error) {
	raw, err := s.predictor.Predict(ctx, evidence.IDs())
	if err != nil {
		if s.isStale(gen) {
			return nil, ErrStaleResponse
		}
		if errors.Is(err, ErrTransport) || errors.Is(err, ErrProtocol) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return Classify(raw)
}

func (s *Session) isStale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen
}

// commit installs the new state and returns it as the operation finished it.
// The calling operation still holds the busy flag, so the snapshot reports
// the session idle.
func (s *Session) commit(gen uint64, evidence, denied *EvidenceSet, round int, outcome Outcome) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return Snapshot{}, ErrStaleResponse
	}
	s.evidence = evidence
	s.denied = denied
	s.round = round
	s.outcome = outcome
	s.version++

	snap := s.snapshotLocked()
	snap.Busy = false
	return snap, nil
}

// settle applies the termination policy to a freshly classified outcome.
// Follow-ups already in the evidence are dropped. Denied ones stay: the
// service only sees the evidence and may rightly ask again. An Ambiguous
// outcome with no open question, or one reached on the last round, is forced
// to Resolved.
func settle(outcome Outcome, evidence *EvidenceSet, round int) Outcome {
	amb, ok := outcome.(Ambiguous)
	if !ok {
		return outcome
	}

	open := make([]SymptomID, 0, len(amb.FollowUps))
	for _, f := range amb.FollowUps {
		if evidence.Contains(f) {
			continue
		}
		open = append(open, f)
	}
	amb.FollowUps = open

	if round >= MaxRounds || len(open) == 0 {
		return downgrade(amb)
	}
	return amb
}

// RestoreSession rebuilds an idle session from a previously taken snapshot,
// for example one loaded from storage. Busy is ignored.
func RestoreSession(predictor Predictor, snap Snapshot) (*Session, error) {
	s := NewSession(predictor)
	s.version = snap.Version
	if snap.Outcome == nil {
		return s, nil
	}
	if snap.Round < 0 || snap.Round > MaxRounds {
		return nil, fmt.Errorf("%w: round %d outside 0..%d", ErrValidation, snap.Round, MaxRounds)
	}
	if amb, ok := snap.Outcome.(Ambiguous); ok && (snap.Round == MaxRounds || len(amb.FollowUps) == 0) {
		return nil, fmt.Errorf("%w: ambiguous outcome cannot be resumed", ErrValidation)
	}

	evidence, err := EvidenceFromSelection(snap.Evidence)
	if err != nil {
		return nil, err
	}
	for _, id := range snap.Denied {
		s.denied.Add(id)
	}
	s.evidence = evidence
	s.round = snap.Round
	s.outcome = snap.Outcome
	return s, nil
}
