package diagnosis

import (
	"context"
	"errors"
	"time"

	"diagnosis-refiner/internal/catalog"
	"diagnosis-refiner/internal/events"
	"diagnosis-refiner/internal/pkg/logger"
	"diagnosis-refiner/internal/refinement"

	"github.com/google/uuid"
)

const logModule = "DIAGNOSIS"

var ErrSessionNotFound = errors.New("diagnosis session not found")

// SymptomCatalog lists selectable symptoms.
type SymptomCatalog interface {
	ListSymptoms(ctx context.Context) ([]catalog.Symptom, error)
}

// ReportService hands escalated sessions to a human.
type ReportService interface {
	SendEscalationReport(ctx context.Context, rec Record) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

type Service interface {
	Symptoms(ctx context.Context) ([]catalog.Symptom, error)
	// Start runs a new selection. With uuid.Nil a fresh session is created,
	// otherwise the existing session is restarted.
	Start(ctx context.Context, id uuid.UUID, symptoms []refinement.SymptomID) (View, error)
	Confirm(ctx context.Context, id uuid.UUID, symptom refinement.SymptomID, confirmed bool) (View, error)
	Reset(ctx context.Context, id uuid.UUID) (View, error)
	Get(ctx context.Context, id uuid.UUID) (View, error)
}

type service struct {
	store     *SessionStore
	repo      Repository
	predictor refinement.Predictor
	catalog   SymptomCatalog
	reportSvc ReportService
	publisher EventPublisher
	log       logger.ILogger
}

// NewService wires the refinement engine to its collaborators. repo, report
// and publisher may be nil; the protocol itself does not depend on them.
func NewService(
	store *SessionStore,
	repo Repository,
	predictor refinement.Predictor,
	symptoms SymptomCatalog,
	report ReportService,
	publisher EventPublisher,
	log logger.ILogger,
) Service {
	return &service{
		store:     store,
		repo:      repo,
		predictor: predictor,
		catalog:   symptoms,
		reportSvc: report,
		publisher: publisher,
		log:       log,
	}
}

func (s *service) Symptoms(ctx context.Context) ([]catalog.Symptom, error) {
	symptoms, err := s.catalog.ListSymptoms(ctx)
	if err != nil {
		s.log.Warn(logModule, "Symptom catalog unavailable", map[string]interface{}{"error": err.Error()})
		return []catalog.Symptom{}, err
	}
	return symptoms, nil
}

func (s *service) Start(ctx context.Context, id uuid.UUID, symptoms []refinement.SymptomID) (View, error) {
	var live *liveSession
	isNew := id == uuid.Nil
	if isNew {
		id = uuid.New()
		live = &liveSession{session: refinement.NewSession(s.predictor), createdAt: time.Now()}
	} else {
		var err error
		if live, err = s.load(ctx, id); err != nil {
			return View{}, err
		}
	}

	snap, err := live.session.Start(ctx, symptoms)
	if err != nil {
		s.logFailure("start", id, err)
		return View{}, err
	}
	if isNew {
		live = s.store.Add(id, live)
	}

	s.log.Info(logModule, "Session started", map[string]interface{}{
		"session_id": id.String(),
		"symptoms":   symptoms,
		"status":     refinement.StatusOf(snap.Outcome),
	})
	return s.commit(ctx, id, live, snap), nil
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID, symptom refinement.SymptomID, confirmed bool) (View, error) {
	live, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}

	snap, err := live.session.ConfirmSymptom(ctx, symptom, confirmed)
	if err != nil {
		s.logFailure("confirm", id, err)
		return View{}, err
	}

	s.log.Info(logModule, "Follow-up answered", map[string]interface{}{
		"session_id": id.String(),
		"symptom":    symptom,
		"confirmed":  confirmed,
		"status":     refinement.StatusOf(snap.Outcome),
	})
	return s.commit(ctx, id, live, snap), nil
}

func (s *service) Reset(ctx context.Context, id uuid.UUID) (View, error) {
	live, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.commit(ctx, id, live, live.session.Reset()), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	live, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return newView(id, live.session.Snapshot(), live.createdAt), nil
}

// load returns the live session, rehydrating it from the repository when it
// has dropped out of memory.
func (s *service) load(ctx context.Context, id uuid.UUID) (*liveSession, error) {
	if live, ok := s.store.Get(id); ok {
		return live, nil
	}
	if s.repo == nil {
		return nil, ErrSessionNotFound
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := refinement.RestoreSession(s.predictor, rec.snapshot())
	if err != nil {
		s.log.Error(logModule, "Stored session is inconsistent", map[string]interface{}{
			"session_id": id.String(),
			"error":      err.Error(),
		})
		return nil, err
	}
	return s.store.Add(id, &liveSession{session: session, createdAt: rec.CreatedAt}), nil
}

// commit persists the state an operation committed and fires terminal side
// effects for it. Neither can fail the operation that already succeeded.
func (s *service) commit(ctx context.Context, id uuid.UUID, live *liveSession, snap refinement.Snapshot) View {
	view := newView(id, snap, live.createdAt)

	if s.repo != nil {
		rec := view.Record
		if err := s.repo.Save(ctx, &rec); err != nil {
			s.log.Error(logModule, "Failed to persist session", map[string]interface{}{
				"session_id": id.String(),
				"error":      err.Error(),
			})
		}
	}

	if refinement.IsTerminal(snap.Outcome) {
		go s.onTerminal(view.Record)
	}
	return view
}

func (s *service) onTerminal(rec Record) {
	// The request context is gone by the time these run.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	evtType := events.TypeDiagnosisResolved
	if rec.Status == refinement.StatusEscalated {
		evtType = events.TypeDiagnosisEscalated
	}

	if s.publisher != nil {
		evt := events.Event{
			Type: evtType,
			Data: map[string]interface{}{
				"session_id":         rec.ID.String(),
				"evidence":           rec.Evidence,
				"round":              rec.Round,
				"diagnosis":          rec.Diagnosis,
				"forced":             rec.Forced,
				"reason":             rec.Reason,
				"fallback_diagnosis": rec.Fallback,
			},
			OccurredAt: time.Now(),
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.log.Error(logModule, "Failed to publish "+evtType+" event", map[string]interface{}{"error": err.Error()})
		}
	}

	if evtType == events.TypeDiagnosisEscalated && s.reportSvc != nil {
		if err := s.reportSvc.SendEscalationReport(ctx, rec); err != nil {
			s.log.Error(logModule, "Failed to send escalation report", map[string]interface{}{
				"session_id": rec.ID.String(),
				"error":      err.Error(),
			})
		}
	}
}

func (s *service) logFailure(op string, id uuid.UUID, err error) {
	details := map[string]interface{}{
		"session_id": id.String(),
		"operation":  op,
		"error":      err.Error(),
	}
	switch {
	case errors.Is(err, refinement.ErrValidation), errors.Is(err, refinement.ErrSessionBusy),
		errors.Is(err, refinement.ErrStaleResponse):
		s.log.Info(logModule, "Operation rejected", details)
	default:
		s.log.Warn(logModule, "Prediction failed", details)
	}
}
