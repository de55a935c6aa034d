package diagnosis

import (
	"encoding/json"
	"errors"
	"net/http"

	"diagnosis-refiner/internal/catalog"
	"diagnosis-refiner/internal/refinement"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type StartRequest struct {
	SessionID string   `json:"session_id"`
	Symptoms  []string `json:"symptoms"`
}

type ConfirmRequest struct {
	Symptom   string `json:"symptom"`
	Confirmed *bool  `json:"confirmed"`
}

type SymptomsResponse struct {
	Available bool              `json:"available"`
	Symptoms  []catalog.Symptom `json:"symptoms"`
}

func (h *Handler) ListSymptoms(w http.ResponseWriter, r *http.Request) {
	symptoms, err := h.svc.Symptoms(r.Context())
	writeJSON(w, http.StatusOK, SymptomsResponse{Available: err == nil, Symptoms: symptoms})
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	id := uuid.Nil
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			http.Error(w, "Invalid session ID", http.StatusBadRequest)
			return
		}
		id = parsed
	}

	symptoms := make([]refinement.SymptomID, len(req.Symptoms))
	for i, s := range req.Symptoms {
		symptoms[i] = refinement.SymptomID(s)
	}

	view, err := h.svc.Start(r.Context(), id, symptoms)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if id == uuid.Nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ConfirmSymptom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Symptom == "" || req.Confirmed == nil {
		http.Error(w, "symptom and confirmed are required", http.StatusBadRequest)
		return
	}

	view, err := h.svc.Confirm(r.Context(), id, refinement.SymptomID(req.Symptom), *req.Confirmed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Reset(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/symptoms", h.ListSymptoms)
	r.Post("/diagnosis", h.StartSession)
	r.Get("/diagnosis/{id}", h.GetSession)
	r.Post("/diagnosis/{id}/confirm", h.ConfirmSymptom)
	r.Post("/diagnosis/{id}/reset", h.ResetSession)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, refinement.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, refinement.ErrSessionBusy), errors.Is(err, refinement.ErrStaleResponse):
		status = http.StatusConflict
	case errors.Is(err, refinement.ErrTransport), errors.Is(err, refinement.ErrProtocol):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
