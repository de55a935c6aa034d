package diagnosis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"diagnosis-refiner/internal/catalog"
	"diagnosis-refiner/internal/pkg/logger"
	"diagnosis-refiner/internal/refinement"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(f.svc))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var view View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestHandler_RefinementFlow(t *testing.T) {
	f := newFixture(candidates([]string{"Flu", "Cold"}, "chills"), disease("Cold"))
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/diagnosis", `{"symptoms":["fever","cough"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, refinement.StatusAmbiguous, view.Status)
	assert.True(t, view.CanConfirm)

	rec = do(t, h, http.MethodPost, "/diagnosis/"+view.ID.String()+"/confirm", `{"symptom":"chills","confirmed":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, refinement.StatusResolved, view.Status)
	assert.Equal(t, "Cold", view.Diagnosis)
	assert.Equal(t, []refinement.SymptomID{"chills"}, view.Denied)

	rec = do(t, h, http.MethodGet, "/diagnosis/"+view.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cold", decodeView(t, rec).Diagnosis)

	rec = do(t, h, http.MethodPost, "/diagnosis/"+view.ID.String()+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, refinement.StatusUninitialized, decodeView(t, rec).Status)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(refinement.RawResponse{Message: "nothing useful"})
	h := newTestRouter(f)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/diagnosis", `{`, http.StatusBadRequest},
		{"empty selection", http.MethodPost, "/diagnosis", `{"symptoms":[]}`, http.StatusBadRequest},
		{"bad session id", http.MethodGet, "/diagnosis/not-a-uuid", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/diagnosis/" + uuid.NewString(), "", http.StatusNotFound},
		{"confirm missing flag", http.MethodPost, "/diagnosis/" + uuid.NewString() + "/confirm", `{"symptom":"chills"}`, http.StatusBadRequest},
		{"unrecognized reply", http.MethodPost, "/diagnosis", `{"symptoms":["fever"]}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandler_ConfirmAfterResolutionIsRejected(t *testing.T) {
	f := newFixture(disease("Flu"))
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/diagnosis", `{"symptoms":["fever"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID

	rec = do(t, h, http.MethodPost, "/diagnosis/"+id.String()+"/confirm", `{"symptom":"chills","confirmed":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestHandler_ListSymptoms(t *testing.T) {
	f := newFixture()
	rec := do(t, newTestRouter(f), http.MethodGet, "/symptoms", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SymptomsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Available)
	assert.Equal(t, []catalog.Symptom{{ID: "fever", Label: "Fever"}}, resp.Symptoms)

	down := &fixture{svc: NewService(NewSessionStore(time.Hour), nil, &fakePredictor{},
		&fakeCatalog{err: catalog.ErrUnavailable}, nil, nil, logger.NewNopLogger())}
	rec = do(t, newTestRouter(down), http.MethodGet, "/symptoms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)
	assert.Empty(t, resp.Symptoms)
}
