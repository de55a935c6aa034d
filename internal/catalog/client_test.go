package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSymptoms_FetchesOnceThenCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/symptoms", r.URL.Path)
		w.Write([]byte(`[{"value":"fever","label":"Fever"},{"value":"chills","label":"Chills"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Minute)
	for i := 0; i < 3; i++ {
		symptoms, err := c.ListSymptoms(context.Background())
		require.NoError(t, err)
		require.Len(t, symptoms, 2)
		assert.Equal(t, Symptom{ID: "fever", Label: "Fever"}, symptoms[0])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestListSymptoms_CallersCannotAlterCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"value":"fever","label":"Fever"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Minute)
	first, err := c.ListSymptoms(context.Background())
	require.NoError(t, err)
	first[0].Label = "changed"

	second, err := c.ListSymptoms(context.Background())
	require.NoError(t, err)
	second[0].ID = "changed"

	third, err := c.ListSymptoms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Symptom{{ID: "fever", Label: "Fever"}}, third)
}

func TestListSymptoms_FailureIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"value":"rash","label":"Rash"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Minute)

	symptoms, err := c.ListSymptoms(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, symptoms)

	fail.Store(false)
	symptoms, err = c.ListSymptoms(context.Background())
	require.NoError(t, err)
	assert.Len(t, symptoms, 1)
}

func TestListSymptoms_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, time.Minute).ListSymptoms(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
