package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"diagnosis-refiner/internal/refinement"

	"github.com/patrickmn/go-cache"
)

// ErrUnavailable means the catalog could not be fetched. Callers may carry on
// with an empty list.
var ErrUnavailable = errors.New("symptom catalog unavailable")

const cacheKey = "symptoms"

// Symptom is one selectable catalog entry.
type Symptom struct {
	ID    refinement.SymptomID `json:"value"`
	Label string               `json:"label"`
}

// Client fetches the symptom list and keeps it in memory for ttl.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
}

func NewClient(baseURL string, timeout, ttl time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Client) ListSymptoms(ctx context.Context) ([]Symptom, error) {
	// Callers get their own copy; the cached slice is shared.
	if x, found := c.cache.Get(cacheKey); found {
		return append([]Symptom(nil), x.([]Symptom)...), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/symptoms", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: catalog API error: %s - %s", ErrUnavailable, resp.Status, string(body))
	}

	var symptoms []Symptom
	if err := json.NewDecoder(resp.Body).Decode(&symptoms); err != nil {
		return nil, fmt.Errorf("%w: failed to decode symptoms: %v", ErrUnavailable, err)
	}

	c.cache.Set(cacheKey, symptoms, cache.DefaultExpiration)
	return append([]Symptom(nil), symptoms...), nil
}
