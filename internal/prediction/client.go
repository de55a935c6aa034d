package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"diagnosis-refiner/internal/refinement"
)

// Client calls the remote disease prediction model.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictRequest struct {
	Symptoms []string `json:"symptoms"`
}

// Predict posts the evidence and decodes the reply. Timeouts and undecodable
// bodies are reported as refinement.ErrProtocol, every other failure as
// refinement.ErrTransport. Shape classification is left to the caller.
func (c *Client) Predict(ctx context.Context, symptoms []refinement.SymptomID) (refinement.RawResponse, error) {
	var raw refinement.RawResponse
	if len(symptoms) == 0 {
		return raw, fmt.Errorf("%w: empty symptom list", refinement.ErrValidation)
	}

	reqBody := predictRequest{Symptoms: make([]string, len(symptoms))}
	for i, s := range symptoms {
		reqBody.Symptoms[i] = string(s)
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return raw, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewBuffer(jsonBody))
	if err != nil {
		return raw, fmt.Errorf("%w: %v", refinement.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return raw, fmt.Errorf("%w: prediction timed out: %v", refinement.ErrProtocol, err)
		}
		return raw, fmt.Errorf("%w: %v", refinement.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return raw, fmt.Errorf("%w: prediction API error: %s - %s", refinement.ErrTransport, resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if isTimeout(err) {
			return raw, fmt.Errorf("%w: prediction timed out: %v", refinement.ErrProtocol, err)
		}
		return raw, fmt.Errorf("%w: undecodable prediction reply: %v", refinement.ErrProtocol, err)
	}
	return raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
