package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Request is the paid query sent to the search endpoint.
type Request struct {
	Query       string `json:"request"`
	Limit       int    `json:"limit"`
	Lang        string `json:"lang"`
	UserAddress string `json:"userAddress"`
}

// Source is one named data source in the endpoint response.
type Source struct {
	InfoLeak string           `json:"InfoLeak"`
	Data     []map[string]any `json:"Data"`
}

// Response maps data-source name to its description and matched records.
type Response struct {
	List map[string]Source `json:"List"`
}

type errorBody struct {
	Error string `json:"error"`
}

// EndpointError is a non-success answer from the search endpoint.
type EndpointError struct {
	StatusCode int
	Message    string
}

func (e *EndpointError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("search endpoint returned status %d", e.StatusCode)
}

// Client is the HTTP client for the remote search endpoint. The endpoint is
// opaque: one POST, JSON in, JSON out.
type Client struct {
	endpointURL string
	httpClient  *http.Client
}

func NewClient(endpointURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpointURL: endpointURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call search endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return nil, &EndpointError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}
