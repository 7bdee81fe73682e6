// Package apify is a minimal client for the Apify actor-run API, covering
// the operations the scrape stage needs: start a run, poll its status,
// abort it, and fetch its dataset items.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apify.com/v2"

// Run states reported by the Apify API.
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
	RunStatusTimedOut  = "TIMED-OUT"
)

// TerminalStatus reports whether a run status is terminal.
func TerminalStatus(status string) bool {
	switch status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusAborted, RunStatusTimedOut:
		return true
	default:
		return false
	}
}

// Client defines the Apify API operations used by the scraper.
type Client interface {
	StartActorRun(ctx context.Context, actorID string, input any) (*ActorRun, error)
	GetRun(ctx context.Context, runID string) (*ActorRun, error)
	AbortRun(ctx context.Context, runID string) (*ActorRun, error)
	ListDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error)
}

// ActorRun describes one actor run.
type ActorRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// runEnvelope is the {"data": ...} wrapper Apify puts around run objects.
type runEnvelope struct {
	Data ActorRun `json:"data"`
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartActorRun(ctx context.Context, actorID string, input any) (*ActorRun, error) {
	var resp runEnvelope
	if err := c.do(ctx, http.MethodPost, "/acts/"+actorID+"/runs", input, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: start actor run %s", actorID))
	}
	if resp.Data.ID == "" {
		return nil, eris.Errorf("apify: start actor run %s returned no run id", actorID)
	}
	return &resp.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*ActorRun, error) {
	var resp runEnvelope
	if err := c.do(ctx, http.MethodGet, "/actor-runs/"+runID, nil, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: get run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) AbortRun(ctx context.Context, runID string) (*ActorRun, error) {
	var resp runEnvelope
	if err := c.do(ctx, http.MethodPost, "/actor-runs/"+runID+"/abort", nil, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: abort run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) ListDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/datasets/"+datasetID+"/items", nil, &items); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: list dataset items %s", datasetID))
	}
	return items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
