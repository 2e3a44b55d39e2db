// Package exa is a client for the Exa neural search API used by discovery.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/resilience"
)

const (
	defaultBaseURL       = "https://api.exa.ai"
	defaultMaxCharacters = 1000
)

// Client searches the web for companies matching a query.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query         string   `json:"query"`
	NumResults    int      `json:"numResults"`
	Type          string   `json:"type"`
	UseAutoprompt bool     `json:"useAutoprompt"`
	Contents      Contents `json:"contents"`
}

// Contents selects which page contents are returned with each result.
type Contents struct {
	Text TextContents `json:"text"`
}

// TextContents bounds the page text returned per result.
type TextContents struct {
	MaxCharacters int `json:"maxCharacters"`
}

// SearchResponse is the response from POST /search.
type SearchResponse struct {
	Results []Result `json:"results"`
}

// Result is a single search hit.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// NewSearchRequest builds a neural, autoprompted request returning page text.
func NewSearchRequest(query string, numResults, maxCharacters int) SearchRequest {
	if maxCharacters <= 0 {
		maxCharacters = defaultMaxCharacters
	}
	return SearchRequest{
		Query:         query,
		NumResults:    numResults,
		Type:          "neural",
		UseAutoprompt: true,
		Contents:      Contents{Text: TextContents{MaxCharacters: maxCharacters}},
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Exa API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search issues a single search call. Any non-2xx response is returned as an
// error; the caller decides whether that is fatal.
func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "exa: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "exa: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "exa: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "exa: read response")
	}

	if err := resilience.CheckStatus("exa", resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "exa: unmarshal response")
	}
	return &result, nil
}
