// Package patents queries the keyless PatentsView patent search API.
package patents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/resilience"
)

const defaultBaseURL = "https://api.patentsview.org"

// Client searches granted patents.
type Client interface {
	SearchByAssignee(ctx context.Context, assignee string, limit int) (*SearchResult, error)
}

// Patent is a single granted patent.
type Patent struct {
	Number   string `json:"patent_number"`
	Title    string `json:"patent_title"`
	Date     string `json:"patent_date"`
	Abstract string `json:"patent_abstract"`
}

// SearchResult holds the patents matched for an assignee. Total is the
// count reported by the API, which may exceed len(Patents).
type SearchResult struct {
	Patents []Patent `json:"patents"`
	Count   int      `json:"count"`
	Total   int      `json:"total_patent_count"`
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
	baseURL string
	http    *http.Client
}

// NewClient creates a PatentsView client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var patentFields = []string{"patent_number", "patent_title", "patent_date", "patent_abstract"}

func (c *httpClient) SearchByAssignee(ctx context.Context, assignee string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	q, err := json.Marshal(map[string]any{
		"_contains": map[string]string{"assignee_organization": assignee},
	})
	if err != nil {
		return nil, eris.Wrap(err, "patents: marshal query")
	}
	f, _ := json.Marshal(patentFields)
	o, _ := json.Marshal(map[string]int{"per_page": limit})
	s, _ := json.Marshal([]map[string]string{{"patent_date": "desc"}})

	params := url.Values{}
	params.Set("q", string(q))
	params.Set("f", string(f))
	params.Set("o", string(o))
	params.Set("s", string(s))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/patents/query?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "patents: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "patents: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "patents: read response")
	}
	if err := resilience.CheckStatus("patents", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "patents: unmarshal response")
	}
	if result.Patents == nil {
		result.Patents = []Patent{}
	}
	if result.Total < len(result.Patents) {
		result.Total = len(result.Patents)
	}
	return &result, nil
}
