// Package apollo is a client for the Apollo people and organization
// enrichment API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/resilience"
)

const defaultBaseURL = "https://api.apollo.io/api"

// Client looks up verified people and company records.
type Client interface {
	SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error)
	EnrichOrganization(ctx context.Context, name, domain string) (*Organization, error)
}

// PeopleSearchRequest searches for one person by name, company, and title.
type PeopleSearchRequest struct {
	Name             string   `json:"q_keywords"`
	OrganizationName string   `json:"q_organization_name,omitempty"`
	Titles           []string `json:"person_titles,omitempty"`
	Page             int      `json:"page"`
	PerPage          int      `json:"per_page"`
}

// PeopleSearchResponse is the response from the people search endpoint.
type PeopleSearchResponse struct {
	People []Person `json:"people"`
}

// Person is a single Apollo person record.
type Person struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	EmailStatus  string        `json:"email_status"`
	PhoneNumbers []PhoneNumber `json:"phone_numbers"`
	LinkedInURL  string        `json:"linkedin_url"`
}

// PhoneNumber is one phone entry on a person.
type PhoneNumber struct {
	RawNumber       string `json:"raw_number"`
	SanitizedNumber string `json:"sanitized_number"`
}

// PrimaryPhone returns the first non-empty phone number.
func (p Person) PrimaryPhone() string {
	for _, n := range p.PhoneNumbers {
		if n.SanitizedNumber != "" {
			return n.SanitizedNumber
		}
		if n.RawNumber != "" {
			return n.RawNumber
		}
	}
	return ""
}

// ProfileURL links to the person in the Apollo app.
func (p Person) ProfileURL() string {
	if p.ID == "" {
		return ""
	}
	return "https://app.apollo.io/#/people/" + p.ID
}

// Organization is the enriched company record.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	LinkedInURL           string `json:"linkedin_url"`
	Phone                 string `json:"phone"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	AnnualRevenuePrinted  string `json:"annual_revenue_printed"`
	FoundedYear           int    `json:"founded_year"`
}

type organizationResponse struct {
	Organization *Organization `json:"organization"`
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

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("apollo", "request")
	}
	return c
}

func (c *httpClient) SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PerPage == 0 {
		req.PerPage = 1
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal people search")
	}

	var out PeopleSearchResponse
	err = resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, c.baseURL+"/v1/mixed_people/search", body, &out)
	})
	if err != nil {
		return nil, eris.Wrap(err, "apollo: search people")
	}
	return &out, nil
}

func (c *httpClient) EnrichOrganization(ctx context.Context, name, domain string) (*Organization, error) {
	q := url.Values{}
	if domain != "" {
		q.Set("domain", domain)
	}
	if name != "" {
		q.Set("name", name)
	}

	var out organizationResponse
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, c.baseURL+"/v1/organizations/enrich?"+q.Encode(), nil, &out)
	})
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich organization")
	}
	return out.Organization, nil
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response")
	}
	if err := resilience.CheckStatus("apollo", resp.StatusCode, respBody); err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "apollo: unmarshal response")
	}
	return nil
}
