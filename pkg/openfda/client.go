// Package openfda queries the public openFDA device and drug endpoints.
package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/resilience"
)

const defaultBaseURL = "https://api.fda.gov"

// Client looks up FDA regulatory records for a company.
type Client interface {
	DeviceClearances(ctx context.Context, firm string, limit int) ([]DeviceClearance, error)
	DrugApplications(ctx context.Context, sponsor string, limit int) ([]DrugApplication, error)
}

// DeviceClearance is a 510(k) premarket notification.
type DeviceClearance struct {
	KNumber             string `json:"k_number"`
	Applicant           string `json:"applicant"`
	DeviceName          string `json:"device_name"`
	DecisionDate        string `json:"decision_date"`
	DecisionDescription string `json:"decision_description"`
	ProductCode         string `json:"product_code"`
}

// DrugApplication is a Drugs@FDA application.
type DrugApplication struct {
	ApplicationNumber string        `json:"application_number"`
	SponsorName       string        `json:"sponsor_name"`
	Products          []DrugProduct `json:"products"`
}

// DrugProduct is one marketed product under an application.
type DrugProduct struct {
	BrandName       string `json:"brand_name"`
	DosageForm      string `json:"dosage_form"`
	MarketingStatus string `json:"marketing_status"`
}

type response[T any] struct {
	Results []T `json:"results"`
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

// WithAPIKey sets the optional openFDA key, which raises the daily quota.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an openFDA client.
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

func (c *httpClient) DeviceClearances(ctx context.Context, firm string, limit int) ([]DeviceClearance, error) {
	var out response[DeviceClearance]
	if err := c.get(ctx, "/device/510k.json", "applicant", firm, limit, &out); err != nil {
		return nil, eris.Wrap(err, "openfda: device clearances")
	}
	return out.Results, nil
}

func (c *httpClient) DrugApplications(ctx context.Context, sponsor string, limit int) ([]DrugApplication, error) {
	var out response[DrugApplication]
	if err := c.get(ctx, "/drug/drugsfda.json", "sponsor_name", sponsor, limit, &out); err != nil {
		return nil, eris.Wrap(err, "openfda: drug applications")
	}
	return out.Results, nil
}

// get runs a field search. A 404 is openFDA's "no matches" answer and leaves
// out untouched.
func (c *httpClient) get(ctx context.Context, path, field, value string, limit int, out any) error {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("search", fmt.Sprintf("%s:%q", field, strings.ReplaceAll(value, `"`, "")))
	params.Set("limit", fmt.Sprint(limit))
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := resilience.CheckStatus("openfda", resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
