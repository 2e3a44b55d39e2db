package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/exa"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   model.SearchCriteria
		want string
	}{
		{
			name: "all terms",
			in:   model.SearchCriteria{Query: "precision machining", Industry: "manufacturing", RevenueRange: "$10M-$50M", Geography: "Ohio"},
			want: "precision machining manufacturing $10M-$50M Ohio",
		},
		{
			name: "skips empty terms",
			in:   model.SearchCriteria{Query: "dental labs", Geography: "Texas"},
			want: "dental labs Texas",
		},
		{
			name: "trims whitespace",
			in:   model.SearchCriteria{Query: "  hvac  ", Industry: " "},
			want: "hvac",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BuildQuery(tt.in))
		})
	}
}

func TestDiscover_DedupesWithinResponse(t *testing.T) {
	search := &mockSearchClient{resp: &exa.SearchResponse{Results: []exa.Result{
		{Title: "Acme Corp", URL: "https://acme.example", Text: "first"},
		{Title: "acme corp ", URL: "https://acme.example/about", Text: "second"},
		{Title: "Beta Tools", URL: "https://beta.example"},
		{Title: "  ", URL: "https://blank.example"},
	}}}
	queue := &mockQueue{}

	d := NewDiscoverer(search, queue, config.SearchConfig{})
	got, err := d.Discover(context.Background(), model.SearchCriteria{Query: "tools"})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Acme Corp", got[0].Name)
	assert.Equal(t, "first", got[0].Snippet)
	assert.Equal(t, model.OwnershipUnknown, got[0].OwnershipType)
	assert.Equal(t, "Beta Tools", got[1].Name)
	assert.Equal(t, 2, queue.lookups)
}

func TestDiscover_ExcludesAlreadyQueued(t *testing.T) {
	search := &mockSearchClient{resp: &exa.SearchResponse{Results: []exa.Result{
		{Title: "Acme Corp", URL: "https://acme.example"},
		{Title: "Beta Tools", URL: "https://beta.example"},
		{Title: "Gamma Labs", URL: "https://gamma.example"},
	}}}
	queue := &mockQueue{
		names: map[string]bool{"acme corp": true},
		urls:  map[string]bool{"https://gamma.example": true},
	}

	d := NewDiscoverer(search, queue, config.SearchConfig{})
	got, err := d.Discover(context.Background(), model.SearchCriteria{Query: "tools"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Beta Tools", got[0].Name)
}

func TestDiscover_NumResults(t *testing.T) {
	tests := []struct {
		name     string
		criteria int
		cfg      int
		want     int
	}{
		{"criteria wins", 10, 20, 10},
		{"config fallback", 0, 20, 20},
		{"default", 0, 0, DefaultNumResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &mockSearchClient{}
			d := NewDiscoverer(search, &mockQueue{}, config.SearchConfig{NumResults: tt.cfg})
			_, err := d.Discover(context.Background(), model.SearchCriteria{Query: "q", MaxResults: tt.criteria})
			require.NoError(t, err)
			require.Len(t, search.requests, 1)
			assert.Equal(t, tt.want, search.requests[0].NumResults)
		})
	}
}

func TestDiscover_SearchErrorIsFatal(t *testing.T) {
	search := &mockSearchClient{err: errors.New("exa: status 500")}

	d := NewDiscoverer(search, &mockQueue{}, config.SearchConfig{})
	got, err := d.Discover(context.Background(), model.SearchCriteria{Query: "q"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "discovery: search")
}

func TestDiscover_LookupErrorIsFatal(t *testing.T) {
	search := &mockSearchClient{resp: &exa.SearchResponse{Results: []exa.Result{
		{Title: "Acme Corp", URL: "https://acme.example"},
	}}}
	queue := &mockQueue{err: errors.New("connection refused")}

	d := NewDiscoverer(search, queue, config.SearchConfig{})
	_, err := d.Discover(context.Background(), model.SearchCriteria{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery: lookup")
}

func TestDiscover_EmptyResults(t *testing.T) {
	d := NewDiscoverer(&mockSearchClient{}, &mockQueue{}, config.SearchConfig{})
	got, err := d.Discover(context.Background(), model.SearchCriteria{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
