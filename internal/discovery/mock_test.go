package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/exa"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

// mockSearchClient implements exa.Client for testing.
type mockSearchClient struct {
	resp     *exa.SearchResponse
	err      error
	requests []exa.SearchRequest
}

func (m *mockSearchClient) Search(_ context.Context, req exa.SearchRequest) (*exa.SearchResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &exa.SearchResponse{}, nil
	}
	return m.resp, nil
}

// mockQueue implements QueueLookup for testing. Names are matched
// case-insensitively, URLs exactly.
type mockQueue struct {
	names   map[string]bool
	urls    map[string]bool
	err     error
	lookups int
}

func (m *mockQueue) QueueItemExists(_ context.Context, name, url string) (bool, error) {
	m.lookups++
	if m.err != nil {
		return false, m.err
	}
	return m.names[strings.ToLower(name)] || m.urls[url], nil
}

// mockAnthropicClient implements anthropic.Client for testing. handler
// decides the response per request.
type mockAnthropicClient struct {
	mu      sync.Mutex
	handler func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	calls   []anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.handler(req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// mockPatentsClient implements patents.Client for testing.
type mockPatentsClient struct {
	results map[string]*patents.SearchResult
	err     error
	calls   int
}

func (m *mockPatentsClient) SearchByAssignee(_ context.Context, assignee string, _ int) (*patents.SearchResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.results[assignee]; ok {
		return r, nil
	}
	return &patents.SearchResult{Patents: []patents.Patent{}}, nil
}
