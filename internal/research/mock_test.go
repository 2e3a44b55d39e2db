package research

import (
	"context"
	"errors"
	"sync"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/anthropic"
	"github.com/sells-group/deal-sourcing/pkg/apollo"
	"github.com/sells-group/deal-sourcing/pkg/openfda"
	"github.com/sells-group/deal-sourcing/pkg/patents"
)

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	text  string
	err   error
	calls []anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{
		{Type: "server_tool_use"},
		{Type: "text", Text: m.text},
	}}, nil
}

// mockPatentsClient implements patents.Client for testing.
type mockPatentsClient struct {
	result *patents.SearchResult
	err    error
}

func (m *mockPatentsClient) SearchByAssignee(_ context.Context, _ string, _ int) (*patents.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &patents.SearchResult{}, nil
	}
	return m.result, nil
}

// mockFDAClient implements openfda.Client for testing.
type mockFDAClient struct {
	devices   []openfda.DeviceClearance
	drugs     []openfda.DrugApplication
	deviceErr error
	drugErr   error
	calls     int
}

func (m *mockFDAClient) DeviceClearances(_ context.Context, _ string, _ int) ([]openfda.DeviceClearance, error) {
	m.calls++
	return m.devices, m.deviceErr
}

func (m *mockFDAClient) DrugApplications(_ context.Context, _ string, _ int) ([]openfda.DrugApplication, error) {
	m.calls++
	return m.drugs, m.drugErr
}

// mockApolloClient implements apollo.Client for testing. people is keyed by
// searched name.
type mockApolloClient struct {
	people    map[string]apollo.Person
	org       *apollo.Organization
	peopleErr error
	searches  []apollo.PeopleSearchRequest
}

func (m *mockApolloClient) SearchPeople(_ context.Context, req apollo.PeopleSearchRequest) (*apollo.PeopleSearchResponse, error) {
	m.searches = append(m.searches, req)
	if m.peopleErr != nil {
		return nil, m.peopleErr
	}
	resp := &apollo.PeopleSearchResponse{}
	if p, ok := m.people[req.Name]; ok {
		resp.People = append(resp.People, p)
	}
	return resp, nil
}

func (m *mockApolloClient) EnrichOrganization(_ context.Context, _, _ string) (*apollo.Organization, error) {
	return m.org, nil
}

// mockReportStore implements ReportStore for testing.
type mockReportStore struct {
	mu         sync.Mutex
	started    []string
	failed     map[string]string
	completed  map[string]*model.Report
	startErr   error
	persistErr error
}

func newMockReportStore() *mockReportStore {
	return &mockReportStore{failed: map[string]string{}, completed: map[string]*model.Report{}}
}

func (m *mockReportStore) StartResearch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, id)
	return nil
}

func (m *mockReportStore) FailResearch(_ context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = msg
	return nil
}

func (m *mockReportStore) CompleteResearch(_ context.Context, id string, report *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistErr != nil {
		return m.persistErr
	}
	if report.Content == "" {
		return errors.New("empty content")
	}
	report.ID = "rep-" + id
	report.QueueItemID = id
	m.completed[id] = report
	return nil
}
