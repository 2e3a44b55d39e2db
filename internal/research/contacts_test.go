package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/apollo"
)

func TestExtractContactsSection(t *testing.T) {
	t.Parallel()

	section, ok := ExtractContactsSection(sampleReport)
	require.True(t, ok)
	assert.Equal(t, "## 9. Key Contacts", section.Heading)
	assert.Contains(t, section.Body, "**Jane Doe**")
	assert.NotContains(t, section.Body, "Risks")
	assert.True(t, strings.HasPrefix(sampleReport[section.End:], "## 10. Risks"))
}

func TestExtractContactsSection_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report string
		wantOK bool
	}{
		{"unnumbered h3", "intro\n### Key Contacts & Leadership\n**A B** - CEO\n", true},
		{"h1 at end of report", "# Key Contacts\n**A B** - CEO", true},
		{"h4 ignored", "#### Key Contacts\n**A B** - CEO\n", false},
		{"mid-line mention", "See Key Contacts below.\n", false},
		{"missing", "## 1. Executive Summary\nNothing here.\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := ExtractContactsSection(tt.report)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParseDecisionMakers(t *testing.T) {
	t.Parallel()

	section := `
**Jane Doe** - Founder & CEO | LinkedIn: https://www.linkedin.com/in/janedoe
**John Smith** – Chief Financial Officer
**jane doe** - Duplicate
Mary Major, VP Operations, LinkedIn profile: https://linkedin.com/in/mary-major-123
`
	got := ParseDecisionMakers(section)
	require.Len(t, got, 3)

	assert.Equal(t, model.DecisionMaker{Name: "Jane Doe", Title: "Founder & CEO", LinkedInURL: "https://www.linkedin.com/in/janedoe"}, got[0])
	assert.Equal(t, model.DecisionMaker{Name: "John Smith", Title: "Chief Financial Officer"}, got[1])
	assert.Equal(t, "Mary Major", got[2].Name)
	assert.Equal(t, "https://linkedin.com/in/mary-major-123", got[2].LinkedInURL)
}

func TestParseDecisionMakers_TwoContacts(t *testing.T) {
	t.Parallel()

	got := ParseDecisionMakers("**Jane Doe** - CEO\n**John Smith** - CFO\n")
	require.Len(t, got, 2)
	assert.Equal(t, "CEO", got[0].Title)
	assert.Equal(t, "CFO", got[1].Title)
}

func TestParseDecisionMakers_None(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseDecisionMakers("Leadership information is not publicly available."))
}

func TestEnrichContacts_RewritesSection(t *testing.T) {
	people := &mockApolloClient{
		people: map[string]apollo.Person{
			"Jane Doe": {
				ID:           "p1",
				Email:        "jane@acme.example",
				PhoneNumbers: []apollo.PhoneNumber{{SanitizedNumber: "+15555550100"}},
			},
		},
		org: &apollo.Organization{Name: "Acme Corporation", Phone: "+15555550000"},
	}
	r := NewResearcher(testConfig(), nil, nil, nil, people, nil)

	got := r.EnrichContacts(context.Background(), sampleReport, "Acme Corp", "https://acme.example")

	assert.True(t, strings.HasPrefix(got, "## 1. Executive Summary"))
	assert.Contains(t, got, "## 9. Key Contacts\n\n_Company: Phone: +15555550000_\n\n**Jane Doe** - Founder & CEO\n")
	assert.Contains(t, got, "- Email: jane@acme.example (verified)\n- Phone: +15555550100\n- LinkedIn: https://www.linkedin.com/in/janedoe\n- Profile: https://app.apollo.io/#/people/p1\n")
	assert.Contains(t, got, "**John Smith** - CFO\n- Contact details not verified\n")
	assert.Contains(t, got, "## 10. Risks & Considerations")
	assert.NotContains(t, got, "| LinkedIn:")

	require.Len(t, people.searches, 2)
	assert.Equal(t, "Acme Corporation", people.searches[0].OrganizationName)
	assert.Equal(t, []string{"Founder & CEO"}, people.searches[0].Titles)
	assert.Equal(t, []string{"CFO"}, people.searches[1].Titles)

	// The rewritten section still satisfies the contact format.
	section, ok := ExtractContactsSection(got)
	require.True(t, ok)
	assert.Len(t, ParseDecisionMakers(section.Body), 2)
}

func TestEnrichContacts_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		report string
		people *mockApolloClient
	}{
		{"no section", "## 1. Executive Summary\nText.\n", &mockApolloClient{}},
		{"no parsable contacts", "## Key Contacts\nNot publicly available.\n", &mockApolloClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResearcher(testConfig(), nil, nil, nil, tt.people, nil)
			assert.Equal(t, tt.report, r.EnrichContacts(context.Background(), tt.report, "Acme Corp", ""))
			assert.Empty(t, tt.people.searches)
		})
	}
}

func TestEnrichContacts_SearchFailureKeepsContacts(t *testing.T) {
	people := &mockApolloClient{peopleErr: errors.New("apollo: status 422")}
	r := NewResearcher(testConfig(), nil, nil, nil, people, nil)

	got := r.EnrichContacts(context.Background(), sampleReport, "Acme Corp", "acme.example")
	assert.Contains(t, got, "**Jane Doe** - Founder & CEO\n- LinkedIn: https://www.linkedin.com/in/janedoe\n- Contact details not verified\n")
	assert.Contains(t, got, "**John Smith** - CFO\n")
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme.example", domainOf("https://www.Acme.example/about"))
	assert.Equal(t, "acme.example", domainOf("acme.example"))
	assert.Empty(t, domainOf(""))
}
