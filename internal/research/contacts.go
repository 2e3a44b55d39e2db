package research

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/internal/resilience"
	"github.com/sells-group/deal-sourcing/pkg/apollo"
)

var (
	contactsHeading = regexp.MustCompile(`(?im)^#{1,3}\s*(?:\d+\.\s*)?Key Contacts.*$`)
	nextHeading     = regexp.MustCompile(`(?m)^#`)
	boldContact     = regexp.MustCompile(`\*\*([^*\n]+?)\*\*\s*[-–—:]\s*([^\n|]+)`)
	linkedInURL     = regexp.MustCompile(`https?://(?:[a-z]{2,3}\.)?linkedin\.com/in/[A-Za-z0-9_%-]+/?`)
	nearLinkedIn    = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-zA-Z'.-]+){1,3})[^\n]{0,80}?LinkedIn[^\n]{0,40}?(https?://(?:[a-z]{2,3}\.)?linkedin\.com/in/[A-Za-z0-9_%-]+/?)`)
)

// ContactsSection locates the Key Contacts section within a report. Body
// excludes the heading line; Start and End bound the whole section.
type ContactsSection struct {
	Heading string
	Body    string
	Start   int
	End     int
}

// ExtractContactsSection finds the Key Contacts heading and returns the text
// up to the next heading or the end of the report.
func ExtractContactsSection(report string) (ContactsSection, bool) {
	loc := contactsHeading.FindStringIndex(report)
	if loc == nil {
		return ContactsSection{}, false
	}

	end := len(report)
	if next := nextHeading.FindStringIndex(report[loc[1]:]); next != nil {
		end = loc[1] + next[0]
	}
	return ContactsSection{
		Heading: strings.TrimSpace(report[loc[0]:loc[1]]),
		Body:    report[loc[1]:end],
		Start:   loc[0],
		End:     end,
	}, true
}

// ParseDecisionMakers reads "**Name** - Title" lines, plus plain-text lines
// that put a name near a LinkedIn URL. Names are deduplicated
// case-insensitively in order of appearance.
func ParseDecisionMakers(section string) []model.DecisionMaker {
	var out []model.DecisionMaker
	index := make(map[string]int)

	for _, line := range strings.Split(section, "\n") {
		m := boldContact.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if _, ok := index[key]; ok || name == "" {
			continue
		}
		index[key] = len(out)
		out = append(out, model.DecisionMaker{
			Name:        name,
			Title:       strings.TrimSpace(m[2]),
			LinkedInURL: linkedInURL.FindString(line),
		})
	}

	for _, m := range nearLinkedIn.FindAllStringSubmatch(section, -1) {
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			if out[i].LinkedInURL == "" {
				out[i].LinkedInURL = m[2]
			}
			continue
		}
		index[key] = len(out)
		out = append(out, model.DecisionMaker{Name: name, LinkedInURL: m[2]})
	}
	return out
}

// EnrichContacts rewrites the Key Contacts section with verified details from
// people search. Without a section, parsable contacts, or a people client
// the report is returned unchanged.
func (r *Researcher) EnrichContacts(ctx context.Context, report, company, companyURL string) string {
	log := zap.L().With(zap.String("stage", "contact_enrichment"), zap.String("company", company))
	if r.people == nil {
		return report
	}

	section, ok := ExtractContactsSection(report)
	if !ok {
		log.Info("no key contacts section")
		return report
	}
	people := ParseDecisionMakers(section.Body)
	if len(people) == 0 {
		log.Info("no contacts parsed")
		return report
	}

	org := r.enrichOrganization(ctx, company, companyURL)
	orgName := company
	if org != nil && org.Name != "" {
		orgName = org.Name
	}

	verified := 0
	for i := range people {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Warn("enrichment interrupted", zap.Error(err))
			break
		}
		if r.enrichPerson(ctx, &people[i], orgName) {
			verified++
		}
	}

	log.Info("contacts enriched", zap.Int("contacts", len(people)), zap.Int("verified", verified))
	rendered := RenderContactsSection(section.Heading, people, org)
	return report[:section.Start] + rendered + report[section.End:]
}

func (r *Researcher) enrichOrganization(ctx context.Context, company, companyURL string) *apollo.Organization {
	org, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*apollo.Organization, error) {
		return r.people.EnrichOrganization(ctx, company, domainOf(companyURL))
	})
	if err != nil {
		zap.L().Warn("organization enrichment failed", zap.String("company", company), zap.Error(err))
		return nil
	}
	return org
}

// enrichPerson fills verified fields from the best people-search match.
func (r *Researcher) enrichPerson(ctx context.Context, dm *model.DecisionMaker, orgName string) bool {
	req := apollo.PeopleSearchRequest{Name: dm.Name, OrganizationName: orgName}
	if dm.Title != "" {
		req.Titles = []string{dm.Title}
	}
	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*apollo.PeopleSearchResponse, error) {
		return r.people.SearchPeople(ctx, req)
	})
	if err != nil {
		zap.L().Warn("people search failed", zap.String("name", dm.Name), zap.Error(err))
		return false
	}
	if resp == nil || len(resp.People) == 0 {
		return false
	}

	p := resp.People[0]
	dm.Email = p.Email
	dm.Phone = p.PrimaryPhone()
	dm.ProfileURL = p.ProfileURL()
	if dm.LinkedInURL == "" {
		dm.LinkedInURL = p.LinkedInURL
	}
	if dm.Title == "" {
		dm.Title = p.Title
	}
	dm.Verified = true
	return true
}

// RenderContactsSection writes the Key Contacts section back in the
// "**Name** - Title" format with one detail line per known field.
func RenderContactsSection(heading string, people []model.DecisionMaker, org *apollo.Organization) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")

	if org != nil {
		var parts []string
		if org.Phone != "" {
			parts = append(parts, "Phone: "+org.Phone)
		}
		if org.LinkedInURL != "" {
			parts = append(parts, "LinkedIn: "+org.LinkedInURL)
		}
		if org.EstimatedNumEmployees > 0 {
			parts = append(parts, fmt.Sprintf("Employees: ~%d", org.EstimatedNumEmployees))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "_Company: %s_\n\n", strings.Join(parts, " | "))
		}
	}

	for _, p := range people {
		title := p.Title
		if title == "" {
			title = "Unknown title"
		}
		fmt.Fprintf(&b, "**%s** - %s\n", p.Name, title)
		if p.Email != "" {
			fmt.Fprintf(&b, "- Email: %s (verified)\n", p.Email)
		}
		if p.Phone != "" {
			fmt.Fprintf(&b, "- Phone: %s\n", p.Phone)
		}
		if p.LinkedInURL != "" {
			fmt.Fprintf(&b, "- LinkedIn: %s\n", p.LinkedInURL)
		}
		if p.ProfileURL != "" {
			fmt.Fprintf(&b, "- Profile: %s\n", p.ProfileURL)
		}
		if !p.Verified {
			b.WriteString("- Contact details not verified\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
