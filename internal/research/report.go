package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-sourcing/internal/model"
	"github.com/sells-group/deal-sourcing/pkg/anthropic"
)

// Report sections, in order. The Key Contacts format is parsed by
// ParseDecisionMakers.
var reportSections = []string{
	"Executive Summary",
	"Company Overview",
	"Products & Services",
	"Market Position & Competitors",
	"Financial Profile",
	"Ownership & Leadership",
	"Recent News & Developments",
	"Growth Opportunities",
	"Key Contacts",
	"Risks & Considerations",
	"Acquisition Fit Assessment",
}

func reportSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a senior M&A research analyst. Use web search to research the company ")
	b.WriteString("and write a detailed markdown report with exactly these sections, each as a ")
	b.WriteString("level-2 heading numbered in order:\n\n")
	for i, s := range reportSections {
		fmt.Fprintf(&b, "## %d. %s\n", i+1, s)
	}
	b.WriteString(`
The Key Contacts section MUST list one person per line in exactly this format:
**Full Name** - Title
If a LinkedIn profile is known, add it on the same line after " | LinkedIn: ".
List owners, executives, and board members only. Do not invent people.

Cite concrete figures where available and say "Not publicly available" otherwise.
Output only the report markdown.`)
	return b.String()
}

// GenerateBaseReport asks the model, with web search enabled, for the
// sectioned report. Output shorter than the configured minimum is an error.
func (r *Researcher) GenerateBaseReport(ctx context.Context, item model.QueueItem) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nWebsite: %s\n", item.Name, item.URL)
	if item.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", item.Industry)
	}
	if item.EstimatedRevenue != "" {
		fmt.Fprintf(&b, "Estimated revenue: %s\n", item.EstimatedRevenue)
	}
	if item.GeographicFocus != "" {
		fmt.Fprintf(&b, "Geographic focus: %s\n", item.GeographicFocus)
	}
	if item.OwnershipType != "" {
		fmt.Fprintf(&b, "Ownership: %s\n", item.OwnershipType)
	}
	if item.Reasoning != "" {
		fmt.Fprintf(&b, "\nScreening notes: %s\n", item.Reasoning)
	}

	req := anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System:    []anthropic.SystemBlock{{Text: reportSystemPrompt()}},
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	}
	if r.webSearchMaxUses > 0 {
		req.WebSearch = &anthropic.WebSearchTool{MaxUses: r.webSearchMaxUses}
	}

	resp, err := r.ai.CreateMessage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "research: generate report")
	}
	resp.Usage.LogCost(r.model, "research")

	text := strings.TrimSpace(resp.Text())
	if len(text) < r.minReportChars {
		return "", eris.Errorf("research: report too short (%d chars)", len(text))
	}
	return text, nil
}
