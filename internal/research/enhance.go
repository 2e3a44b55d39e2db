package research

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/pkg/openfda"
)

var healthIndustry = regexp.MustCompile(`(?i)health|medical|biotech`)

// EnhanceWithDatabases appends patent intelligence and, for health-related
// industries, FDA intelligence. It never fails; a failed lookup leaves the
// report as it was.
func (r *Researcher) EnhanceWithDatabases(ctx context.Context, report, company, industry string) string {
	report = r.AppendPatentIntelligence(ctx, report, company)
	if healthIndustry.MatchString(industry) {
		report = r.AppendFDAIntelligence(ctx, report, company)
	}
	return report
}

// AppendPatentIntelligence adds a section summarizing the company's granted
// patents.
func (r *Researcher) AppendPatentIntelligence(ctx context.Context, report, company string) string {
	log := zap.L().With(zap.String("stage", "patent_enhancement"), zap.String("company", company))
	if r.patents == nil {
		return report
	}

	res, err := r.patents.SearchByAssignee(ctx, company, r.patentLimit)
	if err != nil {
		log.Warn("patent lookup failed", zap.Error(err))
		return report
	}

	var b strings.Builder
	b.WriteString("\n\n## Patent Intelligence\n\n")
	if res.Total == 0 {
		fmt.Fprintf(&b, "No granted US patents found with %s as assignee.\n", company)
		return report + b.String()
	}

	fmt.Fprintf(&b, "%s holds %d granted US patent(s). Most recent:\n\n", company, res.Total)
	for _, p := range res.Patents {
		fmt.Fprintf(&b, "- **%s** (US %s, %s)\n", p.Title, p.Number, p.Date)
	}
	log.Info("patent section appended", zap.Int("patents", res.Total))
	return report + b.String()
}

// AppendFDAIntelligence adds a section listing 510(k) device clearances and
// drug applications. If both lookups fail the report is unchanged.
func (r *Researcher) AppendFDAIntelligence(ctx context.Context, report, company string) string {
	log := zap.L().With(zap.String("stage", "fda_enhancement"), zap.String("company", company))
	if r.fda == nil {
		return report
	}

	devices, devErr := r.fda.DeviceClearances(ctx, company, r.fdaLimit)
	if devErr != nil {
		log.Warn("device clearance lookup failed", zap.Error(devErr))
	}
	drugs, drugErr := r.fda.DrugApplications(ctx, company, r.fdaLimit)
	if drugErr != nil {
		log.Warn("drug application lookup failed", zap.Error(drugErr))
	}
	if devErr != nil && drugErr != nil {
		return report
	}

	var b strings.Builder
	b.WriteString("\n\n## FDA Regulatory Intelligence\n\n")
	if len(devices) == 0 && len(drugs) == 0 {
		fmt.Fprintf(&b, "No FDA 510(k) clearances or drug applications found for %s.\n", company)
		return report + b.String()
	}
	if len(devices) > 0 {
		writeDevices(&b, devices)
	}
	if len(drugs) > 0 {
		writeDrugs(&b, drugs)
	}
	log.Info("fda section appended", zap.Int("devices", len(devices)), zap.Int("drugs", len(drugs)))
	return report + b.String()
}

func writeDevices(b *strings.Builder, devices []openfda.DeviceClearance) {
	b.WriteString("### 510(k) Device Clearances\n\n")
	for _, d := range devices {
		fmt.Fprintf(b, "- **%s** (%s), decided %s: %s\n", d.DeviceName, d.KNumber, d.DecisionDate, d.DecisionDescription)
	}
	b.WriteString("\n")
}

func writeDrugs(b *strings.Builder, drugs []openfda.DrugApplication) {
	b.WriteString("### Drug Applications\n\n")
	for _, d := range drugs {
		var names []string
		for _, p := range d.Products {
			if p.BrandName != "" {
				names = append(names, p.BrandName)
			}
		}
		products := "no listed products"
		if len(names) > 0 {
			products = strings.Join(names, ", ")
		}
		fmt.Fprintf(b, "- **%s**: %s\n", d.ApplicationNumber, products)
	}
	b.WriteString("\n")
}
