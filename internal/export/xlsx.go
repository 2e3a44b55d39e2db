// Package export writes workflow results to spreadsheets.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/deal-sourcing/internal/model"
)

// QueueHeader is the column layout of the Queue sheet.
var QueueHeader = []string{
	"Company", "URL", "Score", "Confidence", "Estimated Revenue", "Industry",
	"Ownership", "IP Upside", "Approval", "Reason", "Research", "Report ID",
}

// WriteQueueXLSX writes a Summary sheet for the workflow and a Queue sheet
// with one row per queue item.
func WriteQueueXLSX(w io.Writer, wf *model.Workflow, items []model.QueueItem) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	writeSummary(summary, wf)

	queue, err := f.AddSheet("Queue")
	if err != nil {
		return eris.Wrap(err, "export: add queue sheet")
	}
	addStringRow(queue, QueueHeader...)
	for _, item := range items {
		row := queue.AddRow()
		row.AddCell().SetString(item.Name)
		row.AddCell().SetString(item.URL)
		row.AddCell().SetInt(item.Score)
		row.AddCell().SetString(string(item.Confidence))
		row.AddCell().SetString(item.EstimatedRevenue)
		row.AddCell().SetString(item.Industry)
		row.AddCell().SetString(string(item.OwnershipType))
		row.AddCell().SetBool(item.IPUpside)
		row.AddCell().SetString(string(item.ApprovalStatus))
		row.AddCell().SetString(item.AutoApprovalReason)
		row.AddCell().SetString(string(item.ResearchStatus))
		reportID := ""
		if item.ReportID != nil {
			reportID = *item.ReportID
		}
		row.AddCell().SetString(reportID)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func writeSummary(sheet *xlsx.Sheet, wf *model.Workflow) {
	completed := ""
	if wf.CompletedAt != nil {
		completed = wf.CompletedAt.UTC().Format(time.RFC3339)
	}
	addStringRow(sheet, "Workflow", wf.ID)
	addStringRow(sheet, "Status", string(wf.Status))
	addStringRow(sheet, "Trigger", string(wf.TriggerType))
	addStringRow(sheet, "Query", wf.Criteria.Query)
	addStringRow(sheet, "Created", wf.CreatedAt.UTC().Format(time.RFC3339))
	addStringRow(sheet, "Completed", completed)
	addIntRow(sheet, "Companies Found", wf.CompaniesFound)
	addIntRow(sheet, "Companies Scored", wf.CompaniesScored)
	addIntRow(sheet, "Auto-Approved", wf.CompaniesAutoApproved)
	addIntRow(sheet, "Needs Review", wf.CompaniesReviewed)
	addIntRow(sheet, "Researched", wf.CompaniesResearched)
	if wf.Error != "" {
		addStringRow(sheet, "Error", wf.Error)
	}
}

func addStringRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addIntRow(sheet *xlsx.Sheet, label string, v int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(v)
}
