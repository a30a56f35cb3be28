package ui

import (
	"fmt"
	"strings"
	"time"

	"casesync/pkg/catalog"
	"casesync/pkg/models"
)

// RenderReport prints the operator summary for a finished or paused run
func RenderReport(report *models.Report) {
	if quiet {
		return
	}

	fmt.Println()
	PrintHighlight("── sync report ──")
	PrintInfo("Run", report.RunID)
	PrintInfo("Status", string(report.Status))
	PrintInfo("Duration", report.Duration.Round(time.Millisecond).String())
	PrintInfo("Procedures", fmt.Sprintf("created %d, updated %d",
		report.Procedures.Created, report.Procedures.Updated))
	PrintInfo("Cases", fmt.Sprintf("created %d, updated %d, failed %d, attempted %d",
		report.Cases.Created, report.Cases.Updated, report.Cases.Failed, report.Cases.Attempted))

	if report.Duplicates.Occurrences > 0 {
		PrintInfo("Duplicates", fmt.Sprintf("%d ids listed %d extra times",
			report.Duplicates.Unique, report.Duplicates.Occurrences))
	}

	for _, warning := range report.Warnings {
		PrintWarning("warning", warning)
	}
}

// RenderStatus prints the live status view of a run
func RenderStatus(info *models.RunStatusInfo) {
	if quiet {
		return
	}

	PrintInfo("Run", info.RunID)
	PrintInfo("Status", string(info.Status))
	PrintInfo("Stage", info.Stage.String())
	PrintInfo("Progress", fmt.Sprintf("%.1f%% %s", info.OverallPercentage, progressBar(info.OverallPercentage)))
	if info.CurrentItem != "" {
		PrintInfo("Current item", info.CurrentItem)
	}
	PrintInfo("Cases", fmt.Sprintf("created %d, updated %d, failed %d, attempted %d",
		info.Counts.Created, info.Counts.Updated, info.Counts.Failed, info.Counts.Attempted))
}

// RenderEndpointStats prints the per-endpoint call counters
func RenderEndpointStats(stats map[string]catalog.EndpointStats) {
	if quiet || len(stats) == 0 {
		return
	}

	PrintHighlight("── upstream calls ──")
	for endpoint, s := range stats {
		PrintInfo(endpoint, fmt.Sprintf("calls %d, cache hits %d, retries %d, failures %d",
			s.Calls, s.CacheHits, s.Retries, s.Failures))
	}
}

// progressBar renders a 20-cell bar for a 0-100 percentage
func progressBar(pct float64) string {
	const width = 20
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
