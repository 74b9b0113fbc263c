// Package printer lays out and renders the snagging inspection report document.
package printer

import (
	"fmt"
	"time"

	"github.com/snaglog/snaglog-api/internal/models"
)

const (
	dateLayout      = "2 January 2006"
	timestampLayout = "2 January 2006 15:04 MST"

	defaultTitle       = "Defect"
	defaultDescription = "No description"
	defaultTrade       = "TBC"
	defaultAction      = "Review required"
	unratedSeverity    = "UNRATED"
)

// Document is the fixed-structure layout model of a report. It is a pure
// function of the report, its snags and the generation time.
type Document struct {
	Cover       Cover
	Narrative   string
	ByLocation  []LocationRow
	ByTrade     []TradeRow
	Sections    []Section
	Footer      string
	GeneratedAt time.Time
}

// Cover is the first page
type Cover struct {
	Address        string
	PropertyType   string
	Developer      string
	InspectionDate string
	ReportID       string
	ReportLink     string
	Counts         models.SeverityCounts
}

// LocationRow is one line of the snags-by-location table
type LocationRow struct {
	Location string
	Counts   models.SeverityCounts
}

// TradeRow is one line of the snags-by-trade table
type TradeRow struct {
	Trade string
	Count int
}

// Section lists the snags found in one room
type Section struct {
	Room    string
	Entries []Entry
}

// Entry is one snag card
type Entry struct {
	SnagID      string
	Index       string
	Title       string
	Severity    string
	PhotoURL    string
	Description string
	Trade       string
	Action      string
}

// BuildDocument derives the layout model. Snags must be in display order.
func BuildDocument(report *models.Report, snags []models.Snag, generatedAt time.Time) Document {
	summary := models.Summarize(snags)
	inspected := report.InspectionDate.Format(dateLayout)

	doc := Document{
		Cover: Cover{
			Address:        report.PropertyAddress,
			PropertyType:   report.PropertyType,
			Developer:      report.DeveloperName,
			InspectionDate: inspected,
			ReportID:       report.ShortID(),
			Counts:         summary.Counts,
		},
		Narrative: fmt.Sprintf("This snagging inspection was conducted on %s at %s. The inspection identified %d defects requiring attention.",
			inspected, report.PropertyAddress, summary.Counts.Total),
		GeneratedAt: generatedAt,
		Footer: fmt.Sprintf("Report ID: %s | Generated: %s | Powered by SnagLog AI",
			report.ShortID(), generatedAt.UTC().Format(timestampLayout)),
	}

	for _, g := range summary.ByRoom {
		doc.ByLocation = append(doc.ByLocation, LocationRow{Location: g.Key, Counts: g.Counts})

		section := Section{Room: g.Key}
		for i, snag := range g.Snags {
			section.Entries = append(section.Entries, entryFor(i, snag))
		}
		doc.Sections = append(doc.Sections, section)
	}
	for _, g := range summary.ByTrade {
		doc.ByTrade = append(doc.ByTrade, TradeRow{Trade: g.Key, Count: g.Counts.Total})
	}

	return doc
}

func entryFor(i int, snag models.Snag) Entry {
	severity := string(snag.Severity)
	if severity == "" {
		severity = unratedSeverity
	}
	return Entry{
		SnagID:      snag.ID,
		Index:       fmt.Sprintf("#%03d", i+1),
		Title:       orDefault(snag.DefectType, defaultTitle),
		Severity:    severity,
		PhotoURL:    snag.PhotoURL,
		Description: orDefault(snag.Description, defaultDescription),
		Trade:       orDefault(snag.SuggestedTrade, defaultTrade),
		Action:      orDefault(snag.RemedialAction, defaultAction),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
