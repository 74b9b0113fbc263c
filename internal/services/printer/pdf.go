package printer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"github.com/snaglog/snaglog-api/internal/models"
	"golang.org/x/sync/errgroup"
)

// A4 portrait with 20mm margins
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 20.0
	contentWidth = pageWidth - 2*margin

	photoWidth  = 48.0
	photoHeight = 36.0
	photoPixels = 640

	fetchConcurrency = 4
)

type rgb struct{ r, g, b int }

var (
	brandOrange = rgb{234, 88, 12}
	slateDark   = rgb{30, 41, 59}
	slateMid    = rgb{71, 85, 105}
	slateLight  = rgb{226, 232, 240}
	paleOrange  = rgb{255, 247, 237}
	cardHeader  = rgb{248, 250, 252}

	severityColors = map[string][2]rgb{
		string(models.SeverityMinor):    {{220, 252, 231}, {22, 163, 74}},
		string(models.SeverityModerate): {{254, 249, 195}, {202, 138, 4}},
		string(models.SeverityMajor):    {{254, 226, 226}, {220, 38, 38}},
		unratedSeverity:                 {{241, 245, 249}, {100, 116, 139}},
	}
)

// PhotoFetcher retrieves snag photos for embedding
type PhotoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// ReportRenderer draws a Document as PDF
type ReportRenderer struct {
	fetcher  PhotoFetcher
	linkBase string
	now      func() time.Time
}

// NewReportRenderer creates a renderer. linkBase is the frontend URL the cover QR code points to.
func NewReportRenderer(fetcher PhotoFetcher, linkBase string) *ReportRenderer {
	return &ReportRenderer{
		fetcher:  fetcher,
		linkBase: strings.TrimRight(linkBase, "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReportLink is the URL encoded in the cover QR code
func (r *ReportRenderer) ReportLink(reportID string) string {
	if r.linkBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/report/%s", r.linkBase, reportID)
}

// Render produces the PDF for a report and its snags in display order
func (r *ReportRenderer) Render(ctx context.Context, report *models.Report, snags []models.Snag) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := BuildDocument(report, snags, r.now())
	doc.Cover.ReportLink = r.ReportLink(report.ID)

	photos := r.fetchPhotos(ctx, doc)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.SetTitle("Snagging Inspection Report "+doc.Cover.ReportID, true)
	pdf.SetCreator("SnagLog", true)

	w := &writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		w.font("", 7, rgb{148, 163, 184})
		pdf.CellFormat(0, 5, w.tr(doc.Footer), "", 0, "C", false, 0, "")
	})

	if err := w.cover(doc); err != nil {
		return nil, err
	}
	w.summary(doc)
	w.details(doc, photos)
	w.closing()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// fetchPhotos downloads and shrinks every photo. A photo that cannot be fetched
// or decoded is left out and drawn as a placeholder.
func (r *ReportRenderer) fetchPhotos(ctx context.Context, doc Document) map[string][]byte {
	var entries []Entry
	for _, s := range doc.Sections {
		entries = append(entries, s.Entries...)
	}

	thumbs := make([][]byte, len(entries))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, e := range entries {
		if r.fetcher == nil || e.PhotoURL == "" {
			continue
		}
		g.Go(func() error {
			data, _, err := r.fetcher.Fetch(ctx, e.PhotoURL)
			if err != nil {
				log.Printf("⚠️ Document photo unavailable for snag %s: %v", e.SnagID, err)
				return nil
			}
			thumb, err := thumbnail(data)
			if err != nil {
				log.Printf("⚠️ Document photo undecodable for snag %s: %v", e.SnagID, err)
				return nil
			}
			thumbs[i] = thumb
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]byte, len(entries))
	for i, e := range entries {
		if thumbs[i] != nil {
			out[e.SnagID] = thumbs[i]
		}
	}
	return out
}

// thumbnail re-encodes a photo as a small baseline JPEG gofpdf can embed
func thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	img = imaging.Fit(img, photoPixels, photoPixels, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type writer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func (w *writer) font(style string, size float64, c rgb) {
	w.pdf.SetFont("Helvetica", style, size)
	w.pdf.SetTextColor(c.r, c.g, c.b)
}

func (w *writer) fill(c rgb) {
	w.pdf.SetFillColor(c.r, c.g, c.b)
}

func (w *writer) heading(text string) {
	pdf := w.pdf
	w.font("B", 16, slateDark)
	pdf.CellFormat(0, 10, w.tr(text), "", 1, "L", false, 0, "")
	pdf.SetDrawColor(brandOrange.r, brandOrange.g, brandOrange.b)
	pdf.SetLineWidth(0.6)
	y := pdf.GetY()
	pdf.Line(margin, y, pageWidth-margin, y)
	pdf.Ln(5)
}

func (w *writer) subheading(text string) {
	w.font("B", 12, brandOrange)
	w.pdf.Ln(3)
	w.pdf.CellFormat(0, 8, w.tr(text), "", 1, "L", false, 0, "")
}

func (w *writer) cover(doc Document) error {
	pdf := w.pdf
	pdf.AddPage()

	pdf.SetY(50)
	w.font("B", 40, brandOrange)
	pdf.CellFormat(0, 16, "SnagLog", "", 1, "C", false, 0, "")
	w.font("", 12, slateMid)
	pdf.CellFormat(0, 8, "Photos In. Snag List Out.", "", 1, "C", false, 0, "")
	pdf.Ln(14)
	w.font("B", 20, slateDark)
	pdf.CellFormat(0, 10, "SNAGGING INSPECTION REPORT", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	rows := [][2]string{{"Property Address:", doc.Cover.Address}}
	if doc.Cover.PropertyType != "" {
		rows = append(rows, [2]string{"Property Type:", doc.Cover.PropertyType})
	}
	if doc.Cover.Developer != "" {
		rows = append(rows, [2]string{"Developer:", doc.Cover.Developer})
	}
	rows = append(rows,
		[2]string{"Inspection Date:", doc.Cover.InspectionDate},
		[2]string{"Report ID:", doc.Cover.ReportID},
	)
	for _, row := range rows {
		pdf.SetX(margin + 10)
		w.font("B", 11, slateMid)
		pdf.CellFormat(50, 7, row[0], "", 0, "R", false, 0, "")
		w.font("", 11, slateDark)
		pdf.CellFormat(0, 7, "  "+w.tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(10)

	boxW := 110.0
	boxX := (pageWidth - boxW) / 2
	counts := doc.Cover.Counts
	pdf.SetX(boxX)
	w.fill(brandOrange)
	w.font("B", 12, rgb{255, 255, 255})
	pdf.CellFormat(boxW, 10, fmt.Sprintf("TOTAL SNAGS IDENTIFIED: %d", counts.Total), "", 1, "C", true, 0, "")
	pdf.SetX(boxX)
	w.fill(paleOrange)
	w.font("", 11, slateDark)
	pdf.CellFormat(boxW, 10, fmt.Sprintf("Minor: %d | Moderate: %d | Major: %d", counts.Minor, counts.Moderate, counts.Major), "", 1, "C", true, 0, "")

	if doc.Cover.ReportLink == "" {
		return nil
	}
	png, err := qrcode.Encode(doc.Cover.ReportLink, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to encode report QR: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("report_qr", opts, bytes.NewReader(png))
	size := 30.0
	pdf.ImageOptions("report_qr", (pageWidth-size)/2, pdf.GetY()+12, size, size, false, opts, 0, doc.Cover.ReportLink)
	return pdf.Error()
}

func (w *writer) summary(doc Document) {
	pdf := w.pdf
	pdf.AddPage()
	w.heading("Executive Summary")

	w.font("", 10, slateMid)
	pdf.MultiCell(0, 5, w.tr(doc.Narrative), "", "L", false)

	w.subheading("Snags by Location")
	widths := []float64{70, 25, 25, 25, contentWidth - 145}
	w.tableRow(widths, []string{"Location", "Minor", "Moderate", "Major", "Total"}, true, false)
	for i, row := range doc.ByLocation {
		c := row.Counts
		w.tableRow(widths, []string{
			row.Location,
			fmt.Sprint(c.Minor), fmt.Sprint(c.Moderate), fmt.Sprint(c.Major), fmt.Sprint(c.Total),
		}, false, i%2 == 1)
	}

	w.subheading("Snags by Trade")
	widths = []float64{contentWidth - 40, 40}
	w.tableRow(widths, []string{"Trade", "Count"}, true, false)
	for i, row := range doc.ByTrade {
		w.tableRow(widths, []string{row.Trade, fmt.Sprint(row.Count)}, false, i%2 == 1)
	}
}

func (w *writer) tableRow(widths []float64, cells []string, header, shaded bool) {
	pdf := w.pdf
	switch {
	case header:
		w.fill(slateDark)
		w.font("B", 10, rgb{255, 255, 255})
	case shaded:
		w.fill(cardHeader)
		w.font("", 10, slateDark)
	default:
		w.fill(rgb{255, 255, 255})
		w.font("", 10, slateDark)
	}
	pdf.SetDrawColor(slateLight.r, slateLight.g, slateLight.b)
	for i, cell := range cells {
		pdf.CellFormat(widths[i], 8, w.tr(cell), "B", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func (w *writer) details(doc Document, photos map[string][]byte) {
	pdf := w.pdf
	pdf.AddPage()
	w.heading("Detailed Snag List")

	for _, section := range doc.Sections {
		w.subheading(fmt.Sprintf("%s (%d snags)", section.Room, len(section.Entries)))
		for _, e := range section.Entries {
			w.entry(e, photos[e.SnagID])
		}
	}
}

func (w *writer) entry(e Entry, photo []byte) {
	pdf := w.pdf
	textX := margin + photoWidth + 6
	textW := contentWidth - photoWidth - 9

	w.font("", 9, slateMid)
	lines := len(pdf.SplitLines([]byte(w.tr(e.Description)), textW))
	bodyH := float64(lines)*4.5 + 12
	if bodyH < photoHeight+6 {
		bodyH = photoHeight + 6
	}
	cardH := 9 + bodyH

	_, bottom := pdf.GetPageSize()
	if pdf.GetY()+cardH > bottom-margin {
		pdf.AddPage()
	}
	top := pdf.GetY()

	pdf.SetDrawColor(slateLight.r, slateLight.g, slateLight.b)
	pdf.SetLineWidth(0.3)
	pdf.Rect(margin, top, contentWidth, cardH, "D")

	w.fill(cardHeader)
	pdf.Rect(margin, top, contentWidth, 9, "F")
	pdf.SetXY(margin+3, top+1.5)
	w.font("B", 10, slateDark)
	pdf.CellFormat(contentWidth-40, 6, w.tr(fmt.Sprintf("%s - %s", e.Index, e.Title)), "", 0, "L", false, 0, "")
	w.badge(e.Severity, pageWidth-margin-31, top+1.5)

	w.photo(e.SnagID, photo, margin+3, top+12)

	pdf.SetXY(textX, top+12)
	w.font("", 9, slateMid)
	pdf.MultiCell(textW, 4.5, w.tr(e.Description), "", "L", false)
	pdf.SetX(textX)
	w.font("", 8, rgb{100, 116, 139})
	pdf.MultiCell(textW, 4.5, w.tr(fmt.Sprintf("Trade: %s | Action: %s", e.Trade, e.Action)), "", "L", false)

	pdf.SetY(top + cardH + 4)
}

func (w *writer) badge(severity string, x, y float64) {
	colors, ok := severityColors[severity]
	if !ok {
		colors = severityColors[unratedSeverity]
	}
	w.fill(colors[0])
	w.pdf.SetXY(x, y)
	w.font("B", 8, colors[1])
	w.pdf.CellFormat(28, 6, severity, "", 0, "C", true, 0, "")
}

func (w *writer) photo(snagID string, data []byte, x, y float64) {
	pdf := w.pdf
	if data != nil {
		name := "photo_" + snagID
		opts := gofpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		if pdf.Ok() {
			pdf.ImageOptions(name, x, y, photoWidth, photoHeight, false, opts, 0, "")
			return
		}
		log.Printf("⚠️ Document photo rejected for snag %s: %v", snagID, pdf.Error())
		pdf.ClearError()
	}

	w.fill(rgb{241, 245, 249})
	pdf.Rect(x, y, photoWidth, photoHeight, "F")
	pdf.SetXY(x, y+photoHeight/2-3)
	w.font("I", 8, rgb{148, 163, 184})
	pdf.CellFormat(photoWidth, 6, "Photo unavailable", "", 0, "C", false, 0, "")
}

func (w *writer) closing() {
	pdf := w.pdf
	_, bottom := pdf.GetPageSize()
	if pdf.GetY()+30 > bottom-margin {
		pdf.AddPage()
	}
	pdf.Ln(10)
	w.font("B", 13, brandOrange)
	pdf.CellFormat(0, 7, "Generate your own snagging report in minutes", "", 1, "C", false, 0, "")
	w.font("B", 17, slateDark)
	pdf.CellFormat(0, 9, "snaglog.co.uk", "", 1, "C", false, 0, "")
}
