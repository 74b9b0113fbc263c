package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PhotoKey builds the object key for a snag photo
func PhotoKey(reportID, ext string) string {
	return fmt.Sprintf("reports/%s/photos/%s%s", reportID, uuid.New().String(), normalizeExt(ext))
}

// DocumentKey builds the object key for a rendered report document.
// Re-rendering a report overwrites the previous document.
func DocumentKey(reportID string) string {
	return fmt.Sprintf("pdfs/%s.pdf", reportID)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
