package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/snaglog/snaglog-api/internal/photo"
	"github.com/snaglog/snaglog-api/internal/services/reports"
)

// multipart bodies carry form fields and part headers besides the photos
const multipartOverhead = 1 << 20

type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

// readPhotos reads the "photos" parts of a multipart request within the upload limits
func (r *Router) readPhotos(w http.ResponseWriter, req *http.Request) ([]reports.PhotoUpload, error) {
	maxBody := r.limits.MaxPhotoBytes*int64(r.limits.MaxPhotos) + multipartOverhead
	req.Body = http.MaxBytesReader(w, req.Body, maxBody)

	if err := req.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, "Upload is too large"}
		}
		return nil, &uploadError{http.StatusBadRequest, "Invalid multipart form"}
	}

	files := req.MultipartForm.File["photos"]
	if len(files) == 0 {
		return nil, &uploadError{http.StatusBadRequest, "No photos uploaded"}
	}
	if len(files) > r.limits.MaxPhotos {
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("At most %d photos can be uploaded at once", r.limits.MaxPhotos)}
	}

	photos := make([]reports.PhotoUpload, 0, len(files))
	for _, fh := range files {
		p, err := r.readPhoto(fh)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, nil
}

func (r *Router) readPhoto(fh *multipart.FileHeader) (reports.PhotoUpload, error) {
	contentType := fh.Header.Get("Content-Type")
	if !photo.IsAcceptedUpload(contentType, fh.Filename) {
		return reports.PhotoUpload{}, &uploadError{http.StatusBadRequest, fmt.Sprintf("%s is not an image", fh.Filename)}
	}
	if fh.Size > r.limits.MaxPhotoBytes {
		return reports.PhotoUpload{}, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds the size limit", fh.Filename)}
	}

	f, err := fh.Open()
	if err != nil {
		return reports.PhotoUpload{}, &uploadError{http.StatusBadRequest, fmt.Sprintf("Could not read %s", fh.Filename)}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, r.limits.MaxPhotoBytes+1))
	if err != nil {
		return reports.PhotoUpload{}, &uploadError{http.StatusBadRequest, fmt.Sprintf("Could not read %s", fh.Filename)}
	}
	if int64(len(data)) > r.limits.MaxPhotoBytes {
		return reports.PhotoUpload{}, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds the size limit", fh.Filename)}
	}
	return reports.PhotoUpload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func respondUploadError(w http.ResponseWriter, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		respondError(w, ue.status, ue.message)
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

// parseInspectionDate accepts RFC 3339 timestamps and plain dates
func parseInspectionDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("Invalid inspection date")
}

// uploadReport creates a report from its first batch of photos
func (r *Router) uploadReport(w http.ResponseWriter, req *http.Request) {
	photos, err := r.readPhotos(w, req)
	if err != nil {
		respondUploadError(w, err)
		return
	}

	inspectionDate, err := parseInspectionDate(req.FormValue("inspectionDate"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	details := reports.ReportDetails{
		PropertyAddress: req.FormValue("propertyAddress"),
		PropertyType:    req.FormValue("propertyType"),
		DeveloperName:   req.FormValue("developerName"),
		InspectionDate:  inspectionDate,
	}

	report, err := r.reports.CreateReport(req.Context(), owner(req), details, photos)
	if err != nil {
		respondAppError(w, err, "Failed to upload photos")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"report": map[string]interface{}{
			"id":              report.ID,
			"propertyAddress": report.PropertyAddress,
			"photoCount":      len(report.Snags),
		},
	})
}

// addPhotos appends a batch to an existing report
func (r *Router) addPhotos(w http.ResponseWriter, req *http.Request) {
	photos, err := r.readPhotos(w, req)
	if err != nil {
		respondUploadError(w, err)
		return
	}

	report, err := r.reports.AddPhotos(req.Context(), owner(req), mux.Vars(req)["reportId"], photos)
	if err != nil {
		respondAppError(w, err, "Failed to add photos")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"photoCount": len(report.Snags),
		"report":     report,
	})
}
