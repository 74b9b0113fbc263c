// Package photo prepares uploaded photographs for analysis and display.
//
// Every upload goes through the same short pipeline: legacy camera formats
// (HEIC/HEIF, or unlabelled binaries that might be one) are transcoded to
// JPEG, then the image is rotated according to its EXIF orientation and
// recompressed. Each stage may fail on its own; a failure hands the previous
// stage's bytes to the next one, and the caller always gets usable bytes back.
package photo

import (
	"bytes"
	"fmt"
	"image"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

const (
	ContentTypeJPEG = "image/jpeg"

	defaultJPEGQuality = 85
	defaultHEICQuality = 90
)

// Options controls the recompression stages
type Options struct {
	JPEGQuality  int // quality of the final recompression
	HEICQuality  int // quality of the intermediate HEIC transcode
	MaxDimension int // longest edge after resize, 0 keeps the original size
}

// Result is the normalized photo
type Result struct {
	Data        []byte
	ContentType string
	Ext         string
	Converted   bool
}

// Normalizer converts uploads into a canonical JPEG where possible
type Normalizer struct {
	opts       Options
	decodeHEIC func(r *bytes.Reader) (image.Image, error)
}

// NewNormalizer creates a normalizer, filling unset options with defaults
func NewNormalizer(opts Options) *Normalizer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.HEICQuality <= 0 || opts.HEICQuality > 100 {
		opts.HEICQuality = defaultHEICQuality
	}
	return &Normalizer{
		opts: opts,
		decodeHEIC: func(r *bytes.Reader) (image.Image, error) {
			return goheif.Decode(r)
		},
	}
}

// stage is one fallible step of the pipeline
type stage struct {
	name string
	skip func(in Result) bool
	run  func(in Result) (Result, error)
}

// Normalize never fails: on any error the best result reached so far is
// returned, ultimately the original bytes with the declared content type.
func (n *Normalizer) Normalize(data []byte, contentType, filename string) Result {
	original := Result{
		Data:        data,
		ContentType: declaredType(data, contentType),
	}
	original.Ext = extensionFor(original.ContentType, filename)

	if len(data) == 0 {
		return original
	}

	legacy := IsLegacyCandidate(contentType, filename)
	stages := []stage{
		{
			name: "heic transcode",
			skip: func(Result) bool { return !legacy },
			run:  n.transcodeHEIC,
		},
		{
			name: "orient and recompress",
			run:  n.orientAndRecompress,
		},
	}

	current := original
	for _, st := range stages {
		if st.skip != nil && st.skip(current) {
			continue
		}
		next, err := runStage(st, current)
		if err != nil {
			log.Printf("⚠️ Photo normalize: %s failed for %q (%s): %v", st.name, filename, contentType, err)
			continue
		}
		current = next
	}
	return current
}

// runStage converts a decoder panic on hostile input into an ordinary stage failure
func runStage(st stage, in Result) (out Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = in, fmt.Errorf("panic: %v", r)
		}
	}()
	return st.run(in)
}

func (n *Normalizer) transcodeHEIC(in Result) (Result, error) {
	img, err := n.decodeHEIC(bytes.NewReader(in.Data))
	if err != nil {
		return in, err
	}
	return n.encodeJPEG(img, n.opts.HEICQuality)
}

func (n *Normalizer) orientAndRecompress(in Result) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return in, err
	}
	if limit := n.opts.MaxDimension; limit > 0 {
		b := img.Bounds()
		if b.Dx() > limit || b.Dy() > limit {
			img = imaging.Fit(img, limit, limit, imaging.Lanczos)
		}
	}
	return n.encodeJPEG(img, n.opts.JPEGQuality)
}

func (n *Normalizer) encodeJPEG(img image.Image, quality int) (Result, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Result{}, err
	}
	return Result{
		Data:        buf.Bytes(),
		ContentType: ContentTypeJPEG,
		Ext:         "jpg",
		Converted:   true,
	}, nil
}

// IsLegacyCandidate reports whether an upload should be probed as HEIC/HEIF.
// Generic binary uploads are probed too because some phones send HEIC that way.
func IsLegacyCandidate(contentType, filename string) bool {
	ct := baseType(contentType)
	switch ct {
	case "image/heic", "image/heif", "image/heic-sequence", "image/heif-sequence":
		return true
	case "", "application/octet-stream":
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// IsAcceptedUpload reports whether a file may be submitted as a photo at all
func IsAcceptedUpload(contentType, filename string) bool {
	return strings.HasPrefix(baseType(contentType), "image/") || IsLegacyCandidate(contentType, filename)
}

func baseType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func declaredType(data []byte, contentType string) string {
	ct := baseType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		if len(data) == 0 {
			return "application/octet-stream"
		}
		return baseType(http.DetectContentType(data))
	}
	return ct
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/heic": "heic",
	"image/heif": "heif",
}

func extensionFor(contentType, filename string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		return ext
	}
	if i := strings.IndexByte(contentType, '/'); i >= 0 && i < len(contentType)-1 {
		return contentType[i+1:]
	}
	return "bin"
}
