// Package faceverify defines the contract of the external face-verification service.
package faceverify

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strings"
)

const (
	ModelVGGFace = "VGG-Face"
	MetricCosine = "cosine"
)

// Image references one side of a comparison, either by local path or by its bytes.
type Image struct {
	Path string
	Data []byte
}

// Load returns the image bytes, reading Path when Data is empty.
func (img Image) Load() ([]byte, error) {
	if img.Data != nil {
		return img.Data, nil
	}
	if img.Path == "" {
		return nil, errors.New("image has neither path nor data")
	}
	return os.ReadFile(img.Path)
}

// Request is a single verification call.
type Request struct {
	ImageA Image
	ImageB Image
	Model  string
	Metric string
}

// Verdict is what the service answers for a request.
type Verdict struct {
	Verified  bool
	Distance  float64
	Threshold float64
}

// Verifier exposes the subset of the service used by the comparison flow.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Verdict, error)
}

// Fault is a failure reported by the service itself, e.g. no face found.
type Fault struct {
	Message string
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	return f.Message
}

// DataURI encodes raw image bytes the way the service accepts inline images.
func DataURI(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeInline accepts either bare base64 or a data:image/...;base64, URI.
func DecodeInline(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URI")
		}
		s = s[comma+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
