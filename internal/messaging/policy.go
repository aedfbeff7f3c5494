package messaging

import (
	"mime"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/collabhub/internal/apperr"
	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// DefaultMaxAttachmentSize is the largest attachment accepted by default.
const DefaultMaxAttachmentSize = 10 << 20

// DefaultAllowedTypes are the attachment MIME types accepted by default.
// A trailing "/*" matches every subtype.
var DefaultAllowedTypes = []string{
	"image/*",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/zip",
}

// Policy limits inline attachments.
type Policy struct {
	MaxSize      int64
	AllowedTypes []string
}

// DefaultPolicy returns the default attachment policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxSize:      DefaultMaxAttachmentSize,
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
	}
}

// Check validates a and normalises its content type. An empty declared
// type is sniffed from the data.
func (p Policy) Check(a *models.Attachment) error {
	if a == nil {
		return nil
	}
	if len(a.Data) == 0 {
		return apperr.Validation.New("attachment %q is empty", a.Name)
	}
	if p.MaxSize > 0 && a.Size() > p.MaxSize {
		metrics.AttachmentsRejected.WithLabelValues("size").Inc()
		return apperr.Validation.New("attachment %q is %d bytes, limit is %d", a.Name, a.Size(), p.MaxSize)
	}

	contentType := a.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(a.Data)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		metrics.AttachmentsRejected.WithLabelValues("type").Inc()
		return apperr.Validation.New("attachment %q has invalid content type %q", a.Name, contentType)
	}
	if !p.allows(mediaType) {
		metrics.AttachmentsRejected.WithLabelValues("type").Inc()
		return apperr.Validation.New("attachment type %q is not allowed", mediaType)
	}

	a.ContentType = mediaType
	return nil
}

func (p Policy) allows(mediaType string) bool {
	if len(p.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range p.AllowedTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(mediaType, prefix+"/") {
				return true
			}
			continue
		}
		if allowed == mediaType {
			return true
		}
	}
	return false
}
