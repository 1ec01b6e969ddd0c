package api

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
)

// MaxImageSize is the largest image accepted for upload
const MaxImageSize = 10 * 1024 * 1024 // 10MB

// Attachment is an image to send along with a message
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
	// Path is the file the attachment was loaded from, if any.
	Path string
}

// Size returns the attachment size in bytes
func (a *Attachment) Size() int64 {
	return int64(len(a.Data))
}

// LoadAttachment reads and validates an image file from disk
func LoadAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewValidationError("image", fmt.Sprintf("cannot read %s: %v", path, err))
	}
	if info.IsDir() {
		return nil, apperrors.NewValidationError("image", fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() > MaxImageSize {
		return nil, sizeError(info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError("image", fmt.Sprintf("cannot read %s: %v", path, err))
	}

	a, err := NewAttachment(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		a.Path = abs
	} else {
		a.Path = path
	}
	return a, nil
}

// NewAttachment builds a validated attachment from raw bytes
func NewAttachment(name string, data []byte) (*Attachment, error) {
	a := &Attachment{
		Name:     name,
		MIMEType: DetectMIMEType(name, data),
		Data:     data,
	}
	if err := ValidateAttachment(a); err != nil {
		return nil, err
	}
	return a, nil
}

// DetectMIMEType uses the file extension, falling back to content sniffing
func DetectMIMEType(name string, data []byte) string {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		return base
	}
	return mimeType
}

// ValidateAttachment checks the type and size limits
func ValidateAttachment(a *Attachment) error {
	if a == nil {
		return nil
	}
	if len(a.Data) == 0 {
		return apperrors.NewValidationError("image", "file is empty")
	}
	if !strings.HasPrefix(a.MIMEType, "image/") {
		return apperrors.NewValidationError("image", fmt.Sprintf("only image files can be attached (got %s)", a.MIMEType))
	}
	if a.Size() > MaxImageSize {
		return sizeError(a.Size())
	}
	return nil
}

func sizeError(size int64) error {
	return apperrors.NewValidationError("image",
		fmt.Sprintf("file size %d bytes exceeds maximum of %d bytes (10MB)", size, MaxImageSize))
}
