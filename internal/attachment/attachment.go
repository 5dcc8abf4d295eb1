// Package attachment stores files submitted with maintenance requests and
// returns an opaque reference that is kept on the task.
package attachment

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists an attachment and returns its reference.
type Store interface {
	Put(ctx context.Context, r io.Reader, filename string) (ref string, err error)
}

// ContentType guesses a MIME type from the file extension.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// objectName returns a collision-free name that keeps the (lowercased)
// extension of the uploaded file.
func objectName(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(filename)))
}
