// Package media uploads message attachments to the remote storage service.
// The chat core only ever stores the returned URL and content type.
package media

import (
	"context"
	"errors"
	"io"
)

// ErrUploadFailed wraps any failure to store an attachment.
var ErrUploadFailed = errors.New("media: upload failed")

// ErrTooLarge is returned when an attachment exceeds the service limit.
var ErrTooLarge = errors.New("media: attachment too large")

// Result describes a stored attachment.
type Result struct {
	URL         string
	ContentType string
	Size        int64
}

// Uploader stores attachments.
type Uploader interface {
	Upload(ctx context.Context, conversationID, filename string, r io.Reader) (*Result, error)
}
