// Package classify wraps the external AI text classifier the topic
// detection engine calls. Any failure here is absorbed by the caller's
// deterministic fallback, never surfaced to message senders.
package classify

import (
	"context"
	"errors"
)

// ErrUnavailable covers every classifier failure mode: network errors,
// auth rejection, timeouts, and empty or malformed output.
var ErrUnavailable = errors.New("classify: classifier unavailable")

// Options are the generation parameters passed with a request.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Classifier produces free text for a prompt. Implementations must return
// an error wrapping ErrUnavailable for any non-successful outcome.
type Classifier interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
