package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxUploadBytes bounds a single attachment.
const maxUploadBytes = 25 << 20

// HTTP uploads attachments to the storage service over multipart POST.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTP creates an uploader client.
func NewHTTP(baseURL string, logger *zap.Logger) *HTTP {
	return &HTTP{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

func (h *HTTP) Upload(ctx context.Context, conversationID, filename string, r io.Reader) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("conversation_id", conversationID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	n, err := io.Copy(part, io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read attachment: %v", ErrUploadFailed, err)
	}
	if n > maxUploadBytes {
		return nil, ErrTooLarge
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/media", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUploadFailed, err)
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, ErrTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Warn("media upload rejected", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: http %d", ErrUploadFailed, resp.StatusCode)
	}

	var parsed struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("%w: no url in response", ErrUploadFailed)
	}
	return &Result{URL: parsed.URL, ContentType: parsed.ContentType, Size: parsed.Size}, nil
}
