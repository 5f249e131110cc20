package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestUpload(t *testing.T) {
	var gotConv, gotName string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotConv = r.FormValue("conversation_id")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer func() { _ = f.Close() }()
		gotName = hdr.Filename
		gotBytes, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url":          "https://cdn.example.com/m/abc123",
			"content_type": "image/png",
			"size":         len(gotBytes),
		})
	}))
	defer srv.Close()

	u := NewHTTP(srv.URL, zap.NewNop())
	res, err := u.Upload(context.Background(), "c1", "photo.png", strings.NewReader("pngbytes"))
	if err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://cdn.example.com/m/abc123" || res.ContentType != "image/png" {
		t.Errorf("result = %+v", res)
	}
	if res.Size != int64(len("pngbytes")) {
		t.Errorf("size = %d", res.Size)
	}
	if gotConv != "c1" || gotName != "photo.png" || string(gotBytes) != "pngbytes" {
		t.Errorf("server saw conv=%q name=%q body=%q", gotConv, gotName, gotBytes)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewHTTP(srv.URL, zap.NewNop())
	_, err := u.Upload(context.Background(), "c1", "f", strings.NewReader("x"))
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("err = %v, want ErrUploadFailed", err)
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	u := NewHTTP(srv.URL, zap.NewNop())
	_, err := u.Upload(context.Background(), "c1", "f", strings.NewReader("x"))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}
