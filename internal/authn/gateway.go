package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const identityFile = "identity.json"

// Gateway is the HTTP OTP provider. The verified identity is persisted in
// the profile directory and reloaded on construction.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	profileDir string
	logger     *zap.Logger

	mu     sync.RWMutex
	userID string
	phone  string
}

// NewGateway creates a gateway client rooted at the profile directory.
func NewGateway(baseURL, profileDir string, logger *zap.Logger) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		profileDir: profileDir,
		logger:     logger,
	}
	g.loadIdentity()
	return g
}

type identity struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

func (g *Gateway) loadIdentity() {
	raw, err := os.ReadFile(filepath.Join(g.profileDir, identityFile))
	if err != nil {
		return
	}
	var id identity
	if err := json.Unmarshal(raw, &id); err != nil {
		g.logger.Warn("corrupt identity file ignored", zap.Error(err))
		return
	}
	g.userID = id.UserID
	g.phone = id.Phone
}

func (g *Gateway) saveIdentity(id identity) {
	raw, err := json.Marshal(id)
	if err != nil {
		return
	}
	path := filepath.Join(g.profileDir, identityFile)
	if err := os.WriteFile(path, raw, 0600); err != nil {
		g.logger.Warn("persist identity failed", zap.Error(err))
	}
}

// CurrentUserID returns the signed-in user id, or "" when signed out.
func (g *Gateway) CurrentUserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userID
}

// Phone returns the signed-in phone number, or "".
func (g *Gateway) Phone() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phone
}

// SendOTP asks the gateway to text a one-time code to phone.
func (g *Gateway) SendOTP(ctx context.Context, phone string) error {
	var resp struct{}
	return g.post(ctx, "/otp/send", map[string]string{"phone": phone}, &resp)
}

// VerifyOTP exchanges a code for the user id and signs the profile in.
func (g *Gateway) VerifyOTP(ctx context.Context, phone, code string) (string, error) {
	var resp struct {
		UserID string `json:"user_id"`
	}
	err := g.post(ctx, "/otp/verify", map[string]string{"phone": phone, "code": code}, &resp)
	if err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%w: gateway returned no user id", ErrGatewayUnavailable)
	}

	g.mu.Lock()
	g.userID = resp.UserID
	g.phone = phone
	g.mu.Unlock()
	g.saveIdentity(identity{UserID: resp.UserID, Phone: phone})

	g.logger.Info("signed in", zap.String("user_id", resp.UserID))
	return resp.UserID, nil
}

// SignOut clears the persisted identity. The gateway is not notified; codes
// are single-use.
func (g *Gateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	g.userID = ""
	g.phone = ""
	g.mu.Unlock()

	if err := os.Remove(filepath.Join(g.profileDir, identityFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove identity: %w", err)
	}
	g.logger.Info("signed out")
	return nil
}

func (g *Gateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrGatewayUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrCodeRejected
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		g.logger.Warn("gateway call rejected",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return nil
}
