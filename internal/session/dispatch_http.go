package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPDispatcher asks the platform control API to start an agent in a room.
// It signs requests the same way the SIP control client does: a short-lived
// HS256 token with the API key as issuer.
type HTTPDispatcher struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	httpc     *http.Client
	now       func() time.Time
}

func NewHTTPDispatcher(baseURL, apiKey, apiSecret string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		httpc:     &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

func (d *HTTPDispatcher) token() (string, error) {
	now := d.now()
	claims := jwt.RegisteredClaims{
		Issuer:    d.apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.apiSecret)
}

func (d *HTTPDispatcher) DispatchAgent(ctx context.Context, roomName, sessionID string, cfg AgentConfig) error {
	body, err := json.Marshal(map[string]any{
		"room_name":  roomName,
		"session_id": sessionID,
		"agent":      cfg,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/agents/dispatch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	tok, err := d.token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("agent dispatch: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("agent dispatch: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
