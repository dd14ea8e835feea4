package sipbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPControl talks to the platform SIP control API. Requests are
// authenticated with a short-lived HS256 token (issuer = API key), the same
// scheme the platform uses for its webhooks in the other direction.
type HTTPControl struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	httpc     *http.Client
	now       func() time.Time
}

func NewHTTPControl(baseURL, apiKey, apiSecret string, timeout time.Duration) *HTTPControl {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPControl{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		httpc:     &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

func (h *HTTPControl) token() (string, error) {
	now := h.now()
	claims := jwt.RegisteredClaims{
		Issuer:    h.apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.apiSecret)
}

func (h *HTTPControl) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return err
	}
	tok, err := h.token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sip control %s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (h *HTTPControl) ListTrunks(ctx context.Context) ([]Trunk, error) {
	var out struct {
		Trunks []Trunk `json:"trunks"`
	}
	if err := h.do(ctx, http.MethodGet, "/sip/trunks", nil, &out); err != nil {
		return nil, err
	}
	return out.Trunks, nil
}

func (h *HTTPControl) CreateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	var out Trunk
	if err := h.do(ctx, http.MethodPost, "/sip/trunks", t, &out); err != nil {
		return Trunk{}, err
	}
	return out, nil
}

func (h *HTTPControl) UpdateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	var out Trunk
	if err := h.do(ctx, http.MethodPut, "/sip/trunks/"+url.PathEscape(t.ID), t, &out); err != nil {
		return Trunk{}, err
	}
	return out, nil
}

func (h *HTTPControl) DeleteTrunk(ctx context.Context, id string) error {
	return h.do(ctx, http.MethodDelete, "/sip/trunks/"+url.PathEscape(id), nil, nil)
}

func (h *HTTPControl) ListDispatchRules(ctx context.Context) ([]DispatchRule, error) {
	var out struct {
		Rules []DispatchRule `json:"rules"`
	}
	if err := h.do(ctx, http.MethodGet, "/sip/dispatch-rules", nil, &out); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

func (h *HTTPControl) CreateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	var out DispatchRule
	if err := h.do(ctx, http.MethodPost, "/sip/dispatch-rules", r, &out); err != nil {
		return DispatchRule{}, err
	}
	return out, nil
}

func (h *HTTPControl) UpdateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	var out DispatchRule
	if err := h.do(ctx, http.MethodPut, "/sip/dispatch-rules/"+url.PathEscape(r.ID), r, &out); err != nil {
		return DispatchRule{}, err
	}
	return out, nil
}

func (h *HTTPControl) DeleteDispatchRule(ctx context.Context, id string) error {
	return h.do(ctx, http.MethodDelete, "/sip/dispatch-rules/"+url.PathEscape(id), nil, nil)
}
