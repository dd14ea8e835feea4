package carrier

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
)

// maxPages is a hard ceiling on paginated carrier listings. A malformed or
// self-referencing "next" cursor must surface as a provider error, not an
// infinite loop.
const maxPages = 25

// restClient is the shared HTTP plumbing for carrier adapters: JSON (or
// form) requests with per-request timeout and canonical error mapping.
type restClient struct {
	carrier string
	httpc   *http.Client
	timeout time.Duration
}

func newRESTClient(carrier string, timeout time.Duration) restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return restClient{
		carrier: carrier,
		httpc:   &http.Client{},
		timeout: timeout,
	}
}

type restRequest struct {
	method string
	url    string
	query  url.Values

	// jsonBody and formBody are mutually exclusive.
	jsonBody any
	formBody url.Values

	basicUser string
	basicPass string
	bearer    string
}

// do executes the request and decodes a 2xx JSON body into out (if non-nil).
// Non-2xx statuses and transport failures become canonical carrier errors.
func (c restClient) do(ctx context.Context, req restRequest, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := req.url
	if len(req.query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.formBody != nil:
		body = strings.NewReader(req.formBody.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.jsonBody != nil:
		buf, err := json.Marshal(req.jsonBody)
		if err != nil {
			return &Error{Carrier: c.carrier, Code: CodeProviderError, Message: "encode request: " + err.Error()}
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return &Error{Carrier: c.carrier, Code: CodeProviderError, Message: err.Error()}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	} else if req.basicUser != "" {
		httpReq.SetBasicAuth(req.basicUser, req.basicPass)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return unreachable(c.carrier, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return unreachable(c.carrier, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(c.carrier, resp.StatusCode, summarizeBody(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Carrier: c.carrier, Code: CodeProviderError, Message: "decode response: " + err.Error()}
	}
	return nil
}

// pageOverrun is returned when a listing exceeds the page ceiling.
func (c restClient) pageOverrun() *Error {
	return &Error{
		Carrier: c.carrier,
		Code:    CodeProviderError,
		Message: fmt.Sprintf("pagination exceeded %d pages; aborting", maxPages),
	}
}

// hostRoot strips the path from base, leaving scheme://host. Twilio and
// Plivo pagination cursors are host-root relative and already carry the API
// version path, so joining them onto a versioned base doubles the prefix.
func hostRoot(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// summarizeBody trims an error body to a log-safe one-liner.
func summarizeBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}
