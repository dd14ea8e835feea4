package carrier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_MapsStatusToCanonicalCode(t *testing.T) {
	cases := []struct {
		status int
		want   Code
	}{
		{401, CodeAuthInvalid},
		{403, CodeAuthInvalid},
		{429, CodeRateLimited},
		{400, CodeValidationError},
		{404, CodeValidationError},
		{422, CodeValidationError},
		{500, CodeProviderError},
		{503, CodeProviderError},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))

		c := newRESTClient("testcarrier", time.Second)
		err := c.do(context.Background(), restRequest{method: "GET", url: srv.URL}, nil)
		srv.Close()

		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("status %d: expected *Error, got %v", tc.status, err)
		}
		if ce.Code != tc.want {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.want, ce.Code)
		}
		if ce.HTTPStatus != tc.status {
			t.Fatalf("status %d: expected status recorded, got %d", tc.status, ce.HTTPStatus)
		}
	}
}

func TestDo_TransportFailureIsUnreachable(t *testing.T) {
	c := newRESTClient("testcarrier", 200*time.Millisecond)
	err := c.do(context.Background(), restRequest{method: "GET", url: "http://127.0.0.1:1"}, nil)

	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ce.Code != CodeProviderUnreachable {
		t.Fatalf("expected PROVIDER_UNREACHABLE, got %s", ce.Code)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := newRESTClient("testcarrier", 100*time.Millisecond)
	start := time.Now()
	err := c.do(context.Background(), restRequest{method: "GET", url: srv.URL}, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout did not bound the request")
	}
	if CodeOf(err) != CodeProviderUnreachable {
		t.Fatalf("expected PROVIDER_UNREACHABLE, got %s", CodeOf(err))
	}
}

func TestIsGone(t *testing.T) {
	if !IsGone(newError("x", 404, "gone")) {
		t.Fatalf("404 should be gone")
	}
	if IsGone(newError("x", 500, "boom")) {
		t.Fatalf("500 is not gone")
	}
	if IsGone(errors.New("other")) {
		t.Fatalf("plain errors are not gone")
	}
}

func TestSplitSIPHost(t *testing.T) {
	host, port := splitSIPHost("sip:abc.sip.example.com:5061;transport=tcp")
	if host != "abc.sip.example.com" || port != 5061 {
		t.Fatalf("got %q %d", host, port)
	}
	host, port = splitSIPHost("sip:ingress.example.com")
	if host != "ingress.example.com" || port != 5060 {
		t.Fatalf("got %q %d", host, port)
	}
}
