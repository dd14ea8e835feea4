package carrier

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Telnyx speaks the Telnyx v2 API (bearer auth).
//
// Resource model: an FQDN connection plays the trunk role; an FQDN record on
// the connection points at our SIP ingress, and numbers are routed by
// patching their connection_id.
type Telnyx struct {
	rest restClient

	BaseURL string
}

func NewTelnyx(timeout time.Duration) *Telnyx {
	return &Telnyx{
		rest:    newRESTClient("telnyx", timeout),
		BaseURL: "https://api.telnyx.com/v2",
	}
}

func (t *Telnyx) Name() string { return "telnyx" }

func (t *Telnyx) Verify(ctx context.Context, creds Credentials) error {
	q := url.Values{}
	q.Set("page[size]", "1")
	return t.rest.do(ctx, restRequest{
		method: "GET",
		url:    t.BaseURL + "/phone_numbers",
		query:  q,
		bearer: creds.APIKey,
	}, nil)
}

type telnyxNumber struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Tags        []string `json:"tags,omitempty"`
}

type telnyxPage[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		TotalPages int `json:"total_pages"`
		PageNumber int `json:"page_number"`
	} `json:"meta"`
}

func (t *Telnyx) ListNumbers(ctx context.Context, creds Credentials) ([]Number, error) {
	var out []Number
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, t.rest.pageOverrun()
		}
		q := url.Values{}
		q.Set("page[number]", strconv.Itoa(page))
		q.Set("page[size]", "100")

		var body telnyxPage[telnyxNumber]
		if err := t.rest.do(ctx, restRequest{
			method: "GET",
			url:    t.BaseURL + "/phone_numbers",
			query:  q,
			bearer: creds.APIKey,
		}, &body); err != nil {
			return nil, err
		}
		for _, n := range body.Data {
			label := ""
			if len(n.Tags) > 0 {
				label = n.Tags[0]
			}
			out = append(out, Number{ID: n.ID, E164: n.PhoneNumber, Label: label})
		}
		if body.Meta.TotalPages <= page || len(body.Data) == 0 {
			return out, nil
		}
	}
}

type telnyxEnvelope[T any] struct {
	Data T `json:"data"`
}

func (t *Telnyx) GetNumber(ctx context.Context, creds Credentials, providerNumberID string) (Number, error) {
	var body telnyxEnvelope[telnyxNumber]
	err := t.rest.do(ctx, restRequest{
		method: "GET",
		url:    t.BaseURL + "/phone_numbers/" + url.PathEscape(providerNumberID),
		bearer: creds.APIKey,
	}, &body)
	if err != nil {
		return Number{}, err
	}
	return Number{ID: body.Data.ID, E164: body.Data.PhoneNumber}, nil
}

type telnyxConnection struct {
	ID             string `json:"id"`
	ConnectionName string `json:"connection_name"`
}

func (t *Telnyx) EnsureTrunk(ctx context.Context, creds Credentials, name, originationURI string) (Trunk, error) {
	q := url.Values{}
	q.Set("filter[connection_name][contains]", name)

	var existing telnyxPage[telnyxConnection]
	if err := t.rest.do(ctx, restRequest{
		method: "GET",
		url:    t.BaseURL + "/fqdn_connections",
		query:  q,
		bearer: creds.APIKey,
	}, &existing); err != nil {
		return Trunk{}, err
	}
	for _, conn := range existing.Data {
		if conn.ConnectionName == name {
			return Trunk{ID: conn.ID, Name: conn.ConnectionName}, nil
		}
	}

	var created telnyxEnvelope[telnyxConnection]
	if err := t.rest.do(ctx, restRequest{
		method: "POST",
		url:    t.BaseURL + "/fqdn_connections",
		jsonBody: map[string]any{
			"connection_name": name,
			"transport_protocol": "TCP",
		},
		bearer: creds.APIKey,
	}, &created); err != nil {
		return Trunk{}, err
	}

	// The FQDN record is what actually points SIP at our ingress.
	host, port := splitSIPHost(originationURI)
	if err := t.rest.do(ctx, restRequest{
		method: "POST",
		url:    t.BaseURL + "/fqdns",
		jsonBody: map[string]any{
			"connection_id":   created.Data.ID,
			"fqdn":            host,
			"dns_record_type": "a",
			"port":            port,
		},
		bearer: creds.APIKey,
	}, nil); err != nil {
		return Trunk{}, err
	}

	return Trunk{ID: created.Data.ID, Name: created.Data.ConnectionName}, nil
}

func (t *Telnyx) DeleteTrunk(ctx context.Context, creds Credentials, trunkID string) error {
	return t.rest.do(ctx, restRequest{
		method: "DELETE",
		url:    t.BaseURL + "/fqdn_connections/" + url.PathEscape(trunkID),
		bearer: creds.APIKey,
	}, nil)
}

func (t *Telnyx) AttachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	return t.rest.do(ctx, restRequest{
		method: "PATCH",
		url:    t.BaseURL + "/phone_numbers/" + url.PathEscape(providerNumberID),
		jsonBody: map[string]any{
			"connection_id": trunkID,
		},
		bearer: creds.APIKey,
	}, nil)
}

func (t *Telnyx) DetachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	return t.rest.do(ctx, restRequest{
		method: "PATCH",
		url:    t.BaseURL + "/phone_numbers/" + url.PathEscape(providerNumberID),
		jsonBody: map[string]any{
			"connection_id": "",
		},
		bearer: creds.APIKey,
	}, nil)
}
