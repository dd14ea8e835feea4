package carrier

import (
	"context"
	"net/url"
	"time"
)

// Plivo speaks the Plivo v1 API (basic auth: auth ID + token).
//
// Resource model: an Application plays the trunk role; numbers are routed by
// linking them to the application. Number ids are the numbers themselves.
type Plivo struct {
	rest restClient

	BaseURL string
}

func NewPlivo(timeout time.Duration) *Plivo {
	return &Plivo{
		rest:    newRESTClient("plivo", timeout),
		BaseURL: "https://api.plivo.com/v1",
	}
}

func (p *Plivo) Name() string { return "plivo" }

func (p *Plivo) accountURL(creds Credentials) string {
	return p.BaseURL + "/Account/" + url.PathEscape(creds.AccountID)
}

func (p *Plivo) Verify(ctx context.Context, creds Credentials) error {
	return p.rest.do(ctx, restRequest{
		method:    "GET",
		url:       p.accountURL(creds) + "/",
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, nil)
}

type plivoNumber struct {
	Number string `json:"number"`
	Alias  string `json:"alias"`
}

type plivoListPage[T any] struct {
	Objects []T `json:"objects"`
	Meta    struct {
		Next string `json:"next"`
	} `json:"meta"`
}

func (p *Plivo) ListNumbers(ctx context.Context, creds Credentials) ([]Number, error) {
	var out []Number

	root := hostRoot(p.BaseURL)
	next := p.accountURL(creds) + "/Number/?limit=20"
	seen := map[string]bool{}
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return nil, p.rest.pageOverrun()
		}
		seen[next] = true

		var body plivoListPage[plivoNumber]
		if err := p.rest.do(ctx, restRequest{
			method:    "GET",
			url:       next,
			basicUser: creds.AccountID, basicPass: creds.APISecret,
		}, &body); err != nil {
			return nil, err
		}
		for _, n := range body.Objects {
			out = append(out, Number{ID: n.Number, E164: "+" + n.Number, Label: n.Alias})
		}
		if body.Meta.Next == "" {
			break
		}
		// meta.next is host-root relative and starts with the /v1 prefix.
		next = root + body.Meta.Next
	}
	return out, nil
}

func (p *Plivo) GetNumber(ctx context.Context, creds Credentials, providerNumberID string) (Number, error) {
	var body plivoNumber
	err := p.rest.do(ctx, restRequest{
		method:    "GET",
		url:       p.accountURL(creds) + "/Number/" + url.PathEscape(providerNumberID) + "/",
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, &body)
	if err != nil {
		return Number{}, err
	}
	return Number{ID: body.Number, E164: "+" + body.Number, Label: body.Alias}, nil
}

type plivoApplication struct {
	AppID   string `json:"app_id"`
	AppName string `json:"app_name"`
}

func (p *Plivo) EnsureTrunk(ctx context.Context, creds Credentials, name, originationURI string) (Trunk, error) {
	root := hostRoot(p.BaseURL)
	next := p.accountURL(creds) + "/Application/?limit=20"
	seen := map[string]bool{}
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return Trunk{}, p.rest.pageOverrun()
		}
		seen[next] = true

		var body plivoListPage[plivoApplication]
		if err := p.rest.do(ctx, restRequest{
			method:    "GET",
			url:       next,
			basicUser: creds.AccountID, basicPass: creds.APISecret,
		}, &body); err != nil {
			return Trunk{}, err
		}
		for _, app := range body.Objects {
			if app.AppName == name {
				return Trunk{ID: app.AppID, Name: app.AppName}, nil
			}
		}
		if body.Meta.Next == "" {
			break
		}
		next = root + body.Meta.Next
	}

	var created plivoApplication
	if err := p.rest.do(ctx, restRequest{
		method: "POST",
		url:    p.accountURL(creds) + "/Application/",
		jsonBody: map[string]any{
			"app_name":   name,
			"answer_url": originationURI,
		},
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, &created); err != nil {
		return Trunk{}, err
	}
	return Trunk{ID: created.AppID, Name: name}, nil
}

func (p *Plivo) DeleteTrunk(ctx context.Context, creds Credentials, trunkID string) error {
	return p.rest.do(ctx, restRequest{
		method:    "DELETE",
		url:       p.accountURL(creds) + "/Application/" + url.PathEscape(trunkID) + "/",
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, nil)
}

func (p *Plivo) AttachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	return p.rest.do(ctx, restRequest{
		method: "POST",
		url:    p.accountURL(creds) + "/Number/" + url.PathEscape(providerNumberID) + "/",
		jsonBody: map[string]any{
			"app_id": trunkID,
		},
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, nil)
}

func (p *Plivo) DetachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	return p.rest.do(ctx, restRequest{
		method: "POST",
		url:    p.accountURL(creds) + "/Number/" + url.PathEscape(providerNumberID) + "/",
		jsonBody: map[string]any{
			"app_id": "",
		},
		basicUser: creds.AccountID, basicPass: creds.APISecret,
	}, nil)
}
