package carrier

import (
	"context"
	"net/url"
	"time"
)

// Twilio speaks the Twilio REST and Elastic SIP Trunking APIs.
//
// Resource model: a Trunk (trunking API) owns OriginationUrls and has
// IncomingPhoneNumbers attached by SID. Auth is basic (account SID + token).
type Twilio struct {
	rest restClient

	// APIBase / TrunkingBase are overridable for tests.
	APIBase      string
	TrunkingBase string
}

func NewTwilio(timeout time.Duration) *Twilio {
	return &Twilio{
		rest:         newRESTClient("twilio", timeout),
		APIBase:      "https://api.twilio.com/2010-04-01",
		TrunkingBase: "https://trunking.twilio.com/v1",
	}
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) auth(creds Credentials) (user, pass string) {
	return creds.AccountID, creds.APISecret
}

func (t *Twilio) Verify(ctx context.Context, creds Credentials) error {
	user, pass := t.auth(creds)
	return t.rest.do(ctx, restRequest{
		method:    "GET",
		url:       t.APIBase + "/Accounts/" + url.PathEscape(creds.AccountID) + ".json",
		basicUser: user, basicPass: pass,
	}, nil)
}

type twilioNumber struct {
	Sid          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
}

type twilioNumberPage struct {
	IncomingPhoneNumbers []twilioNumber `json:"incoming_phone_numbers"`
	NextPageURI          string         `json:"next_page_uri"`
}

func (t *Twilio) ListNumbers(ctx context.Context, creds Credentials) ([]Number, error) {
	user, pass := t.auth(creds)
	var out []Number

	root := hostRoot(t.APIBase)
	next := t.APIBase + "/Accounts/" + url.PathEscape(creds.AccountID) + "/IncomingPhoneNumbers.json?PageSize=100"
	seen := map[string]bool{}
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return nil, t.rest.pageOverrun()
		}
		seen[next] = true

		var body twilioNumberPage
		if err := t.rest.do(ctx, restRequest{
			method:    "GET",
			url:       next,
			basicUser: user, basicPass: pass,
		}, &body); err != nil {
			return nil, err
		}
		for _, n := range body.IncomingPhoneNumbers {
			out = append(out, Number{ID: n.Sid, E164: n.PhoneNumber, Label: n.FriendlyName})
		}
		if body.NextPageURI == "" {
			break
		}
		// next_page_uri is host-root relative and carries the version path.
		next = root + body.NextPageURI
	}
	return out, nil
}

func (t *Twilio) GetNumber(ctx context.Context, creds Credentials, providerNumberID string) (Number, error) {
	user, pass := t.auth(creds)
	var body twilioNumber
	err := t.rest.do(ctx, restRequest{
		method:    "GET",
		url:       t.APIBase + "/Accounts/" + url.PathEscape(creds.AccountID) + "/IncomingPhoneNumbers/" + url.PathEscape(providerNumberID) + ".json",
		basicUser: user, basicPass: pass,
	}, &body)
	if err != nil {
		return Number{}, err
	}
	return Number{ID: body.Sid, E164: body.PhoneNumber, Label: body.FriendlyName}, nil
}

type twilioTrunk struct {
	Sid          string `json:"sid"`
	FriendlyName string `json:"friendly_name"`
}

type twilioTrunkPage struct {
	Trunks []twilioTrunk `json:"trunks"`
	Meta   struct {
		NextPageURL string `json:"next_page_url"`
	} `json:"meta"`
}

func (t *Twilio) EnsureTrunk(ctx context.Context, creds Credentials, name, originationURI string) (Trunk, error) {
	user, pass := t.auth(creds)

	// Find by friendly name first; trunk creation is not idempotent at Twilio.
	next := t.TrunkingBase + "/Trunks?PageSize=50"
	seen := map[string]bool{}
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return Trunk{}, t.rest.pageOverrun()
		}
		seen[next] = true

		var body twilioTrunkPage
		if err := t.rest.do(ctx, restRequest{
			method:    "GET",
			url:       next,
			basicUser: user, basicPass: pass,
		}, &body); err != nil {
			return Trunk{}, err
		}
		for _, tr := range body.Trunks {
			if tr.FriendlyName == name {
				return Trunk{ID: tr.Sid, Name: tr.FriendlyName}, nil
			}
		}
		next = body.Meta.NextPageURL
	}

	var created twilioTrunk
	if err := t.rest.do(ctx, restRequest{
		method:    "POST",
		url:       t.TrunkingBase + "/Trunks",
		formBody:  url.Values{"FriendlyName": {name}},
		basicUser: user, basicPass: pass,
	}, &created); err != nil {
		return Trunk{}, err
	}

	// Origination URL tells Twilio where to send SIP for this trunk.
	if err := t.rest.do(ctx, restRequest{
		method: "POST",
		url:    t.TrunkingBase + "/Trunks/" + url.PathEscape(created.Sid) + "/OriginationUrls",
		formBody: url.Values{
			"FriendlyName": {name},
			"SipUrl":       {originationURI},
			"Weight":       {"1"},
			"Priority":     {"1"},
			"Enabled":      {"true"},
		},
		basicUser: user, basicPass: pass,
	}, nil); err != nil {
		return Trunk{}, err
	}

	return Trunk{ID: created.Sid, Name: created.FriendlyName}, nil
}

func (t *Twilio) DeleteTrunk(ctx context.Context, creds Credentials, trunkID string) error {
	user, pass := t.auth(creds)
	return t.rest.do(ctx, restRequest{
		method:    "DELETE",
		url:       t.TrunkingBase + "/Trunks/" + url.PathEscape(trunkID),
		basicUser: user, basicPass: pass,
	}, nil)
}

func (t *Twilio) AttachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	user, pass := t.auth(creds)
	return t.rest.do(ctx, restRequest{
		method:    "POST",
		url:       t.TrunkingBase + "/Trunks/" + url.PathEscape(trunkID) + "/PhoneNumbers",
		formBody:  url.Values{"PhoneNumberSid": {providerNumberID}},
		basicUser: user, basicPass: pass,
	}, nil)
}

func (t *Twilio) DetachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error {
	user, pass := t.auth(creds)
	return t.rest.do(ctx, restRequest{
		method:    "DELETE",
		url:       t.TrunkingBase + "/Trunks/" + url.PathEscape(trunkID) + "/PhoneNumbers/" + url.PathEscape(providerNumberID),
		basicUser: user, basicPass: pass,
	}, nil)
}
