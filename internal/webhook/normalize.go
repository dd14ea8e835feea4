package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"telephony-orchestrator/internal/session"
)

// Payload is the provider webhook shape we care about. Unknown fields are
// ignored; the normalizer flattens this into the canonical session.Event.
type Payload struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"createdAt"`

	Room        *payloadRoom        `json:"room"`
	Participant *payloadParticipant `json:"participant"`
}

type payloadRoom struct {
	Name string `json:"name"`
}

type payloadParticipant struct {
	SID        string            `json:"sid"`
	Identity   string            `json:"identity"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes"`
}

func decodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if strings.TrimSpace(p.Event) == "" {
		return Payload{}, fmt.Errorf("%w: missing event type", ErrBadPayload)
	}
	return p, nil
}

// Normalize flattens a verified payload into the canonical event. A payload
// without a platform event id gets a deterministic one derived from the
// (event, room, createdAt, participant identity) tuple, so redelivery still
// deduplicates.
func Normalize(p Payload) session.Event {
	ev := session.Event{
		EventID:   p.ID,
		Event:     p.Event,
		CreatedAt: p.CreatedAt,
	}
	if p.Room != nil {
		ev.RoomName = p.Room.Name
	}
	if p.Participant != nil {
		ev.Participant = &session.Participant{
			ParticipantID: p.Participant.SID,
			Identity:      p.Participant.Identity,
			Kind:          p.Participant.Kind,
			Attributes:    p.Participant.Attributes,
		}
	}
	if ev.EventID == "" {
		ev.EventID = deriveEventID(ev)
		ev.EventIDDerived = true
	}
	return ev
}

func deriveEventID(ev session.Event) string {
	identity := ""
	if ev.Participant != nil {
		identity = ev.Participant.Identity
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s", ev.Event, ev.RoomName, ev.CreatedAt, identity))
	return "derived-" + hex.EncodeToString(sum[:16])
}
