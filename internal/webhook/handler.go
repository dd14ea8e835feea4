package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"telephony-orchestrator/internal/session"
	"telephony-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultHandleTimeout = 30 * time.Second

// Handler is the webhook HTTP boundary. It answers as soon as the signature
// checks out; session processing runs detached so webhook latency stays
// bounded no matter how slow routing or dispatch is. A 200 therefore does not
// promise dispatch success.
type Handler struct {
	verifier *Verifier
	sessions *session.Service

	// enabled gates the whole surface; disabled deployments answer 503.
	enabled bool
	// exposeDetail includes internal error text in responses outside production.
	exposeDetail bool

	handleTimeout time.Duration
}

func NewHandler(verifier *Verifier, sessions *session.Service, enabled, exposeDetail bool) *Handler {
	return &Handler{
		verifier:      verifier,
		sessions:      sessions,
		enabled:       enabled,
		exposeDetail:  exposeDetail,
		handleTimeout: defaultHandleTimeout,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/webhooks/telephony", h.Receive)
}

func (h *Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	if !h.enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telephony is disabled"})
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty request body"})
		return
	}

	payload, err := h.verifier.VerifyAndDecode(raw, c.GetHeader("Authorization"))
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingAuth), errors.Is(err, ErrBadSignature):
			log.Warn("webhook rejected", "err", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": h.publicError(err, "invalid signature")})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": h.publicError(err, "malformed payload")})
		}
		return
	}

	ev := Normalize(payload)

	// Respond first, process detached. Duplicates and unsupported events are
	// still a 200: the platform delivered a valid event and must not retry.
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "event_id": ev.EventID})

	bg := logger.With(context.Background(), log)
	go h.process(bg, ev)
}

func (h *Handler) process(ctx context.Context, ev session.Event) {
	ctx, cancel := context.WithTimeout(ctx, h.handleTimeout)
	defer cancel()

	log := logger.From(ctx).With("event_id", ev.EventID, "event", ev.Event)
	res, err := h.sessions.Handle(ctx, ev)
	if err != nil {
		log.Error("webhook event processing failed", "err", err)
		return
	}
	log.Info("webhook event processed",
		"first_seen", res.FirstSeen,
		"ignored_reason", res.IgnoredReason,
		"dispatch_attempted", res.DispatchAttempted,
		"dispatch_succeeded", res.DispatchSucceeded,
		"call_id", res.CallID,
	)
}

func (h *Handler) publicError(err error, fallback string) string {
	if h.exposeDetail {
		return err.Error()
	}
	return fallback
}
