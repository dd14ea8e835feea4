package onboarding

import (
	"errors"
	"fmt"
	"net/http"

	"telephony-orchestrator/internal/carrier"
	"telephony-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the management surface, mirrored per carrier under
// /telephony/:carrier/... plus the carrier-agnostic binding listing.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/telephony")
	g.GET("/carriers", h.listCarriers)
	g.GET("/bindings", h.listAllBindings)

	cg := g.Group("/:carrier")
	cg.GET("/integrations", h.listIntegrations)
	cg.POST("/credentials/verify", h.verifyCredentials)
	cg.POST("/credentials", h.createIntegration)
	cg.DELETE("/credentials/:id", h.deleteIntegration)
	cg.GET("/numbers", h.listNumbers)
	cg.POST("/numbers/:providerNumberId/connect", h.connectNumber)
	cg.DELETE("/bindings/:bindingId", h.disconnectNumber)
}

type credentialsRequest struct {
	AccountID string `json:"accountId" binding:"required_without=APIKey"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret" binding:"required_without=APIKey"`
}

func (r credentialsRequest) toCredentials() carrier.Credentials {
	return carrier.Credentials{
		AccountID: r.AccountID,
		APIKey:    r.APIKey,
		APISecret: r.APISecret,
	}
}

type createIntegrationRequest struct {
	Name string `json:"name" binding:"max=120"`
	credentialsRequest
}

type connectNumberRequest struct {
	E164    string `json:"e164" binding:"required,e164"`
	AgentID string `json:"agentId"`
}

func (h *Handler) verifyCredentials(c *gin.Context) {
	var req credentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.VerifyCredentials(c.Request.Context(), c.Param("carrier"), req.toCredentials()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *Handler) createIntegration(c *gin.Context) {
	var req createIntegrationRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := h.engine.CreateIntegration(c.Request.Context(), c.Param("carrier"), req.toCredentials(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, in)
}

func (h *Handler) listIntegrations(c *gin.Context) {
	out, err := h.engine.ListIntegrations(c.Request.Context(), c.Param("carrier"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": emptyIfNil(out)})
}

func (h *Handler) deleteIntegration(c *gin.Context) {
	report, err := h.engine.DeleteIntegration(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) listNumbers(c *gin.Context) {
	integrationID := c.Query("integrationId")
	if integrationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"issues": []string{"integrationId query parameter is required"},
		})
		return
	}
	nums, err := h.engine.ListNumbers(c.Request.Context(), integrationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": emptyIfNil(nums)})
}

func (h *Handler) connectNumber(c *gin.Context) {
	integrationID := c.Query("integrationId")
	if integrationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"issues": []string{"integrationId query parameter is required"},
		})
		return
	}
	var req connectNumberRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.engine.ConnectNumber(c.Request.Context(), integrationID, c.Param("providerNumberId"), req.E164, req.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) disconnectNumber(c *gin.Context) {
	if err := h.engine.DisconnectNumber(c.Request.Context(), c.Param("bindingId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

func (h *Handler) listCarriers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"carriers": h.engine.Carriers()})
}

func (h *Handler) listAllBindings(c *gin.Context) {
	out, err := h.engine.ListAllBindings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bindings": emptyIfNil(out)})
}

// bindJSON binds the request body against its strict schema, answering
// {error, issues} on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		var verrs validator.ValidationErrors
		issues := []string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
			}
		} else {
			issues = append(issues, err.Error())
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "issues": issues})
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("management request failed", "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// emptyIfNil keeps list responses as [] instead of null.
func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
