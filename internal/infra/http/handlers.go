package http

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"fedhub/internal/domain"
	"fedhub/internal/infra/discovery"

	"github.com/gin-gonic/gin"
)

const maxRequestObjectBytes = 1 << 20

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type anchorRequest struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
}

type anchorResponse struct {
	Success bool                      `json:"success"`
	Entity  *domain.TrustAnchorRecord `json:"entity,omitempty"`
	Message string                    `json:"message,omitempty"`
}

type anchorListResponse struct {
	Success  bool                       `json:"success"`
	Entities []domain.TrustAnchorRecord `json:"entities"`
}

type resolveResponse struct {
	EntityID    string                   `json:"entity_id"`
	TrustAnchor string                   `json:"trust_anchor"`
	Metadata    domain.EffectiveMetadata `json:"metadata"`
	TrustChain  []string                 `json:"trust_chain"`
	ExpiresAt   time.Time                `json:"expires_at"`
}

func (s *Server) handleAddAnchor(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req anchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, anchorResponse{Success: false, Message: "invalid json"})
		return
	}
	if req.EntityType == "" {
		c.JSON(http.StatusBadRequest, anchorResponse{Success: false, Message: "entity_type is required"})
		return
	}
	entityType, err := domain.ParseEntityType(req.EntityType)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, anchorResponse{Success: false, Message: err.Error()})
		return
	}
	rec, err := s.registry.Add(c.Request.Context(), req.EntityID, entityType)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrAlreadyExists) {
			status = http.StatusConflict
		}
		c.JSON(status, anchorResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, anchorResponse{Success: true, Entity: &rec})
}

func (s *Server) handleListAnchors(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	entities, err := s.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if entities == nil {
		entities = []domain.TrustAnchorRecord{}
	}
	c.JSON(http.StatusOK, anchorListResponse{Success: true, Entities: entities})
}

func (s *Server) handleRemoveAnchor(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	entityID := c.Query("entity_id")
	if entityID == "" {
		c.JSON(http.StatusBadRequest, anchorResponse{Success: false, Message: "entity_id is required"})
		return
	}
	if err := s.registry.Remove(c.Request.Context(), entityID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, anchorResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, anchorResponse{Success: true, Message: "removed " + entityID})
}

func (s *Server) handleResolve(c *gin.Context) {
	if !s.enforceRateLimit(c, "resolve") {
		return
	}
	if s.resolveUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	sub := c.Query("sub")
	if sub == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENTITY_ID", "sub is required")
		return
	}
	resolution, err := s.resolveUC.Execute(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	tokens := make([]string, 0, len(resolution.Chain))
	for _, stmt := range resolution.Chain {
		tokens = append(tokens, stmt.Raw)
	}
	c.JSON(http.StatusOK, resolveResponse{
		EntityID:    resolution.EntityID,
		TrustAnchor: resolution.AnchorID,
		Metadata:    resolution.Metadata,
		TrustChain:  tokens,
		ExpiresAt:   resolution.ExpiresAt,
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	if !s.enforceRateLimit(c, "register") {
		return
	}
	if s.registerUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestObjectBytes))
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_STATEMENT", "unreadable request body")
		return
	}
	requestObject := strings.TrimSpace(string(body))
	if requestObject == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_STATEMENT", "request object is required")
		return
	}
	decision, err := s.registerUC.Execute(c.Request.Context(), requestObject)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if decision.Accepted {
		status = http.StatusCreated
	}
	c.JSON(status, decision)
}

func (s *Server) handleWellKnown(c *gin.Context) {
	token, err := s.signer.SignedConfiguration(time.Now())
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "could not sign configuration")
		return
	}
	c.Data(http.StatusOK, discovery.ContentTypeEntityStatement, []byte(token))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidStatement):
		status, code = http.StatusBadRequest, "INVALID_STATEMENT"
	case errors.Is(err, domain.ErrInvalidEntityID):
		status, code = http.StatusBadRequest, "INVALID_ENTITY_ID"
	case errors.Is(err, domain.ErrInvalidEntityType):
		status, code = http.StatusUnprocessableEntity, "INVALID_ENTITY_TYPE"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, code = http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrDiscoveryFailed):
		status, code = http.StatusBadGateway, "DISCOVERY_FAILED"
	case errors.Is(err, domain.ErrSignatureInvalid):
		status, code = http.StatusBadRequest, "SIGNATURE_INVALID"
	case errors.Is(err, domain.ErrKeyNotFound):
		status, code = http.StatusBadRequest, "KEY_NOT_FOUND"
	case errors.Is(err, domain.ErrAlgorithmUnsupported):
		status, code = http.StatusBadRequest, "ALGORITHM_UNSUPPORTED"
	case errors.Is(err, domain.ErrExpired):
		status, code = http.StatusBadRequest, "STATEMENT_EXPIRED"
	case errors.Is(err, domain.ErrNotYetValid):
		status, code = http.StatusBadRequest, "STATEMENT_NOT_YET_VALID"
	case errors.Is(err, domain.ErrUntrustedAnchor):
		status, code = http.StatusBadRequest, "UNTRUSTED_ANCHOR"
	case errors.Is(err, domain.ErrPolicyViolation):
		status, code = http.StatusBadRequest, "POLICY_VIOLATION"
	case errors.Is(err, domain.ErrChainTooDeep):
		status, code = http.StatusBadRequest, "CHAIN_TOO_DEEP"
	case errors.Is(err, domain.ErrChainInvalid):
		status, code = http.StatusBadRequest, "CHAIN_INVALID"
	case errors.Is(err, domain.ErrNoChainFound):
		status, code = http.StatusNotFound, "NO_CHAIN_FOUND"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
