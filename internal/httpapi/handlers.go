package httpapi

import (
	"errors"
	"net/http"
	"time"

	"callrouter-platform/internal/auth"
	"callrouter-platform/internal/ledger"
	"callrouter-platform/internal/tenant"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Ledger    *ledger.Service
	Directory *tenant.Directory
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues an access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Ledger ---

// LedgerStats serves the routing aggregate dashboard for the caller's tenant.
// RBAC: owner, supervisor, analyst.
func (h Handlers) LedgerStats(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}

	from, to, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.Ledger.Stats(c.Request.Context(), ledger.StatsRequest{
		TenantID: tenantID,
		From:     from,
		To:       to,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidRange) || errors.Is(err, ledger.ErrInvalidEntry) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CallLedger returns the full decision trail for one call.
// RBAC: owner, supervisor, analyst.
func (h Handlers) CallLedger(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger not configured"})
		return
	}
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	entries, err := h.Ledger.ByCall(c.Request.Context(), tenantID, callID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "entries": entries})
}

// --- Admin ---

// InvalidateTenantCache drops the cached tenant snapshot so the next call
// sees fresh configuration. RBAC: owner, super_admin.
func (h Handlers) InvalidateTenantCache(c *gin.Context) {
	if h.Directory == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "directory not configured"})
		return
	}
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}
	h.Directory.Invalidate(tenantID)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "tenant_id": tenantID})
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC 3339")
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC 3339")
		}
		to = t
	}
	return from, to, nil
}
