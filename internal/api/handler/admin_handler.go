package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/auth"
)

// DeactivateTenant handles POST /api/v1/admin/tenants/:tenant_id/deactivate
// Revokes a tenant's credential with immediate effect: the durable flag is
// flipped first, then the resolver's revocation list so no cached positive
// lookup survives.
func (h *AdminHandler) DeactivateTenant(c *gin.Context) {
	admin := TenantFrom(c)
	tenantID := c.Param("tenant_id")

	if tenantID == admin.TenantID {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Cannot deactivate the requesting tenant",
		})
		return
	}

	if err := h.credentials.Deactivate(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, auth.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Tenant not found",
			})
			return
		}
		h.logger.Error("Failed to deactivate tenant",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to deactivate tenant",
		})
		return
	}

	h.resolver.Revoke(tenantID)

	h.audit.Append(admin.TenantID, "tenant_deactivated", map[string]interface{}{
		"target_tenant_id": tenantID,
	}, audit.LevelWarning)

	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"is_active": false,
	})
}
