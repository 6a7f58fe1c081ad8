package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/entitle/internal/user/domain"
)

// HandleUserAccess reports whether a user currently has access. Malformed
// identifiers (non-numeric, zero, negative) are rejected as not found
// here, before the service is consulted.
func (s *Server) HandleUserAccess(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("user_id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, userdomain.ErrNotFound)
		return
	}

	status, err := s.entitlementSvc.GetAccess(c.Request.Context(), snowflake.ID(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
