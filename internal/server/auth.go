package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facesaju/internal/authorization"
	"github.com/smallbiznis/facesaju/internal/observability/logger"
	"go.uber.org/zap"
)

const operatorCookieName = "facesaju_operator"

type LoginRequest struct {
	Role     string `json:"role"`
	Password string `json:"password"`
}

// OperatorLogin exchanges the shared password of a role for a token. The
// token is returned in the body and set as an http-only cookie.
func (s *Server) OperatorLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Password == "" {
		AbortWithError(c, newValidationError("password", "required", "password is required"))
		return
	}
	role := authorization.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = authorization.RoleAdmin
	}

	token, err := s.authzSvc.Login(c.Request.Context(), role, req.Password)
	if err != nil {
		logger.FromContext(c.Request.Context()).Info("operator login failed",
			zap.String("role", string(role)),
			zap.String("client_ip", c.ClientIP()),
		)
		AbortWithError(c, err)
		return
	}

	s.setOperatorCookie(c, token.Value, token.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"role":          token.Role,
		"token":         token.Value,
		"expires_at":    token.ExpiresAt,
	})
}

func (s *Server) OperatorLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(operatorCookieName, "", -1, "/", "", s.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) OperatorMe(c *gin.Context) {
	claims, ok := operatorClaims(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var expiresAt *time.Time
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		expiresAt = &t
	}
	c.JSON(http.StatusOK, gin.H{"role": claims.Role, "expires_at": expiresAt})
}

func (s *Server) setOperatorCookie(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(s.clock.Now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(operatorCookieName, value, maxAge, "/", "", s.cfg.IsProduction(), true)
}
