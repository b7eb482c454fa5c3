package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facesaju/internal/authorization"
	obscontext "github.com/smallbiznis/facesaju/internal/observability/context"
	"github.com/smallbiznis/facesaju/internal/observability/logger"
	"go.uber.org/zap"
)

const contextOperatorKey = "operator_claims"

// OperatorRequired accepts a bearer token or the operator cookie.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			if cookie, err := c.Cookie(operatorCookieName); err == nil {
				raw = strings.TrimSpace(cookie)
			}
		}
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.authzSvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextOperatorKey, claims)
		c.Request = c.Request.WithContext(obscontext.WithOperator(c.Request.Context(), string(claims.Role)))
		c.Next()
	}
}

func (s *Server) authorizeOperator(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := operatorClaims(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), claims.Role.Subject(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func operatorClaims(c *gin.Context) (*authorization.Claims, bool) {
	v, ok := c.Get(contextOperatorKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*authorization.Claims)
	return claims, ok && claims != nil
}

// operatorLog is the request logger, carrying the operator role.
func operatorLog(c *gin.Context) *zap.Logger {
	return logger.FromContext(c.Request.Context())
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
