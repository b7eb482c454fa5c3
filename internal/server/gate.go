package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facesaju/internal/paygate"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
)

type gateFunc func(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)

type applyCouponRequest struct {
	Code string `json:"code"`
}

// slotParam reads the slot from ?type=, defaulting to the line's primary
// slot.
func (s *Server) slotParam(c *gin.Context) (recorddomain.SlotKey, error) {
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		return recorddomain.SlotKey(v), nil
	}
	line, err := s.lines.Line(c.Param("line"))
	if err != nil {
		return "", err
	}
	return line.Primary, nil
}

func (s *Server) GetGate(c *gin.Context) {
	slot, err := s.slotParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.gate.View(c.Request.Context(), c.Param("line"), c.Param("id"), slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) gateAction(fn gateFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		slot, err := s.slotParam(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		view, err := fn(c.Request.Context(), c.Param("line"), c.Param("id"), slot)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": view})
	}
}

func (s *Server) BeginCheckout(c *gin.Context) {
	slot, err := s.slotParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	checkout, err := s.gate.BeginCheckout(c.Request.Context(), c.Param("line"), c.Param("id"), slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": checkout})
}

// ApplyCoupon answers 200 for rejected codes too; the outcome carries the
// reason.
func (s *Server) ApplyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	slot, err := s.slotParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcome, err := s.gate.ApplyCoupon(c.Request.Context(), c.Param("line"), c.Param("id"), slot, code, c.ClientIP())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

func (s *Server) GetReceipt(c *gin.Context) {
	kind := strings.TrimSpace(c.Query("type"))
	if kind == "" {
		slot, err := s.slotParam(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		kind = string(slot)
	}

	doc, err := s.receipts.Generate(c.Request.Context(), c.Param("line"), c.Param("id"), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", doc.Filename, url.PathEscape(doc.Filename)))
	c.Data(http.StatusOK, "application/pdf", doc.Body)
}
