package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"go.uber.org/zap"
)

type validateCouponRequest struct {
	Code        string `json:"code"`
	ServiceType string `json:"serviceType"`
}

type useCouponRequest struct {
	Code        string `json:"code"`
	ServiceType string `json:"serviceType"`
	RecordID    string `json:"recordId"`
}

type setCouponActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// ValidateCoupon never consumes a unit. Unknown or spent codes are a
// normal 200 answer with valid=false.
func (s *Server) ValidateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}

	res, err := s.coupons.Validate(c.Request.Context(), coupondomain.ValidateRequest{
		Code:        code,
		ServiceType: strings.TrimSpace(req.ServiceType),
		ClientKey:   c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.Reason == coupondomain.ReasonRateLimited {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusTooManyRequests, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

// UseCoupon redeems one unit outside a checkout.
func (s *Server) UseCoupon(c *gin.Context) {
	var req useCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}

	redemption, err := s.coupons.Redeem(c.Request.Context(), coupondomain.RedeemRequest{
		Code:        code,
		ServiceType: strings.TrimSpace(req.ServiceType),
		RecordID:    strings.TrimSpace(req.RecordID),
	})
	if err != nil {
		if reason, ok := coupondomain.ReasonFor(err); ok {
			invalid := coupondomain.Invalid(reason)
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"reason":  invalid.Reason,
				"error":   invalid.Message,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": redemption})
}

func (s *Server) ListCoupons(c *gin.Context) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	coupons, err := s.coupons.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if active != nil {
		filtered := coupons[:0]
		for _, cp := range coupons {
			if cp.IsActive == *active {
				filtered = append(filtered, cp)
			}
		}
		coupons = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": coupons})
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req coupondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.coupons.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("coupon created", couponFields(coupon)...)
	c.JSON(http.StatusCreated, gin.H{"data": coupon})
}

func (s *Server) SetCouponActive(c *gin.Context) {
	var req setCouponActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "required", "is_active is required"))
		return
	}

	coupon, err := s.coupons.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("coupon updated", couponFields(coupon)...)
	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

func (s *Server) DeleteCoupon(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.coupons.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("coupon deleted", zap.String("coupon_id", id))
	c.Status(http.StatusNoContent)
}

func (s *Server) ListCouponUsage(c *gin.Context) {
	usage, err := s.coupons.ListUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": usage})
}

func couponFields(coupon *coupondomain.Coupon) []zap.Field {
	return []zap.Field{
		zap.String("coupon_id", coupon.ID.String()),
		zap.String("coupon_code", coupon.Code),
		zap.Bool("is_active", coupon.IsActive),
	}
}
