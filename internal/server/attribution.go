package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"go.uber.org/zap"
)

// settlementZone is the business calendar used for default periods.
var settlementZone = time.FixedZone("KST", 9*60*60)

func (s *Server) RecordVisit(c *gin.Context) {
	var req attributiondomain.RecordVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	visit, err := s.attribution.RecordVisit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": visit})
}

func (s *Server) ListInfluencers(c *gin.Context) {
	influencers, err := s.attribution.ListInfluencers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": influencers})
}

func (s *Server) CreateInfluencer(c *gin.Context) {
	var req attributiondomain.CreateInfluencerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inf, err := s.attribution.CreateInfluencer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("influencer created", zap.String("influencer_id", inf.ID.String()), zap.String("slug", inf.Slug))
	c.JSON(http.StatusCreated, gin.H{"data": inf})
}

func (s *Server) UpdateInfluencer(c *gin.Context) {
	var req attributiondomain.UpdateInfluencerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inf, err := s.attribution.UpdateInfluencer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("influencer updated", zap.String("influencer_id", inf.ID.String()))
	c.JSON(http.StatusOK, gin.H{"data": inf})
}

func (s *Server) DeleteInfluencer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.attribution.DeleteInfluencer(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	operatorLog(c).Info("influencer deleted", zap.String("influencer_id", id))
	c.Status(http.StatusNoContent)
}

func (s *Server) ListInfluencerPayments(c *gin.Context) {
	payments, err := s.attribution.PaymentsByInfluencer(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) GetSettlement(c *gin.Context) {
	year, month, err := parsePeriod(c.Query("year"), c.Query("month"), s.clock.Now().In(settlementZone))
	if err != nil {
		AbortWithError(c, newValidationError("period", err.Error(), "invalid period"))
		return
	}

	settlement, err := s.attribution.MonthlySettlement(c.Request.Context(), year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settlement})
}
