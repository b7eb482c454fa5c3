package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/smallbiznis/facesaju/pkg/db/pagination"
)

type paidAnalysisView struct {
	remotestore.PaidAnalysis
	Influencer string `json:"influencer,omitempty"`
}

// ListPaidAnalyses lists every paid analysis of one month, newest first,
// across all product lines.
func (s *Server) ListPaidAnalyses(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Year        string `form:"year"`
		Month       string `form:"month"`
		ProductLine string `form:"product_line"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	year, month, err := parsePeriod(query.Year, query.Month, s.clock.Now().In(settlementZone))
	if err != nil || month < 1 || month > 12 {
		AbortWithError(c, newValidationError("period", "invalid_period", "invalid period"))
		return
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, settlementZone)
	to := from.AddDate(0, 1, 0)

	rows, info, err := s.paid.ListPaid(c.Request.Context(), remotestore.ListPaidRequest{
		ProductLine: strings.TrimSpace(query.ProductLine),
		From:        from.UTC(),
		To:          to.UTC(),
		PageToken:   query.PageToken,
		PageSize:    query.Limit(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	names, err := s.influencerNames(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]paidAnalysisView, 0, len(rows))
	for _, row := range rows {
		out = append(out, paidAnalysisView{PaidAnalysis: row, Influencer: names[row.InfluencerID]})
	}

	c.JSON(http.StatusOK, gin.H{"data": out, "page_info": info})
}

func (s *Server) influencerNames(c *gin.Context) (map[string]string, error) {
	stats, err := s.attribution.ListInfluencers(c.Request.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(stats))
	for _, st := range stats {
		names[st.ID.String()] = st.Name
	}
	return names, nil
}

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		Status      string `form:"status"`
		ProductLine string `form:"product_line"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
		Limit       int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}
	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	orders, err := s.payments.ListOrders(c.Request.Context(), paymentdomain.ListOrdersRequest{
		Status:      paymentdomain.OrderStatus(strings.ToLower(strings.TrimSpace(query.Status))),
		ProductLine: strings.TrimSpace(query.ProductLine),
		From:        createdFrom,
		To:          createdTo,
		Limit:       query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}
