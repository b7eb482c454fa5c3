package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facesaju/internal/paygate"
	"github.com/smallbiznis/facesaju/internal/reconcile"
)

const maxWebhookBytes = 1 << 20

// PaymentSuccess completes the gateway's success redirect. Visiting it
// again for the same order only re-asserts the paid flag.
func (s *Server) PaymentSuccess(c *gin.Context) {
	amount, err := parseOptionalInt64(c.Query("amount"))
	if err != nil || amount == nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}
	orderID := strings.TrimSpace(c.Query("orderId"))
	paymentKey := strings.TrimSpace(c.Query("paymentKey"))
	if orderID == "" || paymentKey == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.gate.CompleteSuccess(c.Request.Context(), paygate.SuccessRequest{
		Type:       c.Query("type"),
		RecordID:   c.Query("id"),
		OrderID:    orderID,
		PaymentKey: paymentKey,
		Amount:     *amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     res,
		"redirect": resultPath(res.ProductLine, res.Record.ID),
	})
}

// PaymentFail returns the slot to Locked and hands the record id back so
// the client can reload it.
func (s *Server) PaymentFail(c *gin.Context) {
	res, err := s.gate.CompleteFail(c.Request.Context(), paygate.FailRequest{
		Type:     c.Query("type"),
		RecordID: c.Query("id"),
		OrderID:  c.Query("orderId"),
		Code:     c.Query("code"),
		Message:  c.Query("message"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     res,
		"redirect": res.RetryPath,
	})
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhooks.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func resultPath(line, id string) string {
	return reconcile.StartPath(line) + "/result?id=" + id
}
