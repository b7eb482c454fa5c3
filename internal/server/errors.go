package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/authorization"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/inference"
	"github.com/smallbiznis/facesaju/internal/paygate"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/internal/receipt"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Redirect  string            `json:"redirect,omitempty"`
	Retryable *bool             `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// A missing record is a navigation hint, not a failure.
	var notFound *reconcile.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, errorPayload{
			Type:     "not_found",
			Message:  "record not found",
			Redirect: notFound.Redirect,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var gwErr *paymentdomain.GatewayError
	if errors.As(err, &gwErr) {
		retryable := gwErr.Retryable()
		return http.StatusBadGateway, errorPayload{
			Type:      "payment_gateway_error",
			Message:   gwErr.Message,
			Code:      gwErr.Code,
			Retryable: &retryable,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidCredentials),
		errors.Is(err, authorization.ErrInvalidToken),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, receipt.ErrSlotNotPaid):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Message: "slot is not paid",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, coupondomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUpstreamError(err):
		retryable := true
		return http.StatusBadGateway, errorPayload{
			Type:      "upstream_error",
			Message:   "external service failed",
			Retryable: &retryable,
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, recorddomain.ErrStorageUnavailable),
		errors.Is(err, reconcile.ErrRemoteUnavailable),
		errors.Is(err, inference.ErrNotConfigured),
		errors.Is(err, authorization.ErrNotConfigured),
		errors.Is(err, paygate.ErrCheckoutUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type and code the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" && err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isRecordValidationError(err),
		isCouponValidationError(err),
		isAttributionValidationError(err),
		isPaymentValidationError(err):
		return true
	case errors.Is(err, paygate.ErrUnknownRedirectType),
		errors.Is(err, inference.ErrImageRequired),
		errors.Is(err, inference.ErrUnsupportedLine),
		errors.Is(err, authorization.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isRecordValidationError(err error) bool {
	switch {
	case errors.Is(err, recorddomain.ErrInvalidRecordID),
		errors.Is(err, recorddomain.ErrUnknownSlot),
		errors.Is(err, recorddomain.ErrInvalidPaymentInfo):
		return true
	default:
		return false
	}
}

func isCouponValidationError(err error) bool {
	switch {
	case errors.Is(err, coupondomain.ErrInvalidCode),
		errors.Is(err, coupondomain.ErrInvalidServiceType),
		errors.Is(err, coupondomain.ErrInvalidDiscount),
		errors.Is(err, coupondomain.ErrInvalidQuantity):
		return true
	default:
		return false
	}
}

func isAttributionValidationError(err error) bool {
	switch {
	case errors.Is(err, attributiondomain.ErrInvalidInfluencer),
		errors.Is(err, attributiondomain.ErrInvalidVisit),
		errors.Is(err, attributiondomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidOrder),
		errors.Is(err, paymentdomain.ErrAmountMismatch):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, recorddomain.ErrRecordExists),
		errors.Is(err, recorddomain.ErrInputLocked),
		errors.Is(err, recorddomain.ErrAnalysisAlreadyRunning),
		errors.Is(err, recorddomain.ErrProductLineMismatch),
		errors.Is(err, paygate.ErrInvalidTransition),
		errors.Is(err, paygate.ErrTeaserRunning),
		errors.Is(err, paygate.ErrOrderMismatch),
		errors.Is(err, inference.ErrStaleResult),
		errors.Is(err, coupondomain.ErrCouponExists),
		errors.Is(err, coupondomain.ErrCouponInUse),
		errors.Is(err, attributiondomain.ErrSlugTaken),
		errors.Is(err, paymentdomain.ErrOrderFailed):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, recorddomain.ErrRecordNotFound),
		errors.Is(err, recorddomain.ErrUnknownProductLine),
		errors.Is(err, coupondomain.ErrNotFound),
		errors.Is(err, attributiondomain.ErrInfluencerNotFound),
		errors.Is(err, paymentdomain.ErrOrderNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrGatewayFailure),
		errors.Is(err, inference.ErrUpstream),
		errors.Is(err, inference.ErrPartialResult):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
