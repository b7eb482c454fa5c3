package toss

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/facesaju/internal/observability/tracing"
	"github.com/smallbiznis/facesaju/internal/payment/domain"
)

const (
	providerName   = "toss"
	defaultBaseURL = "https://api.tosspayments.com"

	headerSignature        = "tosspayments-webhook-signature"
	headerTransmissionTime = "tosspayments-webhook-transmission-time"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tracing.WrapHTTPClient(&http.Client{Timeout: 15 * time.Second}, "toss")
	}
	return &Adapter{
		secretKey:     secret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        client,
	}, nil
}

type Adapter struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

type paymentObject struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	TotalAmount int64  `json:"totalAmount"`
	ApprovedAt  string `json:"approvedAt"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type webhookEvent struct {
	EventType string          `json:"eventType"`
	CreatedAt string          `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

func (a *Adapter) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.Confirmation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payments/confirm", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(a.secretKey + ":"))
	httpReq.Header.Set("Authorization", "Basic "+auth)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OrderID)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		_ = json.Unmarshal(raw, &e)
		return nil, &domain.GatewayError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}

	var p paymentObject
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if p.OrderID != req.OrderID || p.TotalAmount != req.Amount {
		return nil, domain.ErrAmountMismatch
	}
	return &domain.Confirmation{
		PaymentKey: p.PaymentKey,
		OrderID:    p.OrderID,
		Amount:     p.TotalAmount,
		Method:     p.Method,
		Status:     p.Status,
		ApprovedAt: parseTime(p.ApprovedAt),
	}, nil
}

// Verify checks the v1 HMAC signature over "<payload>:<transmission time>".
// An adapter configured without a webhook secret rejects every webhook.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrInvalidSignature
	}
	transmission := strings.TrimSpace(headers.Get(headerTransmissionTime))
	header := strings.TrimSpace(headers.Get(headerSignature))
	if transmission == "" || header == "" {
		return domain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, payload, transmission)
	for _, part := range strings.Split(header, ",") {
		sig, ok := strings.CutPrefix(strings.TrimSpace(part), "v1:")
		if !ok {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventType) != "PAYMENT_STATUS_CHANGED" {
		return nil, domain.ErrEventIgnored
	}

	var p paymentObject
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(p.PaymentKey) == "" || strings.TrimSpace(p.OrderID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var eventType string
	switch strings.ToUpper(strings.TrimSpace(p.Status)) {
	case "DONE":
		eventType = domain.EventTypePaymentSucceeded
	case "ABORTED", "EXPIRED":
		eventType = domain.EventTypePaymentFailed
	case "CANCELED", "PARTIAL_CANCELED":
		eventType = domain.EventTypeCanceled
	default:
		return nil, domain.ErrEventIgnored
	}

	occurredAt := parseTime(p.ApprovedAt)
	if created := parseTime(event.CreatedAt); !created.IsZero() {
		occurredAt = created
	}
	return &domain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: p.PaymentKey + ":" + strings.ToUpper(p.Status),
		Type:            eventType,
		OrderID:         p.OrderID,
		PaymentKey:      p.PaymentKey,
		Method:          p.Method,
		Amount:          p.TotalAmount,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

// Sign computes the v1 webhook signature.
func Sign(secret string, payload []byte, transmissionTime string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	_, _ = mac.Write([]byte(":" + transmissionTime))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
