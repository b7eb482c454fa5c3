package toss

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{
		SecretKey:     "test_sk",
		WebhookSecret: "whsec",
		BaseURL:       baseURL,
		HTTPClient:    http.DefaultClient,
	})
	require.NoError(t, err)
	return adapter.(*Adapter)
}

func TestConfirmSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("test_sk:"))
		assert.Equal(t, want, r.Header.Get("Authorization"))

		var body domain.ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "face_01ABC", body.OrderID)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"paymentKey":  body.PaymentKey,
			"orderId":     body.OrderID,
			"status":      "DONE",
			"method":      "카드",
			"totalAmount": body.Amount,
			"approvedAt":  "2026-01-10T21:00:00+09:00",
		})
	}))
	defer srv.Close()

	got, err := newTestAdapter(t, srv.URL).Confirm(context.Background(), domain.ConfirmRequest{
		PaymentKey: "pk_1",
		OrderID:    "face_01ABC",
		Amount:     9900,
	})
	require.NoError(t, err)
	assert.Equal(t, "pk_1", got.PaymentKey)
	assert.EqualValues(t, 9900, got.Amount)
	assert.Equal(t, 12, got.ApprovedAt.Hour())
}

func TestConfirmClassifiesGatewayErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rejected card", http.StatusBadRequest, false},
		{"gateway down", http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"REJECT_CARD_COMPANY","message":"declined"}`))
			}))
			defer srv.Close()

			_, err := newTestAdapter(t, srv.URL).Confirm(context.Background(), domain.ConfirmRequest{PaymentKey: "pk", OrderID: "o1", Amount: 100})
			var gwErr *domain.GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, "REJECT_CARD_COMPANY", gwErr.Code)
			assert.Equal(t, tc.retryable, domain.IsRetryable(err))
		})
	}
}

func TestConfirmRejectsAmountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentKey":"pk","orderId":"o1","status":"DONE","totalAmount":1}`))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv.URL).Confirm(context.Background(), domain.ConfirmRequest{PaymentKey: "pk", OrderID: "o1", Amount: 9900})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
}

func TestVerifySignature(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{"eventType":"PAYMENT_STATUS_CHANGED","data":{}}`)
	headers := http.Header{}
	headers.Set(headerTransmissionTime, "2026-01-10T12:00:00Z")
	headers.Set(headerSignature, "v1:"+Sign("whsec", payload, "2026-01-10T12:00:00Z"))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set(headerSignature, "v1:"+Sign("wrong", payload, "2026-01-10T12:00:00Z"))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), domain.ErrInvalidSignature)
}

func TestParsePaymentStatus(t *testing.T) {
	adapter := newTestAdapter(t, "")
	tests := []struct {
		status   string
		wantType string
		wantErr  error
	}{
		{"DONE", domain.EventTypePaymentSucceeded, nil},
		{"ABORTED", domain.EventTypePaymentFailed, nil},
		{"CANCELED", domain.EventTypeCanceled, nil},
		{"WAITING_FOR_DEPOSIT", "", domain.ErrEventIgnored},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			payload, err := json.Marshal(map[string]any{
				"eventType": "PAYMENT_STATUS_CHANGED",
				"createdAt": "2026-01-10T12:00:00Z",
				"data": map[string]any{
					"paymentKey":  "pk_9",
					"orderId":     "saju-love_01XYZ",
					"status":      tc.status,
					"totalAmount": 14900,
				},
			})
			require.NoError(t, err)

			event, err := adapter.Parse(context.Background(), payload)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, event.Type)
			assert.Equal(t, "saju-love_01XYZ", event.OrderID)
			assert.Equal(t, "pk_9:"+tc.status, event.ProviderEventID)
		})
	}
}
