package receipt_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/receipt"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLoader struct {
	records map[string]*domain.AnalysisRecord
}

func (l staticLoader) Load(ctx context.Context, line, id string) (*reconcile.Result, error) {
	rec, ok := l.records[id]
	if !ok {
		return nil, &reconcile.NotFoundError{ProductLine: line, ID: id, Redirect: reconcile.StartPath(line)}
	}
	return &reconcile.Result{Record: rec, Source: reconcile.SourceLocal}, nil
}

func newService(t *testing.T, records ...*domain.AnalysisRecord) *receipt.Service {
	t.Helper()
	holder, err := config.NewStaticCatalogHolder(config.DefaultCatalog())
	require.NoError(t, err)
	loader := staticLoader{records: map[string]*domain.AnalysisRecord{}}
	for _, r := range records {
		loader.records[r.ID] = r
	}
	return receipt.NewService(receipt.Params{
		Cfg:     config.Config{Receipt: config.ReceiptConfig{Issuer: "facesaju"}},
		Catalog: holder,
		Loader:  loader,
		Log:     zap.NewNop(),
	})
}

func loveRecord(t *testing.T, paid bool) *domain.AnalysisRecord {
	t.Helper()
	line, err := domain.NewProductLine("saju_love", "love", "love")
	require.NoError(t, err)
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	rec, err := domain.NewRecord(line, "rec-love-1", domain.Input{UserName: "Minji"}, now)
	require.NoError(t, err)
	if paid {
		_, err = domain.ApplyPayment(rec, line, "love", domain.PaymentInfo{
			Method:     domain.PaymentMethodGateway,
			Price:      9900,
			CouponCode: "WELCOME",
			IsDiscount: true,
			OrderID:    "saju-love_01J",
		}, now)
		require.NoError(t, err)
	}
	return rec
}

func TestGenerateReceiptForPaidSlot(t *testing.T) {
	svc := newService(t, loveRecord(t, true))

	doc, err := svc.Generate(context.Background(), "saju_love", "rec-love-1", "saju")
	require.NoError(t, err)
	assert.Equal(t, "receipt-rec-love-1-love.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF")))
}

func TestGenerateReceiptRefusesUnpaidSlot(t *testing.T) {
	svc := newService(t, loveRecord(t, false))

	_, err := svc.Generate(context.Background(), "saju_love", "rec-love-1", "")
	assert.ErrorIs(t, err, receipt.ErrSlotNotPaid)
}

func TestGenerateReceiptUnknownRecordAndSlot(t *testing.T) {
	svc := newService(t, loveRecord(t, true))

	_, err := svc.Generate(context.Background(), "saju_love", "missing", "")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = svc.Generate(context.Background(), "saju_love", "rec-love-1", "wealth")
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)

	_, err = svc.Generate(context.Background(), "tarot", "rec-love-1", "")
	assert.ErrorIs(t, err, domain.ErrUnknownProductLine)
}
