package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func faceLine(t *testing.T) domain.ProductLine {
	t.Helper()
	line, err := domain.NewProductLine("face", "base", "base", "wealth", "love", "marriage", "career", "health")
	require.NoError(t, err)
	return line
}

func loveLine(t *testing.T) domain.ProductLine {
	t.Helper()
	line, err := domain.NewProductLine("saju_love", "love", "love")
	require.NoError(t, err)
	return line
}

func TestSkeletonHasExactlyTheLineSlots(t *testing.T) {
	for _, line := range []domain.ProductLine{faceLine(t), loveLine(t)} {
		reports := domain.Skeleton(line)
		require.Len(t, reports, len(line.Slots))
		for _, s := range line.Slots {
			slot, ok := reports[s]
			require.True(t, ok, "slot %s missing", s)
			assert.False(t, slot.Paid)
			assert.Nil(t, slot.Data)
			assert.Nil(t, slot.PurchasedAt)
		}
	}
}

func TestNewProductLineRejectsBadShapes(t *testing.T) {
	_, err := domain.NewProductLine("face", "base")
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)

	_, err = domain.NewProductLine("face", "base", "wealth")
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)

	_, err = domain.NewProductLine("face", "base", "base", "base")
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)
}

func TestDecodeUpgradesLegacyPayloadIntoPrimarySlot(t *testing.T) {
	line := faceLine(t)
	legacy := []byte(`{"id":"old-1","createdAt":"2024-01-02T03:04:05Z","summary":"strong jaw","detail":"long text","paid":true}`)

	rec, upgraded, err := domain.Decode(legacy, line)
	require.NoError(t, err)
	assert.True(t, upgraded)
	assert.Equal(t, domain.CurrentSchemaVersion, rec.SchemaVersion)

	base := rec.Reports["base"]
	assert.True(t, base.Paid)
	assert.JSONEq(t, `{"summary":"strong jaw","detail":"long text"}`, string(base.Data))
	assert.True(t, rec.Paid)
	assert.Len(t, rec.Reports, len(line.Slots))
	for _, s := range []domain.SlotKey{"wealth", "love", "marriage", "career", "health"} {
		assert.False(t, rec.Reports[s].Paid)
		assert.Nil(t, rec.Reports[s].Data)
	}

	encoded, err := domain.Encode(rec)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.NotContains(t, fields, "summary")
	assert.NotContains(t, fields, "detail")

	again, upgradedAgain, err := domain.Decode(encoded, line)
	require.NoError(t, err)
	assert.False(t, upgradedAgain)
	assert.Equal(t, rec.Reports["base"].Paid, again.Reports["base"].Paid)
	assert.JSONEq(t, string(rec.Reports["base"].Data), string(again.Reports["base"].Data))
}

func TestDecodeUnpaidLegacyPayload(t *testing.T) {
	rec, _, err := domain.Decode([]byte(`{"id":"old-2","summary":"s"}`), faceLine(t))
	require.NoError(t, err)
	assert.False(t, rec.Reports["base"].Paid)
	assert.False(t, rec.Paid)
	assert.JSONEq(t, `{"summary":"s"}`, string(rec.Reports["base"].Data))
}

func TestDecodeMovesRecordPaidAtIntoSlot(t *testing.T) {
	line := loveLine(t)
	v1 := []byte(`{"schemaVersion":1,"id":"r9","reports":{"love":{"paid":true,"data":null}},"paid":true,"paidAt":"2025-05-01T10:00:00Z"}`)

	rec, upgraded, err := domain.Decode(v1, line)
	require.NoError(t, err)
	assert.True(t, upgraded)
	require.NotNil(t, rec.Reports["love"].PurchasedAt)
	assert.True(t, rec.Reports["love"].PurchasedAt.Equal(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, rec.Reports["love"].Data)
}

func TestDecodeRejectsNewerSchema(t *testing.T) {
	_, _, err := domain.Decode([]byte(`{"schemaVersion":99,"id":"x"}`), faceLine(t))
	assert.ErrorIs(t, err, domain.ErrUnsupportedSchema)
}

func TestMergeFavorsUnlocked(t *testing.T) {
	line := faceLine(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	local, err := domain.NewRecord(line, "r1", domain.Input{Date: "1994-03-15"}, now)
	require.NoError(t, err)
	remote := local.Clone()
	_, err = domain.ApplyPayment(remote, line, "base", domain.PaymentInfo{Method: domain.PaymentMethodGateway, Price: 9900}, now.Add(time.Hour))
	require.NoError(t, err)

	merged, changed := domain.MergeMostUnlocked(local, remote, line)
	assert.True(t, changed)
	assert.True(t, merged.Reports["base"].Paid)
	assert.True(t, merged.Paid)
	require.NotNil(t, merged.PaymentInfo)
	assert.Equal(t, int64(9900), merged.PaymentInfo.Price)
	assert.False(t, local.Reports["base"].Paid, "inputs are not mutated")

	// symmetric: local paid, remote unpaid keeps local paid
	kept, changed := domain.MergeMostUnlocked(merged, local, line)
	assert.False(t, changed)
	assert.True(t, kept.Reports["base"].Paid)
}

func TestMergeKeepsEarliestPurchaseAndFillsData(t *testing.T) {
	line := faceLine(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a, _ := domain.NewRecord(line, "r1", domain.Input{}, t0)
	b := a.Clone()
	_, _ = domain.ApplyPayment(a, line, "wealth", domain.PaymentInfo{Method: "coupon"}, t0.Add(2*time.Hour))
	_, _ = domain.ApplyPayment(b, line, "wealth", domain.PaymentInfo{Method: "coupon"}, t0.Add(time.Hour))
	b.Reports["love"] = domain.ReportSlot{Data: json.RawMessage(`{"summary":"x"}`)}
	b.RawExternalResult = json.RawMessage(`{"features":1}`)

	merged, changed := domain.MergeMostUnlocked(a, b, line)
	assert.True(t, changed)
	assert.True(t, merged.Reports["wealth"].PurchasedAt.Equal(t0.Add(time.Hour)))
	assert.JSONEq(t, `{"summary":"x"}`, string(merged.Reports["love"].Data))
	assert.JSONEq(t, `{"features":1}`, string(merged.RawExternalResult))
	assert.False(t, merged.Paid, "primary slot was never bought")
}

func TestMergeCarriesGatewayFactsNextToCouponPurchase(t *testing.T) {
	line := faceLine(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	local, err := domain.NewRecord(line, "r1", domain.Input{}, t0)
	require.NoError(t, err)
	remote := local.Clone()
	_, err = domain.ApplyPayment(local, line, "wealth", domain.PaymentInfo{Method: domain.PaymentMethodCoupon, CouponCode: "FREE100"}, t0)
	require.NoError(t, err)
	_, err = domain.ApplyPayment(remote, line, "base", domain.PaymentInfo{
		Method:     domain.PaymentMethodGateway,
		Price:      9900,
		OrderID:    "order-1",
		PaymentKey: "pk-1",
	}, t0.Add(time.Hour))
	require.NoError(t, err)

	merged, changed := domain.MergeMostUnlocked(local, remote, line)
	assert.True(t, changed)
	assert.True(t, merged.Reports["base"].Paid)
	require.NotNil(t, merged.PaymentInfo)
	assert.Equal(t, "FREE100", merged.PaymentInfo.CouponCode)
	assert.Equal(t, "order-1", merged.PaymentInfo.OrderID)
	assert.Equal(t, "pk-1", merged.PaymentInfo.PaymentKey)
	assert.Equal(t, domain.PaymentMethodCoupon, merged.PaymentInfo.Method, "held facts are not overwritten")

	_, changed = domain.MergeMostUnlocked(merged, remote, line)
	assert.False(t, changed)
}

func TestMissingDetectsBackfillNeed(t *testing.T) {
	line := faceLine(t)
	now := time.Now()
	local, _ := domain.NewRecord(line, "r1", domain.Input{Date: "1990-01-01"}, now)
	remote := local.Clone()
	assert.False(t, domain.Missing(local, remote, line))

	local.RawExternalResult = json.RawMessage(`{"a":1}`)
	assert.True(t, domain.Missing(local, remote, line))
	assert.True(t, domain.Missing(local, nil, line))
}

func TestApplyPaymentIsIdempotent(t *testing.T) {
	line := faceLine(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec, _ := domain.NewRecord(line, "r1", domain.Input{}, t0)

	info := domain.PaymentInfo{Method: domain.PaymentMethodCoupon, Price: 0, CouponCode: "FREE100"}
	applied, err := domain.ApplyPayment(rec, line, "base", info, t0)
	require.NoError(t, err)
	assert.True(t, applied)
	first := rec.Clone()

	applied, err = domain.ApplyPayment(rec, line, "base", info, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first, rec)

	_, err = domain.ApplyPayment(rec, line, "tarot", info, t0)
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)
	_, err = domain.ApplyPayment(rec, line, "wealth", domain.PaymentInfo{}, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentInfo)
}

func TestApplyPatchLocksInputOnceAnalysed(t *testing.T) {
	line := faceLine(t)
	now := time.Now()
	rec, _ := domain.NewRecord(line, "r1", domain.Input{Date: "1994-03-15"}, now)

	corrected := domain.Input{Date: "1994-03-16"}
	require.NoError(t, domain.ApplyPatch(rec, line, domain.Patch{Input: &corrected}, now))
	assert.Equal(t, "1994-03-16", rec.Input.Date)

	require.NoError(t, domain.ApplyPatch(rec, line, domain.Patch{RawExternalResult: json.RawMessage(`{"ok":true}`)}, now))
	again := domain.Input{Date: "2000-01-01"}
	assert.ErrorIs(t, domain.ApplyPatch(rec, line, domain.Patch{Input: &again}, now), domain.ErrInputLocked)

	same := corrected
	assert.NoError(t, domain.ApplyPatch(rec, line, domain.Patch{Input: &same}, now))

	err := domain.ApplyPatch(rec, line, domain.Patch{Reports: map[domain.SlotKey]json.RawMessage{"tarot": json.RawMessage(`{}`)}}, now)
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)
}

func TestDecodeReportByLine(t *testing.T) {
	line := loveLine(t)
	slot := domain.ReportSlot{Data: json.RawMessage(`{"user_name":"민지","chapters":[{"number":1,"title":"t","content":"c"}],"ideal_partner_image":{"image_base64":"aGk="}}`)}

	data, err := domain.DecodeReport(line, slot)
	require.NoError(t, err)
	love, ok := data.(domain.LoveReport)
	require.True(t, ok)
	assert.True(t, love.HasIdealPartnerImage())
	assert.Len(t, love.Chapters, 1)

	empty, err := domain.DecodeReport(line, domain.ReportSlot{})
	require.NoError(t, err)
	assert.Nil(t, empty)

	other, _ := domain.NewProductLine("tarot", "card", "card")
	opaque, err := domain.DecodeReport(other, domain.ReportSlot{Data: json.RawMessage(`[1,2]`)})
	require.NoError(t, err)
	assert.Equal(t, "opaque", opaque.Kind())
}
