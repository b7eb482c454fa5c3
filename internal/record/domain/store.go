package domain

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Store is the keyed record storage of one product line.
type Store interface {
	Line() ProductLine
	// Create inserts rec with the full skeleton. Ids are never reused, even
	// after Delete.
	Create(ctx context.Context, rec *AnalysisRecord) error
	// Get returns nil, nil when id is unknown.
	Get(ctx context.Context, id string) (*AnalysisRecord, error)
	Update(ctx context.Context, id string, patch Patch) (*AnalysisRecord, error)
	// MarkPaid is idempotent per slot: the first purchase time and payment
	// facts are kept.
	MarkPaid(ctx context.Context, id string, slot SlotKey, info PaymentInfo) (*AnalysisRecord, error)
	// Merge folds rec into the stored copy with MergeMostUnlocked, creating
	// it when absent. changed is false when nothing new was learned.
	Merge(ctx context.Context, rec *AnalysisRecord) (merged *AnalysisRecord, changed bool, err error)
	Delete(ctx context.Context, id string) error
}

// Patch lists the fields Update may change. Paid flags are absent on
// purpose: only MarkPaid and Merge may set them.
type Patch struct {
	Input             *Input
	RawExternalResult json.RawMessage
	Reports           map[SlotKey]json.RawMessage
	SeenIntro         *bool
	Analyzing         *bool
	Gates             map[SlotKey]GateSession
	Attribution       *Attribution
}

// ApplyPatch validates and applies p to rec in place.
func ApplyPatch(rec *AnalysisRecord, line ProductLine, p Patch, now time.Time) error {
	if p.Input != nil && !rec.Input.Equal(*p.Input) {
		if rec.AnyPaid() || rec.HasAnalysis() {
			return ErrInputLocked
		}
		rec.Input = *p.Input
	}
	for key := range p.Reports {
		if !line.HasSlot(key) {
			return ErrUnknownSlot
		}
	}
	for key := range p.Gates {
		if !line.HasSlot(key) {
			return ErrUnknownSlot
		}
	}

	if p.RawExternalResult != nil {
		rec.RawExternalResult = cloneRaw(p.RawExternalResult)
	}
	for key, data := range p.Reports {
		slot := rec.Reports[key]
		slot.Data = cloneRaw(data)
		rec.Reports[key] = slot
	}
	if p.SeenIntro != nil {
		rec.SeenIntro = rec.SeenIntro || *p.SeenIntro
	}
	if p.Analyzing != nil {
		rec.Analyzing = *p.Analyzing
		if *p.Analyzing {
			t := now.UTC()
			rec.AnalysisStartedAt = &t
		} else {
			rec.AnalysisStartedAt = nil
		}
	}
	if len(p.Gates) > 0 {
		if rec.Gates == nil {
			rec.Gates = make(map[SlotKey]GateSession, len(p.Gates))
		}
		for key, g := range p.Gates {
			rec.Gates[key] = g
		}
	}
	if p.Attribution != nil && rec.Attribution == nil {
		a := *p.Attribution
		rec.Attribution = &a
	}
	rec.UpdatedAt = now.UTC()
	Normalize(rec, line)
	return nil
}

// ApplyPayment marks slot paid on rec. It returns false when the slot was
// already paid, leaving rec untouched.
func ApplyPayment(rec *AnalysisRecord, line ProductLine, slot SlotKey, info PaymentInfo, now time.Time) (bool, error) {
	if !line.HasSlot(slot) {
		return false, ErrUnknownSlot
	}
	info.Method = PaymentMethod(strings.TrimSpace(string(info.Method)))
	if info.Method == "" || info.Price < 0 {
		return false, ErrInvalidPaymentInfo
	}

	current := rec.Reports[slot]
	if current.Paid {
		return false, nil
	}
	t := now.UTC()
	current.Paid = true
	current.PurchasedAt = &t
	rec.Reports[slot] = current

	if rec.PaymentInfo == nil {
		merged := info
		rec.PaymentInfo = &merged
	} else {
		mergePaymentInfo(rec.PaymentInfo, info)
	}

	if rec.Gates != nil {
		if g, ok := rec.Gates[slot]; ok {
			g.State = GatePaid
			rec.Gates[slot] = g
		}
	}
	rec.UpdatedAt = t
	Normalize(rec, line)
	return true, nil
}

func mergePaymentInfo(dst *PaymentInfo, src PaymentInfo) {
	dst.Method = src.Method
	dst.Price = src.Price
	dst.IsDiscount = src.IsDiscount
	if src.CouponCode != "" {
		dst.CouponCode = src.CouponCode
	}
	if src.OrderID != "" {
		dst.OrderID = src.OrderID
	}
	if src.PaymentKey != "" {
		dst.PaymentKey = src.PaymentKey
	}
}

// StoreSet resolves the store of a product line.
type StoreSet interface {
	For(line string) (Store, error)
}
