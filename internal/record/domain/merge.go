package domain

// MergeMostUnlocked folds other into base and returns the merged copy.
// A slot paid on either side is paid in the result; data, raw output,
// payment facts and attribution missing from base are filled from other.
// Nothing base already holds is overwritten, so a paid flag can never be
// lost. changed reports whether the result differs from base.
func MergeMostUnlocked(base, other *AnalysisRecord, line ProductLine) (merged *AnalysisRecord, changed bool) {
	if base == nil {
		if other == nil {
			return nil, false
		}
		out := other.Clone()
		Normalize(out, line)
		return out, true
	}
	out := base.Clone()
	Normalize(out, line)
	if other == nil {
		return out, false
	}

	for key, theirs := range other.Reports {
		if !line.HasSlot(key) {
			continue
		}
		ours := out.Reports[key]
		if theirs.Paid && !ours.Paid {
			ours.Paid = true
			ours.PurchasedAt = theirs.PurchasedAt
			changed = true
		} else if theirs.Paid && ours.Paid && ours.PurchasedAt == nil && theirs.PurchasedAt != nil {
			ours.PurchasedAt = theirs.PurchasedAt
			changed = true
		} else if theirs.Paid && ours.Paid && ours.PurchasedAt != nil && theirs.PurchasedAt != nil &&
			theirs.PurchasedAt.Before(*ours.PurchasedAt) {
			ours.PurchasedAt = theirs.PurchasedAt
			changed = true
		}
		if !ours.HasData() && theirs.HasData() {
			ours.Data = cloneRaw(theirs.Data)
			changed = true
		}
		out.Reports[key] = ours
	}

	if !hasJSON(out.RawExternalResult) && hasJSON(other.RawExternalResult) {
		out.RawExternalResult = cloneRaw(other.RawExternalResult)
		changed = true
	}
	if other.PaymentInfo != nil {
		if out.PaymentInfo == nil {
			info := *other.PaymentInfo
			out.PaymentInfo = &info
			changed = true
		} else if fillPaymentInfo(out.PaymentInfo, *other.PaymentInfo) {
			changed = true
		}
	}
	if out.Attribution == nil && other.Attribution != nil {
		a := *other.Attribution
		out.Attribution = &a
		changed = true
	}
	if out.Input.IsZero() && !other.Input.IsZero() {
		out.Input = other.Input
		changed = true
	}
	if out.CreatedAt.IsZero() && !other.CreatedAt.IsZero() {
		out.CreatedAt = other.CreatedAt
		changed = true
	}

	Normalize(out, line)
	return out, changed
}

// fillPaymentInfo copies the coupon and gateway references dst lacks.
func fillPaymentInfo(dst *PaymentInfo, src PaymentInfo) bool {
	filled := false
	if dst.CouponCode == "" && src.CouponCode != "" {
		dst.CouponCode = src.CouponCode
		filled = true
	}
	if dst.OrderID == "" && src.OrderID != "" {
		dst.OrderID = src.OrderID
		filled = true
	}
	if dst.PaymentKey == "" && src.PaymentKey != "" {
		dst.PaymentKey = src.PaymentKey
		filled = true
	}
	return filled
}

// Missing reports whether other lacks anything base could backfill.
func Missing(base, other *AnalysisRecord, line ProductLine) bool {
	if base == nil {
		return false
	}
	if other == nil {
		return true
	}
	_, changed := MergeMostUnlocked(other, base, line)
	return changed
}
