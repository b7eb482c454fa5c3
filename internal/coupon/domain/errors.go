package domain

import "errors"

var (
	ErrInvalidCode        = errors.New("invalid_coupon_code")
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrCouponExists       = errors.New("coupon_exists")
	ErrCouponInUse        = errors.New("coupon_in_use")
	ErrNotFound           = errors.New("coupon_not_found")
	ErrInactive           = errors.New("coupon_inactive")
	ErrExhausted          = errors.New("coupon_exhausted")
	ErrExpired            = errors.New("coupon_expired")
	ErrWrongProductLine   = errors.New("coupon_wrong_product_line")
	ErrTooManyAttempts    = errors.New("coupon_too_many_attempts")
)

var reasonByErr = map[error]Reason{
	ErrNotFound:         ReasonNotFound,
	ErrInactive:         ReasonInactive,
	ErrExhausted:        ReasonExhausted,
	ErrExpired:          ReasonExpired,
	ErrWrongProductLine: ReasonWrongProductLine,
	ErrTooManyAttempts:  ReasonRateLimited,
}

var messageByReason = map[Reason]string{
	ReasonNotFound:         "존재하지 않는 쿠폰 코드입니다.",
	ReasonInactive:         "비활성화된 쿠폰입니다.",
	ReasonExhausted:        "쿠폰이 모두 소진되었습니다.",
	ReasonExpired:          "사용 기간이 지난 쿠폰입니다.",
	ReasonWrongProductLine: "이 서비스에서 사용할 수 없는 쿠폰입니다.",
	ReasonRateLimited:      "잠시 후 다시 시도해주세요.",
}

// ReasonFor maps a redemption failure onto its user-facing reason. ok is
// false for errors that are not coupon rejections.
func ReasonFor(err error) (Reason, bool) {
	for target, reason := range reasonByErr {
		if errors.Is(err, target) {
			return reason, true
		}
	}
	return "", false
}

func Invalid(reason Reason) Validation {
	return Validation{Valid: false, Reason: reason, Message: messageByReason[reason]}
}
