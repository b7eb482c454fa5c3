package domain

import "context"

type Service interface {
	// Validate has no side effects. Rejections come back as an invalid
	// Validation, not as an error.
	Validate(ctx context.Context, req ValidateRequest) (Validation, error)
	// Redeem consumes exactly one unit or fails with one of the rejection
	// errors (ErrExhausted when the last unit was lost to a racing call).
	Redeem(ctx context.Context, req RedeemRequest) (*Redemption, error)

	Create(ctx context.Context, req CreateRequest) (*Coupon, error)
	SetActive(ctx context.Context, id string, active bool) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Delete(ctx context.Context, id string) error
	ListUsage(ctx context.Context, id string) ([]UsageLog, error)
}
