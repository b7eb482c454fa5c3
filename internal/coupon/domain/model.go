package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DiscountKind string

const (
	DiscountFree  DiscountKind = "free"
	DiscountFixed DiscountKind = "fixed"
)

// ServiceTypeAll makes a coupon valid for every product line.
const ServiceTypeAll = "all"

type Coupon struct {
	ID                snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	Code              string       `json:"code" gorm:"column:code"`
	Name              string       `json:"name" gorm:"column:name"`
	ServiceType       string       `json:"service_type" gorm:"column:service_type"`
	DiscountKind      DiscountKind `json:"discount_type" gorm:"column:discount_type"`
	DiscountAmount    int64        `json:"discount_amount" gorm:"column:discount_amount"`
	TotalQuantity     int          `json:"total_quantity" gorm:"column:total_quantity"`
	RemainingQuantity int          `json:"remaining_quantity" gorm:"column:remaining_quantity"`
	IsActive          bool         `json:"is_active" gorm:"column:is_active"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty" gorm:"column:expires_at"`
	CreatedAt         time.Time    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

func (Coupon) TableName() string { return "coupons" }

// Redeemed reports whether at least one unit has been used.
func (c *Coupon) Redeemed() bool {
	return c.RemainingQuantity < c.TotalQuantity
}

func (c *Coupon) AppliesTo(serviceType string) bool {
	return c.ServiceType == ServiceTypeAll || c.ServiceType == serviceType
}

type UsageLog struct {
	ID          snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	CouponID    snowflake.ID `json:"coupon_id" gorm:"column:coupon_id"`
	CouponCode  string       `json:"coupon_code" gorm:"column:coupon_code"`
	ServiceType string       `json:"service_type" gorm:"column:service_type"`
	RecordID    string       `json:"record_id,omitempty" gorm:"column:record_id"`
	UsedAt      time.Time    `json:"used_at" gorm:"column:used_at"`
}

func (UsageLog) TableName() string { return "coupon_usage_logs" }

type Reason string

const (
	ReasonNotFound         Reason = "not_found"
	ReasonInactive         Reason = "inactive"
	ReasonExhausted        Reason = "exhausted"
	ReasonExpired          Reason = "expired"
	ReasonWrongProductLine Reason = "wrong_product_line"
	ReasonRateLimited      Reason = "rate_limited"
)

// Validation is the outcome of a side-effect free coupon check. An invalid
// coupon is a normal result, never an error.
type Validation struct {
	Valid          bool         `json:"valid"`
	Code           string       `json:"code,omitempty"`
	Kind           DiscountKind `json:"discount_type,omitempty"`
	IsFree         bool         `json:"is_free"`
	DiscountAmount int64        `json:"discount_amount"`
	Reason         Reason       `json:"reason,omitempty"`
	Message        string       `json:"error,omitempty"`
}

type ValidateRequest struct {
	Code        string `json:"code"`
	ServiceType string `json:"serviceType"`
	ClientKey   string `json:"-"`
}

type RedeemRequest struct {
	Code        string `json:"code"`
	ServiceType string `json:"serviceType"`
	RecordID    string `json:"recordId"`
}

type Redemption struct {
	CouponID       snowflake.ID `json:"coupon_id"`
	Code           string       `json:"code"`
	Kind           DiscountKind `json:"discount_type"`
	DiscountAmount int64        `json:"discount_amount"`
	Remaining      int          `json:"remaining_quantity"`
	UsedAt         time.Time    `json:"used_at"`
}

type CreateRequest struct {
	Code           string       `json:"code"`
	Name           string       `json:"name"`
	ServiceType    string       `json:"service_type"`
	DiscountKind   DiscountKind `json:"discount_type"`
	DiscountAmount int64        `json:"discount_amount"`
	TotalQuantity  int          `json:"total_quantity"`
	ExpiresAt      *time.Time   `json:"expires_at"`
}
