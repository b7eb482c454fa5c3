package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	List(ctx context.Context, db *gorm.DB) ([]Coupon, error)
	// DecrementIfAvailable takes one unit in a single conditional UPDATE and
	// reports whether a row matched.
	DecrementIfAvailable(ctx context.Context, db *gorm.DB, code, serviceType string, now time.Time) (bool, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) (bool, error)
	// DeleteUnused removes a coupon only while no unit has been redeemed.
	DeleteUnused(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	InsertUsage(ctx context.Context, db *gorm.DB, log *UsageLog) error
	ListUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID) ([]UsageLog, error)
}
