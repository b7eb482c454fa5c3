package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrder(ctx context.Context, db *gorm.DB, id string, forUpdate bool) (*Order, error)
	// MarkConfirmed only moves a non-confirmed order and reports whether it
	// did.
	MarkConfirmed(ctx context.Context, db *gorm.DB, id, paymentKey, method string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id, code, message string, now time.Time) (bool, error)
	ListOrders(ctx context.Context, db *gorm.DB, req ListOrdersRequest) ([]Order, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
