package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, record_id, product_line, slot, order_name, amount, original_amount,
	coupon_code, is_discount, provider, status, payment_key, method, failure_code,
	failure_message, created_at, updated_at, confirmed_at`

func (r *repo) InsertOrder(ctx context.Context, tx *gorm.DB, o *domain.Order) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payment_orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.RecordID,
		o.ProductLine,
		o.Slot,
		o.OrderName,
		o.Amount,
		o.OriginalAmount,
		o.CouponCode,
		o.IsDiscount,
		o.Provider,
		o.Status,
		o.PaymentKey,
		o.Method,
		o.FailureCode,
		o.FailureMessage,
		o.CreatedAt,
		o.UpdatedAt,
		o.ConfirmedAt,
	).Error
}

func (r *repo) FindOrder(ctx context.Context, tx *gorm.DB, id string, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = ?`
	if forUpdate {
		query += db.ForUpdate(tx)
	}
	var item domain.Order
	if err := tx.WithContext(ctx).Raw(query, id).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkConfirmed(ctx context.Context, tx *gorm.DB, id, paymentKey, method string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, payment_key = ?, method = ?, failure_code = '', failure_message = '',
			confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.OrderConfirmed,
		paymentKey,
		method,
		now,
		now,
		id,
		domain.OrderConfirmed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, tx *gorm.DB, id, code, message string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, failure_code = ?, failure_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.OrderFailed,
		code,
		message,
		now,
		id,
		domain.OrderPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListOrders(ctx context.Context, tx *gorm.DB, req domain.ListOrdersRequest) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE 1 = 1`
	args := []any{}
	if req.Status != "" {
		query += ` AND status = ?`
		args = append(args, req.Status)
	}
	if req.ProductLine != "" {
		query += ` AND product_line = ?`
		args = append(args, req.ProductLine)
	}
	if req.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, *req.From)
	}
	if req.To != nil {
		query += ` AND created_at < ?`
		args = append(args, *req.To)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, req.Limit)

	var items []domain.Order
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindEvent(ctx context.Context, tx *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := tx.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, order_id, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, tx *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, order_id, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.OrderID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, tx *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ?`,
		processedAt,
		id,
	).Error
}
