package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/coupon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const couponColumns = `id, code, name, service_type, discount_type, discount_amount, total_quantity,
	remaining_quantity, is_active, expires_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupons (`+couponColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Code,
		c.Name,
		c.ServiceType,
		c.DiscountKind,
		c.DiscountAmount,
		c.TotalQuantity,
		c.RemainingQuantity,
		c.IsActive,
		c.ExpiresAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Coupon, error) {
	var c domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT `+couponColumns+` FROM coupons WHERE id = ?`, id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	var c domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT `+couponColumns+` FROM coupons WHERE lower(code) = lower(?)`, code,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Coupon, error) {
	var items []domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DecrementIfAvailable(ctx context.Context, db *gorm.DB, code, serviceType string, now time.Time) (bool, error) {
	query := `UPDATE coupons
		SET remaining_quantity = remaining_quantity - 1, updated_at = ?
		WHERE lower(code) = lower(?)
		  AND is_active = ?
		  AND remaining_quantity > 0
		  AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{now, code, true, now}
	if serviceType != "" {
		query += ` AND (service_type = ? OR service_type = ?)`
		args = append(args, domain.ServiceTypeAll, serviceType)
	}
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE coupons SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, now, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteUnused(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM coupons WHERE id = ? AND remaining_quantity = total_quantity`, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, log *domain.UsageLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupon_usage_logs (id, coupon_id, coupon_code, service_type, record_id, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.CouponID,
		log.CouponCode,
		log.ServiceType,
		log.RecordID,
		log.UsedAt,
	).Error
}

func (r *repo) ListUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID) ([]domain.UsageLog, error) {
	var items []domain.UsageLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, coupon_id, coupon_code, service_type, record_id, used_at
		 FROM coupon_usage_logs WHERE coupon_id = ? ORDER BY used_at DESC, id DESC`,
		couponID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
