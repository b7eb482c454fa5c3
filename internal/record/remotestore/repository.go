package remotestore

import (
	"context"
	"time"

	"github.com/smallbiznis/facesaju/pkg/db"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string, forUpdate bool) (*Row, error)
	Exists(ctx context.Context, db *gorm.DB, id string) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, row *Row) error
	Update(ctx context.Context, db *gorm.DB, row *Row) error
	ListPaid(ctx context.Context, db *gorm.DB, filter paidFilter) ([]Row, error)
}

type paidFilter struct {
	ProductLine  string
	InfluencerID string
	From         time.Time
	To           time.Time
	AfterPaidAt  *time.Time
	AfterID      string
	Limit        int
}

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

const rowColumns = `id, product_line, schema_version, user_info, raw_result, report, is_paid, paid_at,
	payment_info, utm_source, utm_medium, utm_campaign, influencer_id, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id string, forUpdate bool) (*Row, error) {
	query := `SELECT ` + rowColumns + ` FROM analyses WHERE id = ?`
	if forUpdate {
		query += db.ForUpdate(conn)
	}
	var row Row
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) Exists(ctx context.Context, conn *gorm.DB, id string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(`SELECT COUNT(1) FROM analyses WHERE id = ?`, id).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, row *Row) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO analyses (`+rowColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.ProductLine,
		row.SchemaVersion,
		row.UserInfo,
		row.RawResult,
		row.Report,
		row.IsPaid,
		row.PaidAt,
		row.PaymentInfo,
		row.UTMSource,
		row.UTMMedium,
		row.UTMCampaign,
		row.InfluencerID,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, row *Row) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE analyses
		 SET schema_version = ?, user_info = ?, raw_result = ?, report = ?, is_paid = ?, paid_at = ?,
			payment_info = ?, utm_source = ?, utm_medium = ?, utm_campaign = ?, influencer_id = ?, updated_at = ?
		 WHERE id = ?`,
		row.SchemaVersion,
		row.UserInfo,
		row.RawResult,
		row.Report,
		row.IsPaid,
		row.PaidAt,
		row.PaymentInfo,
		row.UTMSource,
		row.UTMMedium,
		row.UTMCampaign,
		row.InfluencerID,
		row.UpdatedAt,
		row.ID,
	).Error
}

func (r *repo) ListPaid(ctx context.Context, conn *gorm.DB, filter paidFilter) ([]Row, error) {
	stmt := conn.WithContext(ctx).
		Model(&Row{}).
		Where("paid_at IS NOT NULL")

	if !filter.From.IsZero() {
		stmt = stmt.Where("paid_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		stmt = stmt.Where("paid_at < ?", filter.To)
	}
	if filter.ProductLine != "" {
		stmt = stmt.Where("product_line = ?", filter.ProductLine)
	}
	if filter.InfluencerID != "" {
		stmt = stmt.Where("influencer_id = ?", filter.InfluencerID)
	}
	if filter.AfterPaidAt != nil {
		stmt = stmt.Where("(paid_at > ? OR (paid_at = ? AND id > ?))", *filter.AfterPaidAt, *filter.AfterPaidAt, filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rows []Row
	if err := stmt.Order("paid_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
