package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/attribution/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const influencerColumns = `id, name, slug, platform, contact, memo, rs_percentage, is_active, created_at, updated_at`

func (r *repo) InsertInfluencer(ctx context.Context, db *gorm.DB, inf *domain.Influencer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO influencers (`+influencerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inf.ID,
		inf.Name,
		inf.Slug,
		inf.Platform,
		inf.Contact,
		inf.Memo,
		inf.RSPercentage,
		inf.IsActive,
		inf.CreatedAt,
		inf.UpdatedAt,
	).Error
}

func (r *repo) UpdateInfluencer(ctx context.Context, db *gorm.DB, inf *domain.Influencer) error {
	return db.WithContext(ctx).Exec(
		`UPDATE influencers
		 SET name = ?, slug = ?, platform = ?, contact = ?, memo = ?, rs_percentage = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		inf.Name,
		inf.Slug,
		inf.Platform,
		inf.Contact,
		inf.Memo,
		inf.RSPercentage,
		inf.IsActive,
		inf.UpdatedAt,
		inf.ID,
	).Error
}

func (r *repo) DeleteInfluencer(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM influencers WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindInfluencer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Influencer, error) {
	var inf domain.Influencer
	err := db.WithContext(ctx).Raw(
		`SELECT `+influencerColumns+` FROM influencers WHERE id = ?`, id,
	).Scan(&inf).Error
	if err != nil {
		return nil, err
	}
	if inf.ID == 0 {
		return nil, nil
	}
	return &inf, nil
}

func (r *repo) FindInfluencerBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Influencer, error) {
	var inf domain.Influencer
	err := db.WithContext(ctx).Raw(
		`SELECT `+influencerColumns+` FROM influencers WHERE slug = ?`, slug,
	).Scan(&inf).Error
	if err != nil {
		return nil, err
	}
	if inf.ID == 0 {
		return nil, nil
	}
	return &inf, nil
}

func (r *repo) ListInfluencers(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Influencer, error) {
	query := `SELECT ` + influencerColumns + ` FROM influencers`
	args := []any{}
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var out []domain.Influencer
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) InsertVisit(ctx context.Context, db *gorm.DB, v *domain.Visit) error {
	var influencerID *snowflake.ID
	if v.InfluencerID != 0 {
		influencerID = &v.InfluencerID
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO utm_visits (id, utm_source, utm_medium, utm_campaign, influencer_id, landing_page, visited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.UTMSource,
		v.UTMMedium,
		v.UTMCampaign,
		influencerID,
		v.LandingPage,
		v.VisitedAt,
	).Error
}

func (r *repo) CountVisits(ctx context.Context, db *gorm.DB, influencerID snowflake.ID, from, to time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM utm_visits WHERE influencer_id = ?`
	args := []any{influencerID}
	if !from.IsZero() {
		query += ` AND visited_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND visited_at < ?`
		args = append(args, to)
	}
	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
