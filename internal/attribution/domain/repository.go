package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertInfluencer(ctx context.Context, db *gorm.DB, inf *Influencer) error
	UpdateInfluencer(ctx context.Context, db *gorm.DB, inf *Influencer) error
	DeleteInfluencer(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindInfluencer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Influencer, error)
	FindInfluencerBySlug(ctx context.Context, db *gorm.DB, slug string) (*Influencer, error)
	ListInfluencers(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Influencer, error)
	InsertVisit(ctx context.Context, db *gorm.DB, visit *Visit) error
	// CountVisits counts visits in [from, to); zero bounds are open.
	CountVisits(ctx context.Context, db *gorm.DB, influencerID snowflake.ID, from, to time.Time) (int64, error)
}
