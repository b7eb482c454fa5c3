package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Influencer struct {
	ID           snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	Name         string       `json:"name" gorm:"column:name"`
	Slug         string       `json:"slug" gorm:"column:slug"`
	Platform     string       `json:"platform" gorm:"column:platform"`
	Contact      string       `json:"contact,omitempty" gorm:"column:contact"`
	Memo         string       `json:"memo,omitempty" gorm:"column:memo"`
	RSPercentage float64      `json:"rs_percentage" gorm:"column:rs_percentage"`
	IsActive     bool         `json:"is_active" gorm:"column:is_active"`
	CreatedAt    time.Time    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

func (Influencer) TableName() string { return "influencers" }

// Visit is one landing with utm parameters. InfluencerID is zero when the
// source matched no influencer.
type Visit struct {
	ID           snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	UTMSource    string       `json:"utm_source" gorm:"column:utm_source"`
	UTMMedium    string       `json:"utm_medium,omitempty" gorm:"column:utm_medium"`
	UTMCampaign  string       `json:"utm_campaign,omitempty" gorm:"column:utm_campaign"`
	InfluencerID snowflake.ID `json:"influencer_id,omitempty" gorm:"column:influencer_id"`
	LandingPage  string       `json:"landing_page,omitempty" gorm:"column:landing_page"`
	VisitedAt    time.Time    `json:"visited_at" gorm:"column:visited_at"`
}

func (Visit) TableName() string { return "utm_visits" }

type CreateInfluencerRequest struct {
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	Platform     string  `json:"platform"`
	Contact      string  `json:"contact"`
	Memo         string  `json:"memo"`
	RSPercentage float64 `json:"rs_percentage"`
}

type UpdateInfluencerRequest struct {
	Name         *string  `json:"name"`
	Slug         *string  `json:"slug"`
	Platform     *string  `json:"platform"`
	Contact      *string  `json:"contact"`
	Memo         *string  `json:"memo"`
	RSPercentage *float64 `json:"rs_percentage"`
	IsActive     *bool    `json:"is_active"`
}

type RecordVisitRequest struct {
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	LandingPage string `json:"landing_page"`
}

// InfluencerStats is an influencer with all-time totals.
type InfluencerStats struct {
	Influencer
	TotalVisits   int64 `json:"total_visits"`
	TotalPayments int64 `json:"total_payments"`
	TotalRevenue  int64 `json:"total_revenue"`
}

type SettlementRow struct {
	InfluencerID     string  `json:"influencer_id"`
	InfluencerName   string  `json:"influencer_name"`
	Slug             string  `json:"slug"`
	Platform         string  `json:"platform"`
	VisitCount       int64   `json:"visit_count"`
	PaymentCount     int64   `json:"payment_count"`
	TotalRevenue     int64   `json:"total_revenue"`
	RSPercentage     float64 `json:"rs_percentage"`
	SettlementAmount int64   `json:"settlement_amount"`
}

type Settlement struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Rows  []SettlementRow `json:"rows"`
}

// Payment is one paid analysis attributed to an influencer.
type Payment struct {
	RecordID    string    `json:"id"`
	ProductLine string    `json:"service_type"`
	Price       int64     `json:"price"`
	Method      string    `json:"method"`
	PaidAt      time.Time `json:"paid_at"`
}
