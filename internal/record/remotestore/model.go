package remotestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/facesaju/internal/record/domain"
	"gorm.io/datatypes"
)

// Row is the authoritative copy of a record. Client-only state (gate
// sessions, the analysis marker, seenIntro) is never stored here.
type Row struct {
	ID            string         `gorm:"column:id;primaryKey"`
	ProductLine   string         `gorm:"column:product_line"`
	SchemaVersion int            `gorm:"column:schema_version"`
	UserInfo      datatypes.JSON `gorm:"column:user_info"`
	RawResult     datatypes.JSON `gorm:"column:raw_result"`
	Report        datatypes.JSON `gorm:"column:report"`
	IsPaid        bool           `gorm:"column:is_paid"`
	PaidAt        *time.Time     `gorm:"column:paid_at"`
	PaymentInfo   datatypes.JSON `gorm:"column:payment_info"`
	UTMSource     string         `gorm:"column:utm_source"`
	UTMMedium     string         `gorm:"column:utm_medium"`
	UTMCampaign   string         `gorm:"column:utm_campaign"`
	InfluencerID  string         `gorm:"column:influencer_id"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (Row) TableName() string { return "analyses" }

// toRecord feeds the row through the same versioned decoder as local
// payloads. Version 0 rows hold a single report payload and a row-level
// paid flag.
func toRecord(row *Row, line domain.ProductLine) (*domain.AnalysisRecord, error) {
	doc := map[string]any{
		"schemaVersion": row.SchemaVersion,
		"id":            row.ID,
		"productLine":   row.ProductLine,
		"createdAt":     row.CreatedAt,
		"updatedAt":     row.UpdatedAt,
		"paid":          row.IsPaid,
	}
	if raw := rawOrNil(row.UserInfo); raw != nil {
		doc["input"] = raw
	}
	if raw := rawOrNil(row.RawResult); raw != nil {
		doc["rawExternalResult"] = raw
	}
	if raw := rawOrNil(row.PaymentInfo); raw != nil {
		doc["paymentInfo"] = raw
	}
	if raw := rawOrNil(row.Report); raw != nil {
		if row.SchemaVersion == 0 {
			doc["report"] = raw
		} else {
			doc["reports"] = raw
		}
	}
	if row.PaidAt != nil {
		doc["paidAt"] = row.PaidAt.UTC()
	}
	if row.UTMSource != "" || row.InfluencerID != "" {
		doc["attribution"] = domain.Attribution{
			UTMSource:    row.UTMSource,
			UTMMedium:    row.UTMMedium,
			UTMCampaign:  row.UTMCampaign,
			InfluencerID: row.InfluencerID,
		}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	rec, _, err := domain.Decode(payload, line)
	if err != nil {
		return nil, fmt.Errorf("remote row %s: %w", row.ID, err)
	}
	return rec, nil
}

func fromRecord(rec *domain.AnalysisRecord) (*Row, error) {
	userInfo, err := json.Marshal(rec.Input)
	if err != nil {
		return nil, err
	}
	reports, err := json.Marshal(rec.Reports)
	if err != nil {
		return nil, err
	}
	row := &Row{
		ID:            rec.ID,
		ProductLine:   rec.ProductLine,
		SchemaVersion: domain.CurrentSchemaVersion,
		UserInfo:      datatypes.JSON(userInfo),
		Report:        datatypes.JSON(reports),
		IsPaid:        rec.Paid,
		PaidAt:        firstPurchase(rec),
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
	if len(rec.RawExternalResult) > 0 {
		row.RawResult = datatypes.JSON(rec.RawExternalResult)
	}
	if rec.PaymentInfo != nil {
		info, err := json.Marshal(rec.PaymentInfo)
		if err != nil {
			return nil, err
		}
		row.PaymentInfo = datatypes.JSON(info)
	}
	if a := rec.Attribution; a != nil {
		row.UTMSource = a.UTMSource
		row.UTMMedium = a.UTMMedium
		row.UTMCampaign = a.UTMCampaign
		row.InfluencerID = a.InfluencerID
	}
	return row, nil
}

func firstPurchase(rec *domain.AnalysisRecord) *time.Time {
	var first *time.Time
	for _, slot := range rec.Reports {
		if !slot.Paid || slot.PurchasedAt == nil {
			continue
		}
		if first == nil || slot.PurchasedAt.Before(*first) {
			t := slot.PurchasedAt.UTC()
			first = &t
		}
	}
	return first
}

func rawOrNil(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return json.RawMessage(j)
}

// PaidAnalysis is the settlement view of a paid row.
type PaidAnalysis struct {
	ID           string    `json:"id"`
	ProductLine  string    `json:"product_line"`
	PaidAt       time.Time `json:"paid_at"`
	Method       string    `json:"method"`
	Price        int64     `json:"price"`
	CouponCode   string    `json:"coupon_code,omitempty"`
	UTMSource    string    `json:"utm_source,omitempty"`
	InfluencerID string    `json:"influencer_id,omitempty"`
}

type ListPaidRequest struct {
	ProductLine  string
	InfluencerID string
	From         time.Time
	To           time.Time
	PageToken    string
	PageSize     int
}
