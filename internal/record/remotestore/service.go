package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/smallbiznis/facesaju/pkg/db"
	"github.com/smallbiznis/facesaju/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  Repository
}

// Service is the authoritative record store. Every write reads the current
// row inside a transaction and merges with domain.MergeMostUnlocked, so a
// paid slot never regresses here either.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  Repository
}

func New(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("record.remotestore"),
		clock: clk,
		repo:  p.Repo,
	}
}

// Get returns nil, nil when no row exists.
func (s *Service) Get(ctx context.Context, line domain.ProductLine, id string) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	if row.ProductLine != "" && row.ProductLine != line.Name {
		return nil, domain.ErrProductLineMismatch
	}
	return toRecord(row, line)
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, s.db, strings.TrimSpace(id))
}

// Upsert merges rec into the stored row, creating it when absent. changed
// is false when the row already held everything rec carries.
func (s *Service) Upsert(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error) {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return nil, false, domain.ErrInvalidRecordID
	}
	var (
		out     *domain.AnalysisRecord
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, changed, err = s.upsertTx(ctx, tx, line, rec)
		return err
	})
	if err != nil && db.IsDuplicateKeyErr(err) {
		// lost an insert race; the row exists now, so merge into it
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			out, changed, err = s.upsertTx(ctx, tx, line, rec)
			return err
		})
	}
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (s *Service) upsertTx(ctx context.Context, tx *gorm.DB, line domain.ProductLine, rec *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error) {
	id := strings.TrimSpace(rec.ID)
	row, err := s.repo.FindByID(ctx, tx, id, true)
	if err != nil {
		return nil, false, err
	}

	var current *domain.AnalysisRecord
	if row != nil {
		current, err = toRecord(row, line)
		if err != nil {
			return nil, false, err
		}
	}

	incoming := rec.Clone()
	incoming.ID = id
	incoming.ProductLine = line.Name
	merged, changed := domain.MergeMostUnlocked(current, incoming, line)
	if !changed && row != nil {
		return merged, false, nil
	}

	now := s.clock.Now().UTC()
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now
	next, err := fromRecord(merged)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return merged, true, s.repo.Insert(ctx, tx, next)
	}
	return merged, true, s.repo.Update(ctx, tx, next)
}

// MarkPaid sets a slot paid on the remote row. It is idempotent and fails
// with domain.ErrRecordNotFound when no row exists.
func (s *Service) MarkPaid(ctx context.Context, line domain.ProductLine, id string, slot domain.SlotKey, info domain.PaymentInfo) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	var out *domain.AnalysisRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if row == nil {
			return domain.ErrRecordNotFound
		}
		rec, err := toRecord(row, line)
		if err != nil {
			return err
		}
		applied, err := domain.ApplyPayment(rec, line, slot, info, s.clock.Now())
		if err != nil {
			return err
		}
		out = rec
		if !applied {
			return nil
		}
		next, err := fromRecord(rec)
		if err != nil {
			return err
		}
		return s.repo.Update(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var ErrInvalidPageToken = errors.New("invalid_page_token")

// ListPaid pages through rows with at least one purchase, ordered by first
// purchase time.
func (s *Service) ListPaid(ctx context.Context, req ListPaidRequest) ([]PaidAnalysis, pagination.PageInfo, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()
	filter := paidFilter{
		ProductLine:  strings.TrimSpace(req.ProductLine),
		InfluencerID: strings.TrimSpace(req.InfluencerID),
		From:         req.From,
		To:           req.To,
		Limit:        limit + 1,
	}
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, pagination.PageInfo{}, ErrInvalidPageToken
		}
		after, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, ErrInvalidPageToken
		}
		filter.AfterPaidAt = &after
		filter.AfterID = cursor.ID
	}

	rows, err := s.repo.ListPaid(ctx, s.db, filter)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	rows, info := pagination.BuildCursorPageInfo(rows, limit, func(r Row) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        r.ID,
			CreatedAt: r.PaidAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	items := make([]PaidAnalysis, 0, len(rows))
	for _, r := range rows {
		items = append(items, toPaidAnalysis(r))
	}
	return items, info, nil
}

func toPaidAnalysis(r Row) PaidAnalysis {
	out := PaidAnalysis{
		ID:           r.ID,
		ProductLine:  r.ProductLine,
		UTMSource:    r.UTMSource,
		InfluencerID: r.InfluencerID,
	}
	if r.PaidAt != nil {
		out.PaidAt = r.PaidAt.UTC()
	}
	if raw := rawOrNil(r.PaymentInfo); raw != nil {
		var info domain.PaymentInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			out.Method = string(info.Method)
			out.Price = info.Price
			out.CouponCode = info.CouponCode
		}
	}
	return out
}
