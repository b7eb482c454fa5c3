package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrSlotNotPaid = errors.New("slot_not_paid")

var receiptZone = time.FixedZone("KST", 9*60*60)

// Loader resolves a record from whichever store holds it.
type Loader interface {
	Load(ctx context.Context, line, id string) (*reconcile.Result, error)
}

type Params struct {
	fx.In

	Cfg     config.Config
	Catalog *config.CatalogHolder
	Loader  Loader
	Log     *zap.Logger
}

type Service struct {
	issuer   string
	fontPath string
	catalog  *config.CatalogHolder
	loader   Loader
	log      *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		issuer:   p.Cfg.Receipt.Issuer,
		fontPath: p.Cfg.Receipt.FontPath,
		catalog:  p.Catalog,
		loader:   p.Loader,
		log:      p.Log.Named("receipt.service"),
	}
}

type Document struct {
	Filename string
	Body     []byte
}

// Generate renders the receipt of one paid slot. kind is either a slot key
// of the line or one of its redirect type discriminators.
func (s *Service) Generate(ctx context.Context, lineName, id, kind string) (*Document, error) {
	lineCfg, ok := s.catalog.Get().Line(lineName)
	if !ok {
		return nil, domain.ErrUnknownProductLine
	}
	slot := resolveSlot(lineCfg, kind)

	res, err := s.loader.Load(ctx, lineCfg.Name, id)
	if err != nil {
		return nil, err
	}
	rec := res.Record
	current, ok := rec.Slot(slot)
	if !ok {
		return nil, domain.ErrUnknownSlot
	}
	if !current.Paid {
		return nil, ErrSlotNotPaid
	}

	data := Data{
		Issuer:        s.issuer,
		ReceiptNumber: receiptNumber(rec.ID, slot),
		RecordID:      rec.ID,
		OrderName:     lineCfg.OrderName,
		CustomerName:  rec.Input.UserName,
		OriginalPrice: lineCfg.OriginalPrice,
	}
	if current.PurchasedAt != nil {
		data.PaidAt = current.PurchasedAt.In(receiptZone).Format("2006-01-02 15:04 KST")
	}
	if info := rec.PaymentInfo; info != nil {
		data.Price = info.Price
		data.Method = string(info.Method)
		data.CouponCode = info.CouponCode
		data.OrderID = info.OrderID
	}
	if data.OriginalPrice < data.Price {
		data.OriginalPrice = data.Price
	}

	body, err := Render(data, s.fontPath)
	if err != nil {
		s.log.Error("render receipt", zap.String("record_id", rec.ID), zap.Error(err))
		return nil, err
	}
	return &Document{
		Filename: fmt.Sprintf("receipt-%s-%s.pdf", rec.ID, slot),
		Body:     body,
	}, nil
}

func resolveSlot(line config.ProductLineConfig, kind string) domain.SlotKey {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return domain.SlotKey(line.PrimarySlot)
	}
	if slot, ok := line.RedirectTypes[kind]; ok {
		return domain.SlotKey(slot)
	}
	return domain.SlotKey(kind)
}

func receiptNumber(id string, slot domain.SlotKey) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return strings.ToUpper(short + "-" + string(slot))
}
