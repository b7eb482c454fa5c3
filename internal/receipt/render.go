package receipt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/johnfercher/maroto/v2/pkg/repository"
)

const fontFamily = "receipt-utf8"

// Data is everything printed on a receipt.
type Data struct {
	Issuer        string
	ReceiptNumber string
	RecordID      string
	OrderName     string
	CustomerName  string
	PaidAt        string
	Method        string
	CouponCode    string
	OrderID       string
	OriginalPrice int64
	Price         int64
}

// Render lays out a single-page receipt. fontPath is optional.
func Render(data Data, fontPath string) ([]byte, error) {
	builder := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		})
	if fontPath != "" {
		fonts, err := repository.New().
			AddUTF8Font(fontFamily, fontstyle.Normal, fontPath).
			AddUTF8Font(fontFamily, fontstyle.Bold, fontPath).
			Load()
		if err != nil {
			return nil, fmt.Errorf("load receipt font: %w", err)
		}
		builder = builder.WithCustomFonts(fonts).WithDefaultFont(&props.Font{Family: fontFamily})
	}

	m := maroto.New(builder.Build())

	m.AddRow(20,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.PaidAt, props.Text{Top: 5}),
			text.New("Analysis: "+data.RecordID, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(data.CustomerName, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, won(data.Price)+" paid on "+data.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "List price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(6, data.OrderName, props.Text{Size: 9}),
		text.NewCol(3, won(data.OriginalPrice), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(3, won(data.Price), props.Text{Size: 9, Align: align.Right}),
	)

	if discount := data.OriginalPrice - data.Price; discount > 0 {
		label := "Discount"
		if data.CouponCode != "" {
			label += " (" + data.CouponCode + ")"
		}
		m.AddRow(10,
			col.New(6),
			text.NewCol(3, label, props.Text{Size: 9}),
			text.NewCol(3, "-"+won(discount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(3, won(data.Price), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Method", props.Text{Size: 9}),
		text.NewCol(3, data.Method, props.Text{Size: 9, Align: align.Right}),
	)
	if data.OrderID != "" {
		m.AddRow(10,
			text.NewCol(12, "Order "+data.OrderID, props.Text{Size: 8, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// won formats an amount with thousands separators, e.g. 14,900 KRW.
func won(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := b.String() + " KRW"
	if neg {
		out = "-" + out
	}
	return out
}
