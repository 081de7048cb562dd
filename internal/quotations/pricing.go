package quotations

import (
	"strings"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// quotation_prices.base_price is numeric(14,4)
	maxBasePrice = decimal.New(1, 10)
)

const (
	linePricePlaces = 4
	discountPlaces  = 3
)

// PricedQuote is the outcome of pricing a set of lines. Line amounts carry the
// column scale of quotation_prices; totals are summed from those stored values
// and rounded to two places.
type PricedQuote struct {
	Lines         []models.QuotationPrice
	Total         decimal.Decimal
	DiscountTotal decimal.Decimal
}

// InvalidPriceLine is the 400 returned for a line without a usable base price.
func InvalidPriceLine(itemName string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid price line").
		WithDetails(map[string]any{"item": itemName})
}

// Price computes final = base - base*discount/100 per line and sums the
// results. A missing or non-numeric discount counts as zero. Inputs are rounded
// to the stored scale first so persisted lines re-sum to the stored total.
func Price(lines []PriceLineInput) (*PricedQuote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one price line is required")
	}

	out := &PricedQuote{Lines: make([]models.QuotationPrice, 0, len(lines))}
	total := decimal.Zero
	discountTotal := decimal.Zero
	for i, line := range lines {
		name := strings.TrimSpace(line.ItemName)
		if !line.BasePrice.Valid || line.BasePrice.Value.IsNegative() {
			return nil, InvalidPriceLine(name)
		}
		base := line.BasePrice.Value.Round(linePricePlaces)
		if !base.LessThan(maxBasePrice) {
			return nil, InvalidPriceLine(name)
		}
		discount := line.Discount.OrZero().Round(discountPlaces)
		if discount.IsNegative() || discount.GreaterThan(hundred) {
			return nil, InvalidPriceLine(name)
		}

		final := base.Sub(base.Mul(discount).Div(hundred)).Round(linePricePlaces)
		total = total.Add(final)
		discountTotal = discountTotal.Add(base.Sub(final))

		out.Lines = append(out.Lines, models.QuotationPrice{
			Position:   i,
			ItemName:   name,
			ProductID:  line.ProductID,
			BasePrice:  base,
			Discount:   discount,
			FinalPrice: final,
		})
	}
	out.Total = total.Round(2)
	out.DiscountTotal = discountTotal.Round(2)
	return out, nil
}
