package shift

import "github.com/shopspring/decimal"

// Summary is the first wizard step: what the till took since the shift
// started. Only cash feeds the drawer; card and mobile are informational.
type Summary struct {
	Cash      decimal.Decimal
	Card      decimal.Decimal
	Mobile    decimal.Decimal
	Total     decimal.Decimal
	Expected  decimal.Decimal
	SaleCount int
}

// Summarize buckets completed sales dated at or after the shift start.
// Pending and refunded sales never moved money into the drawer and are
// skipped.
func Summarize(r Record, sales []Sale) Summary {
	s := Summary{
		Cash:   decimal.Zero,
		Card:   decimal.Zero,
		Mobile: decimal.Zero,
	}
	for _, sale := range sales {
		if sale.Date.Before(r.StartTime) || sale.Status != SaleCompleted {
			continue
		}
		switch sale.Method {
		case MethodCash:
			s.Cash = s.Cash.Add(sale.Total)
		case MethodCard:
			s.Card = s.Card.Add(sale.Total)
		case MethodMobile:
			s.Mobile = s.Mobile.Add(sale.Total)
		default:
			continue
		}
		s.SaleCount++
	}
	s.Total = s.Cash.Add(s.Card).Add(s.Mobile)
	s.Expected = r.OpeningFloat.Add(s.Cash)
	return s
}
