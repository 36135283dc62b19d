package shift

import (
	"github.com/shopspring/decimal"

	"github.com/warp/storeops-engine/generic"
)

// DefaultDenominations are the note and coin values counted at close.
func DefaultDenominations() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.NewFromInt(200),
		decimal.NewFromInt(100),
		decimal.NewFromInt(50),
		decimal.NewFromInt(10),
		decimal.NewFromInt(5),
		decimal.NewFromInt(1),
	}
}

// CashCount holds one count per denomination, aligned by index.
type CashCount struct {
	Denominations []decimal.Decimal
	Counts        []int
}

func NewCashCount(denoms []decimal.Decimal) CashCount {
	if len(denoms) == 0 {
		denoms = DefaultDenominations()
	}
	return CashCount{
		Denominations: append([]decimal.Decimal(nil), denoms...),
		Counts:        make([]int, len(denoms)),
	}
}

func cloneCount(c CashCount) CashCount {
	return CashCount{
		Denominations: append([]decimal.Decimal(nil), c.Denominations...),
		Counts:        append([]int(nil), c.Counts...),
	}
}

func (c CashCount) index(value decimal.Decimal) int {
	for i, d := range c.Denominations {
		if d.Equal(value) {
			return i
		}
	}
	return -1
}

// Set records n notes of value. Negative n is clamped to 0.
func (c *CashCount) Set(value decimal.Decimal, n int) error {
	i := c.index(value)
	if i < 0 {
		return generic.NewValidationError(generic.CodeUnknownDenomination,
			"denomination %s is not counted", value.String())
	}
	if n < 0 {
		n = 0
	}
	c.Counts[i] = n
	return nil
}

// Total is the sum of value * count.
func (c CashCount) Total() decimal.Decimal {
	sum := decimal.Zero
	for i, d := range c.Denominations {
		sum = sum.Add(d.Mul(decimal.NewFromInt(int64(c.Counts[i]))))
	}
	return sum
}

// Snapshot keys counts by denomination string, e.g. {"200": 3, "1": 0}.
func (c CashCount) Snapshot() map[string]int {
	out := make(map[string]int, len(c.Denominations))
	for i, d := range c.Denominations {
		out[d.String()] = c.Counts[i]
	}
	return out
}
