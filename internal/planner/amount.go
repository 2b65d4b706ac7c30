package planner

import "github.com/shopspring/decimal"

// 金额计算统一使用 decimal，对外仍以 float64 表示

func dec(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func decf(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func toFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func floatPtr(d decimal.Decimal) *float64 {
	v := toFloat(d)
	return &v
}
