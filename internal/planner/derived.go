package planner

import (
	"time"

	"github.com/shopspring/decimal"

	"capacityplanner/internal/model"
)

// remainingAt Forecasted - RTB - CTB，任一参考行缺失时 ok=false
func (t *Table) remainingAt(monthIdx int) (decimal.Decimal, bool) {
	f, ok1 := t.amountAt(model.LabelForecasted, monthIdx)
	r, ok2 := t.amountAt(model.LabelRTB, monthIdx)
	c, ok3 := t.amountAt(model.LabelCTB, monthIdx)
	if !ok1 || !ok2 || !ok3 {
		return decimal.Zero, false
	}
	return f.Sub(r).Sub(c), true
}

// RemainingAt 指定月份的剩余产能，参考行缺失时返回 0
func (t *Table) RemainingAt(monthIdx int) float64 {
	v, _ := t.remainingAt(monthIdx)
	return toFloat(v)
}

// recomputeRemaining 回写 Remaining Capacity 行的指定月份
func (t *Table) recomputeRemaining(monthIdx int) {
	c := t.cell(model.LabelRemaining, monthIdx)
	if c == nil {
		return
	}
	v, ok := t.remainingAt(monthIdx)
	if !ok {
		return
	}
	c.Amount = floatPtr(v)
}

func (t *Table) recomputeAllRemaining() {
	for i := 0; i < t.MonthCount(); i++ {
		t.recomputeRemaining(i)
	}
}

// OverAllocatedMonths RTB + CTB 超过 Forecasted 的月份下标
func (t *Table) OverAllocatedMonths() []int {
	var out []int
	for i := 0; i < t.MonthCount(); i++ {
		v, ok := t.remainingAt(i)
		if ok && v.IsNegative() {
			out = append(out, i)
		}
	}
	return out
}

func isDynamicTotal(label string) bool {
	return label == model.LabelRTB || label == model.LabelCTB || label == model.LabelRemaining
}

// RowTotal 行合计
//   - RTB/CTB/Forecasted：按月份单元格重新求和，不信任已存合计
//   - Remaining：逐月 (Forecasted - RTB - CTB) 求和
//   - 其它行：返回合计列的值
func (t *Table) RowTotal(row model.ForecastRow) float64 {
	label := row.Label()
	switch {
	case label == model.LabelRemaining:
		if !t.Loaded() {
			return 0
		}
		total := decimal.Zero
		for i := 0; i < len(row.ForecastColumns)-MonthOffset; i++ {
			v, _ := t.remainingAt(i)
			total = total.Add(v)
		}
		return toFloat(total)
	case isDynamicTotal(label) || labelMatches(label, model.LabelForecasted):
		total := decimal.Zero
		for i := MonthOffset; i < len(row.ForecastColumns); i++ {
			total = total.Add(dec(row.ForecastColumns[i].Amount))
		}
		return toFloat(total)
	default:
		if len(row.ForecastColumns) > 1 {
			return model.FloatValue(row.ForecastColumns[1].Amount)
		}
		return 0
	}
}

// IsEditable 仅 RTB/CTB 行、且为当前或未来月份时可编辑
func IsEditable(rowLabel string, month, year *int, now time.Time) bool {
	if rowLabel != model.LabelRTB && rowLabel != model.LabelCTB {
		return false
	}
	if month == nil || year == nil {
		return false
	}
	curYear, curMonth := now.Year(), int(now.Month())
	if *year != curYear {
		return *year > curYear
	}
	return *month >= curMonth
}
