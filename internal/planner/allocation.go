package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"capacityplanner/internal/model"
)

var (
	ErrRowNotEditable  = errors.New("row is not editable")
	ErrMonthLocked     = errors.New("month is in the past")
	ErrMonthOutOfRange = errors.New("month index out of range")
	ErrRowOutOfRange   = errors.New("ledger row index out of range")
	ErrInvalidAmount   = errors.New("amount must be a finite number")
	ErrCTBAggregated   = errors.New("CTB row is aggregated from the ledger")
)

// CapacityExceeded 输入超过剩余产能时的提示，值已被截断到上限
type CapacityExceeded struct {
	Row        string  `json:"row"`
	MonthIndex int     `json:"monthIndex"`
	Requested  float64 `json:"requested"`
	Max        float64 `json:"max"`
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("Cannot exceed Remaining Capacity! %s month %d: requested %v, max %v",
		e.Row, e.MonthIndex, e.Requested, e.Max)
}

// EditResult 单元格编辑结果
type EditResult struct {
	Requested       float64           `json:"requested"`
	Stored          float64           `json:"stored"`
	Max             float64           `json:"max"`
	NegativeClamped bool              `json:"negativeClamped"`
	Inert           bool              `json:"inert"` // 数据未加载，编辑未生效
	Warning         *CapacityExceeded `json:"warning,omitempty"`
}

// MaxAllowed RTB/CTB 在指定月份可录入的上限：max(0, Forecasted - 另一行)
// 其它行返回 UnboundedMax；参考行缺失时返回 0
func (t *Table) MaxAllowed(monthIdx int, label string) float64 {
	v, ok := t.maxAllowed(monthIdx, label)
	if !ok {
		if label != model.LabelRTB && label != model.LabelCTB {
			return UnboundedMax
		}
		return 0
	}
	return toFloat(v)
}

func (t *Table) maxAllowed(monthIdx int, label string) (decimal.Decimal, bool) {
	var other string
	switch label {
	case model.LabelRTB:
		other = model.LabelCTB
	case model.LabelCTB:
		other = model.LabelRTB
	default:
		return decimal.Zero, false
	}
	f, ok1 := t.amountAt(model.LabelForecasted, monthIdx)
	o, ok2 := t.amountAt(other, monthIdx)
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return floorZero(f.Sub(o)), true
}

// limit 负数归零，超过上限截断并记录提示
func limit(res *EditResult, row string, monthIdx int, candidate float64, max decimal.Decimal) decimal.Decimal {
	v := decf(candidate)
	if v.IsNegative() {
		v = decimal.Zero
		res.NegativeClamped = true
	}
	res.Max = toFloat(max)
	if v.GreaterThan(max) {
		res.Warning = &CapacityExceeded{Row: row, MonthIndex: monthIdx, Requested: candidate, Max: res.Max}
		v = max
	}
	res.Stored = toFloat(v)
	return v
}

func checkAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyEdit 编辑主表 RTB/CTB 单元格
// 值先归零再按上限截断，写入后重新计算当月剩余产能并记录变更
// 账本已加载时 CTB 行由账本汇总，只能通过需求行修改
func (s *State) ApplyEdit(label string, monthIdx int, candidate float64) (EditResult, error) {
	if label != model.LabelRTB && label != model.LabelCTB {
		return EditResult{}, ErrRowNotEditable
	}
	if err := checkAmount(candidate); err != nil {
		return EditResult{}, err
	}
	res := EditResult{Requested: candidate}
	if !s.Table.Loaded() {
		res.Inert = true
		return res, nil
	}
	if label == model.LabelCTB && s.LedgerLoaded {
		return EditResult{}, ErrCTBAggregated
	}
	c := s.Table.cell(label, monthIdx)
	if c == nil {
		return EditResult{}, ErrMonthOutOfRange
	}
	if !IsEditable(label, c.Month, c.Year, s.now()) {
		return EditResult{}, ErrMonthLocked
	}

	max, _ := s.Table.maxAllowed(monthIdx, label)
	v := limit(&res, label, monthIdx, candidate, max)
	c.Amount = floatPtr(v)
	s.Table.recomputeRemaining(monthIdx)
	s.Tracker.MarkMain(s.Table.RowIndex(label), monthIdx+MonthOffset)
	return res, nil
}
