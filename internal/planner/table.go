package planner

import (
	"strings"

	"github.com/shopspring/decimal"

	"capacityplanner/internal/model"
)

const (
	// MonthOffset 月份列在行内的起始下标（0 行头，1 合计）
	MonthOffset = 2

	// UnboundedMax 非 RTB/CTB 行没有上限时返回的哨兵值
	UnboundedMax = 999999
)

// MonthRef 月份列引用
type MonthRef struct {
	Index int    `json:"index"` // 月份下标（从 0 开始）
	Month int    `json:"month"`
	Year  int    `json:"year"`
	Label string `json:"label"`
}

// Table 预测表
type Table struct {
	Rows []model.ForecastRow
}

// NewTable 创建预测表（复制行，调用方之后的修改不会影响表）
func NewTable(rows []model.ForecastRow) *Table {
	t := &Table{Rows: make([]model.ForecastRow, len(rows))}
	for i, r := range rows {
		cols := make([]model.ForecastColumn, len(r.ForecastColumns))
		copy(cols, r.ForecastColumns)
		t.Rows[i] = model.ForecastRow{ForecastColumns: cols}
	}
	return t
}

func labelMatches(rowLabel, label string) bool {
	if label == model.LabelForecasted {
		return strings.Contains(rowLabel, "Forecasted")
	}
	return rowLabel == label
}

// RowIndex 按行标签查找行，找不到返回 -1
func (t *Table) RowIndex(label string) int {
	if t == nil {
		return -1
	}
	for i, r := range t.Rows {
		if labelMatches(r.Label(), label) {
			return i
		}
	}
	return -1
}

// Loaded Forecasted/RTB/CTB 三行是否都已加载
func (t *Table) Loaded() bool {
	return t.RowIndex(model.LabelForecasted) >= 0 &&
		t.RowIndex(model.LabelRTB) >= 0 &&
		t.RowIndex(model.LabelCTB) >= 0
}

// MonthCount 月份列数量（以首行为准）
func (t *Table) MonthCount() int {
	if t == nil || len(t.Rows) == 0 {
		return 0
	}
	n := len(t.Rows[0].ForecastColumns) - MonthOffset
	if n < 0 {
		return 0
	}
	return n
}

// Months 带年月的月份列（需求表按此对齐）
func (t *Table) Months() []MonthRef {
	n := t.MonthCount()
	out := make([]MonthRef, 0, n)
	for i := 0; i < n; i++ {
		col := t.Rows[0].ForecastColumns[i+MonthOffset]
		if !col.HasMonth() {
			continue
		}
		out = append(out, MonthRef{
			Index: i,
			Month: *col.Month,
			Year:  *col.Year,
			Label: model.MonthLabel(*col.Month, *col.Year),
		})
	}
	return out
}

// MonthAt 月份下标对应的年月
func (t *Table) MonthAt(monthIdx int) (month, year int, ok bool) {
	if monthIdx < 0 || monthIdx >= t.MonthCount() {
		return 0, 0, false
	}
	col := t.Rows[0].ForecastColumns[monthIdx+MonthOffset]
	if !col.HasMonth() {
		return 0, 0, false
	}
	return *col.Month, *col.Year, true
}

// cell 返回指定行、月份的单元格指针，不存在返回 nil
func (t *Table) cell(label string, monthIdx int) *model.ForecastColumn {
	ri := t.RowIndex(label)
	if ri < 0 || monthIdx < 0 {
		return nil
	}
	cols := t.Rows[ri].ForecastColumns
	ci := monthIdx + MonthOffset
	if ci >= len(cols) {
		return nil
	}
	return &cols[ci]
}

func (t *Table) amountAt(label string, monthIdx int) (decimal.Decimal, bool) {
	c := t.cell(label, monthIdx)
	if c == nil {
		return decimal.Zero, false
	}
	return dec(c.Amount), true
}

// Amount 指定行、月份的金额（nil 视为 0）
func (t *Table) Amount(label string, monthIdx int) float64 {
	v, _ := t.amountAt(label, monthIdx)
	return toFloat(v)
}
