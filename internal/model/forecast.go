package model

import "fmt"

// 固定行标签
const (
	LabelForecasted = "Forecasted Capacity"
	LabelRTB        = "RTB"
	LabelCTB        = "Capacity Requested by (CTB)"
	LabelRemaining  = "Remaining Capacity"
)

// 账本行在 capacityBottom 中使用的列标签
const (
	ColumnLabelStatus = "Status"
	ColumnLabelTotal  = "Total"
)

// ForecastColumn 预测表单元格
type ForecastColumn struct {
	ID          int64    `json:"id"`
	Month       *int     `json:"month"`  // 1-12，表头/合计列为空
	Year        *int     `json:"year"`   // 表头/合计列为空
	Amount      *float64 `json:"amount"` // nil 表示未录入
	ColumnLabel string   `json:"columnLabel"`
	RowLabel    string   `json:"rowLabel"`
	CellCSS     string   `json:"cellCss"`

	// 数据接口附带字段
	TransformationUnitID int64  `json:"transformationUnitId,omitempty"`
	Status               string `json:"status,omitempty"`
	BcID                 int64  `json:"bcId,omitempty"`
	ForecastDetailID     int64  `json:"transformationUnitForecastDetailId,omitempty"`
}

// ForecastRow 预测表行：[0] 行头，[1] 合计，[2..] 月份
type ForecastRow struct {
	ForecastColumns []ForecastColumn `json:"forecastColumns"`
}

// Label 行标签（取自行头列）
func (r ForecastRow) Label() string {
	if len(r.ForecastColumns) == 0 {
		return ""
	}
	return r.ForecastColumns[0].RowLabel
}

// HasMonth 列是否带有年月
func (c ForecastColumn) HasMonth() bool {
	return c.Month != nil && c.Year != nil
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthLabel 月份列标签，如 "Jan-2025"
func MonthLabel(month, year int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d-%d", month, year)
	}
	return fmt.Sprintf("%s-%d", monthNames[month-1], year)
}

// IntPtr 返回 v 的指针
func IntPtr(v int) *int { return &v }

// FloatPtr 返回 v 的指针
func FloatPtr(v float64) *float64 { return &v }

// FloatValue nil 视为 0
func FloatValue(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
