package planner

import (
	"math"
	"time"

	"capacityplanner/internal/model"
)

// 固定时钟：2025 年 3 月，表从 2025 年 1 月开始，前两个月为历史月份
var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

const testMonths = 12

func testRow(rowIdx int, label string, amount float64) model.ForecastRow {
	cols := []model.ForecastColumn{
		{RowLabel: label},
		{ColumnLabel: model.ColumnLabelTotal, RowLabel: label},
	}
	for i := 0; i < testMonths; i++ {
		m, y := i%12+1, 2025+i/12
		cols = append(cols, model.ForecastColumn{
			ID:          int64(rowIdx*100 + i + 1),
			Month:       model.IntPtr(m),
			Year:        model.IntPtr(y),
			Amount:      model.FloatPtr(amount),
			ColumnLabel: model.MonthLabel(m, y),
			RowLabel:    label,
		})
	}
	return model.ForecastRow{ForecastColumns: cols}
}

// testRows Forecasted/RTB/CTB/Remaining 四行加一条静态行
func testRows(forecast, rtb, ctb float64) []model.ForecastRow {
	return []model.ForecastRow{
		testRow(0, model.LabelForecasted, forecast),
		testRow(1, model.LabelRTB, rtb),
		testRow(2, model.LabelCTB, ctb),
		testRow(3, model.LabelRemaining, 0),
		testRow(4, "Headcount", 5),
	}
}

func newTestState(forecast, rtb, ctb float64) *State {
	return NewState(testRows(forecast, rtb, ctb), WithClock(fixedClock))
}

func ledgerRow(name string, status model.Status, amounts map[int]float64) CtbRow {
	cols := make([]LedgerCell, testMonths)
	for i := range cols {
		cols[i].Amount = model.FloatPtr(amounts[i])
	}
	return CtbRow{Name: name, Status: status, Columns: cols}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
