package planner

import (
	"testing"
	"time"

	"capacityplanner/internal/model"
)

func TestRowTotal(t *testing.T) {
	rows := testRows(100, 40, 25)
	rows[4].ForecastColumns[1].Amount = model.FloatPtr(77) // 静态行的合计列
	rows[1].ForecastColumns[1].Amount = model.FloatPtr(1)  // RTB 已存合计不可信
	tbl := NewTable(rows)

	tests := []struct {
		name string
		row  model.ForecastRow
		want float64
	}{
		{"Forecasted 按月求和", tbl.Rows[0], 100 * testMonths},
		{"RTB 按月求和", tbl.Rows[1], 40 * testMonths},
		{"CTB 按月求和", tbl.Rows[2], 25 * testMonths},
		{"Remaining 按派生值求和", tbl.Rows[3], 35 * testMonths},
		{"静态行取合计列", tbl.Rows[4], 77},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.RowTotal(tt.row); !near(got, tt.want) {
				t.Errorf("RowTotal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRowTotalRemainingWithoutReferenceRows(t *testing.T) {
	rows := testRows(100, 40, 25)
	tbl := NewTable([]model.ForecastRow{rows[0], rows[3]})
	if got := tbl.RowTotal(tbl.Rows[1]); got != 0 {
		t.Errorf("RowTotal = %v, want 0", got)
	}
}

func TestRemainingDerivedOnLoad(t *testing.T) {
	s := newTestState(100, 40, 25)
	for m := 0; m < testMonths; m++ {
		if got := s.Table.Amount(model.LabelRemaining, m); got != 35 {
			t.Fatalf("Remaining[%d] = %v, want 35", m, got)
		}
	}
}

func TestIsEditable(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		label string
		month *int
		year  *int
		want  bool
	}{
		{"当月", model.LabelRTB, model.IntPtr(6), model.IntPtr(2025), true},
		{"未来月", model.LabelCTB, model.IntPtr(7), model.IntPtr(2025), true},
		{"明年较小月份", model.LabelRTB, model.IntPtr(1), model.IntPtr(2026), true},
		{"上月", model.LabelRTB, model.IntPtr(5), model.IntPtr(2025), false},
		{"去年较大月份", model.LabelRTB, model.IntPtr(12), model.IntPtr(2024), false},
		{"缺少年月", model.LabelRTB, nil, nil, false},
		{"Forecasted 行", model.LabelForecasted, model.IntPtr(7), model.IntPtr(2025), false},
		{"Remaining 行", model.LabelRemaining, model.IntPtr(7), model.IntPtr(2025), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEditable(tt.label, tt.month, tt.year, now); got != tt.want {
				t.Errorf("IsEditable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForecastedMatchedByContains(t *testing.T) {
	rows := testRows(100, 40, 0)
	rows[0].ForecastColumns[0].RowLabel = "Total Forecasted Capacity (FTE)"
	tbl := NewTable(rows)
	if !tbl.Loaded() {
		t.Fatal("table should be loaded")
	}
	if got := tbl.MaxAllowed(3, model.LabelCTB); got != 60 {
		t.Errorf("MaxAllowed = %v, want 60", got)
	}
}

func TestMonths(t *testing.T) {
	tbl := NewTable(testRows(1, 0, 0))
	months := tbl.Months()
	if len(months) != testMonths {
		t.Fatalf("len(months) = %d, want %d", len(months), testMonths)
	}
	if months[0].Label != "Jan-2025" || months[11].Label != "Dec-2025" {
		t.Errorf("labels = %s..%s", months[0].Label, months[11].Label)
	}
	if m, y, ok := tbl.MonthAt(2); !ok || m != 3 || y != 2025 {
		t.Errorf("MonthAt(2) = %d, %d, %v", m, y, ok)
	}
	if _, _, ok := tbl.MonthAt(testMonths); ok {
		t.Error("MonthAt out of range should fail")
	}
}
