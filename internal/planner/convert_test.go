package planner

import (
	"testing"

	"capacityplanner/internal/model"
)

func TestLedgerFromRows(t *testing.T) {
	tbl := NewTable(testRows(100, 10, 0))
	rows := []model.ForecastRow{
		{ForecastColumns: []model.ForecastColumn{
			{RowLabel: "Payments Revamp", BcID: 42},
			{ColumnLabel: model.ColumnLabelStatus, Status: "prioritized"},
			{ColumnLabel: model.ColumnLabelTotal, Amount: model.FloatPtr(45)},
			{ID: 9001, ColumnLabel: "Feb-2025", Amount: model.FloatPtr(15), ForecastDetailID: 3, TransformationUnitID: 680},
			{ID: 9002, ColumnLabel: "Apr-2025", Amount: model.FloatPtr(30)},
		}},
		{ForecastColumns: []model.ForecastColumn{
			{RowLabel: "Data Lake"},
			{ColumnLabel: model.ColumnLabelStatus, Status: "Cancelled"},
		}},
	}

	got := LedgerFromRows(tbl, rows)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first := got[0]
	if first.Name != "Payments Revamp" || first.Status != model.StatusPrioritized || first.BcID != 42 || first.IsNewRow {
		t.Errorf("first = %+v", first)
	}
	if len(first.Columns) != testMonths {
		t.Fatalf("len(columns) = %d, want %d", len(first.Columns), testMonths)
	}
	if c := first.Columns[1]; c.ID != 9001 || c.DetailID != 3 || c.TransformationUnitID != 680 || *c.Amount != 15 {
		t.Errorf("Feb cell = %+v", c)
	}
	if c := first.Columns[3]; c.ID != 9002 || *c.Amount != 30 {
		t.Errorf("Apr cell = %+v", c)
	}
	if c := first.Columns[0]; c.Amount == nil || *c.Amount != 0 {
		t.Errorf("Jan cell = %+v, want 0", c)
	}
	if first.Total() != 45 {
		t.Errorf("Total = %v, want 45", first.Total())
	}

	if got[1].Status != model.StatusCanceled {
		t.Errorf("second status = %q, want Canceled", got[1].Status)
	}
}

func TestLoadLedgerAggregates(t *testing.T) {
	s := newTestState(100, 10, 99)
	s.LoadLedger(LedgerFromRows(s.Table, []model.ForecastRow{
		{ForecastColumns: []model.ForecastColumn{
			{RowLabel: "A"},
			{ColumnLabel: model.ColumnLabelStatus, Status: "Prioritized"},
			{ColumnLabel: "Jun-2025", Amount: model.FloatPtr(25)},
		}},
	}))
	if got := s.Table.Amount(model.LabelCTB, 5); got != 25 {
		t.Errorf("CTB[5] = %v, want 25", got)
	}
	if got := s.Table.Amount(model.LabelCTB, 0); got != 0 {
		t.Errorf("CTB[0] = %v, want 0", got)
	}
	if got := s.Table.Amount(model.LabelRemaining, 5); got != 65 {
		t.Errorf("Remaining[5] = %v, want 65", got)
	}
}
