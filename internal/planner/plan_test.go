package planner

import (
	"testing"

	"capacityplanner/internal/model"
)

func TestPlan(t *testing.T) {
	s := newTestState(100, 40, 0)
	s.LoadLedger([]CtbRow{ledgerRow("A", model.StatusPrioritized, map[int]float64{2: 10})})

	p := s.Plan()
	if len(p.Months) != testMonths || len(p.Rows) != 5 || len(p.Ledger) != 1 {
		t.Fatalf("plan sizes: %d months, %d rows, %d ledger", len(p.Months), len(p.Rows), len(p.Ledger))
	}

	rtb := p.Rows[1]
	if rtb.Label != model.LabelRTB || !rtb.Editable {
		t.Errorf("RTB row = %+v", rtb)
	}
	if rtb.Cells[0].Editable {
		t.Error("past month should not be editable")
	}
	if c := rtb.Cells[2]; !c.Editable || c.Max == nil || *c.Max != 90 {
		t.Errorf("RTB[2] = %+v, want editable with max 90", c)
	}

	// 账本已加载，CTB 行只读
	if p.Rows[2].Editable {
		t.Error("CTB row should be read-only while the ledger is loaded")
	}
	if got := *p.Rows[3].Cells[2].Amount; got != 50 {
		t.Errorf("Remaining[2] = %v, want 50", got)
	}
	if p.Ledger[0].Total != 10 || len(p.Ledger[0].StatusOptions) != 4 {
		t.Errorf("ledger view = %+v", p.Ledger[0])
	}
}
