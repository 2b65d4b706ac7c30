package planner

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"capacityplanner/internal/model"
)

func TestMaxAllowed(t *testing.T) {
	tbl := NewTable(testRows(100, 40, 25))

	tests := []struct {
		name  string
		label string
		want  float64
	}{
		{"编辑 RTB 扣除 CTB", model.LabelRTB, 75},
		{"编辑 CTB 扣除 RTB", model.LabelCTB, 60},
		{"静态行返回哨兵值", "Headcount", UnboundedMax},
		{"Remaining 行返回哨兵值", model.LabelRemaining, UnboundedMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.MaxAllowed(3, tt.label); got != tt.want {
				t.Errorf("MaxAllowed(3, %q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestMaxAllowedFloorsAtZero(t *testing.T) {
	tbl := NewTable(testRows(50, 80, 0))
	if got := tbl.MaxAllowed(3, model.LabelCTB); got != 0 {
		t.Errorf("MaxAllowed = %v, want 0", got)
	}
}

func TestMaxAllowedMissingRows(t *testing.T) {
	rows := testRows(100, 40, 0)
	tbl := NewTable(rows[:2]) // 没有 CTB 行
	if got := tbl.MaxAllowed(3, model.LabelRTB); got != 0 {
		t.Errorf("MaxAllowed without CTB row = %v, want 0", got)
	}
	if got := NewTable(nil).MaxAllowed(0, model.LabelCTB); got != 0 {
		t.Errorf("MaxAllowed on empty table = %v, want 0", got)
	}
}

// TestApplyEditClamp Forecasted=100, RTB=40，CTB 输入 80 截断为 60 并给出提示
func TestApplyEditClamp(t *testing.T) {
	s := newTestState(100, 40, 0)

	res, err := s.ApplyEdit(model.LabelCTB, 3, 80)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if res.Stored != 60 {
		t.Errorf("Stored = %v, want 60", res.Stored)
	}
	if res.Warning == nil {
		t.Fatal("expected capacity warning")
	}
	if res.Warning.Max != 60 || res.Warning.Requested != 80 {
		t.Errorf("Warning = %+v", res.Warning)
	}
	if got := s.Table.Amount(model.LabelCTB, 3); got != 60 {
		t.Errorf("CTB[3] = %v, want 60", got)
	}
	if got := s.Table.Amount(model.LabelRemaining, 3); got != 0 {
		t.Errorf("Remaining[3] = %v, want 0", got)
	}
	keys := s.Tracker.MainKeys()
	if len(keys) != 1 || keys[0] != "main_2_5" {
		t.Errorf("dirty keys = %v, want [main_2_5]", keys)
	}
}

func TestApplyEditWithinLimit(t *testing.T) {
	s := newTestState(100, 40, 10)

	res, err := s.ApplyEdit(model.LabelRTB, 4, 55.5)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if res.Warning != nil || res.NegativeClamped {
		t.Errorf("unexpected flags: %+v", res)
	}
	if got := s.Table.Amount(model.LabelRTB, 4); got != 55.5 {
		t.Errorf("RTB[4] = %v, want 55.5", got)
	}
	if got := s.Table.Amount(model.LabelRemaining, 4); !near(got, 34.5) {
		t.Errorf("Remaining[4] = %v, want 34.5", got)
	}
}

// TestApplyEditNegative 负数输入存为 0
func TestApplyEditNegative(t *testing.T) {
	s := newTestState(100, 40, 0)

	res, err := s.ApplyEdit(model.LabelRTB, 3, -5)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if !res.NegativeClamped {
		t.Error("expected NegativeClamped")
	}
	if got := s.Table.Amount(model.LabelRTB, 3); got != 0 {
		t.Errorf("RTB[3] = %v, want 0", got)
	}
	if got := s.Table.Amount(model.LabelRemaining, 3); got != 100 {
		t.Errorf("Remaining[3] = %v, want 100", got)
	}
}

func TestApplyEditRejected(t *testing.T) {
	tests := []struct {
		name   string
		label  string
		month  int
		amount float64
		want   error
	}{
		{"静态行不可编辑", "Headcount", 3, 1, ErrRowNotEditable},
		{"Forecasted 不可编辑", model.LabelForecasted, 3, 1, ErrRowNotEditable},
		{"历史月份锁定", model.LabelRTB, 0, 1, ErrMonthLocked},
		{"月份越界", model.LabelRTB, testMonths, 1, ErrMonthOutOfRange},
		{"非法数字", model.LabelRTB, 3, math.NaN(), ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(100, 40, 0)
			_, err := s.ApplyEdit(tt.label, tt.month, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if s.Tracker.Dirty() {
				t.Error("rejected edit must not mark cells dirty")
			}
		})
	}
}

// TestApplyEditInert 参考行缺失时编辑不生效
func TestApplyEditInert(t *testing.T) {
	rows := testRows(100, 40, 0)
	s := NewState(rows[:2], WithClock(fixedClock))

	res, err := s.ApplyEdit(model.LabelRTB, 3, 10)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if !res.Inert {
		t.Error("expected inert edit")
	}
	if got := s.Table.Amount(model.LabelRTB, 3); got != 40 {
		t.Errorf("RTB[3] = %v, want unchanged 40", got)
	}
	if s.Tracker.Dirty() {
		t.Error("inert edit must not mark cells dirty")
	}
}

func TestApplyEditCTBWithLedger(t *testing.T) {
	s := newTestState(100, 40, 0)
	s.LoadLedger(nil)

	if _, err := s.ApplyEdit(model.LabelCTB, 3, 10); !errors.Is(err, ErrCTBAggregated) {
		t.Errorf("err = %v, want ErrCTBAggregated", err)
	}
}

// TestCapacityHoldsAfterRandomEdits 任意编辑序列后 RTB+CTB<=Forecasted 且 Remaining 为派生值
func TestCapacityHoldsAfterRandomEdits(t *testing.T) {
	checkAll := func(t *testing.T, s *State, step int) {
		t.Helper()
		for m := 0; m < testMonths; m++ {
			f := s.Table.Amount(model.LabelForecasted, m)
			r := s.Table.Amount(model.LabelRTB, m)
			c := s.Table.Amount(model.LabelCTB, m)
			rem := s.Table.Amount(model.LabelRemaining, m)
			if r+c > f+1e-9 {
				t.Fatalf("step %d month %d: RTB %v + CTB %v > Forecasted %v", step, m, r, c, f)
			}
			if !near(rem, f-r-c) {
				t.Fatalf("step %d month %d: Remaining %v != %v", step, m, rem, f-r-c)
			}
		}
	}

	t.Run("仅主表", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		s := newTestState(100, 0, 0)
		for step := 0; step < 500; step++ {
			label := model.LabelRTB
			if rng.Intn(2) == 0 {
				label = model.LabelCTB
			}
			_, _ = s.ApplyEdit(label, 2+rng.Intn(testMonths-2), rng.Float64()*160-20)
			checkAll(t, s, step)
		}
	})

	t.Run("主表加账本", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		s := newTestState(100, 0, 0)
		s.LoadLedger([]CtbRow{
			ledgerRow("A", model.StatusPrioritized, nil),
			ledgerRow("B", model.StatusPrioritized, nil),
			ledgerRow("C", model.StatusDeferred, nil),
		})
		for step := 0; step < 800; step++ {
			m := 2 + rng.Intn(testMonths-2)
			v := rng.Float64()*120 - 10
			switch rng.Intn(3) {
			case 0:
				_, _ = s.ApplyEdit(model.LabelRTB, m, v)
			default:
				_, _ = s.SetLedgerAmount(rng.Intn(3), m, v)
			}
			checkAll(t, s, step)
		}
	})
}
