package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"capacityplanner/internal/cache"
	"capacityplanner/internal/model"
	"capacityplanner/internal/planner"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func monthRow(label string, amount float64) model.ForecastRow {
	cols := []model.ForecastColumn{{RowLabel: label}, {ColumnLabel: model.ColumnLabelTotal}}
	for m := 1; m <= 6; m++ {
		cols = append(cols, model.ForecastColumn{
			ID:          int64(m),
			Month:       model.IntPtr(m),
			Year:        model.IntPtr(2025),
			Amount:      model.FloatPtr(amount),
			ColumnLabel: model.MonthLabel(m, 2025),
			RowLabel:    label,
		})
	}
	return model.ForecastRow{ForecastColumns: cols}
}

// fakeBackend 记录调用顺序，可注入失败
type fakeBackend struct {
	mu          sync.Mutex
	calls       []string
	forecastErr error
	ledgerErr   error
	optionsErr  error
	saveErr     error
	optionCalls int
	saved       int
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) LoadForecast(context.Context) ([]model.ForecastRow, error) {
	b.record("forecast")
	if b.forecastErr != nil {
		return nil, b.forecastErr
	}
	return []model.ForecastRow{
		monthRow(model.LabelForecasted, 100),
		monthRow(model.LabelRTB, 40),
		monthRow(model.LabelCTB, 0),
		monthRow(model.LabelRemaining, 0),
	}, nil
}

func (b *fakeBackend) LoadLedger(context.Context) ([]model.ForecastRow, error) {
	b.record("ledger")
	if b.ledgerErr != nil {
		return nil, b.ledgerErr
	}
	return []model.ForecastRow{{ForecastColumns: []model.ForecastColumn{
		{RowLabel: "Payments"},
		{ColumnLabel: model.ColumnLabelStatus, Status: "Prioritized"},
		{ColumnLabel: "Apr-2025", Amount: model.FloatPtr(20)},
	}}}, nil
}

func (b *fakeBackend) LoadDemandOptions(context.Context) ([]model.DemandOption, error) {
	b.mu.Lock()
	b.optionCalls++
	b.mu.Unlock()
	if b.optionsErr != nil {
		return nil, b.optionsErr
	}
	return []model.DemandOption{{BcID: 7, PlanningToolDisplayName: "Data Lake"}}, nil
}

func (b *fakeBackend) SaveMainCell(context.Context, model.MainCellPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved++
	return b.saveErr
}

func (b *fakeBackend) SaveLedgerCell(context.Context, model.LedgerCellPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved++
	return b.saveErr
}

func newTestManager(b *fakeBackend) *Manager {
	return NewManager(b, Options{
		Now:        func() time.Time { return testNow },
		OptionsTTL: time.Minute,
	})
}

// TestOpenLoadsForecastBeforeLedger 先加载预测表，再加载需求账本
func TestOpenLoadsForecastBeforeLedger(t *testing.T) {
	b := &fakeBackend{}
	m := newTestManager(b)

	v, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(b.calls) != 2 || b.calls[0] != "forecast" || b.calls[1] != "ledger" {
		t.Errorf("calls = %v", b.calls)
	}
	snap := v.Snapshot()
	if snap.Status != StatusReady || snap.Dirty {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := *snap.Plan.Rows[2].Cells[3].Amount; got != 20 {
		t.Errorf("CTB[3] = %v, want 20", got)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestOpenForecastFailure(t *testing.T) {
	b := &fakeBackend{forecastErr: errors.New("timeout")}
	m := newTestManager(b)

	v, err := m.Open(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	snap := v.Snapshot()
	if snap.Status != StatusFailed || snap.LoadError == "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(b.calls) != 1 {
		t.Errorf("ledger must not load after forecast failure: %v", b.calls)
	}
	res, _, err := v.Edit(model.LabelRTB, 3, 10)
	if err != nil || !res.Inert {
		t.Errorf("edit on failed view = %+v, %v; want inert", res, err)
	}
}

func TestOpenLedgerFailure(t *testing.T) {
	b := &fakeBackend{ledgerErr: errors.New("502")}
	m := newTestManager(b)

	v, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snap := v.Snapshot()
	if snap.Status != StatusReady || snap.LedgerError == "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, _, err := v.AddLedgerRow(); !errors.Is(err, planner.ErrLedgerNotLoaded) {
		t.Errorf("AddLedgerRow err = %v, want ErrLedgerNotLoaded", err)
	}
	// 账本不可用时 CTB 行可以直接编辑
	if _, _, err := v.Edit(model.LabelCTB, 3, 10); err != nil {
		t.Errorf("CTB edit failed: %v", err)
	}
}

func TestViewEditAndSave(t *testing.T) {
	b := &fakeBackend{}
	m := newTestManager(b)
	v, _ := m.Open(context.Background())

	res, snap, err := v.Edit(model.LabelRTB, 3, 500)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 80 || res.Warning == nil {
		t.Errorf("res = %+v, want clamp to 80", res)
	}
	if !snap.Dirty || len(snap.DirtyCells.Main) != 1 {
		t.Errorf("snapshot dirty = %+v", snap.DirtyCells)
	}
	if v.BeforeUnload() != planner.BeforeUnloadText {
		t.Error("dirty view should warn before unload")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 请求已取消，保存仍要完成
	report, snap, err := v.Save(ctx)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if report.MainWrites != 1 || snap.Dirty || b.saved != 1 {
		t.Errorf("report = %+v, dirty = %v, saved = %d", report, snap.Dirty, b.saved)
	}
	if _, _, err := v.Save(context.Background()); !errors.Is(err, planner.ErrNothingToSave) {
		t.Errorf("second save err = %v, want ErrNothingToSave", err)
	}
}

func TestViewLedgerFlow(t *testing.T) {
	b := &fakeBackend{}
	m := newTestManager(b)
	v, _ := m.Open(context.Background())

	idx, _, err := v.AddLedgerRow()
	if err != nil || idx != 1 {
		t.Fatalf("AddLedgerRow = %d, %v", idx, err)
	}
	opt, err := m.FindDemandOption(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := v.SelectLedgerName(idx, opt)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Plan.Ledger[idx].Name != "Data Lake" {
		t.Errorf("name = %q", snap.Plan.Ledger[idx].Name)
	}
	if _, _, err := v.SetLedgerStatus(idx, model.StatusPrioritized); err != nil {
		t.Fatal(err)
	}
	res, snap, err := v.SetLedgerAmount(idx, 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 40 {
		t.Errorf("stored = %v, want 40", res.Stored)
	}
	if got := *snap.Plan.Rows[2].Cells[3].Amount; got != 60 {
		t.Errorf("CTB[3] = %v, want 60", got)
	}
	snap, err = v.RemoveLedgerRow(idx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Dirty {
		t.Errorf("dirty cells of removed row should be dropped: %+v", snap.DirtyCells)
	}
}

func TestDemandOptionsCached(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, Options{Cache: cache.NewMemory(), OptionsTTL: time.Hour})

	for i := 0; i < 3; i++ {
		opts, err := m.DemandOptions(context.Background())
		if err != nil || len(opts) != 1 {
			t.Fatalf("DemandOptions = %v, %v", opts, err)
		}
	}
	if b.optionCalls != 1 {
		t.Errorf("backend calls = %d, want 1", b.optionCalls)
	}
	if _, err := m.FindDemandOption(context.Background(), 99); err == nil {
		t.Error("expected error for unknown bcId")
	}
}

func TestCloseGuard(t *testing.T) {
	decide := func(d planner.Decision) planner.Prompter {
		return planner.PrompterFunc(func(context.Context, planner.Prompt) (planner.Decision, error) {
			return d, nil
		})
	}

	b := &fakeBackend{}
	m := newTestManager(b)
	v, _ := m.Open(context.Background())
	v.Edit(model.LabelRTB, 3, 10)

	ok, err := m.Close(context.Background(), v.ID, decide(planner.DecisionCancel))
	if err != nil || ok {
		t.Fatalf("cancel: Close = %v, %v", ok, err)
	}
	if _, err := m.Get(v.ID); err != nil {
		t.Error("cancelled close must keep the view")
	}

	b.saveErr = errors.New("down")
	ok, err = m.Close(context.Background(), v.ID, decide(planner.DecisionSaveAndLeave))
	if err == nil || ok {
		t.Fatalf("failed save: Close = %v, %v", ok, err)
	}

	ok, err = m.Close(context.Background(), v.ID, decide(planner.DecisionDiscardAndLeave))
	if err != nil || !ok {
		t.Fatalf("discard: Close = %v, %v", ok, err)
	}
	if _, err := m.Get(v.ID); !errors.Is(err, ErrViewNotFound) {
		t.Errorf("Get after close err = %v", err)
	}
}

func TestDiscardReloads(t *testing.T) {
	b := &fakeBackend{}
	m := newTestManager(b)
	v, _ := m.Open(context.Background())
	v.Edit(model.LabelRTB, 3, 10)

	snap, err := v.Discard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Dirty {
		t.Error("discard should leave the view clean")
	}
	if got := *snap.Plan.Rows[1].Cells[3].Amount; got != 40 {
		t.Errorf("RTB[3] = %v, want reloaded 40", got)
	}
}

func TestDiscardRefreshesDemandOptions(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, Options{Cache: cache.NewMemory(), OptionsTTL: time.Hour})
	v, _ := m.Open(context.Background())

	if _, err := m.DemandOptions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Discard(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.DemandOptions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.optionCalls != 2 {
		t.Errorf("backend calls = %d, want 2 after discard", b.optionCalls)
	}
}

func TestDiscardReloadFailure(t *testing.T) {
	b := &fakeBackend{}
	m := newTestManager(b)
	v, _ := m.Open(context.Background())
	v.Edit(model.LabelRTB, 3, 10)

	b.forecastErr = errors.New("timeout")
	snap, err := v.Discard(context.Background())
	if err == nil {
		t.Fatal("discard should report the reload failure")
	}
	if !snap.Dirty {
		t.Error("failed discard must keep the edits dirty")
	}
	if got := *snap.Plan.Rows[1].Cells[3].Amount; got != 10 {
		t.Errorf("RTB[3] = %v, want edited 10", got)
	}

	prompted := false
	leave, err := v.Leave(context.Background(), planner.PrompterFunc(func(context.Context, planner.Prompt) (planner.Decision, error) {
		prompted = true
		return planner.DecisionCancel, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !prompted || leave {
		t.Errorf("leave = %v, prompted = %v; want a prompt and stay", leave, prompted)
	}
}

func TestSweep(t *testing.T) {
	now := testNow
	b := &fakeBackend{}
	m := NewManager(b, Options{Now: func() time.Time { return now }})
	idle, _ := m.Open(context.Background())
	busy, _ := m.Open(context.Background())
	busy.Edit(model.LabelRTB, 3, 1)

	now = now.Add(2 * time.Hour)
	if n := m.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if _, err := m.Get(idle.ID); err == nil {
		t.Error("idle view should be removed")
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Error("dirty view must be kept")
	}
}
