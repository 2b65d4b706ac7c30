package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"capacityplanner/internal/model"
	"capacityplanner/internal/planner"
)

// Status 视图状态
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// View 一次页面访问的状态，所有修改串行执行
type View struct {
	ID string

	m         *Manager
	mu        sync.Mutex
	state     *planner.State
	status    Status
	loadErr   string
	ledgerErr string
	openedAt  time.Time
	touched   time.Time
}

// DirtyCells 未保存单元格
type DirtyCells struct {
	Main   []string `json:"main"`
	Ledger []string `json:"ledger"`
}

// Snapshot 视图快照
type Snapshot struct {
	ID          string       `json:"id"`
	Status      Status       `json:"status"`
	LoadError   string       `json:"loadError,omitempty"`
	LedgerError string       `json:"ledgerError,omitempty"`
	Dirty       bool         `json:"dirty"`
	DirtyCells  DirtyCells   `json:"dirtyCells"`
	OpenedAt    time.Time    `json:"openedAt"`
	Plan        planner.Plan `json:"plan"`
}

// fetch 从数据接口构建新状态；需求账本加载失败不影响预测表
func (v *View) fetch(ctx context.Context) (*planner.State, string, error) {
	rows, err := v.m.backend.LoadForecast(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load forecast: %w", err)
	}
	state := planner.NewState(rows, planner.WithClock(v.m.now))

	ledgerRows, err := v.m.backend.LoadLedger(ctx)
	if err != nil {
		log.Warn().Err(err).Str("view", v.ID).Msg("需求账本加载失败")
		return state, err.Error(), nil
	}
	state.LoadLedger(planner.LedgerFromRows(state.Table, ledgerRows))
	return state, "", nil
}

// load 调用方需持有 v.mu
func (v *View) load(ctx context.Context) error {
	state, ledgerErr, err := v.fetch(ctx)
	if err != nil {
		v.status = StatusFailed
		v.loadErr = err.Error()
		return err
	}
	v.state = state
	v.ledgerErr = ledgerErr
	v.loadErr = ""
	v.status = StatusReady
	return nil
}

func (v *View) touch() { v.touched = v.m.now() }

func (v *View) idleSince(cutoff time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.touched.Before(cutoff) && !v.state.Tracker.Dirty()
}

func (v *View) snapshot() Snapshot {
	return Snapshot{
		ID:          v.ID,
		Status:      v.status,
		LoadError:   v.loadErr,
		LedgerError: v.ledgerErr,
		Dirty:       v.state.Tracker.Dirty(),
		DirtyCells: DirtyCells{
			Main:   v.state.Tracker.MainKeys(),
			Ledger: v.state.Tracker.LedgerKeys(),
		},
		OpenedAt: v.openedAt,
		Plan:     v.state.Plan(),
	}
}

// Snapshot 当前快照
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()
	return v.snapshot()
}

// Plan 当前只读视图（导出用）
func (v *View) Plan() planner.Plan {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Plan()
}

func editOutcome(res planner.EditResult, err error) string {
	switch {
	case err != nil:
		return "rejected"
	case res.Inert:
		return "inert"
	case res.Warning != nil:
		return "clamped"
	case res.NegativeClamped:
		return "negative"
	default:
		return "ok"
	}
}

// Edit 编辑主表单元格
func (v *View) Edit(label string, monthIdx int, amount float64) (planner.EditResult, Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	res, err := v.state.ApplyEdit(label, monthIdx, amount)
	v.m.metrics.RecordEdit("main", editOutcome(res, err))
	return res, v.snapshot(), err
}

// AddLedgerRow 新增需求行
func (v *View) AddLedgerRow() (int, Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	idx, err := v.state.AddLedgerRow()
	return idx, v.snapshot(), err
}

// SetLedgerAmount 编辑需求行金额
func (v *View) SetLedgerAmount(rowIdx, monthIdx int, amount float64) (planner.EditResult, Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	res, err := v.state.SetLedgerAmount(rowIdx, monthIdx, amount)
	v.m.metrics.RecordEdit("ledger", editOutcome(res, err))
	return res, v.snapshot(), err
}

// SetLedgerStatus 修改需求行状态
func (v *View) SetLedgerStatus(rowIdx int, status model.Status) (planner.StatusChange, Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	change, err := v.state.SetLedgerStatus(rowIdx, status)
	if err == nil && len(change.OverAllocated) > 0 {
		log.Warn().Str("view", v.ID).Ints("months", change.OverAllocated).Msg("状态变更导致产能超配")
	}
	return change, v.snapshot(), err
}

// SelectLedgerName 为需求行选定名称
func (v *View) SelectLedgerName(rowIdx int, opt model.DemandOption) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	err := v.state.SelectLedgerName(rowIdx, opt)
	return v.snapshot(), err
}

// RemoveLedgerRow 删除需求行
func (v *View) RemoveLedgerRow(rowIdx int) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	err := v.state.RemoveLedgerRow(rowIdx)
	return v.snapshot(), err
}

// Save 保存全部修改
// 使用脱离请求的 context，页面关闭不会中断进行中的保存
func (v *View) Save(ctx context.Context) (planner.SaveReport, Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	report, err := v.save(context.WithoutCancel(ctx))
	return report, v.snapshot(), err
}

func (v *View) save(ctx context.Context) (planner.SaveReport, error) {
	start := time.Now()
	report, err := v.m.saver.Save(ctx, v.state)
	if errors.Is(err, planner.ErrNothingToSave) {
		return report, err
	}
	v.recordSave(report, err, time.Since(start))
	return report, err
}

func (v *View) recordSave(report planner.SaveReport, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "failed"
		log.Error().Err(err).Str("view", v.ID).Msg("保存失败")
	} else {
		log.Info().Str("view", v.ID).Int("main", report.MainWrites).Int("ledger", report.LedgerWrites).Msg("保存完成")
	}
	v.m.metrics.ObserveSave(result, d)
}

// Discard 丢弃全部修改并从数据接口重新加载
// 重新加载失败时保留原有修改及脏标记
func (v *View) Discard(ctx context.Context) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	state, ledgerErr, err := v.fetch(ctx)
	if err != nil {
		return v.snapshot(), err
	}
	v.state = state
	v.ledgerErr = ledgerErr
	v.loadErr = ""
	v.status = StatusReady
	v.m.invalidateDemandOptions(ctx)
	return v.snapshot(), nil
}

// Leave 离开页面前的确认
func (v *View) Leave(ctx context.Context, p planner.Prompter) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	return planner.NewGuard(v.state, v.m.saver).CanLeave(context.WithoutCancel(ctx), p)
}

// BeforeUnload 浏览器关闭/刷新时的提示，无修改时为空
func (v *View) BeforeUnload() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return planner.NewGuard(v.state, v.m.saver).BeforeUnloadMessage()
}
