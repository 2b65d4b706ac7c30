package planner

import (
	"time"

	"capacityplanner/internal/model"
)

// State 一个页面会话的全部可变状态：预测表、需求账本和变更记录
// 不是并发安全的，调用方负责串行化
type State struct {
	Table   *Table
	Ledger  *Ledger
	Tracker *Tracker

	// LedgerLoaded 账本是否已加载（加载失败时保持 false，需求编辑不生效）
	LedgerLoaded bool

	now func() time.Time
}

// Option State 选项
type Option func(*State)

// WithClock 指定时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// NewState 用预测表行创建状态
func NewState(rows []model.ForecastRow, opts ...Option) *State {
	s := &State{
		Table:   NewTable(rows),
		Ledger:  &Ledger{},
		Tracker: NewTracker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Table.recomputeAllRemaining()
	return s
}

// Now 当前时间
func (s *State) Now() time.Time { return s.now() }

// LoadLedger 装入需求账本并重新汇总 CTB 行
// 必须在预测表加载之后调用
func (s *State) LoadLedger(rows []CtbRow) {
	s.Ledger = &Ledger{Rows: rows}
	s.LedgerLoaded = true
	s.Tracker.ClearLedger()
	s.Ledger.Aggregate(s.Table)
}
