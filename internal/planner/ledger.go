package planner

import (
	"errors"

	"github.com/shopspring/decimal"

	"capacityplanner/internal/model"
)

var (
	ErrStatusNotAllowed = errors.New("status not allowed for existing row")
	ErrInvalidStatus    = errors.New("unknown status")
	ErrLedgerNotLoaded  = errors.New("ledger not loaded")
)

// LedgerCell 需求行的月份单元格
type LedgerCell struct {
	ID                   int64    `json:"id"`
	Amount               *float64 `json:"amount"`
	DetailID             int64    `json:"detailId"`
	TransformationUnitID int64    `json:"transformationUnitId,omitempty"`
}

// CtbRow 需求行
type CtbRow struct {
	Name     string       `json:"name"`
	Status   model.Status `json:"status"`
	IsNewRow bool         `json:"isNewRow"`
	BcID     int64        `json:"bcId"`
	Columns  []LedgerCell `json:"columns"`
}

// Total 行合计
func (r CtbRow) Total() float64 {
	total := decimal.Zero
	for _, c := range r.Columns {
		total = total.Add(dec(c.Amount))
	}
	return toFloat(total)
}

// Prioritized 是否计入 CTB
func (r CtbRow) Prioritized() bool { return r.Status == model.StatusPrioritized }

func (r CtbRow) amountAt(monthIdx int) decimal.Decimal {
	if monthIdx < 0 || monthIdx >= len(r.Columns) {
		return decimal.Zero
	}
	return dec(r.Columns[monthIdx].Amount)
}

// Ledger 需求账本
type Ledger struct {
	Rows []CtbRow
}

// sumPrioritized 指定月份 Prioritized 行合计，except 行除外（-1 表示不排除）
func (l *Ledger) sumPrioritized(monthIdx, except int) decimal.Decimal {
	sum := decimal.Zero
	for i, r := range l.Rows {
		if i == except || !r.Prioritized() {
			continue
		}
		sum = sum.Add(r.amountAt(monthIdx))
	}
	return sum
}

// Aggregate 把 Prioritized 行逐月合计写入 CTB 行，并重算剩余产能
func (l *Ledger) Aggregate(t *Table) {
	ri := t.RowIndex(model.LabelCTB)
	if ri < 0 {
		return
	}
	cols := t.Rows[ri].ForecastColumns
	for ci := MonthOffset; ci < len(cols); ci++ {
		cols[ci].Amount = floatPtr(l.sumPrioritized(ci-MonthOffset, -1))
	}
	t.recomputeAllRemaining()
}

// StatusOptions 需求行可选状态；已有行不能选 New
func StatusOptions(row CtbRow) []model.StatusOption {
	out := make([]model.StatusOption, 0, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		out = append(out, model.StatusOption{
			Label:    string(st),
			Value:    st,
			Disabled: st == model.StatusNew && !row.IsNewRow,
		})
	}
	return out
}

// StatusChange 状态变更结果
type StatusChange struct {
	Previous      model.Status `json:"previous"`
	Current       model.Status `json:"current"`
	Included      bool         `json:"included"` // 变为 Prioritized，开始计入 CTB
	Excluded      bool         `json:"excluded"` // 离开 Prioritized，不再计入 CTB
	OverAllocated []int        `json:"overAllocated,omitempty"`
}

func (s *State) ledgerRow(rowIdx int) (*CtbRow, error) {
	if !s.LedgerLoaded {
		return nil, ErrLedgerNotLoaded
	}
	if rowIdx < 0 || rowIdx >= len(s.Ledger.Rows) {
		return nil, ErrRowOutOfRange
	}
	return &s.Ledger.Rows[rowIdx], nil
}

// AddLedgerRow 追加一条空需求行，月份金额置 0
func (s *State) AddLedgerRow() (int, error) {
	if !s.LedgerLoaded {
		return -1, ErrLedgerNotLoaded
	}
	months := s.Table.Months()
	cols := make([]LedgerCell, s.Table.MonthCount())
	for _, m := range months {
		cols[m.Index].Amount = model.FloatPtr(0)
	}
	s.Ledger.Rows = append(s.Ledger.Rows, CtbRow{IsNewRow: true, Columns: cols})
	s.Ledger.Aggregate(s.Table)
	return len(s.Ledger.Rows) - 1, nil
}

func (s *State) ledgerMax(rowIdx, monthIdx int) (decimal.Decimal, bool) {
	f, ok1 := s.Table.amountAt(model.LabelForecasted, monthIdx)
	r, ok2 := s.Table.amountAt(model.LabelRTB, monthIdx)
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return floorZero(f.Sub(r).Sub(s.Ledger.sumPrioritized(monthIdx, rowIdx))), true
}

// LedgerMaxAllowed 需求行在指定月份可录入的上限：
// max(0, Forecasted - RTB - 其它 Prioritized 行合计)
func (s *State) LedgerMaxAllowed(rowIdx, monthIdx int) float64 {
	v, _ := s.ledgerMax(rowIdx, monthIdx)
	return toFloat(v)
}

// SetLedgerAmount 编辑需求行金额
func (s *State) SetLedgerAmount(rowIdx, monthIdx int, candidate float64) (EditResult, error) {
	row, err := s.ledgerRow(rowIdx)
	if err != nil {
		return EditResult{}, err
	}
	if err := checkAmount(candidate); err != nil {
		return EditResult{}, err
	}
	res := EditResult{Requested: candidate}
	if !s.Table.Loaded() {
		res.Inert = true
		return res, nil
	}
	if monthIdx < 0 || monthIdx >= len(row.Columns) {
		return EditResult{}, ErrMonthOutOfRange
	}
	max, ok := s.ledgerMax(rowIdx, monthIdx)
	if !ok {
		res.Inert = true
		return res, nil
	}

	v := limit(&res, row.Name, monthIdx, candidate, max)
	row.Columns[monthIdx].Amount = floatPtr(v)
	s.Tracker.MarkLedger(rowIdx, monthIdx)
	s.Ledger.Aggregate(s.Table)
	return res, nil
}

// SetLedgerStatus 修改需求行状态
// 状态变化可能让已有金额进入 CTB 合计，此时不截断，只在结果中报告超配月份
func (s *State) SetLedgerStatus(rowIdx int, status model.Status) (StatusChange, error) {
	row, err := s.ledgerRow(rowIdx)
	if err != nil {
		return StatusChange{}, err
	}
	if status != model.StatusUnset && !status.Valid() {
		return StatusChange{}, ErrInvalidStatus
	}
	if status == model.StatusNew && !row.IsNewRow {
		return StatusChange{}, ErrStatusNotAllowed
	}

	prev := row.Status
	row.Status = status
	// 状态随该行单元格一起保存
	if prev != status {
		for col := range row.Columns {
			s.Tracker.MarkLedger(rowIdx, col)
		}
	}
	s.Ledger.Aggregate(s.Table)
	return StatusChange{
		Previous:      prev,
		Current:       status,
		Included:      prev != model.StatusPrioritized && status == model.StatusPrioritized,
		Excluded:      prev == model.StatusPrioritized && status != model.StatusPrioritized,
		OverAllocated: s.Table.OverAllocatedMonths(),
	}, nil
}

// SelectLedgerName 为需求行选定名称
func (s *State) SelectLedgerName(rowIdx int, opt model.DemandOption) error {
	row, err := s.ledgerRow(rowIdx)
	if err != nil {
		return err
	}
	row.Name = opt.PlanningToolDisplayName
	row.BcID = opt.BcID
	row.IsNewRow = false
	return nil
}

// RemoveLedgerRow 删除需求行
func (s *State) RemoveLedgerRow(rowIdx int) error {
	if _, err := s.ledgerRow(rowIdx); err != nil {
		return err
	}
	s.Ledger.Rows = append(s.Ledger.Rows[:rowIdx], s.Ledger.Rows[rowIdx+1:]...)
	s.Tracker.DropLedgerRow(rowIdx)
	s.Ledger.Aggregate(s.Table)
	return nil
}
