package planner

import (
	"fmt"
	"sort"
)

// CellRef 单元格坐标（列下标含 MonthOffset）
type CellRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MainKey 主表脏单元格标识
func MainKey(row, col int) string { return fmt.Sprintf("main_%d_%d", row, col) }

// LedgerKey 需求表脏单元格标识
func LedgerKey(row, col int) string { return fmt.Sprintf("ctb_%d_%d", row, col) }

// Tracker 记录自上次保存以来被修改的单元格
type Tracker struct {
	main   map[CellRef]struct{}
	ledger map[CellRef]struct{}
}

// NewTracker 创建空的变更记录
func NewTracker() *Tracker {
	return &Tracker{
		main:   make(map[CellRef]struct{}),
		ledger: make(map[CellRef]struct{}),
	}
}

// MarkMain 标记主表单元格
func (t *Tracker) MarkMain(row, col int) { t.main[CellRef{row, col}] = struct{}{} }

// MarkLedger 标记需求表单元格
func (t *Tracker) MarkLedger(row, col int) { t.ledger[CellRef{row, col}] = struct{}{} }

// Dirty 是否有未保存修改
func (t *Tracker) Dirty() bool { return len(t.main) > 0 || len(t.ledger) > 0 }

// MainCells 主表脏单元格（按行列排序）
func (t *Tracker) MainCells() []CellRef { return sortedRefs(t.main) }

// LedgerCells 需求表脏单元格（按行列排序）
func (t *Tracker) LedgerCells() []CellRef { return sortedRefs(t.ledger) }

// MainKeys 主表脏单元格标识
func (t *Tracker) MainKeys() []string {
	refs := t.MainCells()
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = MainKey(r.Row, r.Col)
	}
	return keys
}

// LedgerKeys 需求表脏单元格标识
func (t *Tracker) LedgerKeys() []string {
	refs := t.LedgerCells()
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = LedgerKey(r.Row, r.Col)
	}
	return keys
}

// ClearMain 清空主表记录
func (t *Tracker) ClearMain() { t.main = make(map[CellRef]struct{}) }

// ClearLedger 清空需求表记录
func (t *Tracker) ClearLedger() { t.ledger = make(map[CellRef]struct{}) }

// Clear 清空全部记录
func (t *Tracker) Clear() {
	t.ClearMain()
	t.ClearLedger()
}

func (t *Tracker) unmarkMain(refs []CellRef) {
	for _, r := range refs {
		delete(t.main, r)
	}
}

func (t *Tracker) unmarkLedger(refs []CellRef) {
	for _, r := range refs {
		delete(t.ledger, r)
	}
}

// DropLedgerRow 删除需求行后，丢弃该行记录并把后续行的记录前移
func (t *Tracker) DropLedgerRow(row int) {
	next := make(map[CellRef]struct{}, len(t.ledger))
	for r := range t.ledger {
		switch {
		case r.Row == row:
			continue
		case r.Row > row:
			next[CellRef{r.Row - 1, r.Col}] = struct{}{}
		default:
			next[r] = struct{}{}
		}
	}
	t.ledger = next
}

func sortedRefs(m map[CellRef]struct{}) []CellRef {
	out := make([]CellRef, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}
