package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"capacityplanner/internal/model"
)

// ErrNothingToSave 没有未保存的修改
var ErrNothingToSave = errors.New("nothing to save")

// Group 保存分组
type Group string

const (
	GroupMain   Group = "main"
	GroupLedger Group = "ledger"
)

// CellWriter 数据接口的单元格写入
type CellWriter interface {
	SaveMainCell(ctx context.Context, p model.MainCellPayload) error
	SaveLedgerCell(ctx context.Context, p model.LedgerCellPayload) error
}

// SaveDefaults 单元格缺少标识时使用的默认值
type SaveDefaults struct {
	TransformationUnitID int64
	BcID                 int64
	ForecastDetailID     int64
}

// DefaultSaveDefaults 默认值
func DefaultSaveDefaults() SaveDefaults {
	return SaveDefaults{TransformationUnitID: 679, BcID: 29, ForecastDetailID: 740}
}

// SaveReport 保存结果
type SaveReport struct {
	MainWrites   int     `json:"mainWrites"`
	LedgerWrites int     `json:"ledgerWrites"`
	Saved        []Group `json:"saved"`
	Failed       []Group `json:"failed,omitempty"`
}

// SaveError 部分或全部分组保存失败
type SaveError struct {
	Failed map[Group]error
}

func (e *SaveError) Error() string {
	groups := make([]string, 0, len(e.Failed))
	for g := range e.Failed {
		groups = append(groups, string(g))
	}
	sort.Strings(groups)
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s: %v", g, e.Failed[Group(g)]))
	}
	return "failed to save " + strings.Join(parts, "; ")
}

func (e *SaveError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// Coordinator 把脏单元格批量写入数据接口
type Coordinator struct {
	writer   CellWriter
	defaults SaveDefaults
	parallel int
}

// NewCoordinator 创建保存协调器，parallel <= 0 表示不限制并发
func NewCoordinator(w CellWriter, defaults SaveDefaults, parallel int) *Coordinator {
	return &Coordinator{writer: w, defaults: defaults, parallel: parallel}
}

type mainWrite struct {
	ref     CellRef
	payload model.MainCellPayload
}

type ledgerWrite struct {
	ref     CellRef
	payload model.LedgerCellPayload
}

func orDefault(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

// mainWrites 脏单元格中年月和金额齐全的才会写入
func (c *Coordinator) mainWrites(s *State) []mainWrite {
	var out []mainWrite
	for _, ref := range s.Tracker.MainCells() {
		if ref.Row < 0 || ref.Row >= len(s.Table.Rows) {
			continue
		}
		cols := s.Table.Rows[ref.Row].ForecastColumns
		if ref.Col < 0 || ref.Col >= len(cols) {
			continue
		}
		col := cols[ref.Col]
		if !col.HasMonth() || col.Amount == nil {
			continue
		}
		out = append(out, mainWrite{ref: ref, payload: model.MainCellPayload{
			ID:                   col.ID,
			TransformationUnitID: orDefault(col.TransformationUnitID, c.defaults.TransformationUnitID),
			Amount:               *col.Amount,
			Month:                *col.Month,
			Year:                 *col.Year,
		}})
	}
	return out
}

// ledgerWrites 年月取自预测表首行对应的月份列
func (c *Coordinator) ledgerWrites(s *State) []ledgerWrite {
	var out []ledgerWrite
	for _, ref := range s.Tracker.LedgerCells() {
		if ref.Row < 0 || ref.Row >= len(s.Ledger.Rows) {
			continue
		}
		row := s.Ledger.Rows[ref.Row]
		if ref.Col < 0 || ref.Col >= len(row.Columns) {
			continue
		}
		cell := row.Columns[ref.Col]
		month, year, ok := s.Table.MonthAt(ref.Col)
		if cell.Amount == nil || !ok {
			continue
		}
		out = append(out, ledgerWrite{ref: ref, payload: model.LedgerCellPayload{
			ID:                   cell.ID,
			TransformationUnitID: orDefault(cell.TransformationUnitID, c.defaults.TransformationUnitID),
			BcID:                 orDefault(row.BcID, c.defaults.BcID),
			Amount:               *cell.Amount,
			Month:                month,
			Year:                 year,
			ForecastDetailID:     orDefault(cell.DetailID, c.defaults.ForecastDetailID),
			Status:               row.Status,
		}})
	}
	return out
}

func (c *Coordinator) group() *errgroup.Group {
	g := new(errgroup.Group)
	if c.parallel > 0 {
		g.SetLimit(c.parallel)
	}
	return g
}

// Save 并发写入两组脏单元格并统一等待
// 一组全部成功才清除该组的脏记录；写入期间被再次修改的单元格保持为脏
func (c *Coordinator) Save(ctx context.Context, s *State) (SaveReport, error) {
	if !s.Tracker.Dirty() {
		return SaveReport{}, ErrNothingToSave
	}

	mainRefs := s.Tracker.MainCells()
	ledgerRefs := s.Tracker.LedgerCells()
	mains := c.mainWrites(s)
	ledgers := c.ledgerWrites(s)
	report := SaveReport{MainWrites: len(mains), LedgerWrites: len(ledgers)}

	var (
		mu     sync.Mutex
		failed = make(map[Group]error)
	)
	fail := func(g Group, err error) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := failed[g]; !ok {
			failed[g] = err
		}
	}

	mg, lg := c.group(), c.group()
	for _, w := range mains {
		w := w
		mg.Go(func() error {
			if err := c.writer.SaveMainCell(ctx, w.payload); err != nil {
				fail(GroupMain, err)
				return err
			}
			return nil
		})
	}
	for _, w := range ledgers {
		w := w
		lg.Go(func() error {
			if err := c.writer.SaveLedgerCell(ctx, w.payload); err != nil {
				fail(GroupLedger, err)
				return err
			}
			return nil
		})
	}
	_ = mg.Wait()
	_ = lg.Wait()

	if len(mainRefs) > 0 {
		if _, bad := failed[GroupMain]; bad {
			report.Failed = append(report.Failed, GroupMain)
		} else {
			s.Tracker.unmarkMain(settledMain(s, mainRefs, mains))
			report.Saved = append(report.Saved, GroupMain)
		}
	}
	if len(ledgerRefs) > 0 {
		if _, bad := failed[GroupLedger]; bad {
			report.Failed = append(report.Failed, GroupLedger)
		} else {
			s.Tracker.unmarkLedger(settledLedger(s, ledgerRefs, ledgers))
			report.Saved = append(report.Saved, GroupLedger)
		}
	}
	if len(failed) > 0 {
		return report, &SaveError{Failed: failed}
	}
	return report, nil
}

// settledMain 写入值仍与当前值一致的单元格（未写入的单元格直接视为已结算）
func settledMain(s *State, refs []CellRef, writes []mainWrite) []CellRef {
	sent := make(map[CellRef]float64, len(writes))
	for _, w := range writes {
		sent[w.ref] = w.payload.Amount
	}
	out := make([]CellRef, 0, len(refs))
	for _, ref := range refs {
		v, ok := sent[ref]
		if ok && ref.Row < len(s.Table.Rows) {
			cur := s.Table.Rows[ref.Row].ForecastColumns[ref.Col].Amount
			if cur == nil || *cur != v {
				continue
			}
		}
		out = append(out, ref)
	}
	return out
}

func settledLedger(s *State, refs []CellRef, writes []ledgerWrite) []CellRef {
	sent := make(map[CellRef]float64, len(writes))
	for _, w := range writes {
		sent[w.ref] = w.payload.Amount
	}
	out := make([]CellRef, 0, len(refs))
	for _, ref := range refs {
		v, ok := sent[ref]
		if ok {
			if ref.Row >= len(s.Ledger.Rows) || ref.Col >= len(s.Ledger.Rows[ref.Row].Columns) {
				continue
			}
			cur := s.Ledger.Rows[ref.Row].Columns[ref.Col].Amount
			if cur == nil || *cur != v {
				continue
			}
		}
		out = append(out, ref)
	}
	return out
}
