package planner

import (
	"time"

	"capacityplanner/internal/model"
)

// Plan 页面和导出共用的只读视图
type Plan struct {
	Months []MonthRef   `json:"months"`
	Rows   []PlanRow    `json:"rows"`
	Ledger []LedgerView `json:"ledger"`
}

// PlanRow 预测表行
type PlanRow struct {
	Index    int        `json:"index"`
	Label    string     `json:"label"`
	Total    float64    `json:"total"`
	Editable bool       `json:"editable"`
	Cells    []PlanCell `json:"cells"`
}

// PlanCell 预测表单元格，Remaining 行给出派生值
type PlanCell struct {
	MonthIndex int      `json:"monthIndex"`
	Amount     *float64 `json:"amount"`
	Editable   bool     `json:"editable"`
	Max        *float64 `json:"max,omitempty"`
	CellCSS    string   `json:"cellCss,omitempty"`
}

// LedgerView 需求行
type LedgerView struct {
	Index         int                  `json:"index"`
	Name          string               `json:"name"`
	Status        model.Status         `json:"status"`
	IsNewRow      bool                 `json:"isNewRow"`
	BcID          int64                `json:"bcId"`
	Total         float64              `json:"total"`
	Amounts       []*float64           `json:"amounts"`
	StatusOptions []model.StatusOption `json:"statusOptions"`
}

func (s *State) editable(label string, month, year *int, now time.Time) bool {
	if label == model.LabelCTB && s.LedgerLoaded {
		return false
	}
	return IsEditable(label, month, year, now)
}

// Plan 生成当前状态的只读视图
func (s *State) Plan() Plan {
	now := s.now()
	p := Plan{Months: s.Table.Months()}
	loaded := s.Table.Loaded()

	for ri, r := range s.Table.Rows {
		label := r.Label()
		pr := PlanRow{Index: ri, Label: label, Total: s.Table.RowTotal(r)}
		for ci := MonthOffset; ci < len(r.ForecastColumns); ci++ {
			col := r.ForecastColumns[ci]
			m := ci - MonthOffset
			cell := PlanCell{MonthIndex: m, Amount: col.Amount, CellCSS: col.CellCSS}
			if label == model.LabelRemaining && loaded {
				cell.Amount = model.FloatPtr(s.Table.RemainingAt(m))
			}
			if loaded && s.editable(label, col.Month, col.Year, now) {
				cell.Editable = true
				pr.Editable = true
				cell.Max = model.FloatPtr(s.Table.MaxAllowed(m, label))
			}
			pr.Cells = append(pr.Cells, cell)
		}
		p.Rows = append(p.Rows, pr)
	}

	for i, r := range s.Ledger.Rows {
		lv := LedgerView{
			Index:         i,
			Name:          r.Name,
			Status:        r.Status,
			IsNewRow:      r.IsNewRow,
			BcID:          r.BcID,
			Total:         r.Total(),
			Amounts:       make([]*float64, len(r.Columns)),
			StatusOptions: StatusOptions(r),
		}
		for j, c := range r.Columns {
			lv.Amounts[j] = c.Amount
		}
		p.Ledger = append(p.Ledger, lv)
	}
	return p
}
