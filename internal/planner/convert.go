package planner

import (
	"capacityplanner/internal/model"
)

// LedgerFromRows 把 capacityBottom 返回的行转换为需求行
//   - 名称取自行头列
//   - 状态取自 "Status" 列
//   - 月份金额按列标签与预测表首行的月份列匹配，缺失为 0
func LedgerFromRows(t *Table, rows []model.ForecastRow) []CtbRow {
	months := t.Months()
	out := make([]CtbRow, 0, len(rows))
	for _, r := range rows {
		row := CtbRow{
			Name:    r.Label(),
			Columns: make([]LedgerCell, t.MonthCount()),
		}
		for _, c := range r.ForecastColumns {
			if c.ColumnLabel == model.ColumnLabelStatus {
				row.Status = model.ParseStatus(c.Status)
			}
			if row.BcID == 0 && c.BcID > 0 {
				row.BcID = c.BcID
			}
		}
		for _, m := range months {
			header := t.Rows[0].ForecastColumns[m.Index+MonthOffset]
			cell := LedgerCell{Amount: model.FloatPtr(0)}
			if src := matchMonthColumn(r.ForecastColumns, header); src != nil {
				cell.ID = src.ID
				cell.DetailID = src.ForecastDetailID
				cell.TransformationUnitID = src.TransformationUnitID
				if src.Amount != nil {
					cell.Amount = model.FloatPtr(*src.Amount)
				}
			}
			row.Columns[m.Index] = cell
		}
		out = append(out, row)
	}
	return out
}

func matchMonthColumn(cols []model.ForecastColumn, header model.ForecastColumn) *model.ForecastColumn {
	for i := range cols {
		c := &cols[i]
		if header.ColumnLabel != "" {
			if c.ColumnLabel == header.ColumnLabel {
				return c
			}
			continue
		}
		if c.HasMonth() && *c.Month == *header.Month && *c.Year == *header.Year {
			return c
		}
	}
	return nil
}
