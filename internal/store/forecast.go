package store

import (
	"database/sql"
	"fmt"

	"capacityplanner/internal/model"
)

type yearMonth struct {
	year  int
	month int
}

func (ym yearMonth) column(rowLabel string) model.ForecastColumn {
	return model.ForecastColumn{
		Month:       model.IntPtr(ym.month),
		Year:        model.IntPtr(ym.year),
		ColumnLabel: model.MonthLabel(ym.month, ym.year),
		RowLabel:    rowLabel,
	}
}

// months 预测表覆盖的年月（升序）
func (s *Store) months() ([]yearMonth, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT data_year, data_month FROM forecast_cells
		ORDER BY data_year, data_month
	`)
	if err != nil {
		return nil, fmt.Errorf("query months failed: %w", err)
	}
	defer rows.Close()

	var out []yearMonth
	for rows.Next() {
		var ym yearMonth
		if err := rows.Scan(&ym.year, &ym.month); err != nil {
			return nil, fmt.Errorf("scan months failed: %w", err)
		}
		out = append(out, ym)
	}
	return out, rows.Err()
}

type forecastCell struct {
	id     int64
	amount sql.NullFloat64
	unitID int64
}

// ForecastRows 读取预测表（capacityTop）
// 每行：[0] 行头，[1] 合计，[2..] 月份；缺失的月份单元格金额为空
func (s *Store) ForecastRows() ([]model.ForecastRow, error) {
	months, err := s.months()
	if err != nil {
		return nil, err
	}

	cells := make(map[int64]map[yearMonth]forecastCell)
	cellRows, err := s.db.Query(`
		SELECT id, row_id, data_year, data_month, amount, transformation_unit_id
		FROM forecast_cells
	`)
	if err != nil {
		return nil, fmt.Errorf("query forecast cells failed: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var c forecastCell
		var rowID int64
		var ym yearMonth
		if err := cellRows.Scan(&c.id, &rowID, &ym.year, &ym.month, &c.amount, &c.unitID); err != nil {
			return nil, fmt.Errorf("scan forecast cell failed: %w", err)
		}
		if cells[rowID] == nil {
			cells[rowID] = make(map[yearMonth]forecastCell)
		}
		cells[rowID][ym] = c
	}
	if err := cellRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast cells failed: %w", err)
	}

	rows, err := s.db.Query(`SELECT id, label, total, cell_css FROM forecast_rows ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query forecast rows failed: %w", err)
	}
	defer rows.Close()

	var out []model.ForecastRow
	for rows.Next() {
		var id int64
		var label, css string
		var total sql.NullFloat64
		if err := rows.Scan(&id, &label, &total, &css); err != nil {
			return nil, fmt.Errorf("scan forecast row failed: %w", err)
		}

		cols := make([]model.ForecastColumn, 0, len(months)+2)
		cols = append(cols, model.ForecastColumn{RowLabel: label, CellCSS: css})

		var sum float64
		var hasAmount bool
		monthCols := make([]model.ForecastColumn, 0, len(months))
		for _, ym := range months {
			col := ym.column(label)
			col.CellCSS = css
			if c, ok := cells[id][ym]; ok {
				col.ID = c.id
				col.TransformationUnitID = c.unitID
				if c.amount.Valid {
					col.Amount = model.FloatPtr(c.amount.Float64)
					sum += c.amount.Float64
					hasAmount = true
				}
			}
			monthCols = append(monthCols, col)
		}

		totalCol := model.ForecastColumn{ColumnLabel: model.ColumnLabelTotal, RowLabel: label}
		switch {
		case total.Valid:
			totalCol.Amount = model.FloatPtr(total.Float64)
		case hasAmount:
			totalCol.Amount = model.FloatPtr(sum)
		}
		cols = append(cols, totalCol)
		cols = append(cols, monthCols...)
		out = append(out, model.ForecastRow{ForecastColumns: cols})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast rows failed: %w", err)
	}
	return out, nil
}

// SaveMainCell 保存主表单元格（仅 RTB / CTB 行可写）
func (s *Store) SaveMainCell(p model.MainCellPayload) error {
	if p.ID <= 0 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("main cell id=%d %d-%02d: %w", p.ID, p.Year, p.Month, ErrInvalidCell)
	}
	res, err := s.db.Exec(`
		UPDATE forecast_cells SET
			amount = ?,
			transformation_unit_id = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND data_year = ? AND data_month = ?
			AND row_id IN (SELECT id FROM forecast_rows WHERE label IN (?, ?))
	`, p.Amount, p.TransformationUnitID, p.ID, p.Year, p.Month, model.LabelRTB, model.LabelCTB)
	if err != nil {
		return fmt.Errorf("failed to save main cell: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save main cell: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("main cell id=%d %d-%02d: %w", p.ID, p.Year, p.Month, ErrNotFound)
	}
	return nil
}
