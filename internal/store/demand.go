package store

import (
	"database/sql"
	"errors"
	"fmt"

	"capacityplanner/internal/model"
)

// DemandOptions 新增需求行可选名称
func (s *Store) DemandOptions() ([]model.DemandOption, error) {
	rows, err := s.db.Query(`
		SELECT bc_id, display_name, sub_initiative, creation_time
		FROM demand_options
		ORDER BY display_name, bc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query demand options failed: %w", err)
	}
	defer rows.Close()

	out := make([]model.DemandOption, 0)
	for rows.Next() {
		var o model.DemandOption
		if err := rows.Scan(&o.BcID, &o.PlanningToolDisplayName, &o.SubInitiativeName, &o.CreationTime); err != nil {
			return nil, fmt.Errorf("scan demand option failed: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type demandCell struct {
	id     int64
	amount float64
}

// LedgerRows 读取需求行（capacityBottom）
// 每行：[0] 名称，[1] Status，[2] Total，[3..] 与预测表相同的月份列
func (s *Store) LedgerRows() ([]model.ForecastRow, error) {
	months, err := s.months()
	if err != nil {
		return nil, err
	}

	cells := make(map[int64]map[yearMonth]demandCell)
	cellRows, err := s.db.Query(`SELECT id, demand_row_id, data_year, data_month, amount FROM demand_cells`)
	if err != nil {
		return nil, fmt.Errorf("query demand cells failed: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var c demandCell
		var rowID int64
		var ym yearMonth
		if err := cellRows.Scan(&c.id, &rowID, &ym.year, &ym.month, &c.amount); err != nil {
			return nil, fmt.Errorf("scan demand cell failed: %w", err)
		}
		if cells[rowID] == nil {
			cells[rowID] = make(map[yearMonth]demandCell)
		}
		cells[rowID][ym] = c
	}
	if err := cellRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demand cells failed: %w", err)
	}

	rows, err := s.db.Query(`SELECT id, bc_id, name, status, forecast_detail_id FROM demand_rows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query demand rows failed: %w", err)
	}
	defer rows.Close()

	out := make([]model.ForecastRow, 0)
	for rows.Next() {
		var id, bcID, detailID int64
		var name, status string
		if err := rows.Scan(&id, &bcID, &name, &status, &detailID); err != nil {
			return nil, fmt.Errorf("scan demand row failed: %w", err)
		}

		var total float64
		monthCols := make([]model.ForecastColumn, 0, len(months))
		for _, ym := range months {
			col := ym.column(name)
			col.BcID = bcID
			col.ForecastDetailID = detailID
			col.Amount = model.FloatPtr(0)
			if c, ok := cells[id][ym]; ok {
				col.ID = c.id
				col.Amount = model.FloatPtr(c.amount)
				total += c.amount
			}
			monthCols = append(monthCols, col)
		}

		cols := []model.ForecastColumn{
			{RowLabel: name, BcID: bcID},
			{ColumnLabel: model.ColumnLabelStatus, RowLabel: name, Status: status},
			{ColumnLabel: model.ColumnLabelTotal, RowLabel: name, Amount: model.FloatPtr(total)},
		}
		out = append(out, model.ForecastRow{ForecastColumns: append(cols, monthCols...)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demand rows failed: %w", err)
	}
	return out, nil
}

// SaveLedgerCell 保存需求行单元格
// 按 bcId + 年月写入；需求行不存在时按可选名称创建，状态随每次写入更新
func (s *Store) SaveLedgerCell(p model.LedgerCellPayload) error {
	if p.BcID <= 0 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("ledger cell bcId=%d %d-%02d: %w", p.BcID, p.Year, p.Month, ErrInvalidCell)
	}
	if p.Status != model.StatusUnset && !p.Status.Valid() {
		return fmt.Errorf("ledger cell status %q: %w", p.Status, ErrInvalidCell)
	}

	return s.inTx(func(tx *sql.Tx) error {
		rowID, err := ensureDemandRow(tx, p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO demand_cells (demand_row_id, data_year, data_month, amount)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(demand_row_id, data_year, data_month) DO UPDATE SET
				amount = excluded.amount,
				updated_at = CURRENT_TIMESTAMP
		`, rowID, p.Year, p.Month, p.Amount)
		if err != nil {
			return fmt.Errorf("failed to save ledger cell: %w", err)
		}
		return nil
	})
}

func ensureDemandRow(tx *sql.Tx, p model.LedgerCellPayload) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM demand_rows WHERE bc_id = ?`, p.BcID).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.Exec(`
			UPDATE demand_rows SET status = ?, forecast_detail_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(p.Status), p.ForecastDetailID, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update demand row: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("query demand row failed: %w", err)
	}

	name := fmt.Sprintf("BC-%d", p.BcID)
	var display string
	err = tx.QueryRow(`SELECT display_name FROM demand_options WHERE bc_id = ?`, p.BcID).Scan(&display)
	switch {
	case err == nil:
		name = display
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("query demand option failed: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO demand_rows (bc_id, name, status, forecast_detail_id)
		VALUES (?, ?, ?, ?)
	`, p.BcID, name, string(p.Status), p.ForecastDetailID)
	if err != nil {
		return 0, fmt.Errorf("failed to create demand row: %w", err)
	}
	return res.LastInsertId()
}
