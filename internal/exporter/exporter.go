package exporter

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"capacityplanner/internal/planner"
)

// SheetName 导出工作表名
const SheetName = "Capacity Plan"

// Filename 下载文件名
const Filename = "capacity_plan.xlsx"

// 固定版式：1-3 行为标题信息，第 8 行为 Capacity Plan 标题，第 9 行为表头
const (
	planTitleRow  = 8
	planHeaderRow = 9
	ctbGapRows    = 4
	minStyledCols = 30
)

// Meta 导出抬头信息
type Meta struct {
	Title     string
	Status    string
	CreatedAt time.Time
}

type styles struct {
	bold    int
	label   int
	section int
	header  int
	cell    int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	var s styles
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.bold, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&s.label, &excelize.Style{Font: &excelize.Font{Bold: true}, Border: border, Alignment: center}},
		{&s.section, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 11},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"D9D9D9"}, Pattern: 1},
			Border:    border,
			Alignment: center,
		}},
		{&s.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
			Border:    border,
			Alignment: center,
		}},
		{&s.cell, &excelize.Style{Border: border, Alignment: center}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return styles{}, fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func amountOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Build 按页面上的两张表生成 Excel：
//   - 抬头（标题、状态、创建时间）
//   - Capacity Plan：行标签（A:B 合并）、合计、各月
//   - Capacity Requested By (CTB)：名称、状态、合计、各月；无记录时写占位行
func Build(plan planner.Plan, meta Meta) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}
	if err := build(f, plan, meta); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func build(f *excelize.File, plan planner.Plan, meta Meta) error {
	st, err := newStyles(f)
	if err != nil {
		return err
	}
	sh := SheetName
	lastCol := 3 + len(plan.Months)
	if lastCol < 4 {
		lastCol = 4
	}

	// 抬头
	created := meta.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	head := [][]interface{}{
		{meta.Title},
		{"Status", meta.Status},
		{"Date Created", created.Format("1/2/2006, 03:04 PM")},
	}
	for i, row := range head {
		if err := f.SetSheetRow(sh, cellName(1, i+1), &row); err != nil {
			return err
		}
	}
	for _, m := range [][2]string{{"A1", "D1"}, {"B2", "D2"}, {"B3", "D3"}} {
		if err := f.MergeCell(sh, m[0], m[1]); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sh, "A1", "A1", st.bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, "A2", "A3", st.label); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, "B2", "D3", st.cell); err != nil {
		return err
	}

	// Capacity Plan
	if err := f.SetCellValue(sh, cellName(1, planTitleRow), "Capacity Plan"); err != nil {
		return err
	}
	if err := f.MergeCell(sh, cellName(1, planTitleRow), cellName(lastCol, planTitleRow)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, cellName(1, planTitleRow), cellName(lastCol, planTitleRow), st.section); err != nil {
		return err
	}

	header := []interface{}{"Row Label", "", "Total"}
	for _, m := range plan.Months {
		header = append(header, m.Label)
	}
	if err := writeRow(f, sh, planHeaderRow, lastCol, header, st.header); err != nil {
		return err
	}
	if err := f.MergeCell(sh, cellName(1, planHeaderRow), cellName(2, planHeaderRow)); err != nil {
		return err
	}

	row := planHeaderRow + 1
	for _, r := range plan.Rows {
		values := []interface{}{r.Label, "", r.Total}
		for _, c := range r.Cells {
			values = append(values, amountOrZero(c.Amount))
		}
		if err := writeRow(f, sh, row, lastCol, values, st.cell); err != nil {
			return err
		}
		if err := f.MergeCell(sh, cellName(1, row), cellName(2, row)); err != nil {
			return err
		}
		if err := f.SetCellStyle(sh, cellName(1, row), cellName(2, row), st.label); err != nil {
			return err
		}
		row++
	}

	// Capacity Requested By (CTB)
	ctbTitle := row + ctbGapRows
	if err := f.SetCellValue(sh, cellName(1, ctbTitle), "Capacity Requested By (CTB)"); err != nil {
		return err
	}
	if err := f.MergeCell(sh, cellName(1, ctbTitle), cellName(lastCol, ctbTitle)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, cellName(1, ctbTitle), cellName(lastCol, ctbTitle), st.section); err != nil {
		return err
	}

	ctbHeader := []interface{}{"CTB Name", "Status", "Total"}
	for _, m := range plan.Months {
		ctbHeader = append(ctbHeader, m.Label)
	}
	if err := writeRow(f, sh, ctbTitle+1, lastCol, ctbHeader, st.header); err != nil {
		return err
	}

	row = ctbTitle + 2
	if len(plan.Ledger) == 0 {
		if err := f.SetCellValue(sh, cellName(1, row), "No CTB records found"); err != nil {
			return err
		}
		if err := f.SetCellStyle(sh, cellName(1, row), cellName(1, row), st.cell); err != nil {
			return err
		}
	}
	for _, l := range plan.Ledger {
		values := []interface{}{l.Name, string(l.Status), l.Total}
		for _, a := range l.Amounts {
			values = append(values, amountOrZero(a))
		}
		if err := writeRow(f, sh, row, lastCol, values, st.cell); err != nil {
			return err
		}
		if err := f.SetCellStyle(sh, cellName(1, row), cellName(2, row), st.cell); err != nil {
			return err
		}
		row++
	}

	// 列宽
	widthEnd := lastCol
	if widthEnd < minStyledCols {
		widthEnd = minStyledCols
	}
	endName, _ := excelize.ColumnNumberToName(widthEnd)
	for _, w := range []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 20},
		{"B", "C", 12},
		{"D", endName, 10},
	} {
		if err := f.SetColWidth(sh, w.from, w.to, w.width); err != nil {
			return err
		}
	}
	return nil
}

// writeRow 写入一行并对 A..lastCol 统一设置样式
func writeRow(f *excelize.File, sheet string, row, lastCol int, values []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, cellName(1, row), &values); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cellName(1, row), cellName(lastCol, row), style)
}
