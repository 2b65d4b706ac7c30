package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"capacityplanner/internal/model"
)

const fixtureMonthLayout = "2006-01"

// Fixture 初始数据（seed 命令使用的 YAML 文件）
type Fixture struct {
	Start                string          `yaml:"start"` // 首月，如 2025-01
	Months               int             `yaml:"months"`
	TransformationUnitID int64           `yaml:"transformationUnitId"`
	ForecastDetailID     int64           `yaml:"forecastDetailId"`
	Rows                 []FixtureRow    `yaml:"rows"`
	Demands              []FixtureDemand `yaml:"demands,omitempty"`
	Options              []FixtureOption `yaml:"options,omitempty"`
}

// FixtureRow 预测表行
type FixtureRow struct {
	Label   string    `yaml:"label"`
	Amount  *float64  `yaml:"amount,omitempty"`  // 每个月相同
	Amounts []float64 `yaml:"amounts,omitempty"` // 逐月，优先于 amount
	Total   *float64  `yaml:"total,omitempty"`   // 透传行的合计
	CellCSS string    `yaml:"cellCss,omitempty"`
}

// FixtureDemand 需求行，amounts 的键为 2006-01 格式
type FixtureDemand struct {
	BcID    int64              `yaml:"bcId"`
	Name    string             `yaml:"name"`
	Status  string             `yaml:"status"`
	Amounts map[string]float64 `yaml:"amounts,omitempty"`
}

// FixtureOption 可选名称
type FixtureOption struct {
	BcID          int64  `yaml:"bcId"`
	Name          string `yaml:"name"`
	SubInitiative string `yaml:"subInitiative,omitempty"`
	CreationTime  string `yaml:"creationTime,omitempty"`
}

func (f Fixture) start() (time.Time, error) {
	t, err := time.Parse(fixtureMonthLayout, f.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid fixture start %q: %w", f.Start, err)
	}
	return t, nil
}

// Validate 校验初始数据
func (f Fixture) Validate() error {
	if _, err := f.start(); err != nil {
		return err
	}
	if f.Months <= 0 {
		return fmt.Errorf("fixture months must be positive")
	}
	seen := make(map[string]bool)
	for _, r := range f.Rows {
		if r.Label == "" {
			return fmt.Errorf("fixture row without label")
		}
		if seen[r.Label] {
			return fmt.Errorf("duplicate fixture row %q", r.Label)
		}
		seen[r.Label] = true
	}
	bcIDs := make(map[int64]bool)
	for _, d := range f.Demands {
		if d.BcID <= 0 || d.Name == "" {
			return fmt.Errorf("fixture demand needs bcId and name")
		}
		if bcIDs[d.BcID] {
			return fmt.Errorf("duplicate fixture demand bcId %d", d.BcID)
		}
		bcIDs[d.BcID] = true
		if d.Status != "" && !model.ParseStatus(d.Status).Valid() {
			return fmt.Errorf("fixture demand %q has invalid status %q", d.Name, d.Status)
		}
		for k := range d.Amounts {
			if _, err := time.Parse(fixtureMonthLayout, k); err != nil {
				return fmt.Errorf("fixture demand %q has invalid month %q", d.Name, k)
			}
		}
	}
	return nil
}

// ParseFixture 解析 YAML 初始数据
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if f.TransformationUnitID == 0 {
		f.TransformationUnitID = 679
	}
	if f.ForecastDetailID == 0 {
		f.ForecastDetailID = 740
	}
	return f, f.Validate()
}

// LoadFixture 读取 YAML 初始数据文件
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return ParseFixture(data)
}

// WriteFixture 写出 YAML 初始数据文件
func WriteFixture(path string, f Fixture) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GenerateFixture 生成演示数据：从 start 所在月份起 months 个月
func GenerateFixture(start time.Time, months int) Fixture {
	start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	forecast, rtb := 100.0, 40.0
	headcount := 12.0

	payments := make(map[string]float64)
	lake := make(map[string]float64)
	ctb := make([]float64, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format(fixtureMonthLayout)
		if i >= 2 && i < 8 {
			payments[key] = 20
			ctb[i] = 20
		}
		if i >= 4 && i < 10 {
			lake[key] = 15
		}
	}

	return Fixture{
		Start:                start.Format(fixtureMonthLayout),
		Months:               months,
		TransformationUnitID: 679,
		ForecastDetailID:     740,
		Rows: []FixtureRow{
			{Label: model.LabelForecasted, Amount: &forecast},
			{Label: model.LabelRTB, Amount: &rtb},
			{Label: model.LabelCTB, Amounts: ctb},
			{Label: model.LabelRemaining},
			{Label: "Headcount", Total: &headcount},
		},
		Demands: []FixtureDemand{
			{BcID: 101, Name: "Payments Modernization", Status: string(model.StatusPrioritized), Amounts: payments},
			{BcID: 102, Name: "Data Lake", Status: string(model.StatusDeferred), Amounts: lake},
		},
		Options: []FixtureOption{
			{BcID: 101, Name: "Payments Modernization", SubInitiative: "Core Banking", CreationTime: "2024-11-04"},
			{BcID: 102, Name: "Data Lake", SubInitiative: "Analytics", CreationTime: "2024-12-01"},
			{BcID: 103, Name: "Mobile Onboarding", SubInitiative: "Digital", CreationTime: "2025-01-15"},
			{BcID: 104, Name: "Fraud Scoring", SubInitiative: "Risk", CreationTime: "2025-02-20"},
		},
	}
}

// Seed 清空并写入初始数据
func (s *Store) Seed(f Fixture) error {
	if err := f.Validate(); err != nil {
		return err
	}
	start, _ := f.start()

	return s.inTx(func(tx *sql.Tx) error {
		for _, table := range []string{"demand_cells", "demand_rows", "demand_options", "forecast_cells", "forecast_rows"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for i, r := range f.Rows {
			res, err := tx.Exec(`INSERT INTO forecast_rows (label, sort_order, total, cell_css) VALUES (?, ?, ?, ?)`,
				r.Label, i, r.Total, r.CellCSS)
			if err != nil {
				return fmt.Errorf("failed to insert row %q: %w", r.Label, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if r.Total != nil && r.Amount == nil && len(r.Amounts) == 0 {
				// 透传行只有合计
				continue
			}
			for m := 0; m < f.Months; m++ {
				t := start.AddDate(0, m, 0)
				var amount *float64
				switch {
				case m < len(r.Amounts):
					amount = &r.Amounts[m]
				case r.Amount != nil:
					amount = r.Amount
				}
				if _, err := tx.Exec(`
					INSERT INTO forecast_cells (row_id, data_year, data_month, amount, transformation_unit_id)
					VALUES (?, ?, ?, ?, ?)
				`, rowID, t.Year(), int(t.Month()), amount, f.TransformationUnitID); err != nil {
					return fmt.Errorf("failed to insert cell %q %s: %w", r.Label, t.Format(fixtureMonthLayout), err)
				}
			}
		}

		for _, o := range f.Options {
			if _, err := tx.Exec(`
				INSERT INTO demand_options (bc_id, display_name, sub_initiative, creation_time)
				VALUES (?, ?, ?, ?)
			`, o.BcID, o.Name, o.SubInitiative, o.CreationTime); err != nil {
				return fmt.Errorf("failed to insert option %d: %w", o.BcID, err)
			}
		}

		for _, d := range f.Demands {
			status := model.ParseStatus(d.Status)
			res, err := tx.Exec(`
				INSERT INTO demand_rows (bc_id, name, status, forecast_detail_id) VALUES (?, ?, ?, ?)
			`, d.BcID, d.Name, string(status), f.ForecastDetailID)
			if err != nil {
				return fmt.Errorf("failed to insert demand %q: %w", d.Name, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for k, amount := range d.Amounts {
				t, _ := time.Parse(fixtureMonthLayout, k)
				if _, err := tx.Exec(`
					INSERT INTO demand_cells (demand_row_id, data_year, data_month, amount) VALUES (?, ?, ?, ?)
				`, rowID, t.Year(), int(t.Month()), amount); err != nil {
					return fmt.Errorf("failed to insert demand cell %q %s: %w", d.Name, k, err)
				}
			}
		}
		return nil
	})
}
