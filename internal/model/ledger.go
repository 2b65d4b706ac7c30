package model

import "strings"

// Status 需求行状态
type Status string

const (
	StatusUnset       Status = ""
	StatusNew         Status = "New"
	StatusDeferred    Status = "Deferred"
	StatusCanceled    Status = "Canceled"
	StatusPrioritized Status = "Prioritized"
)

// AllStatuses 下拉选项顺序（与页面一致）
var AllStatuses = []Status{StatusDeferred, StatusNew, StatusCanceled, StatusPrioritized}

// ParseStatus 在数据边界把字符串解析为状态，未知值视为未设置
func ParseStatus(s string) Status {
	s = strings.TrimSpace(s)
	for _, st := range AllStatuses {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	if strings.EqualFold(s, "Cancelled") {
		return StatusCanceled
	}
	return StatusUnset
}

// Valid 是否为可选状态
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// StatusOption 状态下拉项
type StatusOption struct {
	Label    string `json:"label"`
	Value    Status `json:"value"`
	Disabled bool   `json:"disabled"`
}

// DemandOption 新增需求行可选的名称
type DemandOption struct {
	BcID                    int64  `json:"bcId"`
	PlanningToolDisplayName string `json:"planningToolDisplayName"`
	SubInitiativeName       string `json:"subInitiativeName"`
	CreationTime            string `json:"creationTime"`
}

// MainCellPayload 主表单元格保存请求
// POST /saveMainTableData
type MainCellPayload struct {
	ID                   int64   `json:"id"`
	TransformationUnitID int64   `json:"transformationUnitId"`
	Amount               float64 `json:"amount"`
	Month                int     `json:"month"`
	Year                 int     `json:"year"`
}

// LedgerCellPayload 需求表单元格保存请求
// POST /saveCTBTableData
type LedgerCellPayload struct {
	ID                   int64   `json:"id"`
	TransformationUnitID int64   `json:"transformationUnitId"`
	BcID                 int64   `json:"bcId"`
	Amount               float64 `json:"amount"`
	Month                int     `json:"month"`
	Year                 int     `json:"year"`
	ForecastDetailID     int64   `json:"transformationUnitForecastDetailId"`
	Status               Status  `json:"status,omitempty"`
}
