package planner

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"capacityplanner/internal/model"
)

// ListOptions 新增需求行可选名称
// GET /api/options
func (h *Handler) ListOptions(c *gin.Context) {
	opts, err := h.views.DemandOptions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "读取可选名称失败"})
		return
	}
	c.JSON(http.StatusOK, opts)
}

// AddLedgerRow 新增需求行，同时返回可选名称
// POST /api/views/:id/ledger
func (h *Handler) AddLedgerRow(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	idx, snap, err := v.AddLedgerRow()
	if err != nil {
		writeError(c, err)
		return
	}
	opts, err := h.views.DemandOptions(c.Request.Context())
	if err != nil {
		// 选项加载失败不影响新增
		opts = []model.DemandOption{}
	}
	c.JSON(http.StatusCreated, gin.H{"index": idx, "options": opts, "view": snap})
}

type ledgerCellRequest struct {
	MonthIndex *int     `json:"monthIndex" binding:"required"`
	Amount     *float64 `json:"amount" binding:"required"`
}

// EditLedgerCell 编辑需求行金额
// PATCH /api/views/:id/ledger/:row/cells
func (h *Handler) EditLedgerCell(c *gin.Context) {
	row, ok := ledgerRowParam(c)
	if !ok {
		return
	}
	var req ledgerCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	res, snap, err := v.SetLedgerAmount(row, *req.MonthIndex, *req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "view": snap})
}

type ledgerStatusRequest struct {
	Status string `json:"status"`
}

// SetLedgerStatus 修改需求行状态
// PATCH /api/views/:id/ledger/:row/status
func (h *Handler) SetLedgerStatus(c *gin.Context) {
	row, ok := ledgerRowParam(c)
	if !ok {
		return
	}
	var req ledgerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	status := model.ParseStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的状态"})
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	change, snap, err := v.SetLedgerStatus(row, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"change": change, "view": snap})
}

type ledgerNameRequest struct {
	BcID int64 `json:"bcId" binding:"required"`
}

// SetLedgerName 为新增需求行选定名称
// PATCH /api/views/:id/ledger/:row/name
func (h *Handler) SetLedgerName(c *gin.Context) {
	row, ok := ledgerRowParam(c)
	if !ok {
		return
	}
	var req ledgerNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	opt, err := h.views.FindDemandOption(c.Request.Context(), req.BcID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的需求名称"})
		return
	}
	snap, err := v.SelectLedgerName(row, opt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// RemoveLedgerRow 删除需求行
// DELETE /api/views/:id/ledger/:row
func (h *Handler) RemoveLedgerRow(c *gin.Context) {
	row, ok := ledgerRowParam(c)
	if !ok {
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	snap, err := v.RemoveLedgerRow(row)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
