package planner

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenView 打开计划页面，加载预测表和需求行
// POST /api/views
func (h *Handler) OpenView(c *gin.Context) {
	v, err := h.views.Open(c.Request.Context())
	if err != nil {
		// 加载失败也返回视图，页面据此显示错误
		c.JSON(http.StatusBadGateway, gin.H{"error": "加载数据失败", "view": v.Snapshot()})
		return
	}
	c.JSON(http.StatusCreated, v.Snapshot())
}

// GetView 视图快照
// GET /api/views/:id
func (h *Handler) GetView(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v.Snapshot())
}

// CloseView 关闭视图；有未保存修改时需要在请求体中给出 decision
// DELETE /api/views/:id
func (h *Handler) CloseView(c *gin.Context) {
	var req decisionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	closed, err := h.views.Close(c.Request.Context(), c.Param("id"), decisionPrompter(req.Decision))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

type editCellRequest struct {
	Label      string   `json:"label" binding:"required"`
	MonthIndex *int     `json:"monthIndex" binding:"required"`
	Amount     *float64 `json:"amount" binding:"required"`
}

// EditCell 编辑 RTB / CTB 单元格，超出上限时截断并返回 warning
// PATCH /api/views/:id/cells
func (h *Handler) EditCell(c *gin.Context) {
	var req editCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	res, snap, err := v.Edit(req.Label, *req.MonthIndex, *req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "view": snap})
}

// Discard 丢弃修改并重新加载
// POST /api/views/:id/discard
func (h *Handler) Discard(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	snap, err := v.Discard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "重新加载失败: " + err.Error(), "view": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Leave 页内导航前的确认：无修改直接离开，否则按 decision 保存、丢弃或留下
// POST /api/views/:id/leave
func (h *Handler) Leave(c *gin.Context) {
	var req decisionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	left, err := v.Leave(c.Request.Context(), decisionPrompter(req.Decision))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave": left, "view": v.Snapshot()})
}

// BeforeUnload 浏览器关闭/刷新时的提示
// GET /api/views/:id/unload
func (h *Handler) BeforeUnload(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	msg := v.BeforeUnload()
	c.JSON(http.StatusOK, gin.H{"prompt": msg != "", "message": msg})
}
