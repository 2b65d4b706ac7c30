package capacity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"capacityplanner/internal/dataapi"
	"capacityplanner/internal/model"
	"capacityplanner/internal/store"
)

// Handler 内置数据接口（SQLite），路径与外部数据接口一致
type Handler struct {
	store *store.Store
}

// NewHandler 创建数据接口处理器
func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// RegisterRoutes 注册数据接口路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 预测表
	router.GET(dataapi.PathForecast, h.Forecast)
	// 需求行
	router.GET(dataapi.PathLedger, h.Ledger)
	router.GET(dataapi.PathDemandOptions, h.DemandOptions)

	// 保存
	router.POST(dataapi.PathSaveMain, h.SaveMain)
	router.POST(dataapi.PathSaveLedger, h.SaveLedger)
}

// Forecast 读取预测表
// GET /data/capacityTop
func (h *Handler) Forecast(c *gin.Context) {
	rows, err := h.store.ForecastRows()
	if err != nil {
		log.Error().Err(err).Msg("读取预测表失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取预测表失败"})
		return
	}
	if rows == nil {
		rows = []model.ForecastRow{}
	}
	c.JSON(http.StatusOK, gin.H{"result": gin.H{"forecastRows": rows}})
}

// Ledger 读取需求行
// GET /data/capacityBottom
func (h *Handler) Ledger(c *gin.Context) {
	rows, err := h.store.LedgerRows()
	if err != nil {
		log.Error().Err(err).Msg("读取需求行失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取需求行失败"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// DemandOptions 新增需求行可选名称
// GET /data/newRecordCTBNameDropdDown
func (h *Handler) DemandOptions(c *gin.Context) {
	opts, err := h.store.DemandOptions()
	if err != nil {
		log.Error().Err(err).Msg("读取可选名称失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取可选名称失败"})
		return
	}
	c.JSON(http.StatusOK, opts)
}

// SaveMain 保存主表单元格
// POST /data/saveMainTableData
func (h *Handler) SaveMain(c *gin.Context) {
	var p model.MainCellPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	if err := h.store.SaveMainCell(p); err != nil {
		writeSaveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SaveLedger 保存需求行单元格
// POST /data/saveCTBTableData
func (h *Handler) SaveLedger(c *gin.Context) {
	var p model.LedgerCellPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}
	if err := h.store.SaveLedgerCell(p); err != nil {
		writeSaveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeSaveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidCell):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("保存失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存失败"})
	}
}
