package planner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"capacityplanner/internal/metrics"
	"capacityplanner/internal/planner"
	"capacityplanner/internal/session"
)

// Options 页面接口配置
type Options struct {
	ExportDir    string
	ExportTitle  string
	ExportStatus string
	DownloadTTL  time.Duration
	Metrics      *metrics.Registry
}

// Handler 计划页面接口处理器
type Handler struct {
	views     *session.Manager
	downloads *exportDownloadStore
	opts      Options
}

// NewHandler 创建页面接口处理器
func NewHandler(views *session.Manager, opts Options) *Handler {
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = 10 * time.Minute
	}
	return &Handler{
		views:     views,
		downloads: newExportDownloadStore(),
		opts:      opts,
	}
}

// RegisterRoutes 注册页面接口路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 视图
	router.POST("/views", h.OpenView)
	router.GET("/views/:id", h.GetView)
	router.DELETE("/views/:id", h.CloseView)

	// 主表编辑
	router.PATCH("/views/:id/cells", h.EditCell)

	// 需求行
	router.GET("/options", h.ListOptions)
	router.POST("/views/:id/ledger", h.AddLedgerRow)
	router.PATCH("/views/:id/ledger/:row/cells", h.EditLedgerCell)
	router.PATCH("/views/:id/ledger/:row/status", h.SetLedgerStatus)
	router.PATCH("/views/:id/ledger/:row/name", h.SetLedgerName)
	router.DELETE("/views/:id/ledger/:row", h.RemoveLedgerRow)

	// 保存 / 离开
	router.POST("/views/:id/save", h.Save)
	router.POST("/views/:id/discard", h.Discard)
	router.POST("/views/:id/leave", h.Leave)
	router.GET("/views/:id/unload", h.BeforeUnload)

	// 数据导出
	router.POST("/views/:id/export", h.Export)
	router.GET("/export/download/:token", h.DownloadExport)
}

var (
	errDecisionRequired = errors.New("decision required")
	errInvalidDecision  = errors.New("invalid decision")
)

// decisionPrompter 用请求体中的 decision 回答离开确认
type decisionPrompter string

func (p decisionPrompter) Confirm(_ context.Context, _ planner.Prompt) (planner.Decision, error) {
	if p == "" {
		return planner.DecisionCancel, errDecisionRequired
	}
	d, ok := planner.ParseDecision(string(p))
	if !ok {
		return planner.DecisionCancel, errInvalidDecision
	}
	return d, nil
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) view(c *gin.Context) (*session.View, bool) {
	v, err := h.views.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return v, true
}

func ledgerRowParam(c *gin.Context) (int, bool) {
	row, err := strconv.Atoi(c.Param("row"))
	if err != nil || row < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的需求行"})
		return 0, false
	}
	return row, true
}

// writeError 按错误类型返回状态码
func writeError(c *gin.Context, err error) {
	var saveErr *planner.SaveError
	switch {
	case errors.Is(err, session.ErrViewNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "视图不存在或已关闭"})
	case errors.Is(err, errDecisionRequired):
		c.JSON(http.StatusConflict, gin.H{"error": "有未保存的修改", "prompt": planner.UnsavedChangesPrompt})
	case errors.Is(err, errInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的选择"})
	case errors.Is(err, planner.ErrLedgerNotLoaded):
		c.JSON(http.StatusConflict, gin.H{"error": "需求行未加载"})
	case errors.Is(err, planner.ErrRowNotEditable),
		errors.Is(err, planner.ErrMonthLocked),
		errors.Is(err, planner.ErrCTBAggregated),
		errors.Is(err, planner.ErrStatusNotAllowed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, planner.ErrMonthOutOfRange),
		errors.Is(err, planner.ErrRowOutOfRange),
		errors.Is(err, planner.ErrInvalidAmount),
		errors.Is(err, planner.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &saveErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "保存失败: " + err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("请求处理失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
