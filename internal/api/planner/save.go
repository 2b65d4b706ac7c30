package planner

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"capacityplanner/internal/exporter"
	"capacityplanner/internal/planner"
)

// Save 保存全部修改
// POST /api/views/:id/save
func (h *Handler) Save(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	report, snap, err := v.Save(c.Request.Context())
	switch {
	case errors.Is(err, planner.ErrNothingToSave):
		c.JSON(http.StatusOK, gin.H{"message": "No changes to save.", "view": snap})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "保存失败: " + err.Error(), "report": report, "view": snap})
	default:
		c.JSON(http.StatusOK, gin.H{"report": report, "view": snap})
	}
}

// Export 导出当前视图为 Excel，返回一次性下载令牌
// POST /api/views/:id/export
func (h *Handler) Export(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}

	file, err := exporter.Build(v.Plan(), exporter.Meta{
		Title:     h.opts.ExportTitle,
		Status:    h.opts.ExportStatus,
		CreatedAt: time.Now(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导出失败: " + err.Error()})
		return
	}
	defer file.Close()

	dir := h.opts.ExportDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建导出目录失败"})
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("capacity-%s.xlsx", uuid.NewString()))
	if err := file.SaveAs(path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "写入文件失败"})
		return
	}

	token := h.downloads.put(path, v.ID, h.opts.DownloadTTL)
	log.Info().Str("view", v.ID).Str("file", path).Msg("导出完成")
	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"filename":    exporter.Filename,
		"downloadUrl": "/api/export/download/" + token,
	})
}

// DownloadExport 下载导出的 Excel 文件（一次性）
// GET /api/export/download/:token
func (h *Handler) DownloadExport(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 token"})
		return
	}

	item, ok := h.downloads.take(token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "下载链接已失效"})
		return
	}

	if _, err := os.Stat(item.filePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "导出文件不存在"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", exporter.Filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.File(item.filePath)

	h.opts.Metrics.ExportServed()
	_ = os.Remove(item.filePath)
}
