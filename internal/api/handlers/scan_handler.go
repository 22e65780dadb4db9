package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sdk-detect/sdk-detect-go/internal/domain"
	"github.com/sdk-detect/sdk-detect-go/internal/service"
)

// ScanDispatcher 将已创建的任务投递给执行端（队列或本地 Worker 池）
type ScanDispatcher interface {
	Dispatch(ctx context.Context, task *domain.ScanTask) error
}

// ScanHandler 扫描任务处理器
type ScanHandler struct {
	scanService *service.ScanService
	dispatcher  ScanDispatcher
	logger      *logrus.Logger
}

func NewScanHandler(scanService *service.ScanService, dispatcher ScanDispatcher, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

type createScanRequest struct {
	Path string `json:"path" binding:"required"`
}

// CreateScan 创建扫描任务
// POST /api/scans {"path": "/data/packages/app.xapk"}
// 路径必须指向服务端可读的包文件；格式校验在扫描阶段进行，
// 不支持的格式会以失败任务的形式反馈。
func (h *ScanHandler) CreateScan(c *gin.Context) {
	var req createScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	if _, err := os.Stat(req.Path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package file not found"})
		return
	}

	task, err := h.scanService.CreateTask(c.Request.Context(), req.Path)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create scan task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create scan task"})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		h.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to dispatch scan task")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to dispatch scan task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// GetScan 查询单个扫描任务
// GET /api/scans/:id
func (h *ScanHandler) GetScan(c *gin.Context) {
	id := c.Param("id")

	task, err := h.scanService.GetTask(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan task not found"})
			return
		}
		h.logger.WithError(err).WithField("task_id", id).Error("Failed to get scan task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get scan task"})
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

// ListScans 分页查询扫描任务
// GET /api/scans?page=1&limit=20&status=completed
func (h *ScanHandler) ListScans(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	status := c.Query("status")

	tasks, total, err := h.scanService.ListTasks(c.Request.Context(), page, limit, status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scan tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scan tasks"})
		return
	}

	items := make([]gin.H, len(tasks))
	for i := range tasks {
		items[i] = taskResponse(&tasks[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"page":  page,
		"limit": limit,
		"items": items,
	})
}

// taskResponse 任务的 JSON 形态。SDK 序列保持引擎输出顺序。
func taskResponse(task *domain.ScanTask) gin.H {
	sdks := make([]string, len(task.SDKs))
	for i, row := range task.SDKs {
		sdks[i] = row.SDK
	}

	resp := gin.H{
		"task_id":      task.ID,
		"package_path": task.PackagePath,
		"status":       task.Status,
		"created_at":   task.CreatedAt,
		"sdks":         sdks,
	}
	if task.PackageName != "" {
		resp["package_name"] = task.PackageName
	}
	if task.Kind != "" {
		resp["kind"] = task.Kind
		resp["member_count"] = task.MemberCount
	}
	if task.Error != "" {
		resp["error"] = task.Error
	}
	if task.FinishedAt != nil {
		resp["finished_at"] = task.FinishedAt
		resp["duration_ms"] = task.DurationMS
	}
	return resp
}
