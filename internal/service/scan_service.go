package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/detect"
	"github.com/sdk-detect/sdk-detect-go/internal/domain"
	"github.com/sdk-detect/sdk-detect-go/internal/middleware"
	"github.com/sdk-detect/sdk-detect-go/internal/repository"
)

// ScanEvent 推送给订阅端的扫描状态事件
type ScanEvent struct {
	TaskID      string   `json:"task_id"`
	Status      string   `json:"status"`
	PackageName string   `json:"package_name,omitempty"`
	SDKs        []string `json:"sdks,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// EventSink 扫描事件的订阅端（WebSocket 广播器实现）
type EventSink interface {
	PublishScanEvent(event ScanEvent)
}

// ScanService 扫描任务编排：引擎 + 持久化 + 指标 + 事件
type ScanService struct {
	repo       *repository.ScanRepository
	aggregator *detect.Aggregator
	logger     *logrus.Logger

	metrics *middleware.PrometheusMetrics // 可选
	events  EventSink                     // 可选
}

func NewScanService(repo *repository.ScanRepository, aggregator *detect.Aggregator, logger *logrus.Logger) *ScanService {
	return &ScanService{
		repo:       repo,
		aggregator: aggregator,
		logger:     logger,
	}
}

// SetMetrics 注入指标收集器
func (s *ScanService) SetMetrics(m *middleware.PrometheusMetrics) {
	s.metrics = m
}

// SetEventSink 注入事件订阅端
func (s *ScanService) SetEventSink(sink EventSink) {
	s.events = sink
}

// CreateTask 创建排队中的扫描任务
func (s *ScanService) CreateTask(ctx context.Context, packagePath string) (*domain.ScanTask, error) {
	task := &domain.ScanTask{
		ID:          uuid.NewString(),
		PackagePath: packagePath,
		Status:      domain.StatusQueued,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordScanQueued()
	}
	s.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"path":    packagePath,
	}).Info("Scan task created")

	return task, nil
}

// GetTask 查询单个任务
func (s *ScanService) GetTask(ctx context.Context, id string) (*domain.ScanTask, error) {
	return s.repo.Get(ctx, id)
}

// ListTasks 分页查询任务
func (s *ScanService) ListTasks(ctx context.Context, page, limit int, status string) ([]domain.ScanTask, int64, error) {
	return s.repo.List(ctx, page, limit, status)
}

// Execute 执行一次扫描任务（Worker 调用）。
// 引擎错误原样上抛：检测失败必须可见，不降级为空结果。
func (s *ScanService) Execute(ctx context.Context, taskID, packagePath string) error {
	start := time.Now()

	if err := s.repo.MarkRunning(ctx, taskID); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordScanStarted()
	}

	analysis, err := s.aggregator.DetectFile(ctx, packagePath)
	if err != nil {
		duration := time.Since(start)
		if dbErr := s.repo.MarkFailed(ctx, taskID, err, duration); dbErr != nil {
			s.logger.WithError(dbErr).WithField("task_id", taskID).Error("Failed to persist scan failure")
		}
		if s.metrics != nil {
			s.metrics.RecordScanFailed(duration)
		}
		s.publish(ScanEvent{TaskID: taskID, Status: string(domain.StatusFailed), Error: err.Error()})
		return fmt.Errorf("scan %s: %w", taskID, err)
	}

	duration := time.Since(start)
	sdks := analysis.SDKs.Strings()
	if err := s.repo.MarkCompleted(ctx, taskID, analysis.PackageName, string(analysis.Kind), analysis.MemberCount, sdks, duration); err != nil {
		return fmt.Errorf("failed to persist scan result: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordScanCompleted(duration)
		for _, sdk := range sdks {
			s.metrics.RecordSDKDetected(sdk)
		}
	}
	s.publish(ScanEvent{
		TaskID:      taskID,
		Status:      string(domain.StatusCompleted),
		PackageName: analysis.PackageName,
		SDKs:        sdks,
	})

	s.logger.WithFields(logrus.Fields{
		"task_id":     taskID,
		"package":     analysis.PackageName,
		"sdks":        sdks,
		"duration_ms": duration.Milliseconds(),
	}).Info("Scan task completed")

	return nil
}

func (s *ScanService) publish(event ScanEvent) {
	if s.events != nil {
		s.events.PublishScanEvent(event)
	}
}
