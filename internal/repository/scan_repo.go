package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sdk-detect/sdk-detect-go/internal/domain"
)

// ScanRepository 扫描任务数据访问层
type ScanRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewScanRepository(db *gorm.DB, logger *logrus.Logger) *ScanRepository {
	return &ScanRepository{db: db, logger: logger}
}

// Create 创建排队中的扫描任务
func (r *ScanRepository) Create(ctx context.Context, task *domain.ScanTask) error {
	if task.Status == "" {
		task.Status = domain.StatusQueued
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create scan task: %w", err)
	}
	return nil
}

// MarkRunning 任务开始执行
func (r *ScanRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.ScanTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.StatusRunning,
			"started_at": &now,
		}).Error
}

// MarkCompleted 保存检测结果并结束任务。
// SDK 行按引擎输出顺序写入 Position，读取时按其排序还原。
func (r *ScanRepository) MarkCompleted(ctx context.Context, id string, packageName, kind string, memberCount int, sdks []string, duration time.Duration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&domain.ScanTask{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       domain.StatusCompleted,
				"package_name": packageName,
				"kind":         kind,
				"member_count": memberCount,
				"finished_at":  &now,
				"duration_ms":  duration.Milliseconds(),
			}).Error; err != nil {
			return err
		}

		for i, sdk := range sdks {
			row := domain.TaskDetectedSDK{TaskID: id, SDK: sdk, Position: i}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkFailed 任务失败，保留错误上下文供诊断
func (r *ScanRepository) MarkFailed(ctx context.Context, id string, scanErr error, duration time.Duration) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.ScanTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      domain.StatusFailed,
			"error":       scanErr.Error(),
			"finished_at": &now,
			"duration_ms": duration.Milliseconds(),
		}).Error
}

// Get 按 ID 查询任务（含检出 SDK，按 Position 排序）
func (r *ScanRepository) Get(ctx context.Context, id string) (*domain.ScanTask, error) {
	var task domain.ScanTask
	err := r.db.WithContext(ctx).
		Preload("SDKs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&task, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List 分页查询任务列表（可按状态过滤）
func (r *ScanRepository) List(ctx context.Context, page, limit int, status string) ([]domain.ScanTask, int64, error) {
	var (
		tasks []domain.ScanTask
		total int64
	)

	query := r.db.WithContext(ctx).Model(&domain.ScanTask{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count scan tasks: %w", err)
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("SDKs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query scan tasks: %w", err)
	}

	return tasks, total, nil
}
