package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ScanMessage 扫描任务消息
type ScanMessage struct {
	TaskID      string `json:"task_id"`
	PackagePath string `json:"package_path"`
}

// Producer 扫描任务生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{mq: mq, logger: logger}
}

// PublishScan 发布扫描任务消息
func (p *Producer) PublishScan(ctx context.Context, msg *ScanMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("task_id", msg.TaskID).Error("Failed to publish scan task")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"task_id": msg.TaskID,
		"path":    msg.PackagePath,
	}).Info("Scan task published to queue")

	return nil
}

// GetQueueSize 队列中待处理消息数
func (p *Producer) GetQueueSize() (int, error) {
	messageCount, _, err := p.mq.GetQueueStats()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return messageCount, nil
}
