package domain

import "time"

// ScanStatus 扫描任务状态
type ScanStatus string

const (
	StatusQueued    ScanStatus = "queued"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// ScanTask 一次包检测任务
type ScanTask struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	PackagePath string     `gorm:"size:512" json:"package_path"`
	PackageName string     `gorm:"size:256;index" json:"package_name"`
	Kind        string     `gorm:"size:16" json:"kind"` // apk / xapk
	MemberCount int        `json:"member_count"`
	Status      ScanStatus `gorm:"size:16;index" json:"status"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`

	SDKs []TaskDetectedSDK `gorm:"foreignKey:TaskID" json:"sdks,omitempty"`
}

// TaskDetectedSDK 任务检出的单个 SDK，Position 保持引擎输出顺序
type TaskDetectedSDK struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	TaskID   string `gorm:"size:36;index" json:"-"`
	SDK      string `gorm:"size:64" json:"sdk"`
	Position int    `json:"position"`
}
