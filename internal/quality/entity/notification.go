package entity

import "time"

// 通知分类
const (
	NotificationCategoryQualityAlert = "quality_alert"
)

// 质量提醒类型
const (
	AlertTypeUnassigned = "unassigned"
	AlertTypeOverdue    = "overdue"
)

// Notification 站内通知
// 提醒去重依赖 (recipient, project, category, context.opinion_id, context.alert_type, is_read=false)
// 查询，opinion_id/alert_type 冗余成列以便走索引
type Notification struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	RecipientID string `json:"recipient_id" gorm:"size:32;not null;index:idx_notification_dedup"`
	ProjectID   string `json:"project_id" gorm:"size:32;index:idx_notification_dedup"`
	Category    string `json:"category" gorm:"size:32;not null;index:idx_notification_dedup"`

	Title     string `json:"title" gorm:"size:200;not null"`
	Message   string `json:"message" gorm:"type:text"`
	ActionURL string `json:"action_url" gorm:"size:500"`
	Context   JSONB  `json:"context" gorm:"type:jsonb"`

	OpinionID string `json:"opinion_id" gorm:"size:32;index:idx_notification_dedup"`
	AlertType string `json:"alert_type" gorm:"size:32;index:idx_notification_dedup"`

	IsRead      bool       `json:"is_read" gorm:"default:false;index:idx_notification_dedup"`
	CreatedTime time.Time  `json:"created_time"`
	ReadTime    *time.Time `json:"read_time"`
}

func (Notification) TableName() string {
	return "quality_notifications"
}
