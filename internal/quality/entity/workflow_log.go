package entity

import "time"

// 工作流动作
const (
	WorkflowActionCreated           = "created"
	WorkflowActionUpdated           = "updated"
	WorkflowActionSubmitted         = "submitted"
	WorkflowActionReassigned        = "reassigned"
	WorkflowActionReviewed          = "reviewed"
	WorkflowActionCommented         = "commented"
	WorkflowActionStatusChanged     = "status_changed"
	WorkflowActionAttachmentAdded   = "attachment_added"
	WorkflowActionAttachmentRemoved = "attachment_removed"
)

// OpinionWorkflowLog 意见工作流日志（只追加，按created_at倒序读取）
type OpinionWorkflowLog struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	OpinionID string `json:"opinion_id" gorm:"size:32;not null;index:idx_workflow_log_opinion"`

	Action     string `json:"action" gorm:"size:32;not null"`
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`

	OperatorID   string `json:"operator_id" gorm:"size:32"`
	OperatorRole string `json:"operator_role" gorm:"size:32"`
	Message      string `json:"message" gorm:"type:text"`
	Payload      JSONB  `json:"payload" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_workflow_log_opinion"`
}

func (OpinionWorkflowLog) TableName() string {
	return "quality_opinion_workflow_logs"
}
