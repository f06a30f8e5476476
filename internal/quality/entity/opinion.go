package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 意见状态
const (
	OpinionStatusDraft       = "draft"
	OpinionStatusSubmitted   = "submitted"
	OpinionStatusInReview    = "in_review"
	OpinionStatusApproved    = "approved"
	OpinionStatusRejected    = "rejected"
	OpinionStatusNeedsUpdate = "needs_update"
)

// PendingStatuses 待处理状态集（统计与提醒共用）
var PendingStatuses = []string{OpinionStatusSubmitted, OpinionStatusInReview, OpinionStatusNeedsUpdate}

// IsPendingStatus 判断是否为待处理状态
func IsPendingStatus(status string) bool {
	for _, s := range PendingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsClosedStatus 终态：已通过或已驳回
func IsClosedStatus(status string) bool {
	return status == OpinionStatusApproved || status == OpinionStatusRejected
}

// 金额计算方式
const (
	CalculationModeAuto   = "auto"
	CalculationModeManual = "manual"
)

// 问题分类
const (
	IssueCategoryError        = "error"
	IssueCategoryOmission     = "omission"
	IssueCategoryConflict     = "conflict"
	IssueCategoryOptimization = "optimization"
	IssueCategoryOther        = "other"
)

// IssueCategoryLabels 问题分类中文名（导入时编码/中文名均可识别）
var IssueCategoryLabels = map[string]string{
	IssueCategoryError:        "错误",
	IssueCategoryOmission:     "漏项",
	IssueCategoryConflict:     "冲突",
	IssueCategoryOptimization: "优化建议",
	IssueCategoryOther:        "其他",
}

// 严重程度
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
	SeverityInfo     = "info"
)

// SeverityLabels 严重程度中文名
var SeverityLabels = map[string]string{
	SeverityCritical: "严重",
	SeverityMajor:    "重要",
	SeverityMinor:    "一般",
	SeverityInfo:     "提示",
}

// Opinion 咨询意见
type Opinion struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	OpinionNumber string `json:"opinion_number" gorm:"size:64;uniqueIndex;not null"`

	ProjectID    string `json:"project_id" gorm:"size:32;not null;index"`
	ProfessionID string `json:"profession_id" gorm:"size:32;not null;index"`

	CreatedBy         string  `json:"created_by" gorm:"size:32;not null"`
	CurrentReviewerID *string `json:"current_reviewer_id" gorm:"size:32;index"`
	Status            string  `json:"status" gorm:"size:20;not null;default:draft;index"`

	Source         string `json:"source" gorm:"size:50"`
	Priority       string `json:"priority" gorm:"size:20"`
	DrawingNumber  string `json:"drawing_number" gorm:"size:64"`
	DrawingVersion string `json:"drawing_version" gorm:"size:32"`
	LocationName   string `json:"location_name" gorm:"size:200;not null"`

	ReviewPoints StringList `json:"review_points" gorm:"type:jsonb"`

	IssueDescription string `json:"issue_description" gorm:"type:text;not null"`
	CurrentPractice  string `json:"current_practice" gorm:"type:text"`
	Recommendation   string `json:"recommendation" gorm:"type:text;not null"`
	IssueCategory    string `json:"issue_category" gorm:"size:32;not null"`
	SeverityLevel    string `json:"severity_level" gorm:"size:20;not null"`
	ReferenceCodes   string `json:"reference_codes" gorm:"size:500"`

	// 金额分析块
	CalculationMode string           `json:"calculation_mode" gorm:"size:10;not null;default:manual"`
	QuantityBefore  *decimal.Decimal `json:"quantity_before" gorm:"type:decimal(15,4)"`
	QuantityAfter   *decimal.Decimal `json:"quantity_after" gorm:"type:decimal(15,4)"`
	MeasureUnit     string           `json:"measure_unit" gorm:"size:16"`
	UnitPriceBefore *decimal.Decimal `json:"unit_price_before" gorm:"type:decimal(15,4)"`
	UnitPriceAfter  *decimal.Decimal `json:"unit_price_after" gorm:"type:decimal(15,4)"`
	SavingAmount    *decimal.Decimal `json:"saving_amount" gorm:"type:decimal(15,2)"`
	CalculationNote string           `json:"calculation_note" gorm:"type:text"`

	ImpactScope StringList `json:"impact_scope" gorm:"type:jsonb"`

	ExpectedCompleteDate *time.Time `json:"expected_complete_date" gorm:"type:date"`
	ActualCompleteDate   *time.Time `json:"actual_complete_date" gorm:"type:date"`
	ResponseDeadline     *time.Time `json:"response_deadline" gorm:"type:date"`

	// SLA时间戳
	SubmittedAt     *time.Time `json:"submitted_at"`
	FirstAssignedAt *time.Time `json:"first_assigned_at"`
	FirstResponseAt *time.Time `json:"first_response_at"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	ClosedAt        *time.Time `json:"closed_at"`
	CycleTimeHours  *float64   `json:"cycle_time_hours" gorm:"type:decimal(10,2)"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Reviews      []OpinionReview      `json:"reviews,omitempty" gorm:"foreignKey:OpinionID;constraint:OnDelete:CASCADE"`
	Participants []OpinionParticipant `json:"participants,omitempty" gorm:"foreignKey:OpinionID;constraint:OnDelete:CASCADE"`
	SavingItems  []OpinionSavingItem  `json:"saving_items,omitempty" gorm:"foreignKey:OpinionID;constraint:OnDelete:CASCADE"`
	Attachments  []OpinionAttachment  `json:"attachments,omitempty" gorm:"foreignKey:OpinionID;constraint:OnDelete:CASCADE"`
}

func (Opinion) TableName() string {
	return "quality_opinions"
}

// Editable 草稿和待修改状态可编辑
func (o *Opinion) Editable() bool {
	return o.Status == OpinionStatusDraft || o.Status == OpinionStatusNeedsUpdate
}

// RefreshCycleTime 重算周期工时：closed_at与submitted_at均存在时为小时差（保留2位），否则为空
func (o *Opinion) RefreshCycleTime() {
	if o.ClosedAt != nil && o.SubmittedAt != nil {
		hours := o.ClosedAt.Sub(*o.SubmittedAt).Seconds() / 3600
		rounded, _ := decimal.NewFromFloat(hours).Round(2).Float64()
		o.CycleTimeHours = &rounded
	} else {
		o.CycleTimeHours = nil
	}
}

// OpinionAttachment 意见附件
type OpinionAttachment struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	OpinionID      string    `json:"opinion_id" gorm:"size:32;not null;index"`
	AttachmentType string    `json:"attachment_type" gorm:"size:32;not null;default:other"` // drawing/photo/calculation/document/other
	ObjectKey      string    `json:"object_key" gorm:"size:500;not null"`
	FileName       string    `json:"file_name" gorm:"size:256"`
	FileSize       int64     `json:"file_size"`
	ContentType    string    `json:"content_type" gorm:"size:128"`
	UploadedBy     string    `json:"uploaded_by" gorm:"size:32;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (OpinionAttachment) TableName() string {
	return "quality_opinion_attachments"
}

// 附件类型
const (
	AttachmentTypeDrawing     = "drawing"
	AttachmentTypePhoto       = "photo"
	AttachmentTypeCalculation = "calculation"
	AttachmentTypeDocument    = "document"
	AttachmentTypeOther       = "other"
)
