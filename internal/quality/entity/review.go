package entity

import "time"

// 审核角色
const (
	ReviewRoleProfessionalLead = "professional_lead"
	ReviewRoleProjectLead      = "project_lead"
	ReviewRoleQualityManager   = "quality_manager"
)

// 审核结论
const (
	ReviewStatusPending     = "pending"
	ReviewStatusApproved    = "approved"
	ReviewStatusRejected    = "rejected"
	ReviewStatusNeedsUpdate = "needs_update"
)

// OpinionReview 意见审核记录。(opinion, reviewer, role) 唯一
type OpinionReview struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	OpinionID  string `json:"opinion_id" gorm:"size:32;not null;uniqueIndex:uk_review_opinion_reviewer_role"`
	ReviewerID string `json:"reviewer_id" gorm:"size:32;not null;uniqueIndex:uk_review_opinion_reviewer_role"`
	Role       string `json:"role" gorm:"size:32;not null;uniqueIndex:uk_review_opinion_reviewer_role"`

	Status   string `json:"status" gorm:"size:20;not null;default:pending"`
	Comments string `json:"comments" gorm:"type:text"`

	TechnicalScore *int   `json:"technical_score"` // 1-5
	EconomicScore  *int   `json:"economic_score"`  // 1-5
	InternalNote   string `json:"internal_note" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reviewer *User `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
}

func (OpinionReview) TableName() string {
	return "quality_opinion_reviews"
}

// 参与人角色
const (
	ParticipantRoleProposer             = "proposer"
	ParticipantRoleProfessionalEngineer = "professional_engineer"
	ParticipantRoleProfessionalLead     = "professional_lead"
	ParticipantRoleProjectManager       = "project_manager"
	ParticipantRoleCostEngineer         = "cost_engineer"
	ParticipantRoleQualityManager       = "quality_manager"
	ParticipantRoleReviewer             = "reviewer"
	ParticipantRoleObserver             = "observer"
)

// OpinionParticipant 意见参与人。(opinion, user, role) 唯一；软删除保留历史引用
type OpinionParticipant struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	OpinionID string `json:"opinion_id" gorm:"size:32;not null;uniqueIndex:uk_participant_opinion_user_role"`
	UserID    string `json:"user_id" gorm:"size:32;not null;uniqueIndex:uk_participant_opinion_user_role"`
	Role      string `json:"role" gorm:"size:32;not null;uniqueIndex:uk_participant_opinion_user_role"`

	IsPrimary bool       `json:"is_primary" gorm:"default:false"`
	JoinedAt  time.Time  `json:"joined_at"`
	RemovedAt *time.Time `json:"removed_at"`
	ExtraInfo JSONB      `json:"extra_info" gorm:"type:jsonb"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (OpinionParticipant) TableName() string {
	return "quality_opinion_participants"
}
