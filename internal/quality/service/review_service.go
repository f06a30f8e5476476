package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// ReviewService 审核流转服务
type ReviewService struct {
	repos    *repository.Repositories
	wfLogger *WorkflowLogger
	logger   *zap.Logger
}

// NewReviewService 创建审核服务
func NewReviewService(repos *repository.Repositories, wfLogger *WorkflowLogger, logger *zap.Logger) *ReviewService {
	return &ReviewService{repos: repos, wfLogger: wfLogger, logger: logger}
}

// ReviewRequest 提交审核请求
type ReviewRequest struct {
	Status         string `json:"status" binding:"required"`
	Role           string `json:"role"` // 为空时按参与人角色推断
	Comments       string `json:"comments"`
	TechnicalScore *int   `json:"technical_score"`
	EconomicScore  *int   `json:"economic_score"`
	InternalNote   string `json:"internal_note"`
}

// 审核目标状态 → 意见状态
var reviewOutcomes = map[string]string{
	entity.ReviewStatusApproved:    entity.OpinionStatusApproved,
	entity.ReviewStatusRejected:    entity.OpinionStatusRejected,
	entity.ReviewStatusNeedsUpdate: entity.OpinionStatusNeedsUpdate,
}

func validateReview(req *ReviewRequest) error {
	fields := map[string]string{}
	if _, ok := reviewOutcomes[req.Status]; !ok {
		fields["status"] = "仅支持 approved / rejected / needs_update"
	}
	if (req.Status == entity.ReviewStatusRejected || req.Status == entity.ReviewStatusNeedsUpdate) && req.Comments == "" {
		fields["comments"] = "驳回或需修改时必须填写审核意见。"
	}
	if req.TechnicalScore != nil && (*req.TechnicalScore < 1 || *req.TechnicalScore > 5) {
		fields["technical_score"] = "评分范围为1-5"
	}
	if req.EconomicScore != nil && (*req.EconomicScore < 1 || *req.EconomicScore > 5) {
		fields["economic_score"] = "评分范围为1-5"
	}
	if len(fields) > 0 {
		return apperr.Validation("审核参数校验失败", fields)
	}
	return nil
}

// List 查询意见的审核记录
func (s *ReviewService) List(ctx context.Context, opinionID string) ([]entity.OpinionReview, error) {
	return s.repos.Review.FindByOpinion(ctx, opinionID)
}

// Review 提交一条审核并驱动意见状态流转
func (s *ReviewService) Review(ctx context.Context, reviewerID, opinionID string, req *ReviewRequest) (*entity.Opinion, error) {
	if err := validateReview(req); err != nil {
		return nil, err
	}

	var result *entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, opinionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		if err := s.applyReview(ctx, tx, opinion, reviewerID, req); err != nil {
			return err
		}
		result = opinion
		return nil
	})
	return result, err
}

// BulkReviewRequest 批量审核请求
type BulkReviewRequest struct {
	OpinionIDs []string `json:"opinion_ids" binding:"required"`
	Status     string   `json:"status" binding:"required"`
	Role       string   `json:"role"`
	Comments   string   `json:"comments"`
}

// BulkReview 批量审核。任一意见状态不允许时整体失败
func (s *ReviewService) BulkReview(ctx context.Context, reviewerID string, req *BulkReviewRequest) ([]entity.Opinion, error) {
	itemReq := &ReviewRequest{Status: req.Status, Role: req.Role, Comments: req.Comments}
	if err := validateReview(itemReq); err != nil {
		return nil, err
	}
	if len(req.OpinionIDs) == 0 {
		return nil, apperr.Validation("未选择意见", map[string]string{"opinion_ids": "必填"})
	}

	var results []entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		for _, id := range req.OpinionIDs {
			opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.NotFound("意见不存在: " + id)
				}
				return err
			}
			if err := s.applyReview(ctx, tx, opinion, reviewerID, itemReq); err != nil {
				return err
			}
			results = append(results, *opinion)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// applyReview 在既有事务内执行单条审核：鉴权、建审核行、推进状态、刷新SLA时间戳
func (s *ReviewService) applyReview(ctx context.Context, tx *gorm.DB, opinion *entity.Opinion, reviewerID string, req *ReviewRequest) error {
	if !entity.IsPendingStatus(opinion.Status) {
		return apperr.InvalidState("当前状态 %s 不允许审核", opinion.Status)
	}

	// 已指派审核人时仅允许其本人审核
	if opinion.CurrentReviewerID != nil && *opinion.CurrentReviewerID != reviewerID {
		return apperr.Forbidden("仅当前审核人可提交审核")
	}

	role := req.Role
	if role == "" {
		inferred, err := s.inferRole(ctx, opinion, reviewerID)
		if err != nil {
			return err
		}
		role = inferred
	}

	exists, err := s.repos.Review.Exists(ctx, opinion.ID, reviewerID, role)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("同一审核人同一角色只能审核一次")
	}

	review := &entity.OpinionReview{
		ID:             uuid.New().String()[:32],
		OpinionID:      opinion.ID,
		ReviewerID:     reviewerID,
		Role:           role,
		Status:         req.Status,
		Comments:       req.Comments,
		TechnicalScore: req.TechnicalScore,
		EconomicScore:  req.EconomicScore,
		InternalNote:   req.InternalNote,
	}
	if err := s.repos.Review.CreateTx(ctx, tx, review); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("同一审核人同一角色只能审核一次")
		}
		return err
	}

	fromStatus := opinion.Status
	now := time.Now()

	// 首次审核响应，无论结论如何都记
	if opinion.FirstResponseAt == nil {
		opinion.FirstResponseAt = &now
	}

	opinion.Status = reviewOutcomes[req.Status]
	opinion.CurrentReviewerID = nil
	if entity.IsClosedStatus(opinion.Status) {
		opinion.ReviewedAt = &now
		opinion.ClosedAt = &now
	} else {
		opinion.ReviewedAt = nil
		opinion.ClosedAt = nil
	}
	opinion.RefreshCycleTime()

	if err := tx.Save(opinion).Error; err != nil {
		return err
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:    opinion.ID,
		Action:       entity.WorkflowActionReviewed,
		FromStatus:   fromStatus,
		ToStatus:     opinion.Status,
		OperatorID:   reviewerID,
		OperatorRole: role,
		Message:      req.Comments,
		Payload:      entity.JSONB{"review_status": req.Status},
	})
	return nil
}

// inferRole 按参与人角色推断审核角色
// 项目经理 → project_lead；参与人为质量经理 → quality_manager；
// 参与人为项目经理 → project_lead；参与人为专业负责人 → professional_lead；
// 兜底 professional_lead
func (s *ReviewService) inferRole(ctx context.Context, opinion *entity.Opinion, reviewerID string) (string, error) {
	managerID, err := s.repos.Project.ManagerOf(ctx, opinion.ProjectID)
	if err != nil {
		return "", err
	}
	if managerID != "" && managerID == reviewerID {
		return entity.ReviewRoleProjectLead, nil
	}

	participants, err := s.repos.Participant.FindActiveByOpinion(ctx, opinion.ID)
	if err != nil {
		return "", err
	}
	roles := map[string]bool{}
	for _, p := range participants {
		if p.UserID == reviewerID {
			roles[p.Role] = true
		}
	}
	switch {
	case roles[entity.ParticipantRoleQualityManager]:
		return entity.ReviewRoleQualityManager, nil
	case roles[entity.ParticipantRoleProjectManager]:
		return entity.ReviewRoleProjectLead, nil
	case roles[entity.ParticipantRoleProfessionalLead]:
		return entity.ReviewRoleProfessionalLead, nil
	default:
		return entity.ReviewRoleProfessionalLead, nil
	}
}
