package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// 编号生成互斥锁与重试参数
const (
	numberLockPrefix = "conquality:lock:opinion_number:"
	numberLockTTL    = 5 * time.Second
	numberMaxRetries = 5
)

// OpinionService 咨询意见服务
type OpinionService struct {
	repos    *repository.Repositories
	rdb      *redis.Client
	wfLogger *WorkflowLogger
	logger   *zap.Logger
}

// NewOpinionService 创建意见服务
func NewOpinionService(repos *repository.Repositories, rdb *redis.Client, wfLogger *WorkflowLogger, logger *zap.Logger) *OpinionService {
	return &OpinionService{repos: repos, rdb: rdb, wfLogger: wfLogger, logger: logger}
}

// ParticipantInput 参与人声明
type ParticipantInput struct {
	UserID    string       `json:"user_id" binding:"required"`
	Role      string       `json:"role" binding:"required"`
	IsPrimary bool         `json:"is_primary"`
	ExtraInfo entity.JSONB `json:"extra_info"`
}

// SavingItemInput 节省明细行载荷
type SavingItemInput struct {
	ID          string           `json:"id"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Unit        string           `json:"unit"`
	UnitSaving  *decimal.Decimal `json:"unit_saving"`
	TotalSaving *decimal.Decimal `json:"total_saving"`
	Notes       string           `json:"notes"`
}

// OpinionRequest 创建/更新意见请求
type OpinionRequest struct {
	ProjectID    string `json:"project_id"`
	ProfessionID string `json:"profession_id"`

	Source         string `json:"source"`
	Priority       string `json:"priority"`
	DrawingNumber  string `json:"drawing_number"`
	DrawingVersion string `json:"drawing_version"`
	LocationName   string `json:"location_name"`

	ReviewPoints []string `json:"review_points"`

	IssueDescription string `json:"issue_description"`
	CurrentPractice  string `json:"current_practice"`
	Recommendation   string `json:"recommendation"`
	IssueCategory    string `json:"issue_category"`
	SeverityLevel    string `json:"severity_level"`
	ReferenceCodes   string `json:"reference_codes"`

	CalculationMode string           `json:"calculation_mode"`
	QuantityBefore  *decimal.Decimal `json:"quantity_before"`
	QuantityAfter   *decimal.Decimal `json:"quantity_after"`
	MeasureUnit     string           `json:"measure_unit"`
	UnitPriceBefore *decimal.Decimal `json:"unit_price_before"`
	UnitPriceAfter  *decimal.Decimal `json:"unit_price_after"`
	SavingAmount    *decimal.Decimal `json:"saving_amount"`
	CalculationNote string           `json:"calculation_note"`

	ImpactScope []string `json:"impact_scope"`

	ExpectedCompleteDate *time.Time `json:"expected_complete_date"`
	ActualCompleteDate   *time.Time `json:"actual_complete_date"`
	ResponseDeadline     *time.Time `json:"response_deadline"`

	Participants *[]ParticipantInput `json:"participants"`
	SavingItems  *[]SavingItemInput  `json:"saving_items"`

	// 创建时为true则在同一次调用中直接提交
	Submit bool `json:"submit"`
}

// validateRequired 结构性校验：必填字段与枚举值
func validateRequired(req *OpinionRequest) error {
	fields := map[string]string{}
	if req.ProjectID == "" {
		fields["project_id"] = "必填"
	}
	if req.ProfessionID == "" {
		fields["profession_id"] = "必填"
	}
	if req.LocationName == "" {
		fields["location_name"] = "必填"
	}
	if req.IssueDescription == "" {
		fields["issue_description"] = "必填"
	}
	if req.Recommendation == "" {
		fields["recommendation"] = "必填"
	}
	if _, ok := entity.IssueCategoryLabels[req.IssueCategory]; !ok {
		fields["issue_category"] = "无效的问题分类"
	}
	if _, ok := entity.SeverityLabels[req.SeverityLevel]; !ok {
		fields["severity_level"] = "无效的严重程度"
	}
	if req.CalculationMode != entity.CalculationModeAuto && req.CalculationMode != entity.CalculationModeManual {
		fields["calculation_mode"] = "仅支持 auto 或 manual"
	}
	if len(fields) > 0 {
		return apperr.Validation("字段校验失败", fields)
	}
	return nil
}

// List 分页查询意见
func (s *OpinionService) List(ctx context.Context, page, pageSize int, filters map[string]string, ordering string) ([]entity.Opinion, int64, error) {
	return s.repos.Opinion.FindAll(ctx, page, pageSize, filters, ordering)
}

// Get 查询意见详情（带审核/参与人/明细/附件）
func (s *OpinionService) Get(ctx context.Context, id string) (*entity.Opinion, error) {
	opinion, err := s.repos.Opinion.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("意见不存在")
		}
		return nil, err
	}
	return opinion, nil
}

// Create 创建意见
// 编号在每个 OPIN-{项目号}-{专业码}- 前缀下串行生成；
// 锁不可用时依赖唯一索引冲突重试保证不重号
func (s *OpinionService) Create(ctx context.Context, userID string, req *OpinionRequest) (*entity.Opinion, error) {
	if err := validateRequired(req); err != nil {
		return nil, err
	}

	project, err := s.repos.Project.FindByID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("项目不存在")
		}
		return nil, err
	}
	accessible, err := s.repos.Project.IsAccessible(ctx, project.ID, userID)
	if err != nil {
		return nil, err
	}
	if !accessible {
		return nil, apperr.Forbidden("无权访问该项目")
	}
	profession, err := s.repos.Project.FindProfessionByID(ctx, req.ProfessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("专业不存在")
		}
		return nil, err
	}

	savingAmount, err := ResolveSavingAmount(SavingInput{
		CalculationMode: req.CalculationMode,
		QuantityBefore:  req.QuantityBefore,
		QuantityAfter:   req.QuantityAfter,
		UnitPriceBefore: req.UnitPriceBefore,
		UnitPriceAfter:  req.UnitPriceAfter,
		SavingAmount:    req.SavingAmount,
	})
	if err != nil {
		return nil, err
	}

	opinion := &entity.Opinion{
		ProjectID:            project.ID,
		ProfessionID:         profession.ID,
		CreatedBy:            userID,
		Status:               entity.OpinionStatusDraft,
		Source:               req.Source,
		Priority:             req.Priority,
		DrawingNumber:        req.DrawingNumber,
		DrawingVersion:       req.DrawingVersion,
		LocationName:         req.LocationName,
		ReviewPoints:         req.ReviewPoints,
		IssueDescription:     req.IssueDescription,
		CurrentPractice:      req.CurrentPractice,
		Recommendation:       req.Recommendation,
		IssueCategory:        req.IssueCategory,
		SeverityLevel:        req.SeverityLevel,
		ReferenceCodes:       req.ReferenceCodes,
		CalculationMode:      req.CalculationMode,
		QuantityBefore:       req.QuantityBefore,
		QuantityAfter:        req.QuantityAfter,
		MeasureUnit:          req.MeasureUnit,
		UnitPriceBefore:      req.UnitPriceBefore,
		UnitPriceAfter:       req.UnitPriceAfter,
		SavingAmount:         savingAmount,
		CalculationNote:      req.CalculationNote,
		ImpactScope:          req.ImpactScope,
		ExpectedCompleteDate: req.ExpectedCompleteDate,
		ActualCompleteDate:   req.ActualCompleteDate,
		ResponseDeadline:     req.ResponseDeadline,
	}

	if err := s.createWithNumber(ctx, opinion, project.ProjectNumber, profession.Code, req); err != nil {
		return nil, err
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:  opinion.ID,
		Action:     entity.WorkflowActionCreated,
		ToStatus:   entity.OpinionStatusDraft,
		OperatorID: userID,
		Message:    fmt.Sprintf("创建意见 %s", opinion.OpinionNumber),
	})
	if req.Submit {
		s.wfLogger.Record(ctx, LogEntry{
			OpinionID:  opinion.ID,
			Action:     entity.WorkflowActionSubmitted,
			FromStatus: entity.OpinionStatusDraft,
			ToStatus:   opinion.Status,
			OperatorID: userID,
		})
	}
	return opinion, nil
}

// createWithNumber 生成编号并连同子记录在一个事务内落库；
// 唯一索引冲突时整体回滚后重新取号重试。submit标记的提交也在同一事务内完成
func (s *OpinionService) createWithNumber(ctx context.Context, opinion *entity.Opinion, projectNumber, professionCode string, req *OpinionRequest) error {
	lockKey := numberLockPrefix + projectNumber + ":" + professionCode
	unlock := s.acquireNumberLock(ctx, lockKey)
	defer unlock()

	var lastErr error
	for i := 0; i < numberMaxRetries; i++ {
		err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
			number, err := s.repos.Opinion.NextOpinionNumberTx(ctx, tx, projectNumber, professionCode)
			if err != nil {
				return err
			}
			opinion.ID = uuid.New().String()[:32]
			opinion.OpinionNumber = number
			opinion.Status = entity.OpinionStatusDraft
			opinion.SubmittedAt = nil
			if err := s.repos.Opinion.CreateTx(ctx, tx, opinion); err != nil {
				return err
			}

			if req.Participants != nil {
				if err := s.SyncParticipants(ctx, tx, opinion.ID, *req.Participants); err != nil {
					return err
				}
			}
			if req.SavingItems != nil {
				if err := s.SyncSavingItems(ctx, tx, opinion.ID, *req.SavingItems); err != nil {
					return err
				}
			}

			if req.Submit {
				if err := s.submitTx(ctx, tx, opinion); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			lastErr = err
			continue
		}
		return err
	}
	return apperr.Conflict(fmt.Sprintf("意见编号生成冲突: %v", lastErr))
}

// acquireNumberLock 获取Redis编号锁；Redis不可用时降级为空操作
func (s *OpinionService) acquireNumberLock(ctx context.Context, key string) func() {
	if s.rdb == nil {
		return func() {}
	}
	deadline := time.Now().Add(numberLockTTL)
	for time.Now().Before(deadline) {
		ok, err := s.rdb.SetNX(ctx, key, "1", numberLockTTL).Result()
		if err != nil {
			// Redis故障时不阻塞创建，由冲突重试兜底
			s.logger.Warn("编号锁获取失败，降级为冲突重试", zap.Error(err))
			return func() {}
		}
		if ok {
			return func() { s.rdb.Del(context.Background(), key) }
		}
		time.Sleep(50 * time.Millisecond)
	}
	return func() {}
}

// Update 更新意见。仅 draft / needs_update 状态可编辑；
// 身份、编号与创建人不可变更；review_points 为整组替换。
// 行锁加事务，防止并发状态迁移被旧快照覆盖
func (s *OpinionService) Update(ctx context.Context, userID, id string, req *OpinionRequest) (*entity.Opinion, error) {
	var result *entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		if !opinion.Editable() {
			return apperr.InvalidState("当前状态 %s 不允许编辑", opinion.Status)
		}

		// 项目与专业创建后不可变，忽略请求中的变更
		req.ProjectID = opinion.ProjectID
		req.ProfessionID = opinion.ProfessionID
		if err := validateRequired(req); err != nil {
			return err
		}

		savingAmount, err := ResolveSavingAmount(SavingInput{
			CalculationMode: req.CalculationMode,
			QuantityBefore:  req.QuantityBefore,
			QuantityAfter:   req.QuantityAfter,
			UnitPriceBefore: req.UnitPriceBefore,
			UnitPriceAfter:  req.UnitPriceAfter,
			SavingAmount:    req.SavingAmount,
		})
		if err != nil {
			return err
		}

		opinion.Source = req.Source
		opinion.Priority = req.Priority
		opinion.DrawingNumber = req.DrawingNumber
		opinion.DrawingVersion = req.DrawingVersion
		opinion.LocationName = req.LocationName
		opinion.ReviewPoints = req.ReviewPoints
		opinion.IssueDescription = req.IssueDescription
		opinion.CurrentPractice = req.CurrentPractice
		opinion.Recommendation = req.Recommendation
		opinion.IssueCategory = req.IssueCategory
		opinion.SeverityLevel = req.SeverityLevel
		opinion.ReferenceCodes = req.ReferenceCodes
		opinion.CalculationMode = req.CalculationMode
		opinion.QuantityBefore = req.QuantityBefore
		opinion.QuantityAfter = req.QuantityAfter
		opinion.MeasureUnit = req.MeasureUnit
		opinion.UnitPriceBefore = req.UnitPriceBefore
		opinion.UnitPriceAfter = req.UnitPriceAfter
		opinion.SavingAmount = savingAmount
		opinion.CalculationNote = req.CalculationNote
		opinion.ImpactScope = req.ImpactScope
		opinion.ExpectedCompleteDate = req.ExpectedCompleteDate
		opinion.ActualCompleteDate = req.ActualCompleteDate
		opinion.ResponseDeadline = req.ResponseDeadline

		if err := tx.WithContext(ctx).Save(opinion).Error; err != nil {
			return err
		}

		if req.Participants != nil {
			if err := s.SyncParticipants(ctx, tx, opinion.ID, *req.Participants); err != nil {
				return err
			}
		}
		if req.SavingItems != nil {
			if err := s.SyncSavingItems(ctx, tx, opinion.ID, *req.SavingItems); err != nil {
				return err
			}
		}
		result = opinion
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:  result.ID,
		Action:     entity.WorkflowActionUpdated,
		FromStatus: result.Status,
		ToStatus:   result.Status,
		OperatorID: userID,
	})
	return result, nil
}

// Submit 提交意见。draft / needs_update → submitted；submitted_at 只在首次提交时写入
func (s *OpinionService) Submit(ctx context.Context, userID, id string) (*entity.Opinion, error) {
	var result *entity.Opinion
	var fromStatus string
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		fromStatus = opinion.Status
		if err := s.submitTx(ctx, tx, opinion); err != nil {
			return err
		}
		result = opinion
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:  result.ID,
		Action:     entity.WorkflowActionSubmitted,
		FromStatus: fromStatus,
		ToStatus:   result.Status,
		OperatorID: userID,
	})
	return result, nil
}

// submitTx 提交状态机核心，须在事务内持有行后调用；日志由调用方在提交后补记
func (s *OpinionService) submitTx(ctx context.Context, tx *gorm.DB, opinion *entity.Opinion) error {
	if opinion.Status != entity.OpinionStatusDraft && opinion.Status != entity.OpinionStatusNeedsUpdate {
		return apperr.InvalidState("当前状态 %s 不允许提交", opinion.Status)
	}

	// 提交前重新校验金额块
	if _, err := ResolveSavingAmount(SavingInput{
		CalculationMode: opinion.CalculationMode,
		QuantityBefore:  opinion.QuantityBefore,
		QuantityAfter:   opinion.QuantityAfter,
		UnitPriceBefore: opinion.UnitPriceBefore,
		UnitPriceAfter:  opinion.UnitPriceAfter,
		SavingAmount:    opinion.SavingAmount,
	}); err != nil {
		return err
	}

	now := time.Now()
	opinion.Status = entity.OpinionStatusSubmitted
	if opinion.SubmittedAt == nil {
		opinion.SubmittedAt = &now
	}
	return tx.WithContext(ctx).Save(opinion).Error
}

// Assign 指派审核人。submitted / in_review → in_review；
// first_assigned_at 只在首次指派时写入
func (s *OpinionService) Assign(ctx context.Context, actorID, id, reviewerID string) (*entity.Opinion, error) {
	var result *entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		if opinion.Status != entity.OpinionStatusSubmitted && opinion.Status != entity.OpinionStatusInReview {
			return apperr.InvalidState("当前状态 %s 不允许指派审核人", opinion.Status)
		}

		accessible, err := s.repos.Project.IsAccessible(ctx, opinion.ProjectID, actorID)
		if err != nil {
			return err
		}
		if !accessible {
			return apperr.Forbidden("无权访问该项目")
		}

		active, err := s.repos.User.IsActive(ctx, reviewerID)
		if err != nil {
			return err
		}
		if !active {
			return apperr.Validation("审核人无效", map[string]string{"reviewer_id": "用户不存在或已停用"})
		}

		fromStatus := opinion.Status
		now := time.Now()
		opinion.Status = entity.OpinionStatusInReview
		opinion.CurrentReviewerID = &reviewerID
		if opinion.FirstAssignedAt == nil {
			opinion.FirstAssignedAt = &now
		}
		if err := tx.Save(opinion).Error; err != nil {
			return err
		}

		s.wfLogger.Record(ctx, LogEntry{
			OpinionID:  opinion.ID,
			Action:     entity.WorkflowActionReassigned,
			FromStatus: fromStatus,
			ToStatus:   opinion.Status,
			OperatorID: actorID,
			Payload:    entity.JSONB{"reviewer_id": reviewerID},
		})
		result = opinion
		return nil
	})
	return result, err
}

// Revert 退回草稿。needs_update / rejected → draft
func (s *OpinionService) Revert(ctx context.Context, userID, id string) (*entity.Opinion, error) {
	var result *entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		if opinion.Status != entity.OpinionStatusNeedsUpdate && opinion.Status != entity.OpinionStatusRejected {
			return apperr.InvalidState("当前状态 %s 不允许退回草稿", opinion.Status)
		}

		fromStatus := opinion.Status
		opinion.Status = entity.OpinionStatusDraft
		if err := tx.Save(opinion).Error; err != nil {
			return err
		}

		s.wfLogger.Record(ctx, LogEntry{
			OpinionID:  opinion.ID,
			Action:     entity.WorkflowActionStatusChanged,
			FromStatus: fromStatus,
			ToStatus:   opinion.Status,
			OperatorID: userID,
		})
		result = opinion
		return nil
	})
	return result, err
}

// Delete 删除意见及全部子记录。仅草稿状态、且限创建人或项目经理；
// 状态检查与删除在同一事务内持有行锁
func (s *OpinionService) Delete(ctx context.Context, userID, id string) error {
	return s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		opinion, err := s.repos.Opinion.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("意见不存在")
			}
			return err
		}
		if opinion.Status != entity.OpinionStatusDraft {
			return apperr.InvalidState("仅草稿状态可删除，当前状态 %s", opinion.Status)
		}
		if opinion.CreatedBy != userID {
			managerID, err := s.repos.Project.ManagerOf(ctx, opinion.ProjectID)
			if err != nil {
				return err
			}
			if managerID != userID {
				return apperr.Forbidden("仅创建人或项目经理可删除")
			}
		}
		return s.repos.Opinion.DeleteTx(ctx, tx, id)
	})
}

// OpinionMetrics 单条意见的SLA指标
type OpinionMetrics struct {
	OpinionNumber      string     `json:"opinion_number"`
	Status             string     `json:"status"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	FirstAssignedAt    *time.Time `json:"first_assigned_at"`
	FirstResponseAt    *time.Time `json:"first_response_at"`
	ReviewedAt         *time.Time `json:"reviewed_at"`
	ClosedAt           *time.Time `json:"closed_at"`
	CycleTimeHours     *float64   `json:"cycle_time_hours"`
	ResponseTimeHours  *float64   `json:"response_time_hours"`
	ReviewCount        int        `json:"review_count"`
	SavingAmount       string     `json:"saving_amount"`
	ParticipantCount   int        `json:"participant_count"`
	WorkflowEventCount int64      `json:"workflow_event_count"`
}

// Metrics 返回单条意见的量化指标
func (s *OpinionService) Metrics(ctx context.Context, id string) (*OpinionMetrics, error) {
	opinion, err := s.repos.Opinion.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("意见不存在")
		}
		return nil, err
	}

	reviews, err := s.repos.Review.FindByOpinion(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.repos.Participant.FindActiveByOpinion(ctx, id)
	if err != nil {
		return nil, err
	}
	_, logCount, err := s.repos.WorkflowLog.FindByOpinion(ctx, id, 1, 1)
	if err != nil {
		return nil, err
	}

	m := &OpinionMetrics{
		OpinionNumber:      opinion.OpinionNumber,
		Status:             opinion.Status,
		SubmittedAt:        opinion.SubmittedAt,
		FirstAssignedAt:    opinion.FirstAssignedAt,
		FirstResponseAt:    opinion.FirstResponseAt,
		ReviewedAt:         opinion.ReviewedAt,
		ClosedAt:           opinion.ClosedAt,
		CycleTimeHours:     opinion.CycleTimeHours,
		ReviewCount:        len(reviews),
		ParticipantCount:   len(participants),
		WorkflowEventCount: logCount,
	}
	if opinion.SavingAmount != nil {
		m.SavingAmount = opinion.SavingAmount.StringFixed(2)
	}
	if opinion.SubmittedAt != nil && opinion.FirstResponseAt != nil {
		delta := opinion.FirstResponseAt.Sub(*opinion.SubmittedAt)
		if delta >= 0 {
			hours, _ := decimal.NewFromFloat(delta.Hours()).Round(2).Float64()
			m.ResponseTimeHours = &hours
		}
	}
	return m, nil
}

// WorkflowLogs 按时间倒序分页查询意见的日志
func (s *OpinionService) WorkflowLogs(ctx context.Context, id string, page, pageSize int) ([]entity.OpinionWorkflowLog, int64, error) {
	return s.repos.WorkflowLog.FindByOpinion(ctx, id, page, pageSize)
}
