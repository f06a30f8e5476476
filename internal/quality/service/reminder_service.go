package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

const (
	reminderLockKey = "conquality:lock:quality_alerts"
	reminderLockTTL = 10 * time.Minute
)

// ReminderService 质量提醒调度器
// 扫描待处理意见，为未指派/逾期两类情况生成去重的质量预警并转发到外部通道
type ReminderService struct {
	repos   *repository.Repositories
	rdb     *redis.Client
	sink    NotifySink
	baseURL string
	logger  *zap.Logger
}

// NewReminderService 创建提醒调度器
func NewReminderService(repos *repository.Repositories, rdb *redis.Client, sink NotifySink, baseURL string, logger *zap.Logger) *ReminderService {
	return &ReminderService{repos: repos, rdb: rdb, sink: sink, baseURL: baseURL, logger: logger}
}

// ReminderResult 单次运行计数
type ReminderResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	EmailSent int `json:"email_sent"`
	WecomSent int `json:"wecom_sent"`
}

// alertTask 一条待保障的预警
type alertTask struct {
	recipientID string
	alertType   string
}

// Run 执行一次提醒调度。重复执行不产生新的未读预警（按去重键幂等）
// 取消时已完成的部分保留，后续运行会补齐剩余
func (s *ReminderService) Run(ctx context.Context, asOf time.Time) (*ReminderResult, error) {
	unlock, acquired := s.acquireRunLock(ctx)
	if !acquired {
		s.logger.Info("提醒任务已在运行，跳过本次")
		return &ReminderResult{}, nil
	}
	defer unlock()

	result := &ReminderResult{}

	opinions, err := s.repos.Opinion.FindPending(ctx, "")
	if err != nil {
		return nil, err
	}

	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())

	for i := range opinions {
		if ctx.Err() != nil {
			// 到达墙钟上限，提交已完成部分并退出
			s.logger.Warn("提醒任务被取消，提前结束", zap.Int("processed", result.Processed))
			return result, nil
		}
		opinion := &opinions[i]
		result.Processed++

		if err := s.dispatchForOpinion(ctx, opinion, today, result); err != nil {
			s.logger.Warn("意见提醒处理失败",
				zap.String("opinion_number", opinion.OpinionNumber),
				zap.Error(err))
		}
	}

	return result, nil
}

// dispatchForOpinion 为单条意见生成全部应发预警
func (s *ReminderService) dispatchForOpinion(ctx context.Context, opinion *entity.Opinion, today time.Time, result *ReminderResult) error {
	managerID, err := s.repos.Project.ManagerOf(ctx, opinion.ProjectID)
	if err != nil {
		return err
	}
	businessManagerID, err := s.repos.Project.BusinessManagerOf(ctx, opinion.ProjectID)
	if err != nil {
		return err
	}

	var tasks []alertTask

	if opinion.CurrentReviewerID == nil {
		for _, uid := range dedupeIDs(managerID, businessManagerID, opinion.CreatedBy) {
			tasks = append(tasks, alertTask{recipientID: uid, alertType: entity.AlertTypeUnassigned})
		}
	}

	if opinion.ResponseDeadline != nil && opinion.ResponseDeadline.Before(today) {
		// 逾期首选当前审核人，未指派时落到项目经理
		primary := managerID
		if opinion.CurrentReviewerID != nil {
			primary = *opinion.CurrentReviewerID
		}
		for _, uid := range dedupeIDs(primary, managerID, opinion.CreatedBy) {
			tasks = append(tasks, alertTask{recipientID: uid, alertType: entity.AlertTypeOverdue})
		}
	}

	for _, task := range tasks {
		if err := s.ensureAndForward(ctx, opinion, task, result); err != nil {
			// 单个接收人失败不影响其余接收人
			s.logger.Warn("预警发送失败",
				zap.String("opinion_number", opinion.OpinionNumber),
				zap.String("recipient", task.recipientID),
				zap.String("alert_type", task.alertType),
				zap.Error(err))
		}
	}
	return nil
}

// ensureAndForward 保证 (接收人, 意见, 预警类型) 至多一条未读预警，然后转发外部通道
func (s *ReminderService) ensureAndForward(ctx context.Context, opinion *entity.Opinion, task alertTask, result *ReminderResult) error {
	title, message := s.composeAlert(opinion, task.alertType)
	actionURL := fmt.Sprintf("%s/quality/opinions/%s", s.baseURL, opinion.ID)

	existing, err := s.repos.Notification.FindUnreadAlert(ctx, task.recipientID, opinion.ProjectID, opinion.ID, task.alertType)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if existing != nil {
		existing.Title = title
		existing.Message = message
		existing.ActionURL = actionURL
		if err := s.repos.Notification.Update(ctx, existing); err != nil {
			return err
		}
	} else {
		n := &entity.Notification{
			ID:          uuid.New().String()[:32],
			RecipientID: task.recipientID,
			ProjectID:   opinion.ProjectID,
			Category:    entity.NotificationCategoryQualityAlert,
			Title:       title,
			Message:     message,
			ActionURL:   actionURL,
			OpinionID:   opinion.ID,
			AlertType:   task.alertType,
			Context: entity.JSONB{
				"opinion_id": opinion.ID,
				"alert_type": task.alertType,
			},
			CreatedTime: time.Now(),
		}
		if err := s.repos.Notification.Create(ctx, n); err != nil {
			return err
		}
		result.Created++
	}

	s.forward(ctx, task.recipientID, title, message, result)
	return nil
}

// forward 外部通道转发，按接收人属性选择通道，失败只记日志
func (s *ReminderService) forward(ctx context.Context, recipientID, title, message string, result *ReminderResult) {
	user, err := s.repos.User.FindByID(ctx, recipientID)
	if err != nil {
		s.logger.Warn("预警接收人查询失败", zap.String("recipient", recipientID), zap.Error(err))
		return
	}

	if user.Email != "" {
		if err := s.sink.SendEmail(ctx, []string{user.Email}, title, message); err != nil {
			s.logger.Warn("预警邮件发送失败", zap.String("recipient", recipientID), zap.Error(err))
		} else {
			result.EmailSent++
		}
	}
	if user.WecomUserID != "" {
		if err := s.sink.SendChat(ctx, []string{user.WecomUserID}, title+"\n"+message); err != nil {
			s.logger.Warn("预警企业微信发送失败", zap.String("recipient", recipientID), zap.Error(err))
		} else {
			result.WecomSent++
		}
	}
}

// composeAlert 生成预警标题与正文
func (s *ReminderService) composeAlert(opinion *entity.Opinion, alertType string) (title, message string) {
	switch alertType {
	case entity.AlertTypeUnassigned:
		title = fmt.Sprintf("咨询意见待指派: %s", opinion.OpinionNumber)
		message = fmt.Sprintf("意见 %s（%s）已提交但尚未指派审核人，请尽快处理。",
			opinion.OpinionNumber, opinion.LocationName)
	case entity.AlertTypeOverdue:
		deadline := ""
		if opinion.ResponseDeadline != nil {
			deadline = opinion.ResponseDeadline.Format("2006-01-02")
		}
		title = fmt.Sprintf("咨询意见已逾期: %s", opinion.OpinionNumber)
		message = fmt.Sprintf("意见 %s（%s）响应期限 %s 已过，请尽快处理。",
			opinion.OpinionNumber, opinion.LocationName, deadline)
	}
	return title, message
}

// acquireRunLock 获取运行互斥锁；Redis不可用时直接放行
func (s *ReminderService) acquireRunLock(ctx context.Context) (func(), bool) {
	if s.rdb == nil {
		return func() {}, true
	}
	ok, err := s.rdb.SetNX(ctx, reminderLockKey, "1", reminderLockTTL).Result()
	if err != nil {
		s.logger.Warn("提醒任务锁获取失败，降级为直接运行", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() { s.rdb.Del(context.Background(), reminderLockKey) }, true
}

// dedupeIDs 去重并剔除空ID，保持输入顺序
func dedupeIDs(ids ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
