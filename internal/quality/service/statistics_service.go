package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// StatisticsService 统计快照服务
type StatisticsService struct {
	repos *repository.Repositories
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(repos *repository.Repositories) *StatisticsService {
	return &StatisticsService{repos: repos}
}

// StatisticsInput 统计计算输入。时间源由调用方注入以便测试固定时钟
type StatisticsInput struct {
	Opinions     []entity.Opinion
	Reviews      []entity.OpinionReview
	SnapshotDate time.Time
	AsOf         time.Time

	ReminderPendingTotal  int64
	ReminderPendingByType map[string]int64
	ReminderSentLast7d    int64
	ReminderAckLast7d     int64
}

// round2 保留2位小数
func round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

// rate1 比率 met/total×100 保留1位小数；total为0时返回nil
func rate1(met, total int) interface{} {
	if total == 0 {
		return nil
	}
	r, _ := decimal.NewFromInt(int64(met)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(1).Float64()
	return r
}

// BuildPayload 纯函数：由输入快照计算统计载荷
func BuildPayload(in StatisticsInput) entity.JSONB {
	statusCounts := map[string]interface{}{}
	pendingTotal, pendingUnassigned, pendingOverdue := 0, 0, 0

	// 截止日按日期口径严格比较，当天到期不算逾期
	snapshotDay := time.Date(in.SnapshotDate.Year(), in.SnapshotDate.Month(), in.SnapshotDate.Day(), 0, 0, 0, 0, in.SnapshotDate.Location())

	var cycleSum float64
	cycleCount := 0
	var responseSum float64
	responseCount := 0
	responseWithin24h := 0
	cycleWithin7dMet, cycleWithin7dTotal := 0, 0

	totalSaving := decimal.Zero
	recentSaving := decimal.Zero
	recentSince := in.AsOf.Add(-30 * 24 * time.Hour)

	for i := range in.Opinions {
		o := &in.Opinions[i]
		if n, ok := statusCounts[o.Status].(int); ok {
			statusCounts[o.Status] = n + 1
		} else {
			statusCounts[o.Status] = 1
		}

		if entity.IsPendingStatus(o.Status) {
			pendingTotal++
			if o.CurrentReviewerID == nil {
				pendingUnassigned++
			}
			if o.ResponseDeadline != nil && o.ResponseDeadline.Before(snapshotDay) {
				pendingOverdue++
			}
		}

		if o.CycleTimeHours != nil {
			cycleSum += *o.CycleTimeHours
			cycleCount++
		}

		if o.SubmittedAt != nil && o.FirstResponseAt != nil {
			delta := o.FirstResponseAt.Sub(*o.SubmittedAt)
			if delta >= 0 {
				responseSum += delta.Hours()
				responseCount++
				if delta <= 24*time.Hour {
					responseWithin24h++
				}
			}
		}

		if o.SubmittedAt != nil && o.ClosedAt != nil {
			cycleWithin7dTotal++
			if o.ClosedAt.Sub(*o.SubmittedAt) <= 7*24*time.Hour {
				cycleWithin7dMet++
			}
		}

		if o.SavingAmount != nil {
			totalSaving = totalSaving.Add(*o.SavingAmount)
			// 近30天口径两端都含
			if o.Status == entity.OpinionStatusApproved && o.ReviewedAt != nil &&
				!o.ReviewedAt.Before(recentSince) && !o.ReviewedAt.After(in.AsOf) {
				recentSaving = recentSaving.Add(*o.SavingAmount)
			}
		}
	}

	var avgCycle, avgResponse interface{}
	if cycleCount > 0 {
		avgCycle = round2(cycleSum / float64(cycleCount))
	}
	if responseCount > 0 {
		avgResponse = round2(responseSum / float64(responseCount))
	}
	averages := map[string]interface{}{
		"cycle_time_hours":     avgCycle,
		"first_response_hours": avgResponse,
	}

	reviewStatus := map[string]interface{}{}
	reviewRole := map[string]interface{}{}
	for i := range in.Reviews {
		r := &in.Reviews[i]
		if n, ok := reviewStatus[r.Status].(int); ok {
			reviewStatus[r.Status] = n + 1
		} else {
			reviewStatus[r.Status] = 1
		}
		if n, ok := reviewRole[r.Role].(int); ok {
			reviewRole[r.Role] = n + 1
		} else {
			reviewRole[r.Role] = 1
		}
	}

	pendingByType := map[string]interface{}{}
	for t, n := range in.ReminderPendingByType {
		pendingByType[t] = n
	}

	return entity.JSONB{
		"generated_at": in.AsOf.Format(time.RFC3339),
		"counts": map[string]interface{}{
			"status": statusCounts,
		},
		"pending": map[string]interface{}{
			"total":      pendingTotal,
			"unassigned": pendingUnassigned,
			"overdue":    pendingOverdue,
		},
		"averages": averages,
		"sla": map[string]interface{}{
			"averages": averages,
			"compliance": map[string]interface{}{
				"response_within_24h": map[string]interface{}{
					"met":   responseWithin24h,
					"total": responseCount,
					"rate":  rate1(responseWithin24h, responseCount),
				},
				"cycle_within_7d": map[string]interface{}{
					"met":   cycleWithin7dMet,
					"total": cycleWithin7dTotal,
					"rate":  rate1(cycleWithin7dMet, cycleWithin7dTotal),
				},
			},
		},
		"financial": map[string]interface{}{
			"total_saving":  totalSaving.StringFixed(2),
			"recent_saving": recentSaving.StringFixed(2),
		},
		"reviews": map[string]interface{}{
			"total":  len(in.Reviews),
			"status": reviewStatus,
			"role":   reviewRole,
		},
		"reminders": map[string]interface{}{
			"pending_total":    in.ReminderPendingTotal,
			"pending_by_type":  pendingByType,
			"sent_last_7_days": in.ReminderSentLast7d,
			"ack_last_7_days":  in.ReminderAckLast7d,
		},
	}
}

// Capture 计算并落一张快照；同 (project, type, snapshot_date) 重复执行为幂等覆盖
func (s *StatisticsService) Capture(ctx context.Context, projectID, statType string, snapshotDate, asOf time.Time) (*entity.ProductionStatistic, error) {
	if statType == "" {
		statType = entity.StatisticTypeQuality
	}
	if projectID != "" {
		if _, err := s.repos.Project.FindByID(ctx, projectID); err != nil {
			if err == repository.ErrNotFound {
				return nil, apperr.NotFound("项目不存在")
			}
			return nil, err
		}
	}

	opinions, err := s.repos.Opinion.FindForStatistics(ctx, projectID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.repos.Review.FindForStatistics(ctx, projectID)
	if err != nil {
		return nil, err
	}
	pendingTotal, pendingByType, err := s.repos.Notification.CountUnreadAlerts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sent7, ack7, err := s.repos.Notification.CountAlertsSince(ctx, projectID, asOf.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}

	payload := BuildPayload(StatisticsInput{
		Opinions:              opinions,
		Reviews:               reviews,
		SnapshotDate:          snapshotDate,
		AsOf:                  asOf,
		ReminderPendingTotal:  pendingTotal,
		ReminderPendingByType: pendingByType,
		ReminderSentLast7d:    sent7,
		ReminderAckLast7d:     ack7,
	})

	stat := &entity.ProductionStatistic{
		ProjectID:     projectID,
		StatisticType: statType,
		SnapshotDate:  time.Date(snapshotDate.Year(), snapshotDate.Month(), snapshotDate.Day(), 0, 0, 0, 0, time.UTC),
		Payload:       payload,
	}
	if err := s.repos.Statistic.Upsert(ctx, stat); err != nil {
		return nil, err
	}
	return stat, nil
}

// List 分页查询快照
func (s *StatisticsService) List(ctx context.Context, projectID, statType string, from, to *time.Time, page, pageSize int) ([]entity.ProductionStatistic, int64, error) {
	return s.repos.Statistic.FindAll(ctx, projectID, statType, from, to, page, pageSize)
}

// Get 按ID查询快照
func (s *StatisticsService) Get(ctx context.Context, id string) (*entity.ProductionStatistic, error) {
	stat, err := s.repos.Statistic.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("快照不存在")
		}
		return nil, err
	}
	return stat, nil
}

// Latest 最近一次快照
func (s *StatisticsService) Latest(ctx context.Context, projectID, statType string) (*entity.ProductionStatistic, error) {
	if statType == "" {
		statType = entity.StatisticTypeQuality
	}
	stat, err := s.repos.Statistic.FindLatest(ctx, projectID, statType)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("暂无统计快照")
		}
		return nil, err
	}
	return stat, nil
}
