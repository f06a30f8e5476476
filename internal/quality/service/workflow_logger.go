package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// WorkflowLogger 工作流日志记录器
// 所有状态性操作都经由它落日志；写入失败只提示到运行日志，绝不中断业务事务
type WorkflowLogger struct {
	repo   *repository.WorkflowLogRepository
	logger *zap.Logger
}

// NewWorkflowLogger 创建工作流日志记录器
func NewWorkflowLogger(repo *repository.WorkflowLogRepository, logger *zap.Logger) *WorkflowLogger {
	return &WorkflowLogger{repo: repo, logger: logger}
}

// LogEntry 一条工作流日志
type LogEntry struct {
	OpinionID    string
	Action       string
	FromStatus   string
	ToStatus     string
	OperatorID   string
	OperatorRole string
	Message      string
	Payload      entity.JSONB
}

// Record 写入一条日志（尽力而为）
func (l *WorkflowLogger) Record(ctx context.Context, e LogEntry) {
	row := &entity.OpinionWorkflowLog{
		OpinionID:    e.OpinionID,
		Action:       e.Action,
		FromStatus:   e.FromStatus,
		ToStatus:     e.ToStatus,
		OperatorID:   e.OperatorID,
		OperatorRole: e.OperatorRole,
		Message:      e.Message,
		Payload:      e.Payload,
		CreatedAt:    time.Now(),
	}
	if err := l.repo.Log(ctx, row); err != nil {
		l.logger.Warn("工作流日志写入失败",
			zap.String("opinion_id", e.OpinionID),
			zap.String("action", e.Action),
			zap.Error(err))
	}
}
