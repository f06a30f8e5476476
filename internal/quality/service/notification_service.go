package service

import (
	"context"
	"errors"
	"time"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// NotificationService 站内通知服务
type NotificationService struct {
	repos *repository.Repositories
}

// NewNotificationService 创建通知服务
func NewNotificationService(repos *repository.Repositories) *NotificationService {
	return &NotificationService{repos: repos}
}

// List 查询当前用户的通知
func (s *NotificationService) List(ctx context.Context, recipientID string, unreadOnly bool, page, pageSize int) ([]entity.Notification, int64, error) {
	return s.repos.Notification.FindByRecipient(ctx, recipientID, unreadOnly, page, pageSize)
}

// MarkRead 标记已读。只能操作本人的通知
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	n, err := s.repos.Notification.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("通知不存在")
		}
		return err
	}
	if n.RecipientID != recipientID {
		return apperr.Forbidden("只能操作本人的通知")
	}
	if n.IsRead {
		return nil
	}
	return s.repos.Notification.MarkRead(ctx, id, time.Now())
}
