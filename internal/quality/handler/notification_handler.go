package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// NotificationHandler 站内通知接口
type NotificationHandler struct {
	svc *service.NotificationService
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List 当前用户的通知
// GET /api/v1/quality/notifications?unread_only=true
func (h *NotificationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	unreadOnly := c.Query("unread_only") == "true"

	items, total, err := h.svc.List(c.Request.Context(), GetUserID(c), unreadOnly, page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// MarkRead 标记已读
// POST /api/v1/quality/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkRead(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}
