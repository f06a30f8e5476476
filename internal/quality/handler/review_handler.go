package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// ReviewHandler 意见审核接口
type ReviewHandler struct {
	svc *service.ReviewService
}

// NewReviewHandler 创建审核处理器
func NewReviewHandler(svc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

// List 某意见的审核记录
// GET /api/v1/quality/opinions/:id/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, items)
}

// Create 提交审核并驱动状态流转
// POST /api/v1/quality/opinions/:id/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	opinion, err := h.svc.Review(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, opinion)
}

// Bulk 批量审核
// POST /api/v1/quality/opinions/bulk-review
func (h *ReviewHandler) Bulk(c *gin.Context) {
	var req service.BulkReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	opinions, err := h.svc.BulkReview(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinions)
}
