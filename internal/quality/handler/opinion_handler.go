package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// OpinionHandler 咨询意见接口
type OpinionHandler struct {
	svc *service.OpinionService
}

// NewOpinionHandler 创建意见处理器
func NewOpinionHandler(svc *service.OpinionService) *OpinionHandler {
	return &OpinionHandler{svc: svc}
}

// List 意见列表
// GET /api/v1/quality/opinions?status=&project_id=&profession_id=&search=&ordering=
func (h *OpinionHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":        c.Query("status"),
		"project_id":    c.Query("project_id"),
		"profession_id": c.Query("profession_id"),
		"search":        c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters, c.Query("ordering"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get 意见详情
func (h *OpinionHandler) Get(c *gin.Context) {
	opinion, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinion)
}

// Create 创建意见
func (h *OpinionHandler) Create(c *gin.Context) {
	var req service.OpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	opinion, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, opinion)
}

// Update 更新意见
func (h *OpinionHandler) Update(c *gin.Context) {
	var req service.OpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	opinion, err := h.svc.Update(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinion)
}

// Delete 删除意见
func (h *OpinionHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

// Submit 提交意见
// POST /api/v1/quality/opinions/:id/submit
func (h *OpinionHandler) Submit(c *gin.Context) {
	opinion, err := h.svc.Submit(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinion)
}

// Revert 退回草稿
// POST /api/v1/quality/opinions/:id/revert
func (h *OpinionHandler) Revert(c *gin.Context) {
	opinion, err := h.svc.Revert(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinion)
}

// AssignRequest 指派审核人请求
type AssignRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

// Assign 指派审核人
// POST /api/v1/quality/opinions/:id/assign
func (h *OpinionHandler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	opinion, err := h.svc.Assign(c.Request.Context(), GetUserID(c), c.Param("id"), req.ReviewerID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, opinion)
}

// Metrics 单条意见SLA指标
// GET /api/v1/quality/opinions/:id/metrics
func (h *OpinionHandler) Metrics(c *gin.Context) {
	metrics, err := h.svc.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, metrics)
}

// WorkflowLogs 意见工作流日志
// GET /api/v1/quality/opinions/:id/workflow-logs
func (h *OpinionHandler) WorkflowLogs(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.WorkflowLogs(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}
