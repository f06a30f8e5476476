package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// StatisticsHandler 统计快照接口
type StatisticsHandler struct {
	svc       *service.StatisticsService
	exportSvc *service.ExportService
}

// NewStatisticsHandler 创建统计处理器
func NewStatisticsHandler(svc *service.StatisticsService, exportSvc *service.ExportService) *StatisticsHandler {
	return &StatisticsHandler{svc: svc, exportSvc: exportSvc}
}

// parseDateQuery 解析YYYY-MM-DD查询参数
func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("参数 %s 须为 YYYY-MM-DD 格式", key)
	}
	return &t, nil
}

// List 快照列表
// GET /api/v1/quality/statistics?project_id=&type=&from=&to=
func (h *StatisticsHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	from, err := parseDateQuery(c, "from")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	items, total, err := h.svc.List(c.Request.Context(), c.Query("project_id"), c.Query("type"), from, to, page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get 快照详情
func (h *StatisticsHandler) Get(c *gin.Context) {
	stat, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, stat)
}

// Latest 最近一次快照
// GET /api/v1/quality/statistics/latest?project_id=&type=
func (h *StatisticsHandler) Latest(c *gin.Context) {
	stat, err := h.svc.Latest(c.Request.Context(), c.Query("project_id"), c.Query("type"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, stat)
}

// CaptureRequest 手动触发快照请求
type CaptureRequest struct {
	ProjectID    string `json:"project_id"`
	Type         string `json:"type"`
	SnapshotDate string `json:"snapshot_date"` // YYYY-MM-DD，默认今天
}

// Capture 立即计算并落一张快照
// POST /api/v1/quality/statistics/capture
func (h *StatisticsHandler) Capture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	now := time.Now()
	snapshotDate := now
	if req.SnapshotDate != "" {
		t, err := time.Parse("2006-01-02", req.SnapshotDate)
		if err != nil {
			BadRequest(c, "snapshot_date 须为 YYYY-MM-DD 格式")
			return
		}
		snapshotDate = t
	}

	stat, err := h.svc.Capture(c.Request.Context(), req.ProjectID, req.Type, snapshotDate, now)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, stat)
}

// Export 导出快照
// GET /api/v1/quality/statistics/export?format=csv|xlsx|pdf|json&project_id=&from=&to=
func (h *StatisticsHandler) Export(c *gin.Context) {
	from, err := parseDateQuery(c, "from")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	format := c.DefaultQuery("format", service.ExportFormatCSV)
	statType := c.DefaultQuery("type", entity.StatisticTypeQuality)

	result, err := h.exportSvc.Export(c.Request.Context(), c.Query("project_id"), statType, format, from, to)
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Data(200, result.ContentType, result.Data)
}
