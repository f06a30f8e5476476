package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// ImportHandler 批量导入接口
type ImportHandler struct {
	svc *service.ImportService
}

// NewImportHandler 创建导入处理器
func NewImportHandler(svc *service.ImportService) *ImportHandler {
	return &ImportHandler{svc: svc}
}

// Preview 上传文件并预校验
// POST /api/v1/quality/opinions/import/preview  (multipart: file)
func (h *ImportHandler) Preview(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传导入文件")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "无法读取上传文件")
		return
	}
	defer file.Close()

	preview, err := h.svc.Preview(c.Request.Context(), GetUserID(c), file)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, preview)
}

// CommitRequest 提交已确认的载荷
type CommitRequest struct {
	Rows []service.ImportRow `json:"rows" binding:"required"`
}

// Commit 原子提交
// POST /api/v1/quality/opinions/import/commit
func (h *ImportHandler) Commit(c *gin.Context) {
	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	result, err := h.svc.Commit(c.Request.Context(), GetUserID(c), req.Rows)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, result)
}

// Template 下载导入模板
// GET /api/v1/quality/opinions/import/template
func (h *ImportHandler) Template(c *gin.Context) {
	f, err := h.svc.BuildTemplate()
	if err != nil {
		InternalError(c, "模板生成失败: "+err.Error())
		return
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		InternalError(c, "模板生成失败: "+err.Error())
		return
	}

	filename := fmt.Sprintf("opinion_import_template_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(200, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
