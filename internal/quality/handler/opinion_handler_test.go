package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/config"
	"github.com/zhigong-tech/conquality/internal/middleware"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
	"github.com/zhigong-tech/conquality/internal/quality/service"
	"github.com/zhigong-tech/conquality/internal/quality/testutil"
)

func setupQualityTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	repos := repository.NewRepositories(db)
	cfg := &config.Config{}
	cfg.Server.BaseURL = "http://localhost:8080"
	services := service.NewServices(repos, nil, cfg, zap.NewNop())
	handlers := NewHandlers(services)

	api := testutil.AuthGroup(router, "/api/v1")
	registerQualityRoutes(api, handlers)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func registerQualityRoutes(api *gin.RouterGroup, h *Handlers) {
	quality := api.Group("/quality")

	opinions := quality.Group("/opinions")
	opinions.GET("", h.Opinion.List)
	opinions.POST("", h.Opinion.Create)
	opinions.POST("/bulk-review", h.Review.Bulk)
	opinions.POST("/import/preview", h.Import.Preview)
	opinions.POST("/import/commit", middleware.RequirePermission("quality:opinion:import"), h.Import.Commit)
	opinions.GET("/import/template", h.Import.Template)
	opinions.GET("/:id", h.Opinion.Get)
	opinions.PUT("/:id", h.Opinion.Update)
	opinions.DELETE("/:id", h.Opinion.Delete)
	opinions.POST("/:id/submit", h.Opinion.Submit)
	opinions.POST("/:id/revert", h.Opinion.Revert)
	opinions.POST("/:id/assign", h.Opinion.Assign)
	opinions.GET("/:id/metrics", h.Opinion.Metrics)
	opinions.GET("/:id/workflow-logs", h.Opinion.WorkflowLogs)
	opinions.GET("/:id/reviews", h.Review.List)
	opinions.POST("/:id/reviews", h.Review.Create)

	statistics := quality.Group("/statistics")
	statistics.GET("", h.Statistics.List)
	statistics.GET("/latest", h.Statistics.Latest)
	statistics.GET("/export", h.Statistics.Export)
	statistics.POST("/capture", middleware.RequireRole("quality_admin"), h.Statistics.Capture)
	statistics.GET("/:id", h.Statistics.Get)

	notifications := quality.Group("/notifications")
	notifications.GET("", h.Notification.List)
	notifications.POST("/:id/read", h.Notification.MarkRead)
}

// seedQualityBase 种入默认用户、项目与专业
func seedQualityBase(t *testing.T, db *gorm.DB) {
	t.Helper()
	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com")
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "某办公楼工程", "test-user-001")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")
}

func opinionPayload() map[string]interface{} {
	return map[string]interface{}{
		"project_id":        "proj-001",
		"profession_id":     "prof-001",
		"location_name":     "三层梁",
		"issue_description": "梁配筋与计算书不一致",
		"recommendation":    "按计算书修改配筋",
		"issue_category":    "error",
		"severity_level":    "major",
		"calculation_mode":  "auto",
		"quantity_before":   "120",
		"quantity_after":    "100",
		"unit_price_before": "520",
		"unit_price_after":  "480",
	}
}

func TestOpinionCreateNumberAndSaving(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["opinion_number"] != "OPIN-PJT-2025-001-ARCH-001" {
		t.Errorf("Expected OPIN-PJT-2025-001-ARCH-001, got %v", data["opinion_number"])
	}
	if data["status"] != "draft" {
		t.Errorf("Expected draft, got %v", data["status"])
	}
	if data["saving_amount"] != "14400" {
		t.Errorf("Expected saving 14400, got %v", data["saving_amount"])
	}

	// 同前缀第二条编号递增
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	if w2.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w2.Code, w2.Body.String())
	}
	data2 := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data2["opinion_number"] != "OPIN-PJT-2025-001-ARCH-002" {
		t.Errorf("Expected -002, got %v", data2["opinion_number"])
	}
}

func TestOpinionCreateValidation(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	payload := opinionPayload()
	delete(payload, "location_name")
	payload["issue_category"] = "whatever"

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", payload, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	fields := resp["fields"].(map[string]interface{})
	if fields["location_name"] == nil {
		t.Errorf("Expected location_name error, got %v", fields)
	}
	if fields["issue_category"] == nil {
		t.Errorf("Expected issue_category error, got %v", fields)
	}
}

func TestOpinionCreateAutoMissingFields(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	payload := opinionPayload()
	delete(payload, "unit_price_after")

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", payload, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	fields := testutil.ParseResponse(w)["fields"].(map[string]interface{})
	if fields["unit_price_after"] != "自动计算模式下必填" {
		t.Errorf("Unexpected field error: %v", fields)
	}
}

func TestOpinionSubmitAndRevert(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	id := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions/"+id+"/submit", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	data := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data["status"] != "submitted" {
		t.Errorf("Expected submitted, got %v", data["status"])
	}
	if data["submitted_at"] == nil {
		t.Errorf("Expected submitted_at to be set")
	}

	// 已提交不能再次提交
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions/"+id+"/submit", nil, token)
	if w3.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double submit, got %d", w3.Code)
	}

	// 已提交状态不能回退
	w4 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions/"+id+"/revert", nil, token)
	if w4.Code != http.StatusConflict {
		t.Errorf("Expected 409 for revert of submitted, got %d", w4.Code)
	}
}

func TestOpinionCreateWithSubmitFlag(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	payload := opinionPayload()
	payload["submit"] = true
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", payload, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != "submitted" {
		t.Errorf("Expected submitted, got %v", data["status"])
	}
}

func TestOpinionUpdateKeepsProjectImmutable(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	testutil.SeedTestProject(t, env.DB, "proj-002", "PJT-2025-002", "另一个项目", "test-user-001")
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	id := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	payload := opinionPayload()
	payload["project_id"] = "proj-002"
	payload["location_name"] = "四层板"
	w2 := testutil.DoRequest(env.Router, "PUT", "/api/v1/quality/opinions/"+id, payload, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	data := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if data["project_id"] != "proj-001" {
		t.Errorf("Expected project unchanged, got %v", data["project_id"])
	}
	if data["location_name"] != "四层板" {
		t.Errorf("Expected location updated, got %v", data["location_name"])
	}
	// 编号不变
	if data["opinion_number"] != "OPIN-PJT-2025-001-ARCH-001" {
		t.Errorf("Expected number unchanged, got %v", data["opinion_number"])
	}
}

func TestOpinionDeleteDraftOnly(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	id := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions/"+id+"/submit", nil, token)

	w2 := testutil.DoRequest(env.Router, "DELETE", "/api/v1/quality/opinions/"+id, nil, token)
	if w2.Code != http.StatusConflict {
		t.Errorf("Expected 409 for deleting submitted opinion, got %d", w2.Code)
	}
}

func TestOpinionWorkflowLogs(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	id := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)
	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions/"+id+"/submit", nil, token)

	w2 := testutil.DoRequest(env.Router, "GET", "/api/v1/quality/opinions/"+id+"/workflow-logs", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	data := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	logs := data["items"].([]interface{})
	if len(logs) != 2 {
		t.Fatalf("Expected 2 workflow logs (created+submitted), got %d", len(logs))
	}
	// 默认按时间倒序
	latest := logs[0].(map[string]interface{})
	if latest["action"] != "submitted" {
		t.Errorf("Expected latest log action submitted, got %v", latest["action"])
	}
}

func TestOpinionListFilters(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)
	payload := opinionPayload()
	payload["submit"] = true
	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", payload, token)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/quality/opinions?status=submitted", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected 1 submitted opinion, got %d", len(items))
	}
	pagination := data["pagination"].(map[string]interface{})
	if pagination["total"] != 1.0 {
		t.Errorf("Expected total 1, got %v", pagination["total"])
	}
}

func TestOpinionUnauthorized(t *testing.T) {
	env := setupQualityTest(t)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/quality/opinions", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}
