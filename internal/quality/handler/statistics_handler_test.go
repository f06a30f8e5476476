package handler

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/testutil"
)

func TestStatisticsCaptureAndLatest(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	payload := opinionPayload()
	payload["submit"] = true
	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", payload, token)
	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/opinions", opinionPayload(), token)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture",
		map[string]interface{}{"project_id": "proj-001", "snapshot_date": "2025-06-15"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	payload1 := data["payload"].(map[string]interface{})
	counts := payload1["counts"].(map[string]interface{})["status"].(map[string]interface{})
	if counts["draft"] != 1.0 || counts["submitted"] != 1.0 {
		t.Errorf("Unexpected status counts: %v", counts)
	}
	pending := payload1["pending"].(map[string]interface{})
	if pending["total"] != 1.0 || pending["unassigned"] != 1.0 {
		t.Errorf("Unexpected pending block: %v", pending)
	}
	financial := payload1["financial"].(map[string]interface{})
	if financial["total_saving"] != "28800.00" {
		t.Errorf("Expected total_saving 28800.00, got %v", financial["total_saving"])
	}

	w2 := testutil.DoRequest(env.Router, "GET",
		"/api/v1/quality/statistics/latest?project_id=proj-001", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	latest := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if latest["statistic_type"] != entity.StatisticTypeQuality {
		t.Errorf("Expected quality type, got %v", latest["statistic_type"])
	}
}

func TestStatisticsCaptureIdempotent(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	body := map[string]interface{}{"project_id": "proj-001", "snapshot_date": "2025-06-15"}
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture", body, token)
	if w2.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on re-capture, got %d: %s", w2.Code, w2.Body.String())
	}

	// 同 (项目, 类型, 日期) 只保留一张快照
	w3 := testutil.DoRequest(env.Router, "GET",
		"/api/v1/quality/statistics?project_id=proj-001", nil, token)
	data := testutil.ParseResponse(w3)["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected 1 snapshot after re-capture, got %d", len(items))
	}
}

func TestStatisticsCaptureUnknownProject(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture",
		map[string]interface{}{"project_id": "no-such-project"}, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStatisticsExportCSV(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture",
		map[string]interface{}{"project_id": "proj-001", "snapshot_date": "2025-06-15"}, token)

	w := testutil.DoRequest(env.Router, "GET",
		"/api/v1/quality/statistics/export?project_id=proj-001&format=csv", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "statistics_") {
		t.Errorf("Unexpected disposition: %s", cd)
	}

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(records))
	}
	if records[1][0] != "2025-06-15" {
		t.Errorf("Expected snapshot date in first column, got %v", records[1][0])
	}
	if records[1][1] != "PJT-2025-001" {
		t.Errorf("Expected project number, got %v", records[1][1])
	}
}

func TestStatisticsExportBadFormat(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "GET",
		"/api/v1/quality/statistics/export?format=docx", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown format, got %d", w.Code)
	}
}

func TestStatisticsCaptureRequiresAdmin(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.GenerateTestToken("test-user-001", "工程师", "eng@test.com",
		[]string{"engineer"}, []string{"quality:opinion:read"})

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/statistics/capture",
		map[string]interface{}{"project_id": "proj-001", "type": "quality", "snapshot_date": "2025-06-15"}, token)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin capture, got %d: %s", w.Code, w.Body.String())
	}
}
