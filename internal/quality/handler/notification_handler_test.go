package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/testutil"
)

func seedNotification(t *testing.T, env *testutil.TestEnv, id, recipientID string) {
	t.Helper()
	n := &entity.Notification{
		ID:          id,
		RecipientID: recipientID,
		ProjectID:   "proj-001",
		Category:    entity.NotificationCategoryQualityAlert,
		Title:       "咨询意见待指派: OPIN-PJT-2025-001-ARCH-001",
		Message:     "请尽快处理。",
		OpinionID:   "op-001",
		AlertType:   entity.AlertTypeUnassigned,
		CreatedTime: time.Now(),
	}
	if err := env.DB.Create(n).Error; err != nil {
		t.Fatalf("Failed to seed notification: %v", err)
	}
}

func TestNotificationListAndMarkRead(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	seedNotification(t, env, "notif-001", "test-user-001")
	seedNotification(t, env, "notif-002", "someone-else")

	// 只能看到本人的通知
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/quality/notifications?unread_only=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(items))
	}

	// 标记已读
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/notifications/notif-001/read", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	// 重复标记幂等
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/notifications/notif-001/read", nil, token)
	if w3.Code != http.StatusOK {
		t.Errorf("Expected 200 for repeated mark-read, got %d", w3.Code)
	}

	w4 := testutil.DoRequest(env.Router, "GET", "/api/v1/quality/notifications?unread_only=true", nil, token)
	items4 := testutil.ParseResponse(w4)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items4) != 0 {
		t.Errorf("Expected 0 unread after mark-read, got %d", len(items4))
	}
}

func TestNotificationMarkReadForbidden(t *testing.T) {
	env := setupQualityTest(t)
	seedQualityBase(t, env.DB)
	token := testutil.DefaultTestToken()

	seedNotification(t, env, "notif-003", "someone-else")

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/quality/notifications/notif-003/read", nil, token)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for another user's notification, got %d", w.Code)
	}
}
