package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
	"github.com/zhigong-tech/conquality/internal/quality/testutil"
)

// recordingSink 记录外部通道调用次数
type recordingSink struct {
	emails int
	chats  int
}

func (s *recordingSink) SendEmail(ctx context.Context, to []string, subject, body string) error {
	s.emails++
	return nil
}

func (s *recordingSink) SendChat(ctx context.Context, userIDs []string, text string) error {
	s.chats++
	return nil
}

func setupReminderTest(t *testing.T) (*gorm.DB, *repository.Repositories, *ReminderService, *recordingSink) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	sink := &recordingSink{}
	svc := NewReminderService(repos, nil, sink, "https://quality.example.com", zap.NewNop())
	return db, repos, svc, sink
}

func seedReminderOpinion(t *testing.T, db *gorm.DB, deadline *time.Time) *entity.Opinion {
	t.Helper()
	testutil.SeedTestUser(t, db, "user-creator", "创建人", "creator@test.com")
	testutil.SeedTestUser(t, db, "user-manager", "项目经理", "manager@test.com")
	testutil.SeedTestProject(t, db, "proj-rem-001", "PJT-2025-009", "提醒测试项目", "user-manager")
	testutil.SeedTestProfession(t, db, "prof-rem-001", "ARCH", "建筑")

	opinion := &entity.Opinion{
		ID:               "op-rem-001",
		OpinionNumber:    "OPIN-PJT-2025-009-ARCH-001",
		ProjectID:        "proj-rem-001",
		ProfessionID:     "prof-rem-001",
		CreatedBy:        "user-creator",
		Status:           entity.OpinionStatusSubmitted,
		LocationName:     "三层梁",
		IssueDescription: "梁配筋不足",
		Recommendation:   "复核配筋",
		IssueCategory:    entity.IssueCategoryError,
		SeverityLevel:    entity.SeverityMajor,
		CalculationMode:  entity.CalculationModeManual,
		ResponseDeadline: deadline,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := db.Create(opinion).Error; err != nil {
		t.Fatalf("Failed to seed opinion: %v", err)
	}
	return opinion
}

func TestReminderRunUnassignedAndOverdue(t *testing.T) {
	db, _, svc, sink := setupReminderTest(t)
	past := time.Now().Add(-3 * 24 * time.Hour)
	seedReminderOpinion(t, db, &past)

	result, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}
	// 未指派：经理+创建人；逾期：经理+创建人 → 4条预警
	if result.Created != 4 {
		t.Errorf("Expected 4 created, got %d", result.Created)
	}
	if result.EmailSent != 4 || sink.emails != 4 {
		t.Errorf("Expected 4 emails, got result=%d sink=%d", result.EmailSent, sink.emails)
	}
	if result.WecomSent != 4 || sink.chats != 4 {
		t.Errorf("Expected 4 wecom messages, got result=%d sink=%d", result.WecomSent, sink.chats)
	}
}

func TestReminderRunDedup(t *testing.T) {
	db, repos, svc, _ := setupReminderTest(t)
	past := time.Now().Add(-3 * 24 * time.Hour)
	seedReminderOpinion(t, db, &past)

	first, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error on first run: %v", err)
	}
	if first.Created != 4 {
		t.Fatalf("Expected 4 created on first run, got %d", first.Created)
	}

	// 未读预警仍在，重跑不再新建
	second, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error on second run: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("Expected 0 created on second run, got %d", second.Created)
	}
	if second.Processed != 1 {
		t.Errorf("Expected 1 processed on second run, got %d", second.Processed)
	}

	// 已读后重跑会补一条新的未读预警
	notifications, _, err := repos.Notification.FindByRecipient(context.Background(), "user-manager", true, 1, 50)
	if err != nil {
		t.Fatalf("Failed to list notifications: %v", err)
	}
	for i := range notifications {
		if err := repos.Notification.MarkRead(context.Background(), notifications[i].ID, time.Now()); err != nil {
			t.Fatalf("Failed to mark read: %v", err)
		}
	}
	third, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error on third run: %v", err)
	}
	if third.Created != 2 {
		t.Errorf("Expected 2 created after manager read alerts, got %d", third.Created)
	}
}

func TestReminderRunAssignedNotOverdue(t *testing.T) {
	db, repos, svc, _ := setupReminderTest(t)
	future := time.Now().Add(3 * 24 * time.Hour)
	opinion := seedReminderOpinion(t, db, &future)

	// 指派审核人后不属于未指派，也未逾期
	testutil.SeedTestUser(t, db, "user-reviewer", "审核人", "reviewer@test.com")
	reviewer := "user-reviewer"
	opinion.CurrentReviewerID = &reviewer
	if err := db.Save(opinion).Error; err != nil {
		t.Fatalf("Failed to assign reviewer: %v", err)
	}

	result, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}
	if result.Created != 0 {
		t.Errorf("Expected 0 created, got %d", result.Created)
	}

	total, _, err := repos.Notification.CountUnreadAlerts(context.Background(), "proj-rem-001")
	if err != nil {
		t.Fatalf("Failed to count alerts: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected 0 unread alerts, got %d", total)
	}
}

func TestReminderRunOverdueGoesToReviewer(t *testing.T) {
	db, repos, svc, _ := setupReminderTest(t)
	past := time.Now().Add(-24 * time.Hour)
	opinion := seedReminderOpinion(t, db, &past)

	testutil.SeedTestUser(t, db, "user-reviewer", "审核人", "reviewer@test.com")
	reviewer := "user-reviewer"
	opinion.CurrentReviewerID = &reviewer
	opinion.Status = entity.OpinionStatusInReview
	if err := db.Save(opinion).Error; err != nil {
		t.Fatalf("Failed to assign reviewer: %v", err)
	}

	result, err := svc.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// 逾期：审核人+经理+创建人
	if result.Created != 3 {
		t.Errorf("Expected 3 created, got %d", result.Created)
	}

	alert, err := repos.Notification.FindUnreadAlert(context.Background(),
		"user-reviewer", "proj-rem-001", opinion.ID, entity.AlertTypeOverdue)
	if err != nil {
		t.Fatalf("Expected overdue alert for reviewer: %v", err)
	}
	if alert.ActionURL != "https://quality.example.com/quality/opinions/"+opinion.ID {
		t.Errorf("Unexpected action URL: %s", alert.ActionURL)
	}
}
