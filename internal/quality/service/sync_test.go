package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
	"github.com/zhigong-tech/conquality/internal/quality/testutil"
)

func setupSyncTest(t *testing.T) (*gorm.DB, *repository.Repositories, *OpinionService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	wfLogger := NewWorkflowLogger(repos.WorkflowLog, zap.NewNop())
	svc := NewOpinionService(repos, nil, wfLogger, zap.NewNop())
	return db, repos, svc
}

func seedSyncOpinion(t *testing.T, db *gorm.DB, id string) *entity.Opinion {
	t.Helper()
	opinion := &entity.Opinion{
		ID:               id,
		OpinionNumber:    "OPIN-PJT-2025-001-ARCH-" + id[len(id)-3:],
		ProjectID:        "proj-001",
		ProfessionID:     "prof-001",
		CreatedBy:        "test-user-001",
		Status:           entity.OpinionStatusDraft,
		LocationName:     "三层梁",
		IssueDescription: "梁配筋不足",
		Recommendation:   "复核配筋",
		IssueCategory:    entity.IssueCategoryError,
		SeverityLevel:    entity.SeverityMajor,
		CalculationMode:  entity.CalculationModeManual,
	}
	if err := db.Create(opinion).Error; err != nil {
		t.Fatalf("Failed to seed opinion: %v", err)
	}
	return opinion
}

func TestSyncParticipantsSoftRemoveAndRestore(t *testing.T) {
	db, repos, svc := setupSyncTest(t)
	ctx := context.Background()
	testutil.SeedTestUser(t, db, "user-a", "甲", "a@test.com")
	testutil.SeedTestUser(t, db, "user-b", "乙", "b@test.com")
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "测试项目", "user-a")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")
	seedSyncOpinion(t, db, "op-sync-001")

	both := []ParticipantInput{
		{UserID: "user-a", Role: entity.ParticipantRoleProposer, IsPrimary: true},
		{UserID: "user-b", Role: entity.ParticipantRoleReviewer},
	}
	if err := svc.SyncParticipants(ctx, db, "op-sync-001", both); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	active, err := repos.Participant.FindActiveByOpinion(ctx, "op-sync-001")
	if err != nil || len(active) != 2 {
		t.Fatalf("Expected 2 active participants, got %d (err %v)", len(active), err)
	}
	removedID := ""
	for _, p := range active {
		if p.UserID == "user-b" {
			removedID = p.ID
		}
	}

	// 集合外软删除，行保留
	if err := svc.SyncParticipants(ctx, db, "op-sync-001", both[:1]); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	active, _ = repos.Participant.FindActiveByOpinion(ctx, "op-sync-001")
	if len(active) != 1 || active[0].UserID != "user-a" {
		t.Fatalf("Expected only user-a active, got %v", active)
	}
	all, _ := repos.Participant.FindByOpinion(ctx, "op-sync-001")
	if len(all) != 2 {
		t.Fatalf("Expected removed participant row to survive, got %d rows", len(all))
	}

	// 重新声明时复活原行，不新建
	if err := svc.SyncParticipants(ctx, db, "op-sync-001", both); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	all, _ = repos.Participant.FindByOpinion(ctx, "op-sync-001")
	if len(all) != 2 {
		t.Errorf("Expected restore to reuse the removed row, got %d rows", len(all))
	}
	for _, p := range all {
		if p.UserID == "user-b" {
			if p.ID != removedID {
				t.Errorf("Expected restored row to keep id %s, got %s", removedID, p.ID)
			}
			if p.RemovedAt != nil {
				t.Errorf("Expected removed_at cleared after restore, got %v", p.RemovedAt)
			}
		}
	}
}

func TestSyncParticipantsSkipsInactiveUser(t *testing.T) {
	db, repos, svc := setupSyncTest(t)
	ctx := context.Background()
	testutil.SeedTestUser(t, db, "user-a", "甲", "a@test.com")
	inactive := &entity.User{ID: "user-gone", Username: "user-gone", Name: "离职", Email: "gone@test.com", Status: "disabled"}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "测试项目", "user-a")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")
	seedSyncOpinion(t, db, "op-sync-002")

	err := svc.SyncParticipants(ctx, db, "op-sync-002", []ParticipantInput{
		{UserID: "user-a", Role: entity.ParticipantRoleProposer},
		{UserID: "user-gone", Role: entity.ParticipantRoleReviewer},
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	active, _ := repos.Participant.FindActiveByOpinion(ctx, "op-sync-002")
	if len(active) != 1 || active[0].UserID != "user-a" {
		t.Errorf("Expected inactive user skipped, got %v", active)
	}
}

func TestSyncSavingItemsRecomputeAndDelete(t *testing.T) {
	db, repos, svc := setupSyncTest(t)
	ctx := context.Background()
	testutil.SeedTestUser(t, db, "user-a", "甲", "a@test.com")
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "测试项目", "user-a")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")
	seedSyncOpinion(t, db, "op-sync-003")

	err := svc.SyncSavingItems(ctx, db, "op-sync-003", []SavingItemInput{
		{Category: entity.SavingCategoryMaterial, Description: "钢筋优化", Quantity: dec("10"), Unit: "t", UnitSaving: dec("3.5")},
		{Description: "人工节省", TotalSaving: dec("800")},
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	items, _ := repos.SavingItem.FindByOpinion(ctx, "op-sync-003")
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	var steel *entity.OpinionSavingItem
	for i := range items {
		if items[i].Description == "钢筋优化" {
			steel = &items[i]
		}
	}
	if steel == nil {
		t.Fatal("Missing item 钢筋优化")
	}
	// quantity × unit_saving 覆盖载荷中的 total_saving
	if steel.TotalSaving == nil || steel.TotalSaving.StringFixed(2) != "35.00" {
		t.Errorf("Expected recomputed total 35.00, got %v", steel.TotalSaving)
	}

	// 原地更新已知行，载荷外的行硬删除
	err = svc.SyncSavingItems(ctx, db, "op-sync-003", []SavingItemInput{
		{ID: steel.ID, Category: steel.Category, Description: "钢筋优化", Quantity: dec("12"), Unit: "t", UnitSaving: dec("3.5")},
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	items, _ = repos.SavingItem.FindByOpinion(ctx, "op-sync-003")
	if len(items) != 1 {
		t.Fatalf("Expected dropped item hard-deleted, got %d rows", len(items))
	}
	if items[0].ID != steel.ID {
		t.Errorf("Expected row %s kept, got %s", steel.ID, items[0].ID)
	}
	if items[0].TotalSaving == nil || items[0].TotalSaving.StringFixed(2) != "42.00" {
		t.Errorf("Expected recomputed total 42.00, got %v", items[0].TotalSaving)
	}
}

func TestCreateSequentialNumbersWithChildren(t *testing.T) {
	db, repos, svc := setupSyncTest(t)
	ctx := context.Background()
	testutil.SeedTestUser(t, db, "user-a", "甲", "a@test.com")
	testutil.SeedTestUser(t, db, "user-b", "乙", "b@test.com")
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "测试项目", "user-a")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")

	req := func() *OpinionRequest {
		return &OpinionRequest{
			ProjectID:        "proj-001",
			ProfessionID:     "prof-001",
			LocationName:     "三层梁",
			IssueDescription: "梁配筋不足",
			Recommendation:   "复核配筋",
			IssueCategory:    entity.IssueCategoryError,
			SeverityLevel:    entity.SeverityMajor,
			CalculationMode:  entity.CalculationModeManual,
			SavingAmount:     dec("100"),
			Participants: &[]ParticipantInput{
				{UserID: "user-b", Role: entity.ParticipantRoleReviewer},
			},
			SavingItems: &[]SavingItemInput{
				{Description: "人工节省", TotalSaving: dec("100")},
			},
		}
	}

	first, err := svc.Create(ctx, "user-a", req())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := svc.Create(ctx, "user-a", req())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasSuffix(first.OpinionNumber, "-001") || !strings.HasSuffix(second.OpinionNumber, "-002") {
		t.Errorf("Expected sequential numbers, got %s / %s", first.OpinionNumber, second.OpinionNumber)
	}

	// 子记录与主体同事务落库
	active, _ := repos.Participant.FindActiveByOpinion(ctx, first.ID)
	if len(active) != 1 {
		t.Errorf("Expected participant persisted with opinion, got %d", len(active))
	}
	items, _ := repos.SavingItem.FindByOpinion(ctx, first.ID)
	if len(items) != 1 {
		t.Errorf("Expected saving item persisted with opinion, got %d", len(items))
	}
}

func TestUpdateLockedOutsideEditableStates(t *testing.T) {
	db, _, svc := setupSyncTest(t)
	ctx := context.Background()
	testutil.SeedTestUser(t, db, "user-a", "甲", "a@test.com")
	testutil.SeedTestProject(t, db, "proj-001", "PJT-2025-001", "测试项目", "user-a")
	testutil.SeedTestProfession(t, db, "prof-001", "ARCH", "建筑")
	opinion := seedSyncOpinion(t, db, "op-sync-004")

	now := time.Now()
	opinion.Status = entity.OpinionStatusSubmitted
	opinion.SubmittedAt = &now
	if err := db.Save(opinion).Error; err != nil {
		t.Fatalf("Failed to submit opinion: %v", err)
	}

	_, err := svc.Update(ctx, "user-a", "op-sync-004", &OpinionRequest{
		LocationName:     "四层板",
		IssueDescription: "板厚偏小",
		Recommendation:   "复核板厚",
		IssueCategory:    entity.IssueCategoryError,
		SeverityLevel:    entity.SeverityMajor,
		CalculationMode:  entity.CalculationModeManual,
		SavingAmount:     dec("0"),
	})
	if err == nil {
		t.Fatal("Expected update of submitted opinion to fail")
	}
	var fresh entity.Opinion
	if err := db.Where("id = ?", "op-sync-004").First(&fresh).Error; err != nil {
		t.Fatalf("Failed to reload opinion: %v", err)
	}
	if fresh.Status != entity.OpinionStatusSubmitted || fresh.SubmittedAt == nil {
		t.Errorf("Expected submitted state untouched, got status %s submitted_at %v", fresh.Status, fresh.SubmittedAt)
	}
	if fresh.LocationName != "三层梁" {
		t.Errorf("Expected fields untouched, got %s", fresh.LocationName)
	}
}
