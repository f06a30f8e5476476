package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
)

func sampleStat() *entity.ProductionStatistic {
	return &entity.ProductionStatistic{
		ID:            "stat-001",
		ProjectID:     "proj-001",
		StatisticType: entity.StatisticTypeQuality,
		SnapshotDate:  time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Payload: entity.JSONB{
			"pending": map[string]interface{}{
				"total": 2, "unassigned": 1, "overdue": 1,
			},
			"averages": map[string]interface{}{
				"cycle_time_hours":     96.0,
				"first_response_hours": nil,
			},
			"sla": map[string]interface{}{
				"compliance": map[string]interface{}{
					"response_within_24h": map[string]interface{}{"met": 1, "total": 2, "rate": 50.0},
					"cycle_within_7d":     map[string]interface{}{"met": 0, "total": 0, "rate": nil},
				},
			},
			"financial": map[string]interface{}{
				"total_saving": "15000.50", "recent_saving": "14400.00",
			},
			"reviews": map[string]interface{}{
				"total":  3,
				"status": map[string]interface{}{"approved": 2, "rejected": 1},
			},
			"reminders": map[string]interface{}{
				"pending_total": 3.0, "sent_last_7_days": 5.0, "ack_last_7_days": 2.0,
			},
		},
	}
}

func TestExportRow(t *testing.T) {
	row := exportRow(sampleStat(), map[string]string{"proj-001": "PJT-2025-001"})

	if len(row) != len(exportColumns) {
		t.Fatalf("Expected %d cells, got %d", len(exportColumns), len(row))
	}
	if row[0] != "2025-06-15" {
		t.Errorf("Expected snapshot date 2025-06-15, got %v", row[0])
	}
	if row[1] != "PJT-2025-001" {
		t.Errorf("Expected project number, got %v", row[1])
	}
	if row[7] != "15000.50" {
		t.Errorf("Expected total_saving 15000.50, got %v", row[7])
	}
	// 未知项目编号回退为项目ID
	row2 := exportRow(sampleStat(), map[string]string{})
	if row2[1] != "proj-001" {
		t.Errorf("Expected fallback to project ID, got %v", row2[1])
	}
	// 全局快照
	global := sampleStat()
	global.ProjectID = ""
	row3 := exportRow(global, map[string]string{})
	if row3[1] != "GLOBAL" {
		t.Errorf("Expected GLOBAL, got %v", row3[1])
	}
}

func TestRenderCSV(t *testing.T) {
	row := exportRow(sampleStat(), map[string]string{"proj-001": "PJT-2025-001"})
	data, err := renderCSV([][]interface{}{row})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(records))
	}
	if records[0][0] != "snapshot_date" || records[0][16] != "reminders_ack_last_7_days" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][0] != "2025-06-15" || records[1][1] != "PJT-2025-001" {
		t.Errorf("Unexpected data row: %v", records[1])
	}
	// nil 值输出空串
	if records[1][6] != "" {
		t.Errorf("Expected empty cell for nil average, got %q", records[1][6])
	}
	// 整数不带小数尾巴
	if records[1][14] != "3" {
		t.Errorf("Expected 3 for reminders_pending, got %q", records[1][14])
	}
}

func TestRenderXLSX(t *testing.T) {
	row := exportRow(sampleStat(), map[string]string{"proj-001": "PJT-2025-001"})
	data, err := renderXLSX([][]interface{}{row})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Statistics")
	if err != nil {
		t.Fatalf("Expected sheet Statistics: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(rows))
	}
	if rows[0][0] != "snapshot_date" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][1] != "PJT-2025-001" {
		t.Errorf("Unexpected data row: %v", rows[1])
	}
}

func TestRenderPDF(t *testing.T) {
	row := exportRow(sampleStat(), map[string]string{"proj-001": "PJT-2025-001"})
	data, err := renderPDF([][]interface{}{row})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("Expected PDF magic header, got %q", data[:8])
	}
}

func TestRenderJSON(t *testing.T) {
	row := exportRow(sampleStat(), map[string]string{"proj-001": "PJT-2025-001"})
	data, err := renderJSON("PJT-2025-001", [][]interface{}{row})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var out struct {
		Project string                   `json:"project"`
		Records []map[string]interface{} `json:"records"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if out.Project != "PJT-2025-001" {
		t.Errorf("Expected project PJT-2025-001, got %s", out.Project)
	}
	if len(out.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(out.Records))
	}
	if out.Records[0]["total_saving"] != "15000.50" {
		t.Errorf("Unexpected total_saving: %v", out.Records[0]["total_saving"])
	}
}

func TestCellString(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{3.0, "3"},
		{33.3, "33.3"},
		{7, "7"},
	}
	for _, c := range cases {
		if got := cellString(c.in); got != c.want {
			t.Errorf("cellString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
