package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// 导出格式
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatPDF  = "pdf"
	ExportFormatJSON = "json"
)

// exportColumns 导出列，顺序是对外契约，各格式保持一致
var exportColumns = []string{
	"snapshot_date",
	"project_number",
	"pending_total",
	"pending_unassigned",
	"pending_overdue",
	"avg_cycle_hours",
	"avg_response_hours",
	"total_saving",
	"recent_saving",
	"response_within_24h_rate",
	"cycle_within_7d_rate",
	"review_total",
	"review_approved",
	"review_rejected",
	"reminders_pending",
	"reminders_sent_last_7_days",
	"reminders_ack_last_7_days",
}

// ExportService 统计快照导出
type ExportService struct {
	repos *repository.Repositories
}

// NewExportService 创建导出服务
func NewExportService(repos *repository.Repositories) *ExportService {
	return &ExportService{repos: repos}
}

// ExportResult 导出产物
type ExportResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Export 导出指定区间的快照
func (s *ExportService) Export(ctx context.Context, projectID, statType, format string, from, to *time.Time) (*ExportResult, error) {
	if statType == "" {
		statType = entity.StatisticTypeQuality
	}

	stats, err := s.repos.Statistic.FindRange(ctx, projectID, statType, from, to)
	if err != nil {
		return nil, err
	}

	projectName := "GLOBAL"
	projectNumbers := map[string]string{}
	for i := range stats {
		pid := stats[i].ProjectID
		if pid == "" {
			continue
		}
		if _, ok := projectNumbers[pid]; ok {
			continue
		}
		project, perr := s.repos.Project.FindByID(ctx, pid)
		if perr != nil {
			projectNumbers[pid] = pid
			continue
		}
		projectNumbers[pid] = project.ProjectNumber
	}
	if projectID != "" {
		if number, ok := projectNumbers[projectID]; ok {
			projectName = number
		} else if project, perr := s.repos.Project.FindByID(ctx, projectID); perr == nil {
			projectName = project.ProjectNumber
		}
	}

	rows := make([][]interface{}, 0, len(stats))
	for i := range stats {
		rows = append(rows, exportRow(&stats[i], projectNumbers))
	}

	stamp := time.Now().Format("20060102")
	switch format {
	case ExportFormatCSV:
		data, err := renderCSV(rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data, ContentType: "text/csv; charset=utf-8",
			Filename: fmt.Sprintf("statistics_%s.csv", stamp)}, nil
	case ExportFormatXLSX:
		data, err := renderXLSX(rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Filename:    fmt.Sprintf("statistics_%s.xlsx", stamp)}, nil
	case ExportFormatPDF:
		data, err := renderPDF(rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data, ContentType: "application/pdf",
			Filename: fmt.Sprintf("statistics_%s.pdf", stamp)}, nil
	case ExportFormatJSON:
		data, err := renderJSON(projectName, rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data, ContentType: "application/json",
			Filename: fmt.Sprintf("statistics_%s.json", stamp)}, nil
	default:
		return nil, apperr.Validation("不支持的导出格式", map[string]string{"format": format})
	}
}

// dig 逐层读取载荷中的嵌套值
func dig(payload entity.JSONB, keys ...string) interface{} {
	var cur interface{} = map[string]interface{}(payload)
	for _, key := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// exportRow 由一张快照产出一行导出数据，列序与exportColumns一致
func exportRow(stat *entity.ProductionStatistic, projectNumbers map[string]string) []interface{} {
	projectNumber := "GLOBAL"
	if stat.ProjectID != "" {
		if number, ok := projectNumbers[stat.ProjectID]; ok {
			projectNumber = number
		} else {
			projectNumber = stat.ProjectID
		}
	}

	p := stat.Payload
	return []interface{}{
		stat.SnapshotDate.Format("2006-01-02"),
		projectNumber,
		dig(p, "pending", "total"),
		dig(p, "pending", "unassigned"),
		dig(p, "pending", "overdue"),
		dig(p, "averages", "cycle_time_hours"),
		dig(p, "averages", "first_response_hours"),
		dig(p, "financial", "total_saving"),
		dig(p, "financial", "recent_saving"),
		dig(p, "sla", "compliance", "response_within_24h", "rate"),
		dig(p, "sla", "compliance", "cycle_within_7d", "rate"),
		dig(p, "reviews", "total"),
		dig(p, "reviews", "status", entity.ReviewStatusApproved),
		dig(p, "reviews", "status", entity.ReviewStatusRejected),
		dig(p, "reminders", "pending_total"),
		dig(p, "reminders", "sent_last_7_days"),
		dig(p, "reminders", "ack_last_7_days"),
	}
}

// cellString 单元格文本化，nil输出空串
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// 整数值不带小数尾巴
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func renderCSV(rows [][]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportColumns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = cellString(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Statistics"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	for i, col := range exportColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s1", name)
		f.SetCellValue(sheet, cell, col)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
		f.SetColWidth(sheet, name, name, 14)
	}

	for r, row := range rows {
		for c, v := range row {
			name, _ := excelize.ColumnNumberToName(c + 1)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, r+2), cellString(v))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderPDF A4横向网格表，每页重复表头
func renderPDF(rows [][]interface{}) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(8, 10, 8)
	pdf.SetAutoPageBreak(true, 12)

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 16
	colWidth := usable / float64(len(exportColumns))

	writeHeader := func() {
		pdf.SetFont("Helvetica", "B", 6.5)
		pdf.SetFillColor(217, 225, 242)
		for _, col := range exportColumns {
			pdf.CellFormat(colWidth, 7, col, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 7)
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(usable, 8, "Quality Statistics", "", 1, "C", false, 0, "")
		writeHeader()
	})
	pdf.AddPage()

	for _, row := range rows {
		for _, v := range row {
			pdf.CellFormat(colWidth, 6, cellString(v), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(project string, rows [][]interface{}) ([]byte, error) {
	records := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]interface{}, len(exportColumns))
		for i, col := range exportColumns {
			record[col] = row[i]
		}
		records = append(records, record)
	}
	return json.MarshalIndent(map[string]interface{}{
		"project": project,
		"records": records,
	}, "", "  ")
}
