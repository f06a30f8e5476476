package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// 导入列定义（顺序即模板列顺序，前7列必填）
var importColumns = []struct {
	Key      string
	Title    string
	Required bool
}{
	{"project_number", "项目编号", true},
	{"professional_code", "专业代码", true},
	{"location_name", "部位名称", true},
	{"issue_description", "问题描述", true},
	{"recommendation", "处理建议", true},
	{"issue_category", "问题分类", true},
	{"severity_level", "严重程度", true},
	{"drawing_number", "图纸编号", false},
	{"drawing_version", "图纸版本", false},
	{"current_practice", "现状做法", false},
	{"reference_codes", "依据规范", false},
	{"calculation_mode", "计算方式", false},
	{"quantity_before", "优化前工程量", false},
	{"quantity_after", "优化后工程量", false},
	{"measure_unit", "计量单位", false},
	{"unit_price_before", "优化前单价", false},
	{"unit_price_after", "优化后单价", false},
	{"saving_amount", "节省金额", false},
	{"calculation_note", "计算说明", false},
}

// ImportService 批量导入服务
type ImportService struct {
	repos      *repository.Repositories
	opinionSvc *OpinionService
}

// NewImportService 创建导入服务
func NewImportService(repos *repository.Repositories, opinionSvc *OpinionService) *ImportService {
	return &ImportService{repos: repos, opinionSvc: opinionSvc}
}

// ImportRow 校验通过的导入行，提交阶段的载荷
type ImportRow struct {
	Row int `json:"row"` // 源文件行号（含表头，从1起）

	ProjectID      string `json:"project_id"`
	ProjectNumber  string `json:"project_number"`
	ProfessionID   string `json:"profession_id"`
	ProfessionCode string `json:"professional_code"`

	LocationName     string `json:"location_name"`
	IssueDescription string `json:"issue_description"`
	Recommendation   string `json:"recommendation"`
	IssueCategory    string `json:"issue_category"`
	SeverityLevel    string `json:"severity_level"`

	DrawingNumber   string `json:"drawing_number"`
	DrawingVersion  string `json:"drawing_version"`
	CurrentPractice string `json:"current_practice"`
	ReferenceCodes  string `json:"reference_codes"`

	CalculationMode string           `json:"calculation_mode"`
	QuantityBefore  *decimal.Decimal `json:"quantity_before"`
	QuantityAfter   *decimal.Decimal `json:"quantity_after"`
	MeasureUnit     string           `json:"measure_unit"`
	UnitPriceBefore *decimal.Decimal `json:"unit_price_before"`
	UnitPriceAfter  *decimal.Decimal `json:"unit_price_after"`
	SavingAmount    *decimal.Decimal `json:"saving_amount"`
	CalculationNote string           `json:"calculation_note"`
}

// RowError 一行的校验错误
type RowError struct {
	Row    int               `json:"row"`
	Errors map[string]string `json:"errors"`
}

// ImportPreview 预校验结果
type ImportPreview struct {
	Total       int         `json:"total"`
	Success     int         `json:"success"`
	Failed      int         `json:"failed"`
	TotalSaving string      `json:"total_saving"`
	Rows        []ImportRow `json:"rows"`
	Errors      []RowError  `json:"errors"`
}

// Preview 解析并逐行校验导入文件，任何行错误都不中断预览
func (s *ImportService) Preview(ctx context.Context, userID string, reader io.Reader) (*ImportPreview, error) {
	rows, err := readImportRows(reader)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("导入文件为空", nil)
	}

	colIndex, err := resolveHeader(rows[0])
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{TotalSaving: "0.00"}
	totalSaving := decimal.Zero

	for i, cells := range rows[1:] {
		rowNum := i + 2
		if isBlankRow(cells) {
			continue
		}
		preview.Total++

		row, rowErrs := s.validateRow(ctx, userID, rowNum, cells, colIndex)
		if len(rowErrs) > 0 {
			preview.Failed++
			preview.Errors = append(preview.Errors, RowError{Row: rowNum, Errors: rowErrs})
			continue
		}
		preview.Success++
		preview.Rows = append(preview.Rows, *row)
		if row.SavingAmount != nil {
			totalSaving = totalSaving.Add(*row.SavingAmount)
		}
	}

	preview.TotalSaving = totalSaving.StringFixed(2)
	return preview, nil
}

// readImportRows 读取导入文件，xlsx优先，退回CSV；GBK编码的CSV先转UTF-8
func readImportRows(reader io.Reader) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperr.Validation("无法读取导入文件", map[string]string{"file": err.Error()})
	}

	if f, err := excelize.OpenReader(bytes.NewReader(data)); err == nil {
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, apperr.Validation("无法读取工作表", map[string]string{"file": err.Error()})
		}
		return rows, nil
	}

	// GBK → UTF-8
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
		if err != nil {
			return nil, apperr.Validation("无法识别文件编码", map[string]string{"file": err.Error()})
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, apperr.Validation("无法解析导入文件", map[string]string{"file": err.Error()})
	}
	return rows, nil
}

// resolveHeader 解析表头行，支持列key或中文列名；缺少必填列直接报错
func resolveHeader(header []string) (map[string]int, error) {
	index := map[string]int{}
	for i, cell := range header {
		// 模板中必填列带"*"前缀
		name := strings.TrimPrefix(strings.TrimSpace(cell), "*")
		for _, col := range importColumns {
			if strings.EqualFold(name, col.Key) || name == col.Title {
				index[col.Key] = i
			}
		}
	}

	missing := map[string]string{}
	for _, col := range importColumns {
		if !col.Required {
			continue
		}
		if _, ok := index[col.Key]; !ok {
			missing[col.Key] = fmt.Sprintf("缺少必需列: %s", col.Title)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("导入文件缺少必需列", missing)
	}
	return index, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cellAt(cells []string, colIndex map[string]int, key string) string {
	idx, ok := colIndex[key]
	if !ok || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// matchEnum 枚举值识别：编码（忽略大小写）或中文名均可
func matchEnum(value string, labels map[string]string) (string, bool) {
	for code, label := range labels {
		if strings.EqualFold(value, code) || value == label {
			return code, true
		}
	}
	return "", false
}

// parseCellDecimal 解析单元格中的数值，空串返回nil
func parseCellDecimal(value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// validateRow 校验单行并产出提交载荷
func (s *ImportService) validateRow(ctx context.Context, userID string, rowNum int, cells []string, colIndex map[string]int) (*ImportRow, map[string]string) {
	rowErrs := map[string]string{}
	row := &ImportRow{Row: rowNum}

	row.ProjectNumber = cellAt(cells, colIndex, "project_number")
	row.ProfessionCode = cellAt(cells, colIndex, "professional_code")
	row.LocationName = cellAt(cells, colIndex, "location_name")
	row.IssueDescription = cellAt(cells, colIndex, "issue_description")
	row.Recommendation = cellAt(cells, colIndex, "recommendation")
	row.DrawingNumber = cellAt(cells, colIndex, "drawing_number")
	row.DrawingVersion = cellAt(cells, colIndex, "drawing_version")
	row.CurrentPractice = cellAt(cells, colIndex, "current_practice")
	row.ReferenceCodes = cellAt(cells, colIndex, "reference_codes")
	row.MeasureUnit = cellAt(cells, colIndex, "measure_unit")
	row.CalculationNote = cellAt(cells, colIndex, "calculation_note")

	for _, key := range []string{"location_name", "issue_description", "recommendation"} {
		if cellAt(cells, colIndex, key) == "" {
			rowErrs[key] = "必填"
		}
	}

	// 项目：存在且当前用户可访问
	if row.ProjectNumber == "" {
		rowErrs["project_number"] = "必填"
	} else {
		project, err := s.repos.Project.FindByNumber(ctx, row.ProjectNumber)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				rowErrs["project_number"] = "项目不存在"
			} else {
				rowErrs["project_number"] = "项目查询失败"
			}
		} else {
			accessible, aerr := s.repos.Project.IsAccessible(ctx, project.ID, userID)
			if aerr != nil || !accessible {
				rowErrs["project_number"] = "无权访问该项目"
			} else {
				row.ProjectID = project.ID
			}
		}
	}

	// 专业代码
	if row.ProfessionCode == "" {
		rowErrs["professional_code"] = "必填"
	} else {
		profession, err := s.repos.Project.FindProfessionByCode(ctx, row.ProfessionCode)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				rowErrs["professional_code"] = "专业不存在"
			} else {
				rowErrs["professional_code"] = "专业查询失败"
			}
		} else {
			row.ProfessionID = profession.ID
			row.ProfessionCode = profession.Code
		}
	}

	// 枚举列
	if v := cellAt(cells, colIndex, "issue_category"); v == "" {
		rowErrs["issue_category"] = "必填"
	} else if code, ok := matchEnum(v, entity.IssueCategoryLabels); ok {
		row.IssueCategory = code
	} else {
		rowErrs["issue_category"] = fmt.Sprintf("无法识别的问题分类: %s", v)
	}
	if v := cellAt(cells, colIndex, "severity_level"); v == "" {
		rowErrs["severity_level"] = "必填"
	} else if code, ok := matchEnum(v, entity.SeverityLabels); ok {
		row.SeverityLevel = code
	} else {
		rowErrs["severity_level"] = fmt.Sprintf("无法识别的严重程度: %s", v)
	}

	// 数值列
	for key, dst := range map[string]**decimal.Decimal{
		"quantity_before":   &row.QuantityBefore,
		"quantity_after":    &row.QuantityAfter,
		"unit_price_before": &row.UnitPriceBefore,
		"unit_price_after":  &row.UnitPriceAfter,
		"saving_amount":     &row.SavingAmount,
	} {
		v := cellAt(cells, colIndex, key)
		d, err := parseCellDecimal(v)
		if err != nil {
			rowErrs[key] = fmt.Sprintf("无法解析数值: %s", v)
			continue
		}
		*dst = d
	}

	// 计算方式：未填时默认手动；手动且无任何金额输入按0处理
	mode := cellAt(cells, colIndex, "calculation_mode")
	switch {
	case mode == "":
		row.CalculationMode = entity.CalculationModeManual
	case strings.EqualFold(mode, entity.CalculationModeAuto) || mode == "自动":
		row.CalculationMode = entity.CalculationModeAuto
	case strings.EqualFold(mode, entity.CalculationModeManual) || mode == "手动":
		row.CalculationMode = entity.CalculationModeManual
	default:
		rowErrs["calculation_mode"] = fmt.Sprintf("无法识别的计算方式: %s", mode)
	}
	if row.CalculationMode == entity.CalculationModeManual && mode == "" && row.SavingAmount == nil {
		zero := decimal.Zero
		row.SavingAmount = &zero
	}

	if len(rowErrs) == 0 {
		amount, err := ResolveSavingAmount(SavingInput{
			CalculationMode: row.CalculationMode,
			QuantityBefore:  row.QuantityBefore,
			QuantityAfter:   row.QuantityAfter,
			UnitPriceBefore: row.UnitPriceBefore,
			UnitPriceAfter:  row.UnitPriceAfter,
			SavingAmount:    row.SavingAmount,
		})
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				for k, v := range appErr.Fields {
					rowErrs[k] = v
				}
				if len(appErr.Fields) == 0 {
					rowErrs["calculation_mode"] = appErr.Message
				}
			} else {
				rowErrs["saving_amount"] = err.Error()
			}
		} else {
			row.SavingAmount = amount
		}
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	return row, nil
}

// ImportCommitResult 提交结果
type ImportCommitResult struct {
	Created        int      `json:"created"`
	OpinionNumbers []string `json:"opinion_numbers"`
}

// Commit 原子提交：全部成功或全部回滚
// 预览与提交之间项目/专业被删除时整体失败。
// 涉及的每个编号前缀先取号锁；与单条创建并发撞号时整个事务回滚重试
func (s *ImportService) Commit(ctx context.Context, userID string, rows []ImportRow) (*ImportCommitResult, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("没有可提交的数据", nil)
	}

	locked := map[string]bool{}
	for _, row := range rows {
		key := numberLockPrefix + row.ProjectNumber + ":" + row.ProfessionCode
		if locked[key] {
			continue
		}
		locked[key] = true
		unlock := s.opinionSvc.acquireNumberLock(ctx, key)
		defer unlock()
	}

	var result *ImportCommitResult
	var created []*entity.Opinion
	var lastErr error
	for attempt := 0; attempt < numberMaxRetries; attempt++ {
		result, created, lastErr = s.commitOnce(ctx, userID, rows)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, apperr.Conflict(fmt.Sprintf("意见编号生成冲突: %v", lastErr))
	}

	// 导入日志在事务外尽力补记
	for i, opinion := range created {
		s.opinionSvc.wfLogger.Record(ctx, LogEntry{
			OpinionID:  opinion.ID,
			Action:     entity.WorkflowActionCreated,
			ToStatus:   entity.OpinionStatusDraft,
			OperatorID: userID,
			Message:    fmt.Sprintf("批量导入创建 %s（第%d行）", opinion.OpinionNumber, rows[i].Row),
		})
	}
	return result, nil
}

// commitOnce 单次提交事务
func (s *ImportService) commitOnce(ctx context.Context, userID string, rows []ImportRow) (*ImportCommitResult, []*entity.Opinion, error) {
	result := &ImportCommitResult{}
	var created []*entity.Opinion
	err := s.repos.Opinion.DB().Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			project, err := s.repos.Project.FindByID(ctx, row.ProjectID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.NotFound(fmt.Sprintf("第%d行: 项目已不存在", row.Row))
				}
				return err
			}
			profession, err := s.repos.Project.FindProfessionByID(ctx, row.ProfessionID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.NotFound(fmt.Sprintf("第%d行: 专业已不存在", row.Row))
				}
				return err
			}

			// 提交阶段金额以服务端重算为准
			amount, err := ResolveSavingAmount(SavingInput{
				CalculationMode: row.CalculationMode,
				QuantityBefore:  row.QuantityBefore,
				QuantityAfter:   row.QuantityAfter,
				UnitPriceBefore: row.UnitPriceBefore,
				UnitPriceAfter:  row.UnitPriceAfter,
				SavingAmount:    row.SavingAmount,
			})
			if err != nil {
				return apperr.Validation(fmt.Sprintf("第%d行金额校验失败", row.Row), nil)
			}

			number, err := s.repos.Opinion.NextOpinionNumberTx(ctx, tx, project.ProjectNumber, profession.Code)
			if err != nil {
				return err
			}

			opinion := &entity.Opinion{
				ID:               uuid.New().String()[:32],
				OpinionNumber:    number,
				ProjectID:        project.ID,
				ProfessionID:     profession.ID,
				CreatedBy:        userID,
				Status:           entity.OpinionStatusDraft,
				Source:           "import",
				LocationName:     row.LocationName,
				IssueDescription: row.IssueDescription,
				CurrentPractice:  row.CurrentPractice,
				Recommendation:   row.Recommendation,
				IssueCategory:    row.IssueCategory,
				SeverityLevel:    row.SeverityLevel,
				DrawingNumber:    row.DrawingNumber,
				DrawingVersion:   row.DrawingVersion,
				ReferenceCodes:   row.ReferenceCodes,
				CalculationMode:  row.CalculationMode,
				QuantityBefore:   row.QuantityBefore,
				QuantityAfter:    row.QuantityAfter,
				MeasureUnit:      row.MeasureUnit,
				UnitPriceBefore:  row.UnitPriceBefore,
				UnitPriceAfter:   row.UnitPriceAfter,
				SavingAmount:     amount,
				CalculationNote:  row.CalculationNote,
			}
			if err := s.repos.Opinion.CreateTx(ctx, tx, opinion); err != nil {
				return err
			}

			result.Created++
			result.OpinionNumbers = append(result.OpinionNumbers, number)
			created = append(created, opinion)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, created, nil
}

// BuildTemplate 生成导入模板
func (s *ImportService) BuildTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "导入模板"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	for i, col := range importColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		title := col.Title
		if col.Required {
			title = "*" + title
		}
		cell := fmt.Sprintf("%s1", name)
		f.SetCellValue(sheet, cell, title)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
		f.SetColWidth(sheet, name, name, 16)
	}

	// 示例行
	example := []interface{}{
		"PJT-2025-001", "ARCH", "三层梁", "梁配筋与计算书不一致", "按计算书修改配筋",
		"错误", "重要", "S-301", "A", "", "GB50010-2010",
		"auto", 120, 100, "m3", 520, 480, "", "按图纸工程量计算",
	}
	for i, v := range example {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, fmt.Sprintf("%s2", name), v)
	}

	return f, nil
}
