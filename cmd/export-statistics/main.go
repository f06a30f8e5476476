// 统计导出工具：把历史统计快照导出为 CSV / XLSX / PDF / JSON 文件。
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhigong-tech/conquality/internal/bootstrap"
	"github.com/zhigong-tech/conquality/internal/quality/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		projectID string
		statType  string
		from      string
		to        string
		output    string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "export-statistics",
		Short: "导出咨询意见统计快照",
		Long: `按日期区间导出统计快照。不指定 --format 时根据输出文件
扩展名推断格式（.csv / .xlsx / .pdf / .json）。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(projectID, statType, from, to, output, format)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "项目ID，为空表示全局快照")
	cmd.Flags().StringVar(&statType, "type", "quality", "快照类型")
	cmd.Flags().StringVar(&from, "from", "", "起始日期（YYYY-MM-DD）")
	cmd.Flags().StringVar(&to, "to", "", "结束日期（YYYY-MM-DD）")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件路径，为空时使用默认文件名写入当前目录")
	cmd.Flags().StringVar(&format, "format", "", "导出格式（csv/xlsx/pdf/json）")

	return cmd
}

func run(projectID, statType, from, to, output, format string) error {
	if format == "" {
		format = inferFormat(output)
	}

	fromTime, err := parseDate(from)
	if err != nil {
		return fmt.Errorf("invalid from %q: %w", from, err)
	}
	toTime, err := parseDate(to)
	if err != nil {
		return fmt.Errorf("invalid to %q: %w", to, err)
	}

	rt, err := bootstrap.Setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rt.Cfg.Jobs.RunTimeout)
	defer cancel()

	result, err := rt.Services.Export.Export(ctx, projectID, statType, format, fromTime, toTime)
	if err != nil {
		rt.Logger.Error("Export statistics failed",
			zap.String("project_id", projectID),
			zap.String("format", format),
			zap.Error(err),
		)
		return err
	}

	if output == "" {
		output = result.Filename
	}
	if err := os.WriteFile(output, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	rt.Logger.Info("Statistics exported",
		zap.String("output", output),
		zap.String("format", format),
		zap.Int("bytes", len(result.Data)),
	)
	fmt.Printf("exported %d bytes to %s\n", len(result.Data), output)
	return nil
}

func inferFormat(output string) string {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".xlsx":
		return service.ExportFormatXLSX
	case ".pdf":
		return service.ExportFormatPDF
	case ".json":
		return service.ExportFormatJSON
	default:
		return service.ExportFormatCSV
	}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
