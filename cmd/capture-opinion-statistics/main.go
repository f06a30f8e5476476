// 统计快照采集工具：对指定项目（或全局）生成当日统计快照。
// 通常由定时任务每日调用。
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhigong-tech/conquality/internal/bootstrap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		projectID    string
		snapshotDate string
		statType     string
	)

	cmd := &cobra.Command{
		Use:   "capture-opinion-statistics",
		Short: "生成咨询意见统计快照",
		Long: `按项目或全局汇总咨询意见的状态分布、SLA指标与节约金额，
写入统计快照表。同一（项目、类型、日期）重复执行会覆盖当日快照。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(projectID, snapshotDate, statType)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "项目ID，为空表示全局快照")
	cmd.Flags().StringVar(&snapshotDate, "snapshot-date", "", "快照日期（YYYY-MM-DD），默认当天")
	cmd.Flags().StringVar(&statType, "type", "quality", "快照类型")

	return cmd
}

func run(projectID, snapshotDate, statType string) error {
	rt, err := bootstrap.Setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	now := time.Now()
	day := now
	if snapshotDate != "" {
		day, err = time.Parse("2006-01-02", snapshotDate)
		if err != nil {
			return fmt.Errorf("invalid snapshot-date %q: %w", snapshotDate, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.Cfg.Jobs.RunTimeout)
	defer cancel()

	stat, err := rt.Services.Statistics.Capture(ctx, projectID, statType, day, now)
	if err != nil {
		rt.Logger.Error("Capture statistics failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return err
	}

	rt.Logger.Info("Statistics snapshot captured",
		zap.String("id", stat.ID),
		zap.String("project_id", projectID),
		zap.String("type", statType),
		zap.Time("snapshot_date", stat.SnapshotDate),
	)
	fmt.Printf("snapshot %s captured for %s\n", stat.ID, stat.SnapshotDate.Format("2006-01-02"))
	return nil
}
