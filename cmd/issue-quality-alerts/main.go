// 质量提醒派发工具：扫描待审核意见，生成站内提醒并通过邮件、
// 企业微信转发。Redis 互斥锁保证同一时刻只有一个实例在跑。
package main

import (
	"context"
	"encoding/json"
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
	var asOf string

	cmd := &cobra.Command{
		Use:   "issue-quality-alerts",
		Short: "扫描待处理咨询意见并派发提醒",
		Long: `找出未指派或已超期的咨询意见，为相关人员生成未读提醒
（同一意见同一类型只保留一条未读），并尝试邮件与企业微信转发。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(asOf)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "基准日期（YYYY-MM-DD），默认当天")

	return cmd
}

func run(asOf string) error {
	now := time.Now()
	if asOf != "" {
		parsed, err := time.Parse("2006-01-02", asOf)
		if err != nil {
			return fmt.Errorf("invalid as-of %q: %w", asOf, err)
		}
		now = parsed
	}

	rt, err := bootstrap.Setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rt.Cfg.Jobs.RunTimeout)
	defer cancel()

	result, err := rt.Services.Reminder.Run(ctx, now)
	if err != nil {
		rt.Logger.Error("Quality alert run failed", zap.Error(err))
		return err
	}

	rt.Logger.Info("Quality alert run finished",
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("email_sent", result.EmailSent),
		zap.Int("wecom_sent", result.WecomSent),
	)

	out, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
