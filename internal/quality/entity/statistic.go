package entity

import "time"

// 统计类型
const (
	StatisticTypeQuality = "quality"
)

// ProductionStatistic 统计快照
// 项目级快照 project_id 为项目ID；全局快照 project_id 为空字符串，
// 以保证 (project_id, statistic_type, snapshot_date) 复合唯一索引对全局快照同样生效
type ProductionStatistic struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID     string    `json:"project_id" gorm:"size:32;not null;default:'';uniqueIndex:uk_statistic_project_type_date"`
	StatisticType string    `json:"statistic_type" gorm:"size:32;not null;uniqueIndex:uk_statistic_project_type_date"`
	SnapshotDate  time.Time `json:"snapshot_date" gorm:"type:date;not null;uniqueIndex:uk_statistic_project_type_date"`

	Payload   JSONB     `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProductionStatistic) TableName() string {
	return "quality_production_statistics"
}

// IsGlobal 是否全局快照
func (s *ProductionStatistic) IsGlobal() bool {
	return s.ProjectID == ""
}
