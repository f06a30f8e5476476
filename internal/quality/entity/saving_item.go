package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 节省金额分类
const (
	SavingCategoryMaterial  = "material"
	SavingCategoryLabor     = "labor"
	SavingCategoryEquipment = "equipment"
	SavingCategoryIndirect  = "indirect"
	SavingCategoryEnergy    = "energy"
	SavingCategorySchedule  = "schedule"
	SavingCategoryOther     = "other"
)

// SavingCategoryLabels 节省分类中文名
var SavingCategoryLabels = map[string]string{
	SavingCategoryMaterial:  "材料",
	SavingCategoryLabor:     "人工",
	SavingCategoryEquipment: "设备",
	SavingCategoryIndirect:  "间接费",
	SavingCategoryEnergy:    "能耗",
	SavingCategorySchedule:  "工期",
	SavingCategoryOther:     "其他",
}

// OpinionSavingItem 节省金额明细行
// quantity与unit_saving均有值时 total_saving = quantity × unit_saving
type OpinionSavingItem struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	OpinionID   string `json:"opinion_id" gorm:"size:32;not null;index"`
	Category    string `json:"category" gorm:"size:32;not null;default:other"`
	Description string `json:"description" gorm:"size:500"`

	Quantity    *decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4)"`
	Unit        string           `json:"unit" gorm:"size:16"`
	UnitSaving  *decimal.Decimal `json:"unit_saving" gorm:"type:decimal(15,4)"`
	TotalSaving *decimal.Decimal `json:"total_saving" gorm:"type:decimal(15,2)"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OpinionSavingItem) TableName() string {
	return "quality_opinion_saving_items"
}
