package service

import (
	"github.com/shopspring/decimal"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
)

// =============================================================================
// 节省金额计算 — 表单保存、审核与批量导入共用同一实现
// =============================================================================

// SavingInput 节省金额计算输入
type SavingInput struct {
	CalculationMode string
	QuantityBefore  *decimal.Decimal
	QuantityAfter   *decimal.Decimal
	UnitPriceBefore *decimal.Decimal
	UnitPriceAfter  *decimal.Decimal
	SavingAmount    *decimal.Decimal
}

// ResolveSavingAmount 按计算方式解析节省金额
// auto: (优化前量×优化前单价) − (优化后量×优化后单价)，保留2位小数；四项输入缺一不可
// manual: 直接采用传入金额，不允许为空
func ResolveSavingAmount(in SavingInput) (*decimal.Decimal, error) {
	switch in.CalculationMode {
	case entity.CalculationModeAuto:
		missing := map[string]string{}
		if in.QuantityBefore == nil {
			missing["quantity_before"] = "自动计算模式下必填"
		}
		if in.QuantityAfter == nil {
			missing["quantity_after"] = "自动计算模式下必填"
		}
		if in.UnitPriceBefore == nil {
			missing["unit_price_before"] = "自动计算模式下必填"
		}
		if in.UnitPriceAfter == nil {
			missing["unit_price_after"] = "自动计算模式下必填"
		}
		if len(missing) > 0 {
			return nil, apperr.Validation("自动计算模式缺少必要字段", missing)
		}
		amount := in.QuantityBefore.Mul(*in.UnitPriceBefore).
			Sub(in.QuantityAfter.Mul(*in.UnitPriceAfter)).
			Round(2)
		return &amount, nil

	case entity.CalculationModeManual:
		if in.SavingAmount == nil {
			return nil, apperr.Validation("手动模式必须填写节省金额", map[string]string{
				"saving_amount": "手动模式下必填",
			})
		}
		amount := in.SavingAmount.Round(2)
		return &amount, nil

	default:
		return nil, apperr.Validation("无效的计算方式", map[string]string{
			"calculation_mode": "仅支持 auto 或 manual",
		})
	}
}
