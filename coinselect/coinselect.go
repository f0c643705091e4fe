// Package coinselect 实现通用的最小优先贪心选币算法。
//
// 对按价值升序排列的同一种资产的可花费条目，按序累加，
// 累计额一旦覆盖需求立即停止（不允许多扫）。
// 资金不足是类型化的领域结果（*InsufficientFunds），不是异常路径。
package coinselect

import (
	"fmt"
)

// Result 选币结果
type Result[T any] struct {
	// Selected 按升序选中的条目
	Selected []T

	// Total 选中条目的总额（>= 需求额）
	Total uint64

	// Change 找零（Total − 需求额）
	Change uint64
}

// InsufficientFunds 资金不足
//
// Available 是**整个**候选列表的总额，不是扫描到的部分。
type InsufficientFunds struct {
	Required  uint64
	Available uint64
	Shortfall uint64
}

func (e *InsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d, shortfall %d",
		e.Required, e.Available, e.Shortfall)
}

// Select 对升序候选列表执行最小优先贪心选取
//
// **约定**：
// - coins 必须已按 value 升序排列，调用方负责排序
// - required 为 0 时返回空选取（费用路径的退化情形；
//   转账主路径在上游拒绝零金额，不会走到这里）
// - 累计额达到需求后立即返回，不继续扫描
// - 不足时返回 *InsufficientFunds，Available 为整个列表的总额
func Select[T any](coins []T, value func(T) uint64, required uint64) (*Result[T], error) {
	// 1. 零需求：退化的空选取
	if required == 0 {
		return &Result[T]{}, nil
	}

	// 2. 按序累加，够了就停
	var total uint64
	for i, coin := range coins {
		total += value(coin)
		if total >= required {
			selected := make([]T, i+1)
			copy(selected, coins[:i+1])
			return &Result[T]{
				Selected: selected,
				Total:    total,
				Change:   total - required,
			}, nil
		}
	}

	// 3. 整个列表都不够：此时 total 已经是全表总额
	return nil, &InsufficientFunds{
		Required:  required,
		Available: total,
		Shortfall: required - total,
	}
}
