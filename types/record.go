package types

import (
	"time"
)

// RecordState 记录生命周期状态
//
// 状态转换：
// - available → pending：被选中并锁定（构建交易时）
// - pending → spent：提交确认成功
// - pending → available：构建或提交失败后回滚
type RecordState string

const (
	StateAvailable RecordState = "available"
	StatePending   RecordState = "pending"
	StateSpent     RecordState = "spent"
)

// SpendableRecord 可花费记录（UTXO）
//
// 由外部同步组件创建（已经过链上验证），SDK 只负责状态转换。
type SpendableRecord struct {
	// ID 记录标识，格式 "txHash:outputIndex"
	ID string

	// Owner 所有者地址（20字节）
	Owner []byte

	// TokenType 资产类型标签（空字符串表示原生币，否则为32字节hex）
	TokenType string

	// Amount 金额
	Amount uint64

	// State 生命周期状态
	State RecordState
}

// FeeToken 费用代币
//
// 可用价值随时间线性增长，直到饱和容量：
//
//	value(t) = min(initialValue + rate × max(0, t − createdAt), capacity)
//
// 单调不减、封顶。费用代币与被转账资产分开记账，专门用于支付网络费用。
type FeeToken struct {
	// ID 代币标识
	ID string

	// Owner 所有者地址（20字节）
	Owner []byte

	// InitialValue 创建时的初始价值
	InitialValue uint64

	// CreatedAt 创建时间
	CreatedAt time.Time

	// Rate 每秒恢复速率
	Rate uint64

	// Capacity 饱和容量
	Capacity uint64

	// State 生命周期状态
	State RecordState
}

// ValueAt 计算代币在时间 t 的当前可用价值
//
// **注意**：
// - t 早于创建时间时按创建时间计算（价值不会为负）
// - 结果永远不超过 Capacity
func (ft *FeeToken) ValueAt(t time.Time) uint64 {
	elapsed := t.Sub(ft.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	// 按整秒累积，溢出时直接按容量封顶
	seconds := uint64(elapsed / time.Second)
	if ft.Rate > 0 && seconds > (^uint64(0)-ft.InitialValue)/ft.Rate {
		return ft.Capacity
	}

	value := ft.InitialValue + ft.Rate*seconds
	if value > ft.Capacity {
		return ft.Capacity
	}
	return value
}
