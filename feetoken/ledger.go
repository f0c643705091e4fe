// Package feetoken 实现费用代币账本。
//
// 费用代币是与被转账资产分开记账的费用额度，可用价值随时间线性恢复、
// 到达容量后封顶。网络费用从这里扣，不从被花费的资产本身扣。
package feetoken

import (
	"github.com/lightningnetwork/lnd/clock"

	"github.com/veltis/wallet-sdk-go/coinselect"
	"github.com/veltis/wallet-sdk-go/store"
	"github.com/veltis/wallet-sdk-go/types"
)

// Ledger 费用代币账本
//
// 时间源通过 clock.Clock 注入，测试里用 clock.NewTestClock 固定时刻。
type Ledger struct {
	store store.FeeTokenStore
	clock clock.Clock
}

// NewLedger 创建费用代币账本（clk 为 nil 时使用系统时钟）
func NewLedger(s store.FeeTokenStore, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Ledger{
		store: s,
		clock: clk,
	}
}

// SelectForFee 选取并锁定足以覆盖 fee 的费用代币
//
// **流程**：
// 1. 取评估时刻 t（注入的时钟）
// 2. 存储层原子地：按 t 时刻当前价值升序排序 AVAILABLE 代币 → 贪心累加 → 锁定
//
// fee 为 0 或没有可用代币时返回平凡的空选取；
// 不足时返回 *coinselect.InsufficientFunds，不锁定任何代币。
func (l *Ledger) SelectForFee(owner []byte, fee uint64) (*coinselect.Result[*types.FeeToken], error) {
	return l.store.SelectAndLock(owner, fee, l.clock.Now())
}

// FeeActions 将选中的代币转换为链上费用支付动作
//
// 只有第一个选中代币承担全部费用，其余代币金额为 0（不做跨代币分摊）。
func (l *Ledger) FeeActions(selected []*types.FeeToken, fee uint64) []types.FeeAction {
	if len(selected) == 0 {
		return nil
	}

	actions := make([]types.FeeAction, len(selected))
	for i, token := range selected {
		action := types.FeeAction{TokenID: token.ID}
		if i == 0 {
			action.Amount = fee
		}
		actions[i] = action
	}
	return actions
}

// Balance 某地址所有 AVAILABLE 代币的当前总价值（纯查询，不改状态）
func (l *Ledger) Balance(owner []byte) uint64 {
	return l.store.Balance(owner, l.clock.Now())
}

// Confirm 提交成功后的补偿：选中代币 PENDING → SPENT
func (l *Ledger) Confirm(tokens []*types.FeeToken) error {
	return l.store.Confirm(tokenIDs(tokens))
}

// Release 提交终态失败后的补偿：选中代币 PENDING → AVAILABLE
func (l *Ledger) Release(tokens []*types.FeeToken) error {
	return l.store.Release(tokenIDs(tokens))
}

func tokenIDs(tokens []*types.FeeToken) []string {
	ids := make([]string, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
	}
	return ids
}
