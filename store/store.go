// Package store 提供可花费记录与费用代币的内存存储。
//
// 这是整个 SDK 唯一的共享可变资源：
// 选择加锁（select-and-lock）与确认/回滚补偿都必须是单个不可分割的
// 读-改-写单元，防止两个并发构建选中同一笔资金（双花竞态），
// 也防止补偿与新一轮选择交错时把费用代币留在不一致状态。
//
// **注意**：
// - 持久化技术在 SDK 范围之外，这里用进程内互斥锁守护的内存实现
// - 记录由外部同步组件写入（已经过链上验证）
package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/veltis/wallet-sdk-go/coinselect"
	"github.com/veltis/wallet-sdk-go/types"
)

// RecordStore 可花费记录存储接口
type RecordStore interface {
	// Put 写入或覆盖记录（由外部同步组件调用）
	Put(records ...*types.SpendableRecord)

	// Available 返回某地址、某资产类型下所有 AVAILABLE 记录（按金额升序）
	Available(owner []byte, tokenType string) []*types.SpendableRecord

	// SelectAndLock 原子地执行：读取可用记录 → 升序选币 → 将选中记录转为 PENDING
	//
	// 不足时返回 *coinselect.InsufficientFunds 且不锁定任何记录。
	SelectAndLock(owner []byte, tokenType string, amount uint64) (*coinselect.Result[*types.SpendableRecord], error)

	// Release 将 PENDING 记录回滚为 AVAILABLE（构建或提交失败后的补偿）
	Release(ids []string) error

	// MarkSpent 将 PENDING 记录标记为 SPENT（提交确认后的补偿）
	MarkSpent(ids []string) error
}

// FeeTokenStore 费用代币存储接口
type FeeTokenStore interface {
	// Put 写入或覆盖费用代币
	Put(tokens ...*types.FeeToken)

	// SelectAndLock 原子地执行：按 at 时刻的当前价值升序排序 AVAILABLE 代币 →
	// 选币覆盖所需费用 → 将选中代币转为 PENDING
	//
	// 费用为 0 或没有可用代币时返回平凡的空选取。
	SelectAndLock(owner []byte, fee uint64, at time.Time) (*coinselect.Result[*types.FeeToken], error)

	// Release 将 PENDING 代币回滚为 AVAILABLE
	Release(ids []string) error

	// Confirm 将 PENDING 代币标记为 SPENT
	Confirm(ids []string) error

	// Balance 某地址所有 AVAILABLE 代币在 at 时刻的总价值（纯查询）
	Balance(owner []byte, at time.Time) uint64
}

// ErrNotPending 记录不存在或不处于 PENDING 状态
type ErrNotPending struct {
	ID    string
	State types.RecordState
}

func (e *ErrNotPending) Error() string {
	if e.State == "" {
		return fmt.Sprintf("record %s not found", e.ID)
	}
	return fmt.Sprintf("record %s is %s, not pending", e.ID, e.State)
}

// sortRecordsByAmount 按金额升序排序（金额相同按 ID，保证确定性）
func sortRecordsByAmount(records []*types.SpendableRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Amount != records[j].Amount {
			return records[i].Amount < records[j].Amount
		}
		return records[i].ID < records[j].ID
	})
}
