package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/types"
)

// DefaultConfirmTimeout 确认等待的默认超时
const DefaultConfirmTimeout = 60 * time.Second

// Watcher 确认观察器
//
// 消费某地址已定案交易的推送流，按哈希匹配解析一笔挂起的提交。
type Watcher struct {
	client client.Client
}

// NewWatcher 创建确认观察器
func NewWatcher(c client.Client) *Watcher {
	return &Watcher{client: c}
}

// Await 等待指定哈希的交易在推送流上定案
//
// **流程**：
// 1. 订阅地址的已定案交易推送
// 2. 归一化哈希表示（大小写、0x前缀）后逐条比对
// 3. 首次匹配即解析为 success，近似高度取匹配事件的序号
//
// 超时（timeout ≤ 0 时用默认60秒）未匹配返回 pending 而不是失败：
// 调用方停止等待后交易仍可能上链。
func (w *Watcher) Await(ctx context.Context, address []byte, txHash string, timeout time.Duration) *types.SubmissionOutcome {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	// 超时只取消本次等待，不影响已广播的交易
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	feed, err := w.client.SubscribeFinalized(waitCtx, address)
	if err != nil {
		return types.NewPendingOutcome(txHash, "confirmation feed unavailable: "+err.Error())
	}

	want := normalizeHash(txHash)
	for {
		select {
		case tx, ok := <-feed:
			if !ok {
				return types.NewPendingOutcome(txHash, "confirmation feed closed before match")
			}
			if normalizeHash(tx.Hash) == want {
				return types.NewSuccessOutcome(txHash, tx.Sequence)
			}

		case <-waitCtx.Done():
			return types.NewPendingOutcome(txHash, "confirmation wait timed out")
		}
	}
}

// normalizeHash 归一化交易哈希表示（去0x前缀、统一小写）
func normalizeHash(hash string) string {
	return strings.TrimPrefix(strings.ToLower(hash), "0x")
}
