// Package codec 负责转账意图的线上序列化与交易哈希。
//
// 序列化使用 CBOR 的核心确定性编码（canonical），保证同一意图在
// 钱包侧与节点侧得到字节一致的表示；交易哈希为序列化字节的 BLAKE3-256。
package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/veltis/wallet-sdk-go/types"
)

// encMode 确定性编码模式（进程内只初始化一次）
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: init cbor encode mode: %v", err))
	}
}

// EncodeIntent 将转账意图序列化为线上表示
//
// **注意**：
// - 调用方负责保证 Offer 已通过校验（余额不变量、签名宽度）
// - 序列化失败不可重试，是终态错误
func EncodeIntent(intent *types.TransferIntent) ([]byte, error) {
	if intent == nil {
		return nil, fmt.Errorf("encode intent: nil intent")
	}

	payload, err := encMode.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}
	return payload, nil
}

// DecodeIntent 从线上表示还原转账意图（节点侧对称操作，测试用）
func DecodeIntent(payload []byte) (*types.TransferIntent, error) {
	var intent types.TransferIntent
	if err := cbor.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

// TxHash 计算序列化交易的哈希（BLAKE3-256，0x前缀hex）
func TxHash(payload []byte) string {
	h := blake3.New()
	h.Write(payload)
	out := make([]byte, 32)
	h.Sum(out[:0])
	return "0x" + hex.EncodeToString(out)
}
