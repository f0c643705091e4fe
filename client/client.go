package client

import (
	"context"
	"fmt"
)

// Client Veltis 节点客户端接口
type Client interface {
	// Call 调用 JSON-RPC 方法
	Call(ctx context.Context, method string, params interface{}) (interface{}, error)

	// SendRawTransaction 提交已封装的广播信封（hex编码）
	//
	// 节点的结构化拒绝以 *types.RejectionError 返回（不可重试）；
	// 网络级故障以 *types.NetworkError 返回（由调用方决定是否重试，
	// 客户端内部不自动重试提交）。
	SendRawTransaction(ctx context.Context, envelopeHex string) (*SendTxResult, error)

	// Ping 节点存活检查
	Ping(ctx context.Context) error

	// SubscribeFinalized 订阅某地址的已定案交易推送
	//
	// 通道在 ctx 取消或连接关闭时关闭。仅 WebSocket 传输支持。
	SubscribeFinalized(ctx context.Context, address []byte) (<-chan *FinalizedTx, error)

	// Close 关闭连接
	Close() error
}

// FinalizedTx 确认推送里的已定案交易
type FinalizedTx struct {
	// Hash 交易哈希（hex，可能带或不带0x前缀，大小写不定）
	Hash string `json:"hash"`

	// Sequence 定案事件的序号（作为近似区块高度使用）
	Sequence uint64 `json:"sequence"`
}

// SendTxResult 交易提交结果
type SendTxResult struct {
	TxHash string `json:"tx_hash"`
}

// NewClient 创建新的客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP:
		return NewHTTPClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}
