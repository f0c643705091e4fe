package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veltis/wallet-sdk-go/types"
)

// websocketClient WebSocket 客户端实现
//
// 读取循环同时分发两类消息：
// - 带 id 的请求响应 → 按 id 路由到等待中的请求通道
// - vel_subscription 推送 → 按订阅 id 路由到订阅通道
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	mu       sync.Mutex // 串行化写
	closed   atomic.Bool
	nextID   atomic.Uint64
	requests map[uint64]chan *wsMessage
	subs     map[string]chan *FinalizedTx
	muState  sync.Mutex // 守护 requests 和 subs
}

// wsMessage WebSocket 上的一条 JSON-RPC 消息（响应或推送）
type wsMessage struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      *uint64              `json:"id,omitempty"`
	Method  string               `json:"method,omitempty"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *jsonRPCError        `json:"error,omitempty"`
	Params  *subscriptionPayload `json:"params,omitempty"`
}

// subscriptionPayload 订阅推送的参数
type subscriptionPayload struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := config.Endpoint
	// 将 http:// 或 https:// 转换为 ws:// 或 wss://
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://"):
		endpoint = "ws://" + endpoint
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, &types.NetworkError{Op: "dial websocket", Err: err}
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		requests: make(map[uint64]chan *wsMessage),
		subs:     make(map[string]chan *FinalizedTx),
	}

	go client.readLoop()

	return client, nil
}

// readLoop 消息读取循环，按 id / 订阅 id 分发
func (c *websocketClient) readLoop() {
	defer func() {
		c.closed.Store(true)
		c.muState.Lock()
		for _, ch := range c.requests {
			close(ch)
		}
		c.requests = make(map[uint64]chan *wsMessage)
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = make(map[string]chan *FinalizedTx)
		c.muState.Unlock()
	}()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			// 连接关闭或读取错误：唤醒所有等待者
			return
		}

		// 订阅推送
		if msg.Method == "vel_subscription" && msg.Params != nil {
			c.dispatchNotification(msg.Params)
			continue
		}

		// 请求响应
		if msg.ID == nil {
			continue
		}
		c.muState.Lock()
		ch, exists := c.requests[*msg.ID]
		if exists {
			delete(c.requests, *msg.ID)
		}
		c.muState.Unlock()

		if exists {
			select {
			case ch <- &msg:
			default:
			}
		}
	}
}

// dispatchNotification 解析并分发一条订阅推送
//
// 查找和投递在同一个 muState 临界区内完成：通道只会在先从 subs
// 删除之后才关闭（删除同样需要 muState），因此持锁期间查到的通道
// 一定未关闭，不存在向已关闭通道发送的竞态。
func (c *websocketClient) dispatchNotification(payload *subscriptionPayload) {
	var tx FinalizedTx
	if err := json.Unmarshal(payload.Result, &tx); err != nil {
		// 推送形状畸形：丢弃这一条，订阅保持存活
		return
	}

	c.muState.Lock()
	defer c.muState.Unlock()

	ch, exists := c.subs[payload.Subscription]
	if !exists {
		return
	}

	select {
	case ch <- &tx:
	default:
		// 订阅方消费太慢时丢弃，确认等待按超时兜底
	}
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	raw, err := c.callRaw(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &types.ProtocolError{Op: method, Reason: fmt.Sprintf("unmarshal result: %v", err)}
	}
	return result, nil
}

// callRaw 发送请求并等待原始响应
func (c *websocketClient) callRaw(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, &types.NetworkError{Op: method, Err: fmt.Errorf("websocket client is closed")}
	}

	reqID := c.nextID.Add(1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      reqID,
	}

	respCh := make(chan *wsMessage, 1)
	c.muState.Lock()
	c.requests[reqID] = respCh
	c.muState.Unlock()

	c.mu.Lock()
	err := c.conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.muState.Lock()
		delete(c.requests, reqID)
		c.muState.Unlock()
		return nil, &types.NetworkError{Op: method, Err: err}
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, &types.NetworkError{Op: method, Err: fmt.Errorf("connection closed")}
		}
		if resp.Error != nil {
			return nil, nodeError(resp.Error)
		}
		return resp.Result, nil

	case <-ctx.Done():
		c.muState.Lock()
		delete(c.requests, reqID)
		c.muState.Unlock()
		return nil, ctx.Err()
	}
}

// SendRawTransaction 提交已封装的广播信封
func (c *websocketClient) SendRawTransaction(ctx context.Context, envelopeHex string) (*SendTxResult, error) {
	raw, err := c.callRaw(ctx, "vel_sendRawTransaction", []interface{}{envelopeHex})
	if err != nil {
		if velErr, ok := types.IsVelError(err); ok && velErr.Rejection() {
			return nil, rejectionFromNodeError(velErr)
		}
		return nil, err
	}

	var result SendTxResult
	if err := json.Unmarshal(raw, &result); err != nil || result.TxHash == "" {
		// 兼容裸哈希字符串
		var txHash string
		if err2 := json.Unmarshal(raw, &txHash); err2 == nil && txHash != "" {
			return &SendTxResult{TxHash: txHash}, nil
		}
		return nil, &types.ProtocolError{Op: "vel_sendRawTransaction", Reason: "invalid response format"}
	}
	return &result, nil
}

// Ping 节点存活检查
func (c *websocketClient) Ping(ctx context.Context) error {
	_, err := c.callRaw(ctx, "vel_health", []interface{}{})
	return err
}

// SubscribeFinalized 订阅某地址的已定案交易推送
//
// **流程**：
// 1. 调用 vel_subscribe("finalizedTransactions", {address}) 获得订阅 id
// 2. 注册订阅通道，读取循环按订阅 id 推送
// 3. ctx 取消时退订并关闭通道
func (c *websocketClient) SubscribeFinalized(ctx context.Context, address []byte) (<-chan *FinalizedTx, error) {
	params := []interface{}{
		"finalizedTransactions",
		map[string]interface{}{"address": "0x" + hex.EncodeToString(address)},
	}

	raw, err := c.callRaw(ctx, "vel_subscribe", params)
	if err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	var subscriptionID string
	if err := json.Unmarshal(raw, &subscriptionID); err != nil || subscriptionID == "" {
		return nil, &types.ProtocolError{Op: "vel_subscribe", Reason: "missing subscription ID"}
	}

	ch := make(chan *FinalizedTx, 16)
	c.muState.Lock()
	c.subs[subscriptionID] = ch
	c.muState.Unlock()

	go func() {
		<-ctx.Done()

		c.muState.Lock()
		registered, exists := c.subs[subscriptionID]
		if exists {
			delete(c.subs, subscriptionID)
		}
		c.muState.Unlock()
		if !exists {
			// 读取循环已经关闭了通道
			return
		}

		// 尽力退订；连接已断时忽略错误
		unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = c.callRaw(unsubCtx, "vel_unsubscribe", []interface{}{subscriptionID})

		close(registered)
	}()

	return ch, nil
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			return c.conn.Close()
		}
	}
	return nil
}
