package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/veltis/wallet-sdk-go/types"
)

// httpClient HTTP客户端实现
type httpClient struct {
	endpoint string
	client   *http.Client
	logger   Logger
	debug    bool
	nextID   atomic.Uint64
	retry    *RetryConfig
}

// NewHTTPClient 创建HTTP客户端
func NewHTTPClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	httpCli := &http.Client{
		Timeout: time.Duration(config.Timeout) * time.Second,
	}

	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		if config.Debug && config.Logger != nil {
			retryConfig.OnRetry = func(attempt int, err error) {
				config.Logger.Warn("Retrying request", "attempt", attempt, "error", err)
			}
		}
	}

	return &httpClient{
		endpoint: config.Endpoint,
		client:   httpCli,
		logger:   config.Logger,
		debug:    config.Debug,
		retry:    retryConfig,
	}, nil
}

// Call 调用JSON-RPC方法
//
// **注意**：Call 自身带瞬时网络故障重试，只应该用于幂等的查询方法；
// 交易提交走 call（无重试），见 SendRawTransaction。
func (c *httpClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return c.call(ctx, method, params, c.retry)
}

// call 执行一次 JSON-RPC 调用，retry 为 nil 时不重试
func (c *httpClient) call(ctx context.Context, method string, params interface{}, retry *RetryConfig) (interface{}, error) {
	// 1. 构建并序列化 JSON-RPC 请求
	req := &jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	// 2. 发送请求（可选的瞬时故障重试）
	var resp *http.Response
	do := func() error {
		// 每次重试都创建新的请求（Body 只能读取一次）
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if reqErr != nil {
			return fmt.Errorf("create request failed: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		httpResp, reqErr := c.client.Do(httpReq)
		if reqErr != nil {
			return reqErr
		}
		if isRetryableHTTPError(httpResp.StatusCode) {
			httpResp.Body.Close()
			return fmt.Errorf("HTTP error: %d", httpResp.StatusCode)
		}
		resp = httpResp
		return nil
	}

	if retry != nil {
		err = withRetry(ctx, do, retry)
	} else {
		err = do()
	}
	if err != nil {
		return nil, wrapTransportError(method, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && c.logger != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	// 3. 读取并解析响应
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError(method, fmt.Errorf("read response failed: %w", err))
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC response", "status", resp.StatusCode, "body", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.ProtocolError{
			Op:     method,
			Reason: fmt.Sprintf("HTTP status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var jsonResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		return nil, &types.ProtocolError{
			Op:     method,
			Reason: fmt.Sprintf("malformed JSON-RPC response: %v", err),
		}
	}

	// 4. 检查JSON-RPC错误
	if jsonResp.Error != nil {
		return nil, nodeError(jsonResp.Error)
	}

	return jsonResp.Result, nil
}

// SendRawTransaction 提交已封装的广播信封
//
// **注意**：
// - 提交不是幂等操作，客户端内部不自动重试；网络级故障原样上抛，
//   由调用方决定是否重试
// - 节点的保留拒绝码（验证拒绝）转换为 *types.RejectionError
func (c *httpClient) SendRawTransaction(ctx context.Context, envelopeHex string) (*SendTxResult, error) {
	result, err := c.call(ctx, "vel_sendRawTransaction", []interface{}{envelopeHex}, nil)
	if err != nil {
		if velErr, ok := types.IsVelError(err); ok && velErr.Rejection() {
			return nil, rejectionFromNodeError(velErr)
		}
		return nil, err
	}

	// 解析结果：{tx_hash} 对象或裸哈希字符串
	switch v := result.(type) {
	case map[string]interface{}:
		txHash, _ := v["tx_hash"].(string)
		if txHash == "" {
			return nil, &types.ProtocolError{Op: "vel_sendRawTransaction", Reason: "missing tx_hash in response"}
		}
		return &SendTxResult{TxHash: txHash}, nil
	case string:
		return &SendTxResult{TxHash: v}, nil
	default:
		return nil, &types.ProtocolError{Op: "vel_sendRawTransaction", Reason: "invalid response format"}
	}
}

// Ping 节点存活检查
func (c *httpClient) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "vel_health", []interface{}{})
	return err
}

// SubscribeFinalized 订阅已定案交易推送（HTTP不支持，需要使用WebSocket）
func (c *httpClient) SubscribeFinalized(ctx context.Context, address []byte) (<-chan *FinalizedTx, error) {
	return nil, fmt.Errorf("HTTP client does not support subscriptions, use WebSocket client instead")
}

// Close 关闭连接（HTTP客户端无需特殊处理）
func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// jsonRPCRequest JSON-RPC请求结构
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

// jsonRPCResponse JSON-RPC响应结构
type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      uint64        `json:"id"`
}

// jsonRPCError JSON-RPC错误结构
type jsonRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
