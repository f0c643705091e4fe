// Package prover 封装零知识证明服务的客户端。
//
// 证明服务是二进制请求/响应接口：送入序列化交易，返回带证明的序列化交易。
// 证明本身可能耗时数分钟，所以这里的请求超时与端到端确认超时相互独立。
package prover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veltis/wallet-sdk-go/types"
)

// 重试策略：只有 502/503/504 这类瞬时网关故障可重试，
// 总共尝试 proveAttempts 次，指数退避从 proveBaseDelay 开始。
// 其余失败（4xx、超时、网络错误）一律不可重试。
const (
	proveAttempts  = 3
	proveBaseDelay = 2 * time.Second
)

// Config 证明服务客户端配置
type Config struct {
	// Endpoint 证明服务基地址
	Endpoint string

	// Timeout 单次证明请求的超时（证明很慢，默认5分钟）
	Timeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "http://localhost:8700",
		Timeout:  5 * time.Minute,
	}
}

// Client 证明服务客户端
type Client struct {
	endpoint  string
	http      *http.Client
	baseDelay time.Duration
}

// NewClient 创建证明服务客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		endpoint:  config.Endpoint,
		http:      &http.Client{Timeout: timeout},
		baseDelay: proveBaseDelay,
	}
}

// Prove 将序列化交易送入证明服务，返回带证明的序列化交易
//
// **重试规则**：
// - 502/503/504：最多 3 次尝试，退避 2s → 4s
// - 其他任何失败（4xx、网络错误、超时）：立即终止，不重试
func (c *Client) Prove(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, &types.ValidationError{Field: "payload", Reason: "empty serialized transaction"}
	}

	var lastErr error
	delay := c.baseDelay

	for attempt := 1; attempt <= proveAttempts; attempt++ {
		proven, transient, err := c.proveOnce(ctx, payload)
		if err == nil {
			return proven, nil
		}
		if !transient {
			return nil, err
		}
		lastErr = err

		if attempt == proveAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	return nil, fmt.Errorf("prove failed after %d attempts: %w", proveAttempts, lastErr)
}

// proveOnce 执行一次证明请求，transient 表示该失败是否属于可重试类
func (c *Client) proveOnce(ctx context.Context, payload []byte) (proven []byte, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/prove", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create prove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		// 网络级失败在证明阶段不自动重试
		return nil, false, &types.NetworkError{Op: "prove", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		proven, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, &types.NetworkError{Op: "prove", Err: err}
		}
		if len(proven) == 0 {
			return nil, false, &types.ProtocolError{Op: "prove", Reason: "empty proven payload"}
		}
		return proven, false, nil

	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, true, fmt.Errorf("prover transient failure: HTTP %d", resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, &types.ProtocolError{
			Op:     "prove",
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}
}

// Health 证明服务存活检查
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.NetworkError{Op: "prover health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prover unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
