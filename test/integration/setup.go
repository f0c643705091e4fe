package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/wallet"
)

const (
	// DefaultNodeEndpoint 默认节点端点
	DefaultNodeEndpoint = "http://localhost:8645"
	// DefaultTimeout 默认超时时间
	DefaultTimeout = 30 * time.Second
)

// TestConfig 测试配置
type TestConfig struct {
	NodeEndpoint   string
	ProverEndpoint string
	Timeout        time.Duration
}

// DefaultTestConfig 返回默认测试配置（可被环境变量覆盖）
//
// **环境变量**：
// - VELTIS_NODE_ENDPOINT: 节点 JSON-RPC 端点
// - VELTIS_PROVER_ENDPOINT: 证明服务端点
func DefaultTestConfig() *TestConfig {
	cfg := &TestConfig{
		NodeEndpoint: DefaultNodeEndpoint,
		Timeout:      DefaultTimeout,
	}
	if v := os.Getenv("VELTIS_NODE_ENDPOINT"); v != "" {
		cfg.NodeEndpoint = v
	}
	if v := os.Getenv("VELTIS_PROVER_ENDPOINT"); v != "" {
		cfg.ProverEndpoint = v
	}
	return cfg
}

// requireIntegration 未开启集成测试时跳过
//
// 设置 VELTIS_INTEGRATION=1 并启动本地节点后运行。
func requireIntegration(t *testing.T) {
	if os.Getenv("VELTIS_INTEGRATION") == "" {
		t.Skip("集成测试未开启（设置 VELTIS_INTEGRATION=1 运行）")
	}
}

// SetupTestClient 设置测试客户端
//
// **功能**：
// - 创建 HTTP 客户端连接到 Veltis 节点
// - 验证节点是否运行（通过 vel_health）
// - 如果节点未运行，测试会失败
func SetupTestClient(t *testing.T) client.Client {
	return setupTestClientWithConfig(t, DefaultTestConfig())
}

// setupTestClientWithConfig 使用配置设置测试客户端
func setupTestClientWithConfig(t *testing.T, cfg *TestConfig) client.Client {
	if cfg == nil {
		cfg = DefaultTestConfig()
	}

	clientCfg := &client.Config{
		Endpoint: cfg.NodeEndpoint,
		Protocol: client.ProtocolHTTP,
		Timeout:  int(cfg.Timeout.Seconds()),
		Debug:    false,
	}

	c, err := client.NewClient(clientCfg)
	require.NoError(t, err, "创建客户端失败")

	// 验证节点是否运行
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Ping(ctx)
	require.NoError(t, err, "节点未运行，请先启动节点: %s", cfg.NodeEndpoint)

	return c
}

// setupWebsocketClient 设置 WebSocket 测试客户端
func setupWebsocketClient(t *testing.T, cfg *TestConfig) client.Client {
	if cfg == nil {
		cfg = DefaultTestConfig()
	}

	c, err := client.NewClient(&client.Config{
		Endpoint: cfg.NodeEndpoint,
		Protocol: client.ProtocolWebSocket,
		Timeout:  int(cfg.Timeout.Seconds()),
	})
	require.NoError(t, err, "创建 WebSocket 客户端失败")
	return c
}

// toWebsocketEndpoint 把 HTTP 端点转换为 WebSocket 端点
func toWebsocketEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// TeardownTestClient 清理测试客户端
func TeardownTestClient(t *testing.T, c client.Client) {
	if c != nil {
		if err := c.Close(); err != nil {
			t.Logf("关闭客户端时出现警告: %v", err)
		}
	}
}

// CreateTestWallet 创建测试钱包
func CreateTestWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.NewWallet()
	require.NoError(t, err, "创建测试钱包失败")
	return w
}
