package prover

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veltis/wallet-sdk-go/types"
)

// newTestProver 测试用客户端（退避压缩到毫秒级）
func newTestProver(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(&Config{Endpoint: server.URL, Timeout: 5 * time.Second})
	c.baseDelay = time.Millisecond
	return c
}

func TestProve(t *testing.T) {
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prove", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("proven:"), body...))
	})

	proven, err := c.Prove(context.Background(), []byte("tx"))
	require.NoError(t, err)
	require.Equal(t, []byte("proven:tx"), proven)
}

// TestProve_TransientRetry 502/503/504 必须重试，总共 3 次尝试
func TestProve_TransientRetry(t *testing.T) {
	codes := []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	for _, code := range codes {
		var calls atomic.Int32
		c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(code)
				return
			}
			w.Write([]byte("proven"))
		})

		proven, err := c.Prove(context.Background(), []byte("tx"))
		require.NoError(t, err, "code %d", code)
		require.Equal(t, []byte("proven"), proven)
		require.Equal(t, int32(3), calls.Load(), "code %d", code)
	}
}

func TestProve_TransientExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Prove(context.Background(), []byte("tx"))
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}

// TestProve_ClientErrorNoRetry 4xx 不可重试，只允许一次尝试
func TestProve_ClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Prove(context.Background(), []byte("tx"))
	var protoErr *types.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, int32(1), calls.Load())
}

// TestProve_NetworkErrorNoRetry 网络级失败在证明阶段不自动重试
func TestProve_NetworkErrorNoRetry(t *testing.T) {
	c := NewClient(&Config{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})
	c.baseDelay = time.Millisecond

	_, err := c.Prove(context.Background(), []byte("tx"))
	var netErr *types.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestProve_EmptyPayload(t *testing.T) {
	c := NewClient(nil)
	_, err := c.Prove(context.Background(), nil)
	require.True(t, types.IsValidationError(err))
}

func TestProve_EmptyProvenPayload(t *testing.T) {
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 但空载荷：协议错误
	})

	_, err := c.Prove(context.Background(), []byte("tx"))
	var protoErr *types.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestHealth(t *testing.T) {
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, c.Health(context.Background()))
}

func TestHealth_Unhealthy(t *testing.T) {
	c := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := c.Health(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}
