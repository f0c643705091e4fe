package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig 重试配置
type RetryConfig struct {
	// MaxAttempts 总尝试次数（含首次）
	MaxAttempts int
	// InitialDelay 初始延迟
	InitialDelay time.Duration
	// MaxDelay 最大延迟
	MaxDelay time.Duration
	// BackoffMultiplier 退避倍数
	BackoffMultiplier float64
	// Retryable 判断错误是否可重试的函数
	Retryable func(error) bool
	// OnRetry 重试前的回调函数
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Retryable:         isRetryableError,
	}
}

// isRetryableError 判断错误是否可重试（网络级瞬时故障）
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 网络错误（连接失败、超时等）
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// DNS 错误
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// 通过错误消息兜底判断
	msg := err.Error()
	for _, substr := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"timeout",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}

	return false
}

// isRetryableHTTPError 判断 HTTP 响应状态码是否可重试
func isRetryableHTTPError(statusCode int) bool {
	// 5xx 服务器错误
	if statusCode >= 500 && statusCode < 600 {
		return true
	}
	// 429 请求过多
	return statusCode == 429
}

// backoffDelay 计算第 attempt 次重试前的退避延迟（attempt 从 0 起）
func backoffDelay(attempt int, config *RetryConfig) time.Duration {
	delay := config.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * config.BackoffMultiplier)
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// withRetry 带重试的函数执行器
func withRetry(ctx context.Context, fn func() error, config *RetryConfig) error {
	if config == nil {
		return fn()
	}

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// 最后一次尝试，直接返回
		if attempt == attempts-1 {
			break
		}

		// 判断是否可重试
		retryable := config.Retryable
		if retryable == nil {
			retryable = isRetryableError
		}
		if !retryable(err) {
			return err
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err)
		}

		// 等待后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt, config)):
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}
