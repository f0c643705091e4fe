package types

import (
	"errors"
	"fmt"
)

// 节点结构化错误码（JSON-RPC error.code）
const (
	// CodeTxRejected 交易被节点验证拒绝（保留码，不可重试）
	CodeTxRejected = -32050

	// CodeInternalError 节点内部错误（一般可重试一次）
	CodeInternalError = -32603
)

// ValidationError 请求参数非法（不可重试，无副作用）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// IsValidationError 检查错误是否为参数校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NetworkError 广播或证明边界的网络级错误（连接、DNS、超时）
//
// 只在证明阶段按瞬时状态码子集自动重试；其余场景原样上抛，由调用方决定重试。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError 检查错误是否为网络级错误
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ProtocolError 响应形状畸形（不可重试）
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Reason)
}

// RejectionError 远端验证拒绝（不可重试，终态失败）
//
// TxHash 仅在远端返回了哈希时非空。
type RejectionError struct {
	Code    int
	Message string
	TxHash  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected by node [%d]: %s", e.Code, e.Message)
}

// VelError Veltis 节点统一错误类型（JSON-RPC error 对象）
type VelError struct {
	Code    int
	Message string
	Data    string
}

func (e *VelError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("node error [%d]: %s (data=%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("node error [%d]: %s", e.Code, e.Message)
}

// Rejection 判断节点错误是否为验证拒绝（保留码）
func (e *VelError) Rejection() bool {
	return e.Code == CodeTxRejected
}

// IsVelError 检查错误是否为节点错误
func IsVelError(err error) (*VelError, bool) {
	var ve *VelError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
