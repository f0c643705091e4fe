package wire

import (
	"bytes"
	"fmt"
)

// 信封常量
const (
	// EnvelopeVersion 调用数据版本字节
	EnvelopeVersion = 0x01

	// CallSubmitTransaction 提交交易的调用变体字节
	CallSubmitTransaction = 0x02

	// reservedByte 保留字节，当前恒为零
	reservedByte = 0x00
)

// EncodeEnvelope 将已序列化的交易载荷包进广播信封
//
// 布局：
//
//	envelope = compact(len(callData)) ++ callData
//	callData = version ++ callVariant ++ reserved ++ compact(len(payload)) ++ payload
func EncodeEnvelope(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("encode envelope: empty payload")
	}

	// 1. 组装 callData
	callData := make([]byte, 0, len(payload)+8)
	callData = append(callData, EnvelopeVersion, CallSubmitTransaction, reservedByte)
	callData, err := AppendCompact(callData, uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("encode envelope: payload length: %w", err)
	}
	callData = append(callData, payload...)

	// 2. 外层长度前缀
	envelope, err := AppendCompact(nil, uint64(len(callData)))
	if err != nil {
		return nil, fmt.Errorf("encode envelope: call data length: %w", err)
	}
	return append(envelope, callData...), nil
}

// DecodeEnvelope 解开广播信封，还原内层交易载荷（节点侧对称操作，测试用）
func DecodeEnvelope(envelope []byte) ([]byte, error) {
	// 1. 外层长度
	callLen, n, err := DecodeCompact(envelope)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: outer length: %w", err)
	}
	callData := envelope[n:]
	if uint64(len(callData)) != callLen {
		return nil, fmt.Errorf("decode envelope: call data length mismatch: prefix %d, actual %d", callLen, len(callData))
	}

	// 2. 版本、调用变体、保留字节
	if len(callData) < 3 {
		return nil, fmt.Errorf("decode envelope: call data too short")
	}
	if callData[0] != EnvelopeVersion {
		return nil, fmt.Errorf("decode envelope: unsupported version 0x%02x", callData[0])
	}
	if callData[1] != CallSubmitTransaction {
		return nil, fmt.Errorf("decode envelope: unexpected call variant 0x%02x", callData[1])
	}
	rest := callData[3:]

	// 3. 内层载荷
	payloadLen, n, err := DecodeCompact(rest)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: payload length: %w", err)
	}
	payload := rest[n:]
	if uint64(len(payload)) != payloadLen {
		return nil, fmt.Errorf("decode envelope: payload length mismatch: prefix %d, actual %d", payloadLen, len(payload))
	}

	return bytes.Clone(payload), nil
}
