package types

import (
	"fmt"
	"time"
)

// SignatureSize 签名固定宽度（r || s，各32字节）
const SignatureSize = 64

// DefaultIntentTTL 转账意图的默认有效期
//
// 截止时间只随 wire 载荷传给节点，由节点判定，SDK 本地不强制。
const DefaultIntentTTL = 10 * time.Minute

// Output 交易输出（构建后不可变）
type Output struct {
	// Amount 金额
	Amount uint64 `cbor:"amount"`

	// Owner 接收地址（20字节）
	Owner []byte `cbor:"owner"`

	// TokenType 资产类型标签
	TokenType string `cbor:"token_type,omitempty"`
}

// InputRef 交易输入引用（指向一个已锁定的可花费记录）
type InputRef struct {
	// ID 记录标识，格式 "txHash:outputIndex"
	ID string `cbor:"id"`

	// Owner 所有者地址（20字节）
	Owner []byte `cbor:"owner"`

	// TokenType 资产类型标签
	TokenType string `cbor:"token_type,omitempty"`

	// Amount 金额
	Amount uint64 `cbor:"amount"`
}

// Offer 转账结构（输入 + 输出 + 签名）
//
// 不变量：
// - 对每种资产类型：输入总额 == 输出总额
// - 至少一个输入和一个输出
// - 签名列表与输入一一对应（每个64字节，签名前为空）
type Offer struct {
	Inputs     []InputRef `cbor:"inputs"`
	Outputs    []Output   `cbor:"outputs"`
	Signatures [][]byte   `cbor:"signatures"`
}

// Validate 校验 Offer 不变量
func (o *Offer) Validate() error {
	// 1. 至少一个输入和一个输出
	if len(o.Inputs) == 0 {
		return &ValidationError{Field: "inputs", Reason: "offer must have at least one input"}
	}
	if len(o.Outputs) == 0 {
		return &ValidationError{Field: "outputs", Reason: "offer must have at least one output"}
	}

	// 2. 按资产类型核对收支平衡
	inSums := make(map[string]uint64)
	for _, in := range o.Inputs {
		inSums[in.TokenType] += in.Amount
	}
	outSums := make(map[string]uint64)
	for _, out := range o.Outputs {
		outSums[out.TokenType] += out.Amount
	}
	for tokenType, inSum := range inSums {
		if outSums[tokenType] != inSum {
			return &ValidationError{
				Field:  "outputs",
				Reason: fmt.Sprintf("unbalanced token type %q: inputs=%d outputs=%d", tokenType, inSum, outSums[tokenType]),
			}
		}
	}
	for tokenType := range outSums {
		if _, ok := inSums[tokenType]; !ok {
			return &ValidationError{
				Field:  "outputs",
				Reason: fmt.Sprintf("output token type %q has no matching inputs", tokenType),
			}
		}
	}

	// 3. 签名列表与输入一一对应（允许全部为空，表示未签名）
	if len(o.Signatures) != 0 && len(o.Signatures) != len(o.Inputs) {
		return &ValidationError{
			Field:  "signatures",
			Reason: fmt.Sprintf("signature count %d does not match input count %d", len(o.Signatures), len(o.Inputs)),
		}
	}
	for i, sig := range o.Signatures {
		if len(sig) != 0 && len(sig) != SignatureSize {
			return &ValidationError{
				Field:  "signatures",
				Reason: fmt.Sprintf("signature %d: expected %d bytes, got %d", i, SignatureSize, len(sig)),
			}
		}
	}

	return nil
}

// Signed 判断 Offer 是否已完成签名（每个输入都有一个定宽签名）
func (o *Offer) Signed() bool {
	if len(o.Signatures) != len(o.Inputs) {
		return false
	}
	for _, sig := range o.Signatures {
		if len(sig) != SignatureSize {
			return false
		}
	}
	return true
}

// FeeAction 费用支付动作（费用代币 → 本次提交应扣金额）
type FeeAction struct {
	// TokenID 费用代币标识
	TokenID string `cbor:"token_id"`

	// Amount 从该代币扣除的费用
	Amount uint64 `cbor:"amount"`
}

// TransferIntent 转账意图（Offer + 截止时间 + 可选的费用支付动作）
type TransferIntent struct {
	Offer Offer `cbor:"offer"`

	// Deadline 截止时间（对节点是建议值，本地只负责随载荷带上）
	Deadline time.Time `cbor:"deadline"`

	// FeeActions 费用支付动作（为空表示费用由显式输出支付）
	FeeActions []FeeAction `cbor:"fee_actions,omitempty"`
}
