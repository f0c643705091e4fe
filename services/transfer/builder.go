package transfer

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/veltis/wallet-sdk-go/store"
	"github.com/veltis/wallet-sdk-go/types"
)

// BuildRequest 构建转账的请求
type BuildRequest struct {
	// From 发送方地址（20字节）
	From []byte

	// To 接收方地址（20字节）
	To []byte

	// Amount 转账金额（必须为正，不构建零值转账）
	Amount uint64

	// TokenType 资产类型标签（空字符串表示原生币，否则为32字节hex）
	TokenType string

	// TTL 意图有效期（零值使用默认）
	TTL time.Duration
}

// Builder 交易构建器
//
// 对记录存储执行原子的选择加锁，把选中输入、接收输出和可选找零
// 组装成收支平衡的未签名转账意图。
type Builder struct {
	records store.RecordStore
}

// NewBuilder 创建交易构建器
func NewBuilder(records store.RecordStore) *Builder {
	return &Builder{records: records}
}

// Build 构建未签名的转账意图
//
// **流程**：
// 1. 参数校验（地址、金额、资产类型）
// 2. 原子的选择加锁：读可用记录 → 选币 → 选中记录转 PENDING，
//    单个不可分割单元，防止两个并发构建选中同一条记录
// 3. 组装接收输出；找零为正时追加找零输出返还发送方
// 4. 包装为带默认有效期的转账意图，签名列表为空（签名是后续独立阶段）
//
// **注意**：
// - 资金不足时返回类型化的 *coinselect.InsufficientFunds，不锁定任何记录
// - 返回已锁定记录列表：后续阶段（例如签名）失败时由调用方显式释放，
//   构建器自身不会自动释放
func (b *Builder) Build(req *BuildRequest) (*types.TransferIntent, []*types.SpendableRecord, error) {
	// 1. 参数校验
	if err := validateBuildRequest(req); err != nil {
		return nil, nil, err
	}

	// 2. 原子的选择加锁
	result, err := b.records.SelectAndLock(req.From, req.TokenType, req.Amount)
	if err != nil {
		return nil, nil, err
	}

	// 3. 组装输入与输出
	inputs := make([]types.InputRef, len(result.Selected))
	for i, record := range result.Selected {
		inputs[i] = types.InputRef{
			ID:        record.ID,
			Owner:     record.Owner,
			TokenType: record.TokenType,
			Amount:    record.Amount,
		}
	}

	outputs := []types.Output{{
		Amount:    req.Amount,
		Owner:     req.To,
		TokenType: req.TokenType,
	}}
	// 只有未用余额为正时才构建找零输出
	if result.Change > 0 {
		outputs = append(outputs, types.Output{
			Amount:    result.Change,
			Owner:     req.From,
			TokenType: req.TokenType,
		})
	}

	// 4. 包装为转账意图
	ttl := req.TTL
	if ttl == 0 {
		ttl = types.DefaultIntentTTL
	}
	intent := &types.TransferIntent{
		Offer: types.Offer{
			Inputs:     inputs,
			Outputs:    outputs,
			Signatures: nil,
		},
		Deadline: time.Now().Add(ttl),
	}

	if err := intent.Offer.Validate(); err != nil {
		// 不变量被破坏说明构建器自身有缺陷；释放已锁定记录后上抛
		releaseErr := b.records.Release(recordIDs(result.Selected))
		if releaseErr != nil {
			return nil, nil, fmt.Errorf("offer invariant violated (%w), release failed: %v", err, releaseErr)
		}
		return nil, nil, fmt.Errorf("offer invariant violated: %w", err)
	}

	return intent, result.Selected, nil
}

// validateBuildRequest 校验构建请求
func validateBuildRequest(req *BuildRequest) error {
	if req == nil {
		return &types.ValidationError{Reason: "nil request"}
	}
	if len(req.From) != 20 {
		return &types.ValidationError{Field: "from", Reason: fmt.Sprintf("address must be 20 bytes, got %d", len(req.From))}
	}
	if len(req.To) != 20 {
		return &types.ValidationError{Field: "to", Reason: fmt.Sprintf("address must be 20 bytes, got %d", len(req.To))}
	}
	// 零值转账不构建
	if req.Amount == 0 {
		return &types.ValidationError{Field: "amount", Reason: "amount must be greater than 0"}
	}
	if err := validateTokenType(req.TokenType); err != nil {
		return err
	}
	return nil
}

// validateTokenType 校验资产类型标签（空 = 原生币，否则必须是32字节hex）
func validateTokenType(tokenType string) error {
	if tokenType == "" {
		return nil
	}
	decoded, err := hex.DecodeString(tokenType)
	if err != nil {
		return &types.ValidationError{Field: "tokenType", Reason: "must be hex encoded"}
	}
	if len(decoded) != 32 {
		return &types.ValidationError{Field: "tokenType", Reason: fmt.Sprintf("must be 32 bytes, got %d", len(decoded))}
	}
	return nil
}

// recordIDs 提取记录ID列表
func recordIDs(records []*types.SpendableRecord) []string {
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	return ids
}
