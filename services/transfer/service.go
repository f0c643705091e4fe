package transfer

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/codec"
	"github.com/veltis/wallet-sdk-go/feetoken"
	"github.com/veltis/wallet-sdk-go/store"
	"github.com/veltis/wallet-sdk-go/types"
	"github.com/veltis/wallet-sdk-go/utils"
	"github.com/veltis/wallet-sdk-go/wallet"
)

// Service Transfer 业务服务接口
type Service interface {
	// Transfer 端到端转账：构建 → 签名 → 提交流水线
	Transfer(ctx context.Context, req *TransferRequest, wallets ...wallet.Wallet) (*types.SubmissionOutcome, error)

	// BatchTransfer 批量转账：并发提交多笔转账，单笔失败不影响其余
	BatchTransfer(ctx context.Context, reqs []*TransferRequest, config *utils.BatchConfig, wallets ...wallet.Wallet) (*utils.BatchResult[*types.SubmissionOutcome], error)

	// FeeBalance 某地址费用代币的当前总可用价值
	FeeBalance(owner []byte) uint64
}

// TransferRequest 转账请求
type TransferRequest struct {
	// From 发送方地址（20字节）
	From []byte

	// To 接收方地址（20字节）
	To []byte

	// Amount 转账金额
	Amount uint64

	// TokenType 资产类型标签（空字符串表示原生币）
	TokenType string

	// Fee 网络费用（从费用代币账本扣，0 表示本次免交费）
	Fee uint64
}

// transferService Transfer 服务实现
type transferService struct {
	builder  *Builder
	fees     *feetoken.Ledger
	pipeline *Pipeline
	records  store.RecordStore
	wallet   wallet.Wallet
	logger   *zap.Logger
}

// ServiceConfig Transfer 服务配置
type ServiceConfig struct {
	// Wallet 默认钱包（调用时可逐次覆盖）
	Wallet wallet.Wallet

	// Pipeline 流水线配置
	Pipeline *PipelineConfig
}

// NewService 创建 Transfer 服务
func NewService(c client.Client, p Prover, s Sealer, records store.RecordStore, fees *feetoken.Ledger, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	logger := zap.NewNop()
	if config.Pipeline != nil && config.Pipeline.Logger != nil {
		logger = config.Pipeline.Logger
	}

	return &transferService{
		builder:  NewBuilder(records),
		fees:     fees,
		pipeline: NewPipeline(c, p, s, records, fees, config.Pipeline),
		records:  records,
		wallet:   config.Wallet,
		logger:   logger,
	}
}

// Transfer 端到端转账实现
//
// **流程**：
// 1. 获取钱包并校验地址匹配
// 2. 构建未签名意图（原子的选择加锁）
// 3. 费用为正时从费用代币账本选取并锁定代币，挂上费用支付动作
// 4. 签名（每个输入一个定宽签名）
// 5. 交给提交流水线驱动剩余阶段
//
// **注意**：
// - 构建之后、进入流水线之前的任何失败（选费用代币不足、签名失败）
//   都由本方法显式释放已锁定的记录和代币——构建器不会自动释放
func (s *transferService) Transfer(ctx context.Context, req *TransferRequest, wallets ...wallet.Wallet) (*types.SubmissionOutcome, error) {
	if req == nil {
		return nil, &types.ValidationError{Reason: "nil request"}
	}

	// 1. 获取钱包，校验地址匹配
	w := s.getWallet(wallets...)
	if w == nil {
		return nil, &types.ValidationError{Field: "wallet", Reason: "wallet is required"}
	}
	if !bytes.Equal(w.Address(), req.From) {
		return nil, &types.ValidationError{Field: "from", Reason: "wallet address does not match from address"}
	}

	// 2. 构建未签名意图
	intent, locked, err := s.builder.Build(&BuildRequest{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		TokenType: req.TokenType,
	})
	if err != nil {
		return nil, err
	}

	// 3. 选取费用代币（费用为 0 时得到平凡的空选取）
	feeResult, err := s.fees.SelectForFee(req.From, req.Fee)
	if err != nil {
		// 费用代币不足：释放第2步锁定的记录后返回类型化结果
		s.releaseRecords(locked)
		return nil, fmt.Errorf("select fee tokens: %w", err)
	}
	intent.FeeActions = s.fees.FeeActions(feeResult.Selected, req.Fee)

	// 4. 签名
	if err := signIntent(intent, w); err != nil {
		s.releaseRecords(locked)
		s.releaseFeeTokens(feeResult.Selected)
		return nil, fmt.Errorf("sign intent: %w", err)
	}

	// 5. 提交流水线
	return s.pipeline.Submit(ctx, &Submission{
		Intent:    intent,
		Records:   locked,
		FeeTokens: feeResult.Selected,
	})
}

// BatchTransfer 批量转账
//
// 每笔请求独立走一遍 Transfer 流程。记录和费用代币的选取加锁是
// 原子的，并发提交同一地址的多笔转账不会选到同一笔资金。
//
// **注意**：
// - 单笔失败（资金不足、节点拒绝等）记录在返回结果的 Errors 中，
//   不会中止其余请求
func (s *transferService) BatchTransfer(ctx context.Context, reqs []*TransferRequest, config *utils.BatchConfig, wallets ...wallet.Wallet) (*utils.BatchResult[*types.SubmissionOutcome], error) {
	if len(reqs) == 0 {
		return nil, &types.ValidationError{Field: "requests", Reason: "empty request list"}
	}

	return utils.BatchExecute(ctx, reqs, func(ctx context.Context, req *TransferRequest, index int) (*types.SubmissionOutcome, error) {
		return s.Transfer(ctx, req, wallets...)
	}, config)
}

// FeeBalance 某地址费用代币的当前总可用价值
func (s *transferService) FeeBalance(owner []byte) uint64 {
	return s.fees.Balance(owner)
}

// signIntent 为意图的每个输入生成一个定宽签名
//
// 签名消息是未签名意图的线上序列化字节。
func signIntent(intent *types.TransferIntent, w wallet.Wallet) error {
	unsigned, err := codec.EncodeIntent(intent)
	if err != nil {
		return err
	}

	signatures := make([][]byte, len(intent.Offer.Inputs))
	for i := range intent.Offer.Inputs {
		sig, err := w.SignMessage(unsigned)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
		if len(sig) != types.SignatureSize {
			return fmt.Errorf("sign input %d: expected %d byte signature, got %d", i, types.SignatureSize, len(sig))
		}
		signatures[i] = sig
	}
	intent.Offer.Signatures = signatures
	return nil
}

// getWallet 获取本次调用使用的钱包（调用参数优先于默认配置）
func (s *transferService) getWallet(wallets ...wallet.Wallet) wallet.Wallet {
	if len(wallets) > 0 && wallets[0] != nil {
		return wallets[0]
	}
	return s.wallet
}

// releaseRecords 尽力释放已锁定记录，失败只记日志
func (s *transferService) releaseRecords(locked []*types.SpendableRecord) {
	if len(locked) == 0 {
		return
	}
	if err := s.records.Release(recordIDs(locked)); err != nil {
		s.logger.Error("release locked records failed", zap.Error(err))
	}
}

// releaseFeeTokens 尽力释放已锁定费用代币，失败只记日志
func (s *transferService) releaseFeeTokens(tokens []*types.FeeToken) {
	if len(tokens) == 0 {
		return
	}
	if err := s.fees.Release(tokens); err != nil {
		s.logger.Error("release fee tokens failed", zap.Error(err))
	}
}
