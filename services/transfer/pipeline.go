package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/codec"
	"github.com/veltis/wallet-sdk-go/feetoken"
	"github.com/veltis/wallet-sdk-go/store"
	"github.com/veltis/wallet-sdk-go/types"
	"github.com/veltis/wallet-sdk-go/wire"
)

// Prover 证明服务能力（外部协作方）
type Prover interface {
	Prove(ctx context.Context, payload []byte) ([]byte, error)
}

// Sealer 封装能力（外部协作方）
//
// 把带证明载荷的密码学绑定承诺从证明期表示转换为广播期表示。
type Sealer interface {
	Seal(ctx context.Context, proven []byte) ([]byte, error)
}

// Submission 一次待提交的转账（构建阶段的产物）
type Submission struct {
	// Intent 已签名的转账意图
	Intent *types.TransferIntent

	// Records 构建时锁定的可花费记录
	Records []*types.SpendableRecord

	// FeeTokens 为本次提交锁定的费用代币（为空表示费用由显式输出支付）
	FeeTokens []*types.FeeToken
}

// Pipeline 提交流水线
//
// 驱动端到端状态机：序列化 → 证明 → 封装 → 广播 → 确认，
// 并按最终结果对费用代币和已锁定记录执行补偿。
type Pipeline struct {
	client         client.Client
	prover         Prover
	sealer         Sealer
	records        store.RecordStore
	fees           *feetoken.Ledger
	watcher        *Watcher
	logger         *zap.Logger
	confirmTimeout time.Duration
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	// ConfirmTimeout 确认等待超时（零值使用默认60秒）
	ConfirmTimeout time.Duration

	// Logger 结构化日志器（nil 时不输出）
	Logger *zap.Logger
}

// NewPipeline 创建提交流水线
func NewPipeline(c client.Client, p Prover, s Sealer, records store.RecordStore, fees *feetoken.Ledger, config *PipelineConfig) *Pipeline {
	if config == nil {
		config = &PipelineConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	confirmTimeout := config.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}

	return &Pipeline{
		client:         c,
		prover:         p,
		sealer:         s,
		records:        records,
		fees:           fees,
		watcher:        NewWatcher(c),
		logger:         logger,
		confirmTimeout: confirmTimeout,
	}
}

// Submit 驱动一次提交走完整个状态机
//
// **返回语义**：
// - 结构化拒绝、序列化/证明/封装失败：outcome=failed（终态），不返回 error
// - 确认超时：outcome=pending（非终态），交易仍可能上链
// - 广播阶段的网络级故障：返回 *types.NetworkError，由调用方决定重试；
//   费用代币和记录保持 PENDING 等待重试或人工对账
//
// 补偿规则（费用代币与锁定记录同步）：
// - success → SPENT
// - failed → 回滚 AVAILABLE
// - pending → 保持 PENDING（刻意的不对称：流水线不猜测超时的广播
//   最终是否落地）
//
// 补偿自身的失败只记日志，绝不覆盖主结果。
func (p *Pipeline) Submit(ctx context.Context, sub *Submission) (*types.SubmissionOutcome, error) {
	if sub == nil || sub.Intent == nil {
		return nil, &types.ValidationError{Reason: "nil submission"}
	}
	// 完整校验不变量（至少一个输入/输出、收支平衡），不只看签名：
	// 空 Offer 的签名列表平凡地"完整"，必须在这里拦下
	if err := sub.Intent.Offer.Validate(); err != nil {
		return nil, err
	}
	if !sub.Intent.Offer.Signed() {
		return nil, &types.ValidationError{Field: "signatures", Reason: "intent must be signed before submission"}
	}

	stage := StageBuilt
	log := p.logger.With(zap.Int("inputs", len(sub.Intent.Offer.Inputs)))

	// 1. 序列化：失败不可重试，终态
	payload, err := codec.EncodeIntent(sub.Intent)
	if err != nil {
		log.Error("serialize failed", zap.Error(err))
		return p.finish(sub, StageFailed, types.NewFailedOutcome("", "serialize: "+err.Error())), nil
	}
	mustAdvance(&stage, StageSerialized, log)
	// 本地先算一次内容哈希，pending/网络故障时用它对账
	log = log.With(zap.String("local_hash", codec.TxHash(payload)))

	// 2. 证明：长外部调用，瞬时网关故障在证明客户端内部重试
	proven, err := p.prover.Prove(ctx, payload)
	if err != nil {
		log.Error("prove failed", zap.Error(err))
		return p.finish(sub, StageFailed, types.NewFailedOutcome("", "prove: "+err.Error())), nil
	}
	mustAdvance(&stage, StageProven, log)

	// 3. 封装：空结果是致命内部错误，不是可恢复条件
	sealed, err := p.sealer.Seal(ctx, proven)
	if err != nil {
		log.Error("seal failed", zap.Error(err))
		return p.finish(sub, StageFailed, types.NewFailedOutcome("", "seal: "+err.Error())), nil
	}
	if len(sealed) == 0 {
		log.Error("seal returned empty payload")
		return p.finish(sub, StageFailed, types.NewFailedOutcome("", "seal: empty sealed payload")), nil
	}
	mustAdvance(&stage, StageSealed, log)

	// 4. 广播：信封组帧 + RPC 提交
	txHash, err := p.broadcast(ctx, sealed)
	if err != nil {
		var rejection *types.RejectionError
		if errors.As(err, &rejection) {
			// 结构化拒绝：终态失败，哈希只在远端返回时才有
			log.Warn("broadcast rejected", zap.Int("code", rejection.Code), zap.String("reason", rejection.Message))
			return p.finish(sub, StageFailed, types.NewFailedOutcome(rejection.TxHash, rejection.Message)), nil
		}
		if velErr, ok := types.IsVelError(err); ok {
			// 重试一次后仍然是结构化错误：终态失败
			log.Warn("broadcast failed with node error", zap.Int("code", velErr.Code), zap.Error(err))
			return p.finish(sub, StageFailed, types.NewFailedOutcome("", velErr.Message)), nil
		}
		var protoErr *types.ProtocolError
		if errors.As(err, &protoErr) {
			log.Error("broadcast protocol error", zap.Error(err))
			return p.finish(sub, StageFailed, types.NewFailedOutcome("", protoErr.Error())), nil
		}
		// 网络级故障：不在本阶段自动重试，资金保持 PENDING 交给调用方
		log.Warn("broadcast network failure", zap.Error(err))
		return nil, err
	}
	mustAdvance(&stage, StageBroadcast, log)
	log = log.With(zap.String("tx_hash", txHash))

	// 5. 确认：有界等待，超时得到非终态 pending
	outcome := p.watcher.Await(ctx, sub.Intent.Offer.Inputs[0].Owner, txHash, p.confirmTimeout)
	switch outcome.Status {
	case types.OutcomeSuccess:
		return p.finish(sub, StageConfirmed, outcome), nil
	default:
		return p.finish(sub, StageTimedOut, outcome), nil
	}
}

// broadcast 组帧并提交，泛内部错误类重试一次（拒绝和网络故障不重试）
func (p *Pipeline) broadcast(ctx context.Context, sealed []byte) (string, error) {
	envelope, err := wire.EncodeEnvelope(sealed)
	if err != nil {
		return "", &types.ProtocolError{Op: "broadcast", Reason: "encode envelope: " + err.Error()}
	}
	envelopeHex := "0x" + hex.EncodeToString(envelope)

	result, err := p.client.SendRawTransaction(ctx, envelopeHex)
	if err != nil {
		if velErr, ok := types.IsVelError(err); ok && !velErr.Rejection() {
			p.logger.Warn("broadcast internal error, retrying once", zap.Error(err))
			result, err = p.client.SendRawTransaction(ctx, envelopeHex)
		}
	}
	if err != nil {
		return "", err
	}
	return result.TxHash, nil
}

// finish 落定最终阶段并执行补偿
func (p *Pipeline) finish(sub *Submission, final Stage, outcome *types.SubmissionOutcome) *types.SubmissionOutcome {
	p.logger.Info("submission finished",
		zap.String("stage", final.String()),
		zap.String("status", string(outcome.Status)),
		zap.String("tx_hash", outcome.TxHash))

	p.compensate(sub, outcome)
	return outcome
}

// compensate 按最终结果补偿费用代币与锁定记录
//
// 补偿失败只记日志，绝不覆盖主结果。
func (p *Pipeline) compensate(sub *Submission, outcome *types.SubmissionOutcome) {
	switch outcome.Status {
	case types.OutcomeSuccess:
		if len(sub.Records) > 0 {
			if err := p.records.MarkSpent(recordIDs(sub.Records)); err != nil {
				p.logger.Error("compensation: mark records spent failed", zap.Error(err))
			}
		}
		if len(sub.FeeTokens) > 0 {
			if err := p.fees.Confirm(sub.FeeTokens); err != nil {
				p.logger.Error("compensation: confirm fee tokens failed", zap.Error(err))
			}
		}

	case types.OutcomeFailed:
		if len(sub.Records) > 0 {
			if err := p.records.Release(recordIDs(sub.Records)); err != nil {
				p.logger.Error("compensation: release records failed", zap.Error(err))
			}
		}
		if len(sub.FeeTokens) > 0 {
			if err := p.fees.Release(sub.FeeTokens); err != nil {
				p.logger.Error("compensation: release fee tokens failed", zap.Error(err))
			}
		}

	case types.OutcomePending:
		// 保持 PENDING，留给后续人工对账：流水线不猜测超时的广播是否落地
		p.logger.Info("submission pending, funds left locked for reconciliation",
			zap.String("tx_hash", outcome.TxHash))
	}
}

// mustAdvance 推进阶段；顺序代码保证单调，违例说明流水线自身有缺陷
func mustAdvance(stage *Stage, next Stage, log *zap.Logger) {
	if err := stage.advance(next); err != nil {
		log.Error("stage transition violation", zap.Error(err))
		return
	}
	log.Debug("stage advanced", zap.String("stage", next.String()))
}
