package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/codec"
	"github.com/veltis/wallet-sdk-go/feetoken"
	"github.com/veltis/wallet-sdk-go/store"
	"github.com/veltis/wallet-sdk-go/types"
)

// pipelineFixture 组装一条可提交的流水线和配套的本地状态
type pipelineFixture struct {
	pipeline *Pipeline
	records  store.RecordStore
	fees     *feetoken.Ledger
	sub      *Submission
}

func newPipelineFixture(t *testing.T, c *fakeClient, p Prover, s Sealer) *pipelineFixture {
	t.Helper()

	records := store.NewRecordStore()
	records.Put(&types.SpendableRecord{
		ID: "0xdd:0", Owner: fromAddr, Amount: 100, State: types.StateAvailable,
	})

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	feeStore := store.NewFeeTokenStore()
	feeStore.Put(&types.FeeToken{
		ID: "fee-1", Owner: fromAddr, InitialValue: 50, CreatedAt: now, Capacity: 50, State: types.StateAvailable,
	})
	fees := feetoken.NewLedger(feeStore, clock.NewTestClock(now))

	builder := NewBuilder(records)
	intent, locked, err := builder.Build(&BuildRequest{From: fromAddr, To: toAddr, Amount: 60})
	require.NoError(t, err)

	feeResult, err := fees.SelectForFee(fromAddr, 10)
	require.NoError(t, err)
	intent.FeeActions = fees.FeeActions(feeResult.Selected, 10)

	pipeline := NewPipeline(c, p, s, records, fees, &PipelineConfig{
		ConfirmTimeout: 200 * time.Millisecond,
	})

	return &pipelineFixture{
		pipeline: pipeline,
		records:  records,
		fees:     fees,
		sub: &Submission{
			Intent:    signedIntent(intent),
			Records:   locked,
			FeeTokens: feeResult.Selected,
		},
	}
}

func (f *pipelineFixture) availableRecords() int {
	return len(f.records.Available(fromAddr, ""))
}

func TestPipelineConfirmed(t *testing.T) {
	c := &fakeClient{
		sendResult: &client.SendTxResult{TxHash: "0xconfirmed"},
		finalized:  []*client.FinalizedTx{{Hash: "0xCONFIRMED", Sequence: 77}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "0xconfirmed", outcome.TxHash)
	assert.Equal(t, uint64(77), outcome.Height)

	// 补偿：记录 SPENT、费用代币 SPENT（都不再可用，也不能再回滚）
	assert.Zero(t, f.availableRecords())
	assert.Zero(t, f.fees.Balance(fromAddr))
	assert.Error(t, f.records.Release(recordIDs(f.sub.Records)))
	assert.Error(t, f.fees.Release(f.sub.FeeTokens))
}

// 序列化之后日志上下文应携带本地内容哈希，供 pending 时和远端哈希对账
func TestPipelineLogsLocalHash(t *testing.T) {
	c := &fakeClient{
		sendResult: &client.SendTxResult{TxHash: "0xconfirmed"},
		finalized:  []*client.FinalizedTx{{Hash: "0xCONFIRMED", Sequence: 7}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	core, logs := observer.New(zap.DebugLevel)
	f.pipeline.logger = zap.New(core)

	payload, err := codec.EncodeIntent(f.sub.Intent)
	require.NoError(t, err)
	want := codec.TxHash(payload)

	_, err = f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)

	matched := logs.FilterField(zap.String("local_hash", want)).Len()
	assert.NotZero(t, matched, "log entries after serialization should carry local_hash")
}

func TestPipelineRejectionRollsBack(t *testing.T) {
	c := &fakeClient{
		sendErrs: []error{&types.RejectionError{
			Code:    types.CodeTxRejected,
			Message: "insufficient coverage at sequencer",
			TxHash:  "0xrejected",
		}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.True(t, outcome.Terminal())
	assert.Equal(t, "0xrejected", outcome.TxHash)
	assert.Contains(t, outcome.Reason, "insufficient coverage")

	// 结构化拒绝不重试
	assert.Equal(t, 1, c.sendCalls)

	// 补偿：记录和费用代币全部回滚为 AVAILABLE
	assert.Equal(t, 1, f.availableRecords())
	assert.Equal(t, uint64(50), f.fees.Balance(fromAddr))
}

func TestPipelineInternalErrorRetriedOnce(t *testing.T) {
	c := &fakeClient{
		sendErrs: []error{&types.VelError{Code: types.CodeInternalError, Message: "node busy"}},
		sendResult: &client.SendTxResult{TxHash: "0xretried"},
		finalized:  []*client.FinalizedTx{{Hash: "0xretried", Sequence: 9}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 2, c.sendCalls, "泛内部错误应重试一次")
}

func TestPipelineInternalErrorPersistentFails(t *testing.T) {
	nodeErr := &types.VelError{Code: types.CodeInternalError, Message: "node busy"}
	c := &fakeClient{sendErrs: []error{nodeErr, nodeErr}}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Equal(t, 2, c.sendCalls)

	// 终态失败：回滚
	assert.Equal(t, 1, f.availableRecords())
}

func TestPipelineNetworkErrorLeavesFundsPending(t *testing.T) {
	c := &fakeClient{
		sendErrs: []error{&types.NetworkError{Op: "send", Err: errors.New("connection refused")}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, types.IsNetworkError(err))

	// 网络故障不重试，资金保持 PENDING 等待调用方重试或对账
	assert.Equal(t, 1, c.sendCalls)
	assert.Zero(t, f.availableRecords())
	require.NoError(t, f.records.Release(recordIDs(f.sub.Records)), "记录应仍为 PENDING")
}

func TestPipelineTimeoutPending(t *testing.T) {
	c := &fakeClient{
		sendResult: &client.SendTxResult{TxHash: "0xslow"},
		finalized:  []*client.FinalizedTx{{Hash: "0xother", Sequence: 1}},
	}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomePending, outcome.Status)
	assert.False(t, outcome.Terminal())
	assert.Equal(t, "0xslow", outcome.TxHash)

	// pending 保持 PENDING：既没回滚也没标花费
	assert.Zero(t, f.availableRecords())
	require.NoError(t, f.records.Release(recordIDs(f.sub.Records)))
}

func TestPipelineProveFailureRollsBack(t *testing.T) {
	c := &fakeClient{}
	f := newPipelineFixture(t, c, &fakeProver{err: errors.New("prover exhausted")}, &fakeSealer{})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "prove")
	assert.Empty(t, outcome.TxHash, "未广播的失败没有交易哈希")

	// 证明失败不会碰节点
	assert.Zero(t, c.sendCalls)
	assert.Equal(t, 1, f.availableRecords())
}

func TestPipelineSealEmptyIsFatal(t *testing.T) {
	c := &fakeClient{}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{empty: true})

	outcome, err := f.pipeline.Submit(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "seal")
	assert.Equal(t, 1, f.availableRecords())
}

func TestPipelineRejectsUnsignedIntent(t *testing.T) {
	c := &fakeClient{}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})
	f.sub.Intent.Offer.Signatures = nil

	_, err := f.pipeline.Submit(context.Background(), f.sub)
	require.Error(t, err)
	assert.True(t, types.IsValidationError(err))
}

// 空输入列表的意图在流水线入口被拦下，不会走到确认阶段
func TestPipelineRejectsEmptyOffer(t *testing.T) {
	c := &fakeClient{}
	f := newPipelineFixture(t, c, &fakeProver{}, &fakeSealer{})
	f.sub.Intent.Offer = types.Offer{}

	_, err := f.pipeline.Submit(context.Background(), f.sub)
	require.Error(t, err)
	assert.True(t, types.IsValidationError(err))
	assert.Zero(t, c.sendCalls)
}

func TestPipelineNilSubmission(t *testing.T) {
	f := newPipelineFixture(t, &fakeClient{}, &fakeProver{}, &fakeSealer{})

	_, err := f.pipeline.Submit(context.Background(), nil)
	assert.True(t, types.IsValidationError(err))
}
