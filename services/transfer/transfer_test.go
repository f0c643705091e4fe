package transfer

import (
	"context"
	"sync"

	"github.com/veltis/wallet-sdk-go/client"
	"github.com/veltis/wallet-sdk-go/types"
)

// 共享测试替身：节点客户端、证明服务、封装器

var (
	fromAddr = []byte("ffffffffffffffffffff")
	toAddr   = []byte("tttttttttttttttttttt")
)

// fakeClient 可编程的节点客户端替身
type fakeClient struct {
	mu sync.Mutex

	// sendErrs 依次返回的提交错误（用完后返回 sendResult）
	sendErrs   []error
	sendResult *client.SendTxResult
	sendCalls  int

	// finalized 订阅后推入通道的已定案交易
	finalized []*client.FinalizedTx

	// subscribeErr 非 nil 时订阅直接失败
	subscribeErr error
}

func (f *fakeClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return nil, nil
}

func (f *fakeClient) SendRawTransaction(ctx context.Context, envelopeHex string) (*client.SendTxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return nil, err
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return &client.SendTxResult{TxHash: "0xdefault"}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) SubscribeFinalized(ctx context.Context, address []byte) (<-chan *client.FinalizedTx, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	feed := make(chan *client.FinalizedTx, len(f.finalized)+1)
	for _, tx := range f.finalized {
		feed <- tx
	}
	go func() {
		<-ctx.Done()
		close(feed)
	}()
	return feed, nil
}

func (f *fakeClient) Close() error { return nil }

// fakeProver 证明服务替身
type fakeProver struct {
	err   error
	calls int
}

func (f *fakeProver) Prove(ctx context.Context, payload []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("proof:"), payload...), nil
}

// fakeSealer 封装器替身
type fakeSealer struct {
	err   error
	empty bool
}

func (f *fakeSealer) Seal(ctx context.Context, proven []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	return append([]byte("sealed:"), proven...), nil
}

// signedIntent 手工签名：每个输入填一个定宽占位签名
func signedIntent(intent *types.TransferIntent) *types.TransferIntent {
	signatures := make([][]byte, len(intent.Offer.Inputs))
	for i := range signatures {
		sig := make([]byte, types.SignatureSize)
		for j := range sig {
			sig[j] = byte(i + 1)
		}
		signatures[i] = sig
	}
	intent.Offer.Signatures = signatures
	return intent
}
