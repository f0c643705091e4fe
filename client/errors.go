package client

import (
	"fmt"

	"github.com/veltis/wallet-sdk-go/types"
)

// wrapTransportError 将传输层故障包装为网络错误
func wrapTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &types.NetworkError{Op: op, Err: err}
}

// nodeError 将 JSON-RPC error 对象转换为节点错误
func nodeError(rpcErr *jsonRPCError) *types.VelError {
	data := ""
	if rpcErr.Data != nil {
		data = fmt.Sprintf("%v", rpcErr.Data)
	}
	return &types.VelError{
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Data:    data,
	}
}

// rejectionFromNodeError 将保留拒绝码的节点错误转换为拒绝错误
//
// 节点在拒绝时可能把已计算的交易哈希放在 error.data 里；没有就留空。
func rejectionFromNodeError(velErr *types.VelError) *types.RejectionError {
	txHash := ""
	if len(velErr.Data) >= 2 && velErr.Data[:2] == "0x" {
		txHash = velErr.Data
	}
	return &types.RejectionError{
		Code:    velErr.Code,
		Message: velErr.Message,
		TxHash:  txHash,
	}
}
