package types

// OutcomeStatus 提交结果状态标签
type OutcomeStatus string

const (
	// OutcomeSuccess 交易已确认上链
	OutcomeSuccess OutcomeStatus = "success"

	// OutcomeFailed 终态失败（不会再确认）
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomePending 非终态：调用方停止等待后交易仍可能确认
	OutcomePending OutcomeStatus = "pending"
)

// SubmissionOutcome 提交结果
//
// 带标签的结果类型（不是异常）：资金不足、确认超时都是普通控制流。
//
// 各状态携带的字段：
// - success：TxHash + Height（近似区块高度）
// - failed：Reason + 可选的 TxHash（远端返回了哈希时才有）
// - pending：TxHash + Reason（例如确认等待超时）
type SubmissionOutcome struct {
	Status OutcomeStatus

	// TxHash 交易哈希（0x前缀hex；failed 状态下可能为空）
	TxHash string

	// Height 近似区块高度（仅 success）
	Height uint64

	// Reason 失败或挂起原因（success 时为空）
	Reason string
}

// NewSuccessOutcome 创建确认成功结果
func NewSuccessOutcome(txHash string, height uint64) *SubmissionOutcome {
	return &SubmissionOutcome{
		Status: OutcomeSuccess,
		TxHash: txHash,
		Height: height,
	}
}

// NewFailedOutcome 创建终态失败结果（txHash 可为空）
func NewFailedOutcome(txHash, reason string) *SubmissionOutcome {
	return &SubmissionOutcome{
		Status: OutcomeFailed,
		TxHash: txHash,
		Reason: reason,
	}
}

// NewPendingOutcome 创建非终态挂起结果
func NewPendingOutcome(txHash, reason string) *SubmissionOutcome {
	return &SubmissionOutcome{
		Status: OutcomePending,
		TxHash: txHash,
		Reason: reason,
	}
}

// Terminal 判断结果是否为终态（pending 不是终态）
func (o *SubmissionOutcome) Terminal() bool {
	return o.Status != OutcomePending
}
